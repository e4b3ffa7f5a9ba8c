package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// TransferStatus is the outcome of a submitted transfer as the ledger sees it.
type TransferStatus string

const (
	StatusPending   TransferStatus = "pending"
	StatusConfirmed TransferStatus = "confirmed"
	StatusRejected  TransferStatus = "rejected"
	// StatusUnknown means the ledger has no record of the idempotency key:
	// the submit never landed and a resubmission is safe.
	StatusUnknown TransferStatus = "unknown"
)

// TransferParams describes one value movement keyed for idempotent submission.
type TransferParams struct {
	IdempotencyKey string
	Source         string
	Destination    string
	Asset          string
	Amount         decimal.Decimal
	RuleId         string
}

// TransferReceipt reports the transfer's reference and current status.
type TransferReceipt struct {
	TxRef  string
	Status TransferStatus
	// Duplicate is set when the ledger already held a transfer for the
	// idempotency key; no funds moved twice.
	Duplicate bool
}

// Client is the boundary the engine talks value movement through: balances
// and prices for evaluation, transfer submission and confirmation for
// dispatch. All implementations must make SubmitTransfer idempotent on
// IdempotencyKey or support GetTransferStatus lookups by that key.
type Client interface {
	GetBalance(ctx context.Context, account, asset string) (decimal.Decimal, error)
	GetPrice(ctx context.Context, asset string) (decimal.Decimal, error)
	SubmitTransfer(ctx context.Context, params TransferParams) (*TransferReceipt, error)
	GetTransferStatus(ctx context.Context, params TransferParams) (*TransferReceipt, error)
}
