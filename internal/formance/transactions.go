package formance

import (
	"context"
	"fmt"

	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// numscriptRuleTransfer moves one amount between two ledger accounts. No
// overdraft clause: an underfunded source makes the ledger reject the
// transaction, which the engine treats as retryable.
const numscriptRuleTransfer = `vars {
  asset $asset
  number $amount
  account $source
  account $destination
  string $rule_id
  string $execution_key
  string $asset_symbol
  string $amount_human
}

send [$asset $amount] (
  source = $source
  destination = $destination
)

set_tx_meta("event_type", "rule_execution")
set_tx_meta("rule_id", $rule_id)
set_tx_meta("execution_key", $execution_key)
set_tx_meta("asset_symbol", $asset_symbol)
set_tx_meta("amount_human", $amount_human)
`

// TransferParams describes one rule-driven ledger movement.
type TransferParams struct {
	Source      string
	Destination string
	Asset       string
	Amount      decimal.Decimal
	RuleId      string
	// Reference doubles as the idempotency key: the ledger rejects a second
	// transaction with the same reference with CONFLICT.
	Reference string
}

// TransferRecord is the ledger's view of a previously submitted transfer.
type TransferRecord struct {
	TxId      string
	Reference string
	Reverted  bool
}

// Transfer posts the movement as a Numscript transaction. duplicate=true
// means a transaction with this reference already exists; the original
// outcome stands and no funds moved twice.
func (s *Service) Transfer(ctx context.Context, params TransferParams) (txId string, duplicate bool, err error) {
	fAsset := s.formanceAsset(params.Asset)
	smallAmt := params.Amount.Shift(int32(s.precisionFor(params.Asset))).BigInt().String()

	postTx := shared.V2PostTransaction{
		Reference: strPtr(params.Reference),
		Script: &shared.V2PostTransactionScript{
			Plain: numscriptRuleTransfer,
			Vars: map[string]string{
				"asset":         fAsset,
				"amount":        smallAmt,
				"source":        params.Source,
				"destination":   params.Destination,
				"rule_id":       params.RuleId,
				"execution_key": params.Reference,
				"asset_symbol":  params.Asset,
				"amount_human":  params.Amount.String(),
			},
		},
	}

	resp, err := s.client.Ledger.V2.CreateTransaction(ctx, operations.V2CreateTransactionRequest{
		Ledger:            s.ledger,
		V2PostTransaction: postTx,
	})
	if err != nil {
		if isConflictError(err) {
			zap.L().Info("Transfer already recorded, treating as idempotent duplicate",
				zap.String("reference", params.Reference))
			return "", true, nil
		}
		return "", false, fmt.Errorf("error posting transfer: %w", err)
	}

	id := resp.V2CreateTransactionResponse.Data.ID.String()
	zap.L().Info("Transfer posted to Formance",
		zap.String("tx_id", id),
		zap.String("reference", params.Reference),
		zap.String("source", params.Source),
		zap.String("destination", params.Destination),
		zap.String("asset", params.Asset),
		zap.String("amount", params.Amount.String()))
	return id, false, nil
}

// FindTransferByReference looks up a transfer by its reference. Returns nil
// when no transaction carries the reference, which tells the dispatcher an
// ambiguous submit never reached the ledger.
func (s *Service) FindTransferByReference(ctx context.Context, reference string) (*TransferRecord, error) {
	pageSize := int64(1)
	resp, err := s.client.Ledger.V2.ListTransactions(ctx, operations.V2ListTransactionsRequest{
		Ledger:   s.ledger,
		PageSize: &pageSize,
		RequestBody: map[string]any{
			"$match": map[string]any{
				"reference": reference,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to look up transfer by reference: %w", err)
	}

	data := resp.V2TransactionsCursorResponse.Cursor.Data
	if len(data) == 0 {
		return nil, nil
	}

	tx := data[0]
	record := &TransferRecord{
		TxId:     tx.ID.String(),
		Reverted: tx.Reverted,
	}
	if tx.Reference != nil {
		record.Reference = *tx.Reference
	}
	return record, nil
}
