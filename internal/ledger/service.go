/**
 * Copyright 2025-present Tevra Labs
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package ledger

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"tevra-automation-go/internal/formance"
	"tevra-automation-go/internal/models"
	"tevra-automation-go/internal/pricefeed"
	"tevra-automation-go/internal/prime"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Compile-time check: *Service must satisfy Client.
var _ Client = (*Service)(nil)

// primeLookbackWindow bounds how far back we scan Prime wallet transactions
// when resolving an ambiguous withdrawal by idempotency key.
const primeLookbackWindow = 24 * time.Hour

// Service composes the production ledger: Formance for internal account
// balances and transfers, Coinbase Prime for withdrawals to external
// blockchain addresses, and an HTTP price feed for the price band checks.
type Service struct {
	formance    *formance.Service
	prime       *prime.Service // nil disables the external route
	prices      *pricefeed.Cache
	treasury    string
	portfolioId string
	walletId    string // fixed source wallet; empty = resolve per asset

	mu      sync.Mutex
	wallets map[string]string // asset -> Prime wallet id
}

func NewService(formanceSvc *formance.Service, primeSvc *prime.Service, prices *pricefeed.Cache, cfg models.LedgerConfig, portfolioId string) *Service {
	return &Service{
		formance:    formanceSvc,
		prime:       primeSvc,
		prices:      prices,
		treasury:    cfg.TreasuryAccount,
		portfolioId: portfolioId,
		walletId:    cfg.PrimeWalletId,
		wallets:     make(map[string]string),
	}
}

// Treasury returns the funding account topup transfers draw from.
func (s *Service) Treasury() string { return s.treasury }

func (s *Service) GetBalance(ctx context.Context, account, asset string) (decimal.Decimal, error) {
	balance, err := s.formance.GetAccountBalance(ctx, accountAddress(account), asset)
	if err != nil {
		return decimal.Zero, ClassifyRead(err)
	}
	return balance, nil
}

func (s *Service) GetPrice(ctx context.Context, asset string) (decimal.Decimal, error) {
	if s.prices == nil {
		return decimal.Zero, Permanent(fmt.Errorf("no price feed configured"))
	}
	price, err := s.prices.GetPrice(ctx, asset)
	if err != nil {
		return decimal.Zero, ClassifyRead(err)
	}
	return price, nil
}

func (s *Service) SubmitTransfer(ctx context.Context, params TransferParams) (*TransferReceipt, error) {
	if IsExternalAddress(params.Destination) {
		return s.submitExternal(ctx, params)
	}
	return s.submitInternal(ctx, params)
}

// submitInternal posts the transfer to Formance. The posting is atomic, so a
// non-duplicate success is immediately confirmed.
func (s *Service) submitInternal(ctx context.Context, params TransferParams) (*TransferReceipt, error) {
	txId, duplicate, err := s.formance.Transfer(ctx, formance.TransferParams{
		Source:      accountAddress(params.Source),
		Destination: accountAddress(params.Destination),
		Asset:       params.Asset,
		Amount:      params.Amount,
		RuleId:      params.RuleId,
		Reference:   params.IdempotencyKey,
	})
	if err != nil {
		return nil, Classify(err)
	}
	return &TransferReceipt{
		TxRef:     txId,
		Status:    StatusConfirmed,
		Duplicate: duplicate,
	}, nil
}

// submitExternal routes the transfer through Prime custody. Prime confirms
// asynchronously, so the receipt starts pending and the dispatcher polls
// GetTransferStatus.
func (s *Service) submitExternal(ctx context.Context, params TransferParams) (*TransferReceipt, error) {
	if s.prime == nil {
		return nil, Permanent(fmt.Errorf("external transfers disabled: no Prime credentials configured"))
	}

	walletId, err := s.sourceWallet(ctx, params.Asset)
	if err != nil {
		return nil, Classify(err)
	}

	withdrawal, err := s.prime.CreateWithdrawal(ctx, prime.CreateWithdrawalParams{
		PortfolioId:        s.portfolioId,
		WalletId:           walletId,
		DestinationAddress: params.Destination,
		Amount:             params.Amount.String(),
		Asset:              params.Asset,
		IdempotencyKey:     params.IdempotencyKey,
	})
	if err != nil {
		return nil, Classify(err)
	}

	return &TransferReceipt{
		TxRef:  withdrawal.ActivityId,
		Status: StatusPending,
	}, nil
}

func (s *Service) GetTransferStatus(ctx context.Context, params TransferParams) (*TransferReceipt, error) {
	if IsExternalAddress(params.Destination) {
		return s.externalStatus(ctx, params)
	}
	return s.internalStatus(ctx, params)
}

func (s *Service) internalStatus(ctx context.Context, params TransferParams) (*TransferReceipt, error) {
	record, err := s.formance.FindTransferByReference(ctx, params.IdempotencyKey)
	if err != nil {
		return nil, Classify(err)
	}
	if record == nil {
		return &TransferReceipt{Status: StatusUnknown}, nil
	}
	status := StatusConfirmed
	if record.Reverted {
		status = StatusRejected
	}
	return &TransferReceipt{TxRef: record.TxId, Status: status}, nil
}

func (s *Service) externalStatus(ctx context.Context, params TransferParams) (*TransferReceipt, error) {
	if s.prime == nil {
		return nil, Permanent(fmt.Errorf("external transfers disabled: no Prime credentials configured"))
	}

	walletId, err := s.sourceWallet(ctx, params.Asset)
	if err != nil {
		return nil, Classify(err)
	}

	since := time.Now().Add(-primeLookbackWindow)
	tx, err := s.prime.FindTransactionByIdempotencyKey(ctx, s.portfolioId, walletId, params.IdempotencyKey, since)
	if err != nil {
		return nil, Classify(err)
	}
	if tx == nil {
		return &TransferReceipt{Status: StatusUnknown}, nil
	}
	return &TransferReceipt{
		TxRef:  tx.Id,
		Status: mapPrimeStatus(tx.Status),
	}, nil
}

// sourceWallet resolves the Prime wallet withdrawals for an asset draw from,
// caching lookups per asset.
func (s *Service) sourceWallet(ctx context.Context, asset string) (string, error) {
	if s.walletId != "" {
		return s.walletId, nil
	}

	s.mu.Lock()
	cached, ok := s.wallets[asset]
	s.mu.Unlock()
	if ok {
		return cached, nil
	}

	symbol := strings.Split(asset, "-")[0]
	wallet, err := s.prime.FindTradingWallet(ctx, s.portfolioId, symbol)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.wallets[asset] = wallet.Id
	s.mu.Unlock()

	zap.L().Info("Resolved Prime source wallet",
		zap.String("asset", asset),
		zap.String("wallet_id", wallet.Id))
	return wallet.Id, nil
}

// mapPrimeStatus folds Prime transaction statuses into the engine's view.
func mapPrimeStatus(status string) TransferStatus {
	switch status {
	case "TRANSACTION_DONE":
		return StatusConfirmed
	case "TRANSACTION_CANCELLED", "TRANSACTION_REJECTED", "TRANSACTION_FAILED", "TRANSACTION_EXPIRED":
		return StatusRejected
	default:
		return StatusPending
	}
}

// IsExternalAddress reports whether a recipient is an on-chain address
// rather than an internal ledger account.
func IsExternalAddress(recipient string) bool {
	return strings.HasPrefix(recipient, "0x") || strings.HasPrefix(recipient, "bc1")
}

// accountAddress normalizes a bare owner id to its ledger account address.
// Identifiers that already carry a ledger path are used verbatim.
func accountAddress(account string) string {
	if strings.Contains(account, ":") {
		return account
	}
	return "users:" + account
}
