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

package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tevra-automation-go/internal/events"
	"tevra-automation-go/internal/ledger"
	"tevra-automation-go/internal/metrics"
	"tevra-automation-go/internal/models"
	"tevra-automation-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Outcome is what the scheduler observes from a dispatch. Raw ledger errors
// never cross this boundary.
type Outcome string

const (
	OutcomeConfirmed      Outcome = "confirmed"
	OutcomeSkipped        Outcome = "skipped" // stale conditions, claim released
	OutcomeRetryScheduled Outcome = "retry_scheduled"
	OutcomeFailed         Outcome = "failed"
)

// Error kinds surfaced in events and the failure column.
const (
	errorKindTransient = "transient"
	errorKindPermanent = "permanent"
)

// Dispatcher executes one claimed rule at a time: re-validate against fresh
// reads, submit the transfer under a deterministic idempotency key, await
// confirmation, and settle the rule's next state.
type Dispatcher struct {
	ruleStore store.RuleStore
	ledger    ledger.Client
	emitter   events.Emitter
	treasury  string

	maxRetries     int
	baseBackoff    time.Duration
	maxBackoff     time.Duration
	confirmTimeout time.Duration
	confirmPoll    time.Duration

	now func() time.Time // stubbed in tests
}

func NewDispatcher(ruleStore store.RuleStore, ledgerClient ledger.Client, emitter events.Emitter, treasury string, cfg models.EngineConfig) *Dispatcher {
	return &Dispatcher{
		ruleStore:      ruleStore,
		ledger:         ledgerClient,
		emitter:        emitter,
		treasury:       treasury,
		maxRetries:     cfg.MaxRetries,
		baseBackoff:    cfg.RetryBaseBackoff,
		maxBackoff:     cfg.RetryMaxBackoff,
		confirmTimeout: cfg.ConfirmTimeout,
		confirmPoll:    cfg.ConfirmPoll,
		now:            time.Now,
	}
}

// Execute runs one claimed rule to a terminal outcome. The claim is always
// resolved before returning: released, completed, retried, or failed.
func (d *Dispatcher) Execute(ctx context.Context, claim *store.Claim) Outcome {
	rule := claim.Rule
	started := d.now()

	outcome := d.execute(ctx, claim)

	metrics.ExecutionDuration.Observe(d.now().Sub(started).Seconds())
	zap.L().Info("Dispatch finished",
		zap.String("rule_id", rule.Id),
		zap.String("owner", rule.Owner),
		zap.String("outcome", string(outcome)))
	return outcome
}

func (d *Dispatcher) execute(ctx context.Context, claim *store.Claim) Outcome {
	rule := claim.Rule
	key := idempotencyKey(rule)
	attempt := rule.Retry.Attempt + 1

	// On a retry the previous submit may have landed despite its ambiguous
	// outcome. Resolve by key before anything else: a landed transfer has
	// already moved the balance, so the condition re-check below would
	// misread it as stale and the confirmation would never settle.
	if attempt > 1 {
		receipt, err := d.ledger.GetTransferStatus(ctx, d.transferParams(rule, key))
		if err != nil {
			return d.handleFailure(ctx, claim, "", fmt.Errorf("status lookup: %w", ledger.Classify(err)))
		}
		switch receipt.Status {
		case ledger.StatusConfirmed:
			return d.settleSuccess(ctx, claim, d.journaledExecution(ctx, key), receipt.TxRef, attempt, key)
		case ledger.StatusPending:
			executionId := d.journalAttempt(ctx, rule, key, attempt)
			return d.awaitConfirmation(ctx, claim, executionId, key, receipt.TxRef, attempt)
		case ledger.StatusRejected:
			return d.handleFailure(ctx, claim, d.journaledExecution(ctx, key),
				ledger.Permanent(fmt.Errorf("transfer rejected by ledger")))
		}
		// StatusUnknown: the earlier submit never landed, safe to resubmit.
	}

	// Fresh reads. Conditions held at claim time; they may not anymore.
	balance, err := d.ledger.GetBalance(ctx, MonitoredAccount(rule), rule.Asset)
	if err != nil {
		return d.handleFailure(ctx, claim, "", fmt.Errorf("balance read: %w", ledger.ClassifyRead(err)))
	}

	price := decimal.Zero
	if HasPriceBand(rule) {
		price, err = d.ledger.GetPrice(ctx, rule.Asset)
		if err != nil {
			return d.handleFailure(ctx, claim, "", fmt.Errorf("price read: %w", ledger.ClassifyRead(err)))
		}
	}

	// Re-validate with the rule as it was before the claim flipped it to
	// in_flight. A stale condition is not a failure: release and move on
	// without touching nextEligible.
	preClaim := *rule
	preClaim.Status = claim.PriorStatus
	if decision := Evaluate(&preClaim, balance, price, d.now()); decision != DecisionReady {
		if err := d.ruleStore.ReleaseClaim(ctx, rule.Id, claim.PriorStatus); err != nil {
			zap.L().Error("Failed to release stale claim",
				zap.String("rule_id", rule.Id),
				zap.Error(err))
		}
		zap.L().Info("Conditions no longer hold, claim released",
			zap.String("rule_id", rule.Id),
			zap.String("decision", string(decision)))
		metrics.ExecutionsTotal.WithLabelValues(metrics.OutcomeSkipped).Inc()
		return OutcomeSkipped
	}

	executionId := d.journalAttempt(ctx, rule, key, attempt)

	receipt, err := d.ledger.SubmitTransfer(ctx, d.transferParams(rule, key))
	if err != nil {
		return d.handleFailure(ctx, claim, executionId, fmt.Errorf("submit: %w", ledger.Classify(err)))
	}
	if receipt.Duplicate {
		zap.L().Info("Transfer already existed for idempotency key, no funds moved twice",
			zap.String("rule_id", rule.Id),
			zap.String("idempotency_key", key))
	}

	if receipt.Status == ledger.StatusConfirmed {
		return d.settleSuccess(ctx, claim, executionId, receipt.TxRef, attempt, key)
	}
	return d.awaitConfirmation(ctx, claim, executionId, key, receipt.TxRef, attempt)
}

// awaitConfirmation polls the ledger until the transfer settles or the
// confirmation deadline passes. A deadline expiry is a transient failure.
func (d *Dispatcher) awaitConfirmation(ctx context.Context, claim *store.Claim, executionId, key, txRef string, attempt int) Outcome {
	rule := claim.Rule
	deadline := d.now().Add(d.confirmTimeout)

	ticker := time.NewTicker(d.confirmPoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return d.handleFailure(ctx, claim, executionId, ledger.Classify(ctx.Err()))
		case <-ticker.C:
		}

		receipt, err := d.ledger.GetTransferStatus(ctx, d.transferParams(rule, key))
		if err != nil {
			zap.L().Warn("Confirmation poll failed",
				zap.String("rule_id", rule.Id),
				zap.Error(err))
		} else {
			switch receipt.Status {
			case ledger.StatusConfirmed:
				return d.settleSuccess(ctx, claim, executionId, receipt.TxRef, attempt, key)
			case ledger.StatusRejected:
				return d.handleFailure(ctx, claim, executionId, ledger.Permanent(fmt.Errorf("transfer rejected during confirmation")))
			}
		}

		if d.now().After(deadline) {
			return d.handleFailure(ctx, claim, executionId,
				ledger.Transient(fmt.Errorf("confirmation timeout after %s, tx_ref %s", d.confirmTimeout, txRef)))
		}
	}
}

// settleSuccess advances the schedule and clears any retry state.
func (d *Dispatcher) settleSuccess(ctx context.Context, claim *store.Claim, executionId, txRef string, attempt int, key string) Outcome {
	// Settle even when the surrounding context was cancelled mid-dispatch:
	// the transfer confirmed and the rule must not be left in flight.
	ctx = context.WithoutCancel(ctx)
	rule := claim.Rule
	executedAt := d.now().UTC()
	nextEligible := executedAt.Add(rule.ScheduleInterval)

	if err := d.ruleStore.CompleteExecution(ctx, rule.Id, executedAt, nextEligible); err != nil {
		zap.L().Error("Failed to complete execution",
			zap.String("rule_id", rule.Id),
			zap.Error(err))
	}
	if executionId != "" {
		if err := d.ruleStore.CompleteExecutionRecord(ctx, executionId, models.ExecutionConfirmed, txRef, ""); err != nil {
			zap.L().Error("Failed to update execution journal",
				zap.String("execution_id", executionId),
				zap.Error(err))
		}
	}

	d.emitter.Emit(models.Event{
		Type:      models.EventExecuted,
		RuleId:    rule.Id,
		Owner:     rule.Owner,
		Asset:     rule.Asset,
		Recipient: rule.Recipient,
		Amount:    rule.Amount,
		TxRef:     txRef,
		Attempt:   attempt,
	})
	metrics.ExecutionsTotal.WithLabelValues(metrics.OutcomeConfirmed).Inc()

	zap.L().Info("Rule executed",
		zap.String("rule_id", rule.Id),
		zap.String("owner", rule.Owner),
		zap.String("asset", rule.Asset),
		zap.String("amount", rule.Amount.String()),
		zap.String("tx_ref", txRef),
		zap.String("idempotency_key", key),
		zap.Time("next_eligible", nextEligible))
	return OutcomeConfirmed
}

// handleFailure settles a failed attempt: transient errors schedule a retry
// with exponential backoff until the budget runs out, permanent errors fail
// the rule immediately.
func (d *Dispatcher) handleFailure(ctx context.Context, claim *store.Claim, executionId string, err error) Outcome {
	// A cancelled context still gets its retry persisted so the rule is not
	// stranded in flight across a restart.
	ctx = context.WithoutCancel(ctx)
	rule := claim.Rule

	if executionId != "" {
		if recErr := d.ruleStore.CompleteExecutionRecord(ctx, executionId, models.ExecutionFailed, "", err.Error()); recErr != nil {
			zap.L().Error("Failed to update execution journal",
				zap.String("execution_id", executionId),
				zap.Error(recErr))
		}
	}

	attempt := rule.Retry.Attempt + 1
	if ledger.IsTransient(err) && attempt <= d.maxRetries {
		nextRetry := d.now().UTC().Add(d.backoff(attempt))
		if storeErr := d.ruleStore.ScheduleRetry(ctx, rule.Id, store.RetryParams{
			Attempt:   attempt,
			NextRetry: nextRetry,
			ErrorKind: errorKindTransient,
		}); storeErr != nil {
			zap.L().Error("Failed to schedule retry",
				zap.String("rule_id", rule.Id),
				zap.Error(storeErr))
		}

		d.emitter.Emit(models.Event{
			Type:      models.EventRetryScheduled,
			RuleId:    rule.Id,
			Owner:     rule.Owner,
			Attempt:   attempt,
			NextRetry: nextRetry,
			ErrorKind: errorKindTransient,
			Detail:    err.Error(),
		})
		metrics.RetriesScheduled.Inc()
		metrics.ExecutionsTotal.WithLabelValues(metrics.OutcomeRetried).Inc()

		zap.L().Warn("Execution failed transiently, retry scheduled",
			zap.String("rule_id", rule.Id),
			zap.Int("attempt", attempt),
			zap.Time("next_retry", nextRetry),
			zap.Error(err))
		return OutcomeRetryScheduled
	}

	errorKind := errorKindPermanent
	if ledger.IsTransient(err) {
		errorKind = "retries_exhausted"
	}
	if storeErr := d.ruleStore.MarkFailed(ctx, rule.Id, errorKind); storeErr != nil {
		zap.L().Error("Failed to mark rule failed",
			zap.String("rule_id", rule.Id),
			zap.Error(storeErr))
	}

	d.emitter.Emit(models.Event{
		Type:      models.EventFailed,
		RuleId:    rule.Id,
		Owner:     rule.Owner,
		Attempt:   attempt,
		ErrorKind: errorKind,
		Detail:    err.Error(),
	})
	metrics.ExecutionsTotal.WithLabelValues(metrics.OutcomeFailed).Inc()

	zap.L().Error("Rule failed, owner reactivation required",
		zap.String("rule_id", rule.Id),
		zap.String("owner", rule.Owner),
		zap.String("error_kind", errorKind),
		zap.Error(err))
	return OutcomeFailed
}

// journalAttempt records the attempt before the ledger is touched, so an
// ambiguous outcome always has a journal row to resolve against. A duplicate
// row from a crashed prior attempt is tolerated.
func (d *Dispatcher) journalAttempt(ctx context.Context, rule *models.AutomationRule, key string, attempt int) string {
	execution, err := d.ruleStore.RecordExecution(ctx, store.ExecutionParams{
		RuleId:         rule.Id,
		Owner:          rule.Owner,
		IdempotencyKey: key,
		Direction:      rule.Direction,
		Asset:          rule.Asset,
		Recipient:      rule.Recipient,
		Amount:         rule.Amount,
		Attempt:        attempt,
		Status:         models.ExecutionSubmitted,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateExecution) {
			zap.L().Warn("Execution attempt already journaled",
				zap.String("rule_id", rule.Id),
				zap.String("idempotency_key", key),
				zap.Int("attempt", attempt))
			return d.journaledExecution(ctx, key)
		}
		zap.L().Error("Failed to journal execution attempt",
			zap.String("rule_id", rule.Id),
			zap.Error(err))
		return ""
	}
	return execution.Id
}

// journaledExecution recovers the journal row id for an idempotency key, so
// an outcome resolved on a later attempt closes the original row instead of
// leaving it in submitted/failed forever.
func (d *Dispatcher) journaledExecution(ctx context.Context, key string) string {
	execution, err := d.ruleStore.GetExecutionByKey(ctx, key)
	if err != nil {
		zap.L().Warn("Failed to look up journaled execution",
			zap.String("idempotency_key", key),
			zap.Error(err))
		return ""
	}
	if execution == nil {
		return ""
	}
	return execution.Id
}

// transferParams builds the ledger call for a rule. Topups fund the
// recipient from the treasury; withdrawals drain the owner's account.
func (d *Dispatcher) transferParams(rule *models.AutomationRule, key string) ledger.TransferParams {
	source := rule.Owner
	if rule.Direction == models.DirectionTopup {
		source = d.treasury
	}
	return ledger.TransferParams{
		IdempotencyKey: key,
		Source:         source,
		Destination:    rule.Recipient,
		Asset:          rule.Asset,
		Amount:         rule.Amount,
		RuleId:         rule.Id,
	}
}

// backoff doubles per attempt from the base, capped at the ceiling.
func (d *Dispatcher) backoff(attempt int) time.Duration {
	backoff := d.baseBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff >= d.maxBackoff {
			return d.maxBackoff
		}
	}
	if backoff > d.maxBackoff {
		return d.maxBackoff
	}
	return backoff
}

// idempotencyKey derives the deterministic key for the rule's current due
// window. All retry attempts within one window share it, so the ledger can
// collapse duplicate submissions.
func idempotencyKey(rule *models.AutomationRule) string {
	return fmt.Sprintf("%s:%d", rule.Id, rule.NextEligible.UTC().Unix())
}
