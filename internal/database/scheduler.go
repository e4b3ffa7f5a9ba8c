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

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"tevra-automation-go/internal/models"
	"tevra-automation-go/internal/store"

	"go.uber.org/zap"
)

// ListDue returns the rules the sweep should consider at `now`: active rules
// whose next_eligible has passed and retrying rules whose retry_at has passed.
// In-flight, paused, failed and deleted rules are never returned.
func (s *Service) ListDue(ctx context.Context, now time.Time) ([]models.AutomationRule, error) {
	rows, err := s.db.QueryContext(ctx, queryListDue, now.UTC(), now.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list due rules: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var rules []models.AutomationRule
	for rows.Next() {
		rule, err := scanRule(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan due rule: %w", err)
		}
		rules = append(rules, *rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating due rules: %w", err)
	}
	return rules, nil
}

// ListInFlight returns rules currently claimed by an execution. On a clean
// shutdown this is empty at startup; anything found then is a stranded claim.
func (s *Service) ListInFlight(ctx context.Context) ([]models.AutomationRule, error) {
	rows, err := s.db.QueryContext(ctx, queryListInFlight)
	if err != nil {
		return nil, fmt.Errorf("failed to list in-flight rules: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var rules []models.AutomationRule
	for rows.Next() {
		rule, err := scanRule(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan in-flight rule: %w", err)
		}
		rules = append(rules, *rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating in-flight rules: %w", err)
	}
	return rules, nil
}

// ClaimRule atomically flips a rule from active/retrying to in_flight. The
// conditional update guarantees at most one in-flight execution per rule even
// with overlapping sweeps: the second claimant finds no matching row and gets
// ErrRuleNotClaimable.
func (s *Service) ClaimRule(ctx context.Context, ruleId string, now time.Time) (*store.Claim, error) {
	var prior models.RuleStatus
	err := s.db.QueryRowContext(ctx, queryGetRuleStatus, ruleId).Scan(&prior)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", store.ErrRuleNotFound, ruleId)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read rule status: %w", err)
	}
	if prior != models.StatusActive && prior != models.StatusRetrying {
		return nil, fmt.Errorf("%w: rule %s is %s", store.ErrRuleNotClaimable, ruleId, prior)
	}

	result, err := s.db.ExecContext(ctx, queryClaimRule, ruleId, string(prior))
	if err != nil {
		return nil, fmt.Errorf("failed to claim rule: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		// Somebody else claimed or transitioned the rule between our read
		// and our update.
		return nil, fmt.Errorf("%w: rule %s claimed concurrently", store.ErrRuleNotClaimable, ruleId)
	}

	rule, err := s.GetRule(ctx, ruleId)
	if err != nil {
		return nil, err
	}

	zap.L().Debug("Rule claimed",
		zap.String("rule_id", ruleId),
		zap.String("prior_status", string(prior)))

	return &store.Claim{Rule: rule, PriorStatus: prior, ClaimedAt: now}, nil
}

// ReleaseClaim returns an in-flight rule to the status it held before the
// claim. Used when condition re-checks fail and no execution was dispatched.
func (s *Service) ReleaseClaim(ctx context.Context, ruleId string, priorStatus models.RuleStatus) error {
	result, err := s.db.ExecContext(ctx, queryReleaseClaim, string(priorStatus), ruleId)
	if err != nil {
		return fmt.Errorf("failed to release claim: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: rule %s is not in flight", store.ErrInvalidTransition, ruleId)
	}
	return nil
}

// CompleteExecution records a confirmed execution: the rule returns to
// active, last_executed is stamped and next_eligible moves forward. Retry
// state is cleared so a rule that succeeded on attempt 3 starts its next
// cycle fresh.
func (s *Service) CompleteExecution(ctx context.Context, ruleId string, executedAt, nextEligible time.Time) error {
	result, err := s.db.ExecContext(ctx, queryCompleteExecution, executedAt.UTC(), nextEligible.UTC(), ruleId)
	if err != nil {
		return fmt.Errorf("failed to complete execution: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: rule %s is not in flight", store.ErrInvalidTransition, ruleId)
	}

	zap.L().Info("Execution completed",
		zap.String("rule_id", ruleId),
		zap.Time("executed_at", executedAt),
		zap.Time("next_eligible", nextEligible))
	return nil
}

// ScheduleRetry moves an in-flight rule to retrying with the attempt counter
// and backoff deadline recorded.
func (s *Service) ScheduleRetry(ctx context.Context, ruleId string, params store.RetryParams) error {
	result, err := s.db.ExecContext(ctx, queryScheduleRetry,
		params.Attempt, params.NextRetry.UTC(), params.ErrorKind, ruleId)
	if err != nil {
		return fmt.Errorf("failed to schedule retry: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: rule %s is not in flight", store.ErrInvalidTransition, ruleId)
	}

	zap.L().Info("Retry scheduled",
		zap.String("rule_id", ruleId),
		zap.Int("attempt", params.Attempt),
		zap.Time("retry_at", params.NextRetry),
		zap.String("error_kind", params.ErrorKind))
	return nil
}

// MarkFailed parks a rule after a permanent error or an exhausted retry
// budget. Failed rules require an explicit reactivation to run again.
func (s *Service) MarkFailed(ctx context.Context, ruleId, errorKind string) error {
	result, err := s.db.ExecContext(ctx, queryMarkFailed, errorKind, ruleId)
	if err != nil {
		return fmt.Errorf("failed to mark rule failed: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: rule %s cannot fail from its current status", store.ErrInvalidTransition, ruleId)
	}

	zap.L().Warn("Rule marked failed",
		zap.String("rule_id", ruleId),
		zap.String("error_kind", errorKind))
	return nil
}
