package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tevra-automation-go/internal/models"
	"tevra-automation-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CreateRule validates and persists a new rule. The rule starts active and is
// eligible immediately; the first execution stamps last_executed and pushes
// next_eligible forward by the schedule interval.
func (s *Service) CreateRule(ctx context.Context, params store.CreateRuleParams) (*models.AutomationRule, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	ruleId := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, queryInsertRule,
		ruleId, params.Owner, string(params.Direction), params.Asset, params.Recipient,
		params.Amount.String(), params.Threshold.String(), params.MaxBalance.String(),
		int64(params.ScheduleInterval/time.Second),
		params.PriceMin.String(), params.PriceMax.String(),
		string(models.StatusActive), now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert rule: %w", err)
	}

	zap.L().Info("Rule created",
		zap.String("rule_id", ruleId),
		zap.String("owner", params.Owner),
		zap.String("direction", string(params.Direction)),
		zap.String("asset", params.Asset),
		zap.String("amount", params.Amount.String()))

	return s.GetRule(ctx, ruleId)
}

func (s *Service) GetRule(ctx context.Context, ruleId string) (*models.AutomationRule, error) {
	row := s.db.QueryRowContext(ctx, queryGetRule, ruleId)
	rule, err := scanRule(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", store.ErrRuleNotFound, ruleId)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return rule, nil
}

func (s *Service) GetRulesByOwner(ctx context.Context, owner string) ([]models.AutomationRule, error) {
	rows, err := s.db.QueryContext(ctx, queryGetRulesByOwner, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to get rules for owner: %w", err)
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
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, *rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rule rows: %w", err)
	}
	return rules, nil
}

// UpdateRule applies the non-nil fields of params to an existing rule. The
// merged result is re-validated as a whole so an update can never produce a
// rule that CreateRule would have rejected.
func (s *Service) UpdateRule(ctx context.Context, ruleId string, params store.UpdateRuleParams) (*models.AutomationRule, error) {
	rule, err := s.GetRule(ctx, ruleId)
	if err != nil {
		return nil, err
	}

	merged := store.CreateRuleParams{
		Owner:            rule.Owner,
		Direction:        rule.Direction,
		Asset:            rule.Asset,
		Recipient:        rule.Recipient,
		Amount:           rule.Amount,
		Threshold:        rule.Threshold,
		MaxBalance:       rule.MaxBalance,
		ScheduleInterval: rule.ScheduleInterval,
		PriceMin:         rule.PriceMin,
		PriceMax:         rule.PriceMax,
	}
	if params.Amount != nil {
		merged.Amount = *params.Amount
	}
	if params.Threshold != nil {
		merged.Threshold = *params.Threshold
	}
	if params.MaxBalance != nil {
		merged.MaxBalance = *params.MaxBalance
	}
	if params.ScheduleInterval != nil {
		merged.ScheduleInterval = *params.ScheduleInterval
	}
	if params.PriceMin != nil {
		merged.PriceMin = *params.PriceMin
	}
	if params.PriceMax != nil {
		merged.PriceMax = *params.PriceMax
	}
	if params.Recipient != nil {
		merged.Recipient = *params.Recipient
	}
	if err := merged.Validate(); err != nil {
		return nil, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE automation_rules
		SET amount = ?, threshold = ?, max_balance = ?, schedule_interval = ?,
		    price_min = ?, price_max = ?, recipient = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status != 'deleted'`,
		merged.Amount.String(), merged.Threshold.String(), merged.MaxBalance.String(),
		int64(merged.ScheduleInterval/time.Second),
		merged.PriceMin.String(), merged.PriceMax.String(), merged.Recipient,
		ruleId)
	if err != nil {
		return nil, fmt.Errorf("failed to update rule: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, fmt.Errorf("rule update failed - %w", store.ErrConcurrentModification)
	}

	zap.L().Info("Rule updated", zap.String("rule_id", ruleId))
	return s.GetRule(ctx, ruleId)
}

// PauseRule suspends an active or retrying rule. Pausing a retrying rule
// cancels the pending retry.
func (s *Service) PauseRule(ctx context.Context, ruleId string) error {
	return s.transition(ctx, ruleId, queryPauseRule, "paused")
}

// ReactivateRule resumes a paused or failed rule and clears any retry state.
// The rule becomes eligible at last_executed + interval, or immediately if
// that point has already passed (or it never executed).
func (s *Service) ReactivateRule(ctx context.Context, ruleId string) error {
	rule, err := s.GetRule(ctx, ruleId)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	nextEligible := now
	if !rule.LastExecuted.IsZero() {
		if due := rule.LastExecuted.Add(rule.ScheduleInterval); due.After(now) {
			nextEligible = due
		}
	}

	result, err := s.db.ExecContext(ctx, queryReactivateRule, nextEligible, ruleId)
	if err != nil {
		return fmt.Errorf("failed to reactivate rule: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: cannot reactivate rule in status %s", store.ErrInvalidTransition, rule.Status)
	}

	zap.L().Info("Rule reactivated",
		zap.String("rule_id", ruleId),
		zap.Time("next_eligible", nextEligible))
	return nil
}

// DeleteRule tombstones a rule. Deleted rules are excluded from reads and
// from the sweep; an in-flight execution for the rule is allowed to finish
// but its completion update will find no claimable row.
func (s *Service) DeleteRule(ctx context.Context, ruleId string) error {
	result, err := s.db.ExecContext(ctx, queryDeleteRule, ruleId)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", store.ErrRuleNotFound, ruleId)
	}

	zap.L().Info("Rule deleted", zap.String("rule_id", ruleId))
	return nil
}

func (s *Service) transition(ctx context.Context, ruleId, query, target string) error {
	result, err := s.db.ExecContext(ctx, query, ruleId)
	if err != nil {
		return fmt.Errorf("failed to mark rule %s: %w", target, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		// Distinguish a missing rule from an illegal transition.
		if _, err := s.GetRule(ctx, ruleId); err != nil {
			if errors.Is(err, store.ErrRuleNotFound) {
				return err
			}
			return fmt.Errorf("failed to check rule state: %w", err)
		}
		return fmt.Errorf("%w: cannot mark rule %s", store.ErrInvalidTransition, target)
	}

	zap.L().Info("Rule status changed",
		zap.String("rule_id", ruleId),
		zap.String("status", target))
	return nil
}
