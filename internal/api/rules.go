package api

import (
	"context"
	"errors"

	"tevra-automation-go/internal/models"
	"tevra-automation-go/internal/store"

	"go.uber.org/zap"
)

// CreateRule validates and persists a new automation rule, then emits
// rule.created. Validation failures come back in the result, not as errors.
func (s *RuleService) CreateRule(ctx context.Context, params store.CreateRuleParams) (*models.RuleResult, error) {
	zap.L().Info("Creating automation rule",
		zap.String("owner", params.Owner),
		zap.String("direction", string(params.Direction)),
		zap.String("asset", params.Asset),
		zap.String("amount", params.Amount.String()))

	rule, err := s.ruleStore.CreateRule(ctx, params)
	if err != nil {
		if errors.Is(err, store.ErrValidation) {
			zap.L().Info("Rule rejected by validation",
				zap.String("owner", params.Owner),
				zap.Error(err))
			return &models.RuleResult{
				Success: false,
				Error:   err.Error(),
			}, nil
		}
		zap.L().Error("Rule creation failed",
			zap.String("owner", params.Owner),
			zap.Error(err))
		return nil, err
	}

	s.emitter.Emit(models.Event{
		Type:      models.EventRuleCreated,
		RuleId:    rule.Id,
		Owner:     rule.Owner,
		Asset:     rule.Asset,
		Recipient: rule.Recipient,
		Amount:    rule.Amount,
	})

	zap.L().Info("Automation rule created",
		zap.String("rule_id", rule.Id),
		zap.String("owner", rule.Owner))
	return &models.RuleResult{Success: true, Rule: rule}, nil
}

// GetRule returns one rule with its current status and retry state.
func (s *RuleService) GetRule(ctx context.Context, ruleId string) (*models.AutomationRule, error) {
	return s.ruleStore.GetRule(ctx, ruleId)
}

// ListRules returns every non-deleted rule for an owner.
func (s *RuleService) ListRules(ctx context.Context, owner string) ([]models.AutomationRule, error) {
	return s.ruleStore.GetRulesByOwner(ctx, owner)
}

// UpdateRule applies a partial mutation and emits rule.updated. The merged
// rule is revalidated as a whole before persisting.
func (s *RuleService) UpdateRule(ctx context.Context, ruleId string, params store.UpdateRuleParams) (*models.RuleResult, error) {
	rule, err := s.ruleStore.UpdateRule(ctx, ruleId, params)
	if err != nil {
		if errors.Is(err, store.ErrValidation) {
			return &models.RuleResult{
				Success: false,
				Error:   err.Error(),
			}, nil
		}
		return nil, err
	}

	s.emitter.Emit(models.Event{
		Type:   models.EventRuleUpdated,
		RuleId: rule.Id,
		Owner:  rule.Owner,
	})

	zap.L().Info("Automation rule updated",
		zap.String("rule_id", rule.Id),
		zap.String("owner", rule.Owner))
	return &models.RuleResult{Success: true, Rule: rule}, nil
}

// PauseRule excludes a rule from evaluation until reactivated. Pausing a rule
// mid-retry cancels the retry sequence.
func (s *RuleService) PauseRule(ctx context.Context, ruleId string) (*models.RuleResult, error) {
	return s.transition(ctx, ruleId, "pause", s.ruleStore.PauseRule)
}

// ReactivateRule returns a paused or failed rule to evaluation with retry
// state reset.
func (s *RuleService) ReactivateRule(ctx context.Context, ruleId string) (*models.RuleResult, error) {
	return s.transition(ctx, ruleId, "reactivate", s.ruleStore.ReactivateRule)
}

func (s *RuleService) transition(ctx context.Context, ruleId, verb string, apply func(context.Context, string) error) (*models.RuleResult, error) {
	if err := apply(ctx, ruleId); err != nil {
		if errors.Is(err, store.ErrInvalidTransition) {
			zap.L().Info("Rule transition rejected",
				zap.String("rule_id", ruleId),
				zap.String("verb", verb),
				zap.Error(err))
			return &models.RuleResult{
				Success: false,
				Error:   err.Error(),
			}, nil
		}
		return nil, err
	}

	rule, err := s.ruleStore.GetRule(ctx, ruleId)
	if err != nil {
		zap.L().Error("Rule lookup failed after transition",
			zap.String("rule_id", ruleId),
			zap.String("verb", verb),
			zap.Error(err))
		return nil, err
	}

	s.emitter.Emit(models.Event{
		Type:   models.EventRuleUpdated,
		RuleId: rule.Id,
		Owner:  rule.Owner,
	})

	zap.L().Info("Rule transition applied",
		zap.String("rule_id", ruleId),
		zap.String("verb", verb),
		zap.String("status", string(rule.Status)))
	return &models.RuleResult{Success: true, Rule: rule}, nil
}

// DeleteRule tombstones a rule and emits rule.deleted. The rule disappears
// from reads and sweeps; its execution journal remains.
func (s *RuleService) DeleteRule(ctx context.Context, ruleId string) (*models.RuleResult, error) {
	rule, err := s.ruleStore.GetRule(ctx, ruleId)
	if err != nil {
		if errors.Is(err, store.ErrRuleNotFound) {
			return &models.RuleResult{
				Success: false,
				Error:   err.Error(),
			}, nil
		}
		return nil, err
	}

	if err := s.ruleStore.DeleteRule(ctx, ruleId); err != nil {
		return nil, err
	}

	s.emitter.Emit(models.Event{
		Type:   models.EventRuleDeleted,
		RuleId: rule.Id,
		Owner:  rule.Owner,
	})

	zap.L().Info("Automation rule deleted",
		zap.String("rule_id", ruleId),
		zap.String("owner", rule.Owner))
	return &models.RuleResult{Success: true}, nil
}
