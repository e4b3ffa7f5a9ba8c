package store

import (
	"context"
	"errors"
	"time"

	"tevra-automation-go/internal/models"

	"github.com/shopspring/decimal"
)

// Sentinel errors shared across all backend implementations.
var (
	ErrRuleNotFound           = errors.New("rule not found")
	ErrValidation             = errors.New("rule validation failed")
	ErrRuleNotClaimable       = errors.New("rule not claimable")
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrDuplicateExecution     = errors.New("duplicate execution")
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// CreateRuleParams contains the parameters for creating an automation rule.
// Threshold semantics depend on Direction: a topup rule fires while the
// recipient balance is below Threshold, a withdraw rule while it is above.
type CreateRuleParams struct {
	Owner            string
	Direction        models.Direction
	Asset            string
	Recipient        string
	Amount           decimal.Decimal
	Threshold        decimal.Decimal
	MaxBalance       decimal.Decimal // topup cap; zero = uncapped
	ScheduleInterval time.Duration
	PriceMin         decimal.Decimal // zero = no lower bound
	PriceMax         decimal.Decimal // zero = no upper bound
}

// Validate checks the parameters against the constraints every backend
// enforces before persisting. Violations are reported wrapped in ErrValidation.
func (p CreateRuleParams) Validate() error {
	switch {
	case p.Owner == "":
		return errors.Join(ErrValidation, errors.New("owner is required"))
	case p.Direction != models.DirectionTopup && p.Direction != models.DirectionWithdraw:
		return errors.Join(ErrValidation, errors.New("direction must be topup or withdraw"))
	case p.Asset == "":
		return errors.Join(ErrValidation, errors.New("asset is required"))
	case p.Recipient == "":
		return errors.Join(ErrValidation, errors.New("recipient is required"))
	case !p.Amount.IsPositive():
		return errors.Join(ErrValidation, errors.New("amount must be positive"))
	case p.Threshold.IsNegative():
		return errors.Join(ErrValidation, errors.New("threshold must not be negative"))
	case p.ScheduleInterval <= 0:
		return errors.Join(ErrValidation, errors.New("schedule interval must be positive"))
	case p.MaxBalance.IsNegative():
		return errors.Join(ErrValidation, errors.New("max balance must not be negative"))
	case !p.MaxBalance.IsZero() && p.Direction == models.DirectionTopup && p.MaxBalance.LessThan(p.Threshold):
		return errors.Join(ErrValidation, errors.New("max balance must not be below threshold"))
	case !p.MaxBalance.IsZero() && p.Direction == models.DirectionWithdraw && p.MaxBalance.GreaterThan(p.Threshold):
		return errors.Join(ErrValidation, errors.New("max balance must not exceed threshold"))
	case p.PriceMin.IsNegative() || p.PriceMax.IsNegative():
		return errors.Join(ErrValidation, errors.New("price bounds must not be negative"))
	case !p.PriceMin.IsZero() && !p.PriceMax.IsZero() && p.PriceMax.LessThan(p.PriceMin):
		return errors.Join(ErrValidation, errors.New("price max must not be below price min"))
	}
	return nil
}

// UpdateRuleParams contains the mutable fields of an existing rule. Nil
// pointers leave the current value untouched.
type UpdateRuleParams struct {
	Amount           *decimal.Decimal
	Threshold        *decimal.Decimal
	MaxBalance       *decimal.Decimal
	ScheduleInterval *time.Duration
	PriceMin         *decimal.Decimal
	PriceMax         *decimal.Decimal
	Recipient        *string
}

// Claim is a successfully acquired execution slot for a rule. PriorStatus is
// the status the rule held before the claim flipped it to in_flight, so a
// stale-condition release can restore it exactly.
type Claim struct {
	Rule        *models.AutomationRule
	PriorStatus models.RuleStatus
	ClaimedAt   time.Time
}

// RetryParams records the outcome of a transiently failed execution.
type RetryParams struct {
	Attempt   int
	NextRetry time.Time
	ErrorKind string
}

// ExecutionParams records one dispatch attempt in the journal.
type ExecutionParams struct {
	RuleId         string
	Owner          string
	IdempotencyKey string
	Direction      models.Direction
	Asset          string
	Recipient      string
	Amount         decimal.Decimal
	Attempt        int
	Status         string
	TxRef          string
	Error          string
}

// RuleStore defines the contract that every backend must satisfy.
type RuleStore interface {
	// --- Rules ---
	CreateRule(ctx context.Context, params CreateRuleParams) (*models.AutomationRule, error)
	GetRule(ctx context.Context, ruleId string) (*models.AutomationRule, error)
	GetRulesByOwner(ctx context.Context, owner string) ([]models.AutomationRule, error)
	UpdateRule(ctx context.Context, ruleId string, params UpdateRuleParams) (*models.AutomationRule, error)
	PauseRule(ctx context.Context, ruleId string) error
	ReactivateRule(ctx context.Context, ruleId string) error
	DeleteRule(ctx context.Context, ruleId string) error

	// --- Scheduling ---
	ListDue(ctx context.Context, now time.Time) ([]models.AutomationRule, error)
	ListInFlight(ctx context.Context) ([]models.AutomationRule, error)
	ClaimRule(ctx context.Context, ruleId string, now time.Time) (*Claim, error)
	ReleaseClaim(ctx context.Context, ruleId string, priorStatus models.RuleStatus) error
	CompleteExecution(ctx context.Context, ruleId string, executedAt, nextEligible time.Time) error
	ScheduleRetry(ctx context.Context, ruleId string, params RetryParams) error
	MarkFailed(ctx context.Context, ruleId, errorKind string) error

	// --- Execution journal ---
	RecordExecution(ctx context.Context, params ExecutionParams) (*models.RuleExecution, error)
	CompleteExecutionRecord(ctx context.Context, executionId, status, txRef, errDetail string) error
	GetExecutionByKey(ctx context.Context, idempotencyKey string) (*models.RuleExecution, error)
	GetExecutionHistory(ctx context.Context, ruleId string, limit, offset int) ([]models.RuleExecution, error)

	// --- Lifecycle ---
	Close()
}
