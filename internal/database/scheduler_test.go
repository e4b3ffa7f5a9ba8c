package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"tevra-automation-go/internal/models"
	"tevra-automation-go/internal/store"

	"github.com/shopspring/decimal"
)

func TestListDueFiltersByStatusAndTime(t *testing.T) {
	service, cleanup := setupRuleTestDB(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now().UTC()

	due, err := service.CreateRule(ctx, topupParams("user1"))
	if err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}

	notYet, err := service.CreateRule(ctx, topupParams("user1"))
	if err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}
	// Push the second rule's eligibility into the future.
	if err := service.CompleteExecution(ctx, mustClaim(t, service, notYet.Id).Rule.Id, now, now.Add(time.Hour)); err != nil {
		t.Fatalf("CompleteExecution failed: %v", err)
	}

	paused, err := service.CreateRule(ctx, topupParams("user1"))
	if err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}
	if err := service.PauseRule(ctx, paused.Id); err != nil {
		t.Fatalf("PauseRule failed: %v", err)
	}

	// Query with a timestamp taken after creation so the first rule's
	// creation-stamped next_eligible has passed.
	rules, err := service.ListDue(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("ListDue failed: %v", err)
	}
	if len(rules) != 1 {
		t.Fatalf("Expected 1 due rule, got %d", len(rules))
	}
	if rules[0].Id != due.Id {
		t.Errorf("Expected rule %s, got %s", due.Id, rules[0].Id)
	}
}

func TestListDueIncludesRetryingAfterBackoff(t *testing.T) {
	service, cleanup := setupRuleTestDB(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now().UTC()

	rule, err := service.CreateRule(ctx, topupParams("user1"))
	if err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}
	mustClaim(t, service, rule.Id)
	err = service.ScheduleRetry(ctx, rule.Id, store.RetryParams{
		Attempt:   1,
		NextRetry: now.Add(time.Minute),
		ErrorKind: "transient",
	})
	if err != nil {
		t.Fatalf("ScheduleRetry failed: %v", err)
	}

	// Before the backoff deadline the rule is invisible to the sweep even
	// though its next_eligible has passed.
	rules, err := service.ListDue(ctx, now)
	if err != nil {
		t.Fatalf("ListDue failed: %v", err)
	}
	if len(rules) != 0 {
		t.Fatalf("Expected no due rules before backoff, got %d", len(rules))
	}

	rules, err = service.ListDue(ctx, now.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("ListDue failed: %v", err)
	}
	if len(rules) != 1 {
		t.Fatalf("Expected 1 due rule after backoff, got %d", len(rules))
	}
	if rules[0].Retry.Attempt != 1 {
		t.Errorf("Expected retry attempt 1, got %d", rules[0].Retry.Attempt)
	}
}

func TestClaimRuleIsExclusive(t *testing.T) {
	service, cleanup := setupRuleTestDB(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now().UTC()

	rule, err := service.CreateRule(ctx, topupParams("user1"))
	if err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}

	claim, err := service.ClaimRule(ctx, rule.Id, now)
	if err != nil {
		t.Fatalf("ClaimRule failed: %v", err)
	}
	if claim.PriorStatus != models.StatusActive {
		t.Errorf("Expected prior status active, got %s", claim.PriorStatus)
	}
	if claim.Rule.Status != models.StatusInFlight {
		t.Errorf("Expected claimed rule in_flight, got %s", claim.Rule.Status)
	}

	// Second claim while in flight must fail.
	if _, err := service.ClaimRule(ctx, rule.Id, now); !errors.Is(err, store.ErrRuleNotClaimable) {
		t.Fatalf("Expected ErrRuleNotClaimable, got %v", err)
	}

	// A claimed rule is invisible to the sweep.
	due, err := service.ListDue(ctx, now)
	if err != nil {
		t.Fatalf("ListDue failed: %v", err)
	}
	if len(due) != 0 {
		t.Errorf("Expected no due rules while claimed, got %d", len(due))
	}
}

func TestClaimPausedRuleFails(t *testing.T) {
	service, cleanup := setupRuleTestDB(t)
	defer cleanup()

	ctx := context.Background()
	rule, err := service.CreateRule(ctx, topupParams("user1"))
	if err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}
	if err := service.PauseRule(ctx, rule.Id); err != nil {
		t.Fatalf("PauseRule failed: %v", err)
	}

	_, err = service.ClaimRule(ctx, rule.Id, time.Now().UTC())
	if !errors.Is(err, store.ErrRuleNotClaimable) {
		t.Fatalf("Expected ErrRuleNotClaimable, got %v", err)
	}
}

func TestReleaseClaimRestoresPriorStatus(t *testing.T) {
	service, cleanup := setupRuleTestDB(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now().UTC()

	rule, err := service.CreateRule(ctx, topupParams("user1"))
	if err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}

	// Put the rule into retrying first, then claim it from there.
	mustClaim(t, service, rule.Id)
	err = service.ScheduleRetry(ctx, rule.Id, store.RetryParams{Attempt: 1, NextRetry: now, ErrorKind: "transient"})
	if err != nil {
		t.Fatalf("ScheduleRetry failed: %v", err)
	}

	claim, err := service.ClaimRule(ctx, rule.Id, now)
	if err != nil {
		t.Fatalf("ClaimRule failed: %v", err)
	}
	if claim.PriorStatus != models.StatusRetrying {
		t.Fatalf("Expected prior status retrying, got %s", claim.PriorStatus)
	}

	if err := service.ReleaseClaim(ctx, rule.Id, claim.PriorStatus); err != nil {
		t.Fatalf("ReleaseClaim failed: %v", err)
	}

	released, err := service.GetRule(ctx, rule.Id)
	if err != nil {
		t.Fatalf("GetRule failed: %v", err)
	}
	if released.Status != models.StatusRetrying {
		t.Errorf("Expected status retrying after release, got %s", released.Status)
	}
	if released.Retry.Attempt != 1 {
		t.Errorf("Expected retry attempt preserved, got %d", released.Retry.Attempt)
	}
}

func TestCompleteExecutionAdvancesSchedule(t *testing.T) {
	service, cleanup := setupRuleTestDB(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	rule, err := service.CreateRule(ctx, topupParams("user1"))
	if err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}
	mustClaim(t, service, rule.Id)

	nextEligible := now.Add(24 * time.Hour)
	if err := service.CompleteExecution(ctx, rule.Id, now, nextEligible); err != nil {
		t.Fatalf("CompleteExecution failed: %v", err)
	}

	updated, err := service.GetRule(ctx, rule.Id)
	if err != nil {
		t.Fatalf("GetRule failed: %v", err)
	}
	if updated.Status != models.StatusActive {
		t.Errorf("Expected active, got %s", updated.Status)
	}
	if !updated.LastExecuted.Equal(now) {
		t.Errorf("Expected last_executed %v, got %v", now, updated.LastExecuted)
	}
	if !updated.NextEligible.Equal(nextEligible) {
		t.Errorf("Expected next_eligible %v, got %v", nextEligible, updated.NextEligible)
	}

	// Completing again without a claim is an invalid transition.
	err = service.CompleteExecution(ctx, rule.Id, now, nextEligible)
	if !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("Expected ErrInvalidTransition, got %v", err)
	}
}

func TestCompleteExecutionClearsRetryState(t *testing.T) {
	service, cleanup := setupRuleTestDB(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now().UTC()

	rule, err := service.CreateRule(ctx, topupParams("user1"))
	if err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}
	mustClaim(t, service, rule.Id)
	err = service.ScheduleRetry(ctx, rule.Id, store.RetryParams{Attempt: 2, NextRetry: now, ErrorKind: "transient"})
	if err != nil {
		t.Fatalf("ScheduleRetry failed: %v", err)
	}
	mustClaim(t, service, rule.Id)
	if err := service.CompleteExecution(ctx, rule.Id, now, now.Add(time.Hour)); err != nil {
		t.Fatalf("CompleteExecution failed: %v", err)
	}

	updated, err := service.GetRule(ctx, rule.Id)
	if err != nil {
		t.Fatalf("GetRule failed: %v", err)
	}
	if updated.Retry.Attempt != 0 || !updated.Retry.NextRetry.IsZero() || updated.Retry.LastErrorKind != "" {
		t.Errorf("Expected retry state cleared, got %+v", updated.Retry)
	}
}

func TestMarkFailedRequiresReactivation(t *testing.T) {
	service, cleanup := setupRuleTestDB(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now().UTC()

	rule, err := service.CreateRule(ctx, topupParams("user1"))
	if err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}
	mustClaim(t, service, rule.Id)
	if err := service.MarkFailed(ctx, rule.Id, "permanent: recipient rejected"); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}

	failed, err := service.GetRule(ctx, rule.Id)
	if err != nil {
		t.Fatalf("GetRule failed: %v", err)
	}
	if failed.Status != models.StatusFailed {
		t.Errorf("Expected failed, got %s", failed.Status)
	}
	if failed.Retry.LastErrorKind != "permanent: recipient rejected" {
		t.Errorf("Expected last error kind recorded, got %q", failed.Retry.LastErrorKind)
	}

	// Failed rules never show up in the sweep.
	due, err := service.ListDue(ctx, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("ListDue failed: %v", err)
	}
	if len(due) != 0 {
		t.Errorf("Expected no due rules, got %d", len(due))
	}

	if err := service.ReactivateRule(ctx, rule.Id); err != nil {
		t.Fatalf("ReactivateRule failed: %v", err)
	}
	reactivated, err := service.GetRule(ctx, rule.Id)
	if err != nil {
		t.Fatalf("GetRule failed: %v", err)
	}
	if reactivated.Status != models.StatusActive {
		t.Errorf("Expected active after reactivation, got %s", reactivated.Status)
	}
}

func mustClaim(t *testing.T, service *Service, ruleId string) *store.Claim {
	t.Helper()
	claim, err := service.ClaimRule(context.Background(), ruleId, time.Now().UTC())
	if err != nil {
		t.Fatalf("ClaimRule failed: %v", err)
	}
	return claim
}

func TestRecordExecutionJournal(t *testing.T) {
	service, cleanup := setupRuleTestDB(t)
	defer cleanup()

	ctx := context.Background()
	rule, err := service.CreateRule(ctx, topupParams("user1"))
	if err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}

	params := store.ExecutionParams{
		RuleId:         rule.Id,
		Owner:          rule.Owner,
		IdempotencyKey: "key-1",
		Direction:      rule.Direction,
		Asset:          rule.Asset,
		Recipient:      rule.Recipient,
		Amount:         decimal.NewFromInt(50),
		Attempt:        0,
	}
	exec, err := service.RecordExecution(ctx, params)
	if err != nil {
		t.Fatalf("RecordExecution failed: %v", err)
	}
	if exec.Status != models.ExecutionSubmitted {
		t.Errorf("Expected submitted, got %s", exec.Status)
	}

	// Same key and attempt is a duplicate.
	if _, err := service.RecordExecution(ctx, params); !errors.Is(err, store.ErrDuplicateExecution) {
		t.Fatalf("Expected ErrDuplicateExecution, got %v", err)
	}

	// A later attempt under the same key is a new journal row.
	params.Attempt = 1
	if _, err := service.RecordExecution(ctx, params); err != nil {
		t.Fatalf("RecordExecution attempt 1 failed: %v", err)
	}

	latest, err := service.GetExecutionByKey(ctx, "key-1")
	if err != nil {
		t.Fatalf("GetExecutionByKey failed: %v", err)
	}
	if latest == nil || latest.Attempt != 1 {
		t.Fatalf("Expected latest attempt 1, got %+v", latest)
	}

	if err := service.CompleteExecutionRecord(ctx, exec.Id, models.ExecutionConfirmed, "tx-abc", ""); err != nil {
		t.Fatalf("CompleteExecutionRecord failed: %v", err)
	}

	history, err := service.GetExecutionHistory(ctx, rule.Id, 10, 0)
	if err != nil {
		t.Fatalf("GetExecutionHistory failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("Expected 2 history rows, got %d", len(history))
	}

	missing, err := service.GetExecutionByKey(ctx, "never-used")
	if err != nil {
		t.Fatalf("GetExecutionByKey failed: %v", err)
	}
	if missing != nil {
		t.Errorf("Expected nil for unknown key, got %+v", missing)
	}
}
