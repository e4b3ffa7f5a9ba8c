package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"tevra-automation-go/internal/models"
	"tevra-automation-go/internal/store"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

func setupRuleTestDB(t *testing.T) (*Service, func()) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	service := &Service{db: db}
	if err := service.initSchema(); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	cleanup := func() {
		db.Close()
	}

	return service, cleanup
}

func topupParams(owner string) store.CreateRuleParams {
	return store.CreateRuleParams{
		Owner:            owner,
		Direction:        models.DirectionTopup,
		Asset:            "USDC",
		Recipient:        "0xrecipient",
		Amount:           decimal.NewFromInt(50),
		Threshold:        decimal.NewFromInt(100),
		ScheduleInterval: 24 * time.Hour,
	}
}

func TestCreateRule(t *testing.T) {
	service, cleanup := setupRuleTestDB(t)
	defer cleanup()

	ctx := context.Background()
	rule, err := service.CreateRule(ctx, topupParams("user1"))
	if err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}

	if rule.Id == "" {
		t.Error("Expected generated rule id")
	}
	if rule.Status != models.StatusActive {
		t.Errorf("Expected status active, got %s", rule.Status)
	}
	if !rule.Amount.Equal(decimal.NewFromInt(50)) {
		t.Errorf("Expected amount 50, got %s", rule.Amount.String())
	}
	if rule.ScheduleInterval != 24*time.Hour {
		t.Errorf("Expected interval 24h, got %v", rule.ScheduleInterval)
	}
	if !rule.LastExecuted.IsZero() {
		t.Errorf("Expected zero last_executed, got %v", rule.LastExecuted)
	}
	if rule.NextEligible.After(time.Now().Add(time.Minute)) {
		t.Errorf("Expected new rule to be eligible immediately, next_eligible %v", rule.NextEligible)
	}
}

func TestCreateRuleRejectsInvalidParams(t *testing.T) {
	service, cleanup := setupRuleTestDB(t)
	defer cleanup()

	params := topupParams("user1")
	params.Amount = decimal.Zero
	_, err := service.CreateRule(context.Background(), params)
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("Expected ErrValidation, got %v", err)
	}
}

func TestGetRuleNotFound(t *testing.T) {
	service, cleanup := setupRuleTestDB(t)
	defer cleanup()

	_, err := service.GetRule(context.Background(), "missing")
	if !errors.Is(err, store.ErrRuleNotFound) {
		t.Fatalf("Expected ErrRuleNotFound, got %v", err)
	}
}

func TestGetRulesByOwnerExcludesDeleted(t *testing.T) {
	service, cleanup := setupRuleTestDB(t)
	defer cleanup()

	ctx := context.Background()
	kept, err := service.CreateRule(ctx, topupParams("user1"))
	if err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}
	doomed, err := service.CreateRule(ctx, topupParams("user1"))
	if err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}
	if _, err := service.CreateRule(ctx, topupParams("user2")); err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}

	if err := service.DeleteRule(ctx, doomed.Id); err != nil {
		t.Fatalf("DeleteRule failed: %v", err)
	}

	rules, err := service.GetRulesByOwner(ctx, "user1")
	if err != nil {
		t.Fatalf("GetRulesByOwner failed: %v", err)
	}
	if len(rules) != 1 {
		t.Fatalf("Expected 1 rule, got %d", len(rules))
	}
	if rules[0].Id != kept.Id {
		t.Errorf("Expected rule %s, got %s", kept.Id, rules[0].Id)
	}
}

func TestUpdateRuleRevalidatesMergedResult(t *testing.T) {
	service, cleanup := setupRuleTestDB(t)
	defer cleanup()

	ctx := context.Background()
	rule, err := service.CreateRule(ctx, topupParams("user1"))
	if err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}

	// Setting a topup cap below the existing threshold must fail even though
	// the cap alone looks reasonable.
	cap := decimal.NewFromInt(10)
	_, err = service.UpdateRule(ctx, rule.Id, store.UpdateRuleParams{MaxBalance: &cap})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("Expected ErrValidation, got %v", err)
	}

	newAmount := decimal.NewFromInt(75)
	updated, err := service.UpdateRule(ctx, rule.Id, store.UpdateRuleParams{Amount: &newAmount})
	if err != nil {
		t.Fatalf("UpdateRule failed: %v", err)
	}
	if !updated.Amount.Equal(newAmount) {
		t.Errorf("Expected amount 75, got %s", updated.Amount.String())
	}
	if !updated.Threshold.Equal(rule.Threshold) {
		t.Errorf("Untouched threshold changed: %s", updated.Threshold.String())
	}
}

func TestPauseAndReactivate(t *testing.T) {
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
	paused, err := service.GetRule(ctx, rule.Id)
	if err != nil {
		t.Fatalf("GetRule failed: %v", err)
	}
	if paused.Status != models.StatusPaused {
		t.Errorf("Expected paused, got %s", paused.Status)
	}

	// Pausing twice is an invalid transition.
	if err := service.PauseRule(ctx, rule.Id); !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("Expected ErrInvalidTransition, got %v", err)
	}

	if err := service.ReactivateRule(ctx, rule.Id); err != nil {
		t.Fatalf("ReactivateRule failed: %v", err)
	}
	active, err := service.GetRule(ctx, rule.Id)
	if err != nil {
		t.Fatalf("GetRule failed: %v", err)
	}
	if active.Status != models.StatusActive {
		t.Errorf("Expected active, got %s", active.Status)
	}
}

func TestPauseRetryingRuleCancelsRetry(t *testing.T) {
	service, cleanup := setupRuleTestDB(t)
	defer cleanup()

	ctx := context.Background()
	rule, err := service.CreateRule(ctx, topupParams("user1"))
	if err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}

	now := time.Now().UTC()
	if _, err := service.ClaimRule(ctx, rule.Id, now); err != nil {
		t.Fatalf("ClaimRule failed: %v", err)
	}
	err = service.ScheduleRetry(ctx, rule.Id, store.RetryParams{
		Attempt:   1,
		NextRetry: now.Add(time.Minute),
		ErrorKind: "transient",
	})
	if err != nil {
		t.Fatalf("ScheduleRetry failed: %v", err)
	}

	if err := service.PauseRule(ctx, rule.Id); err != nil {
		t.Fatalf("PauseRule failed: %v", err)
	}

	paused, err := service.GetRule(ctx, rule.Id)
	if err != nil {
		t.Fatalf("GetRule failed: %v", err)
	}
	if paused.Status != models.StatusPaused {
		t.Errorf("Expected paused, got %s", paused.Status)
	}
	if paused.Retry.Attempt != 0 || !paused.Retry.NextRetry.IsZero() {
		t.Errorf("Expected retry state cleared, got %+v", paused.Retry)
	}

	// The cancelled retry must not show up in the sweep.
	due, err := service.ListDue(ctx, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("ListDue failed: %v", err)
	}
	if len(due) != 0 {
		t.Errorf("Expected no due rules, got %d", len(due))
	}
}

func TestDeleteRuleIsTerminal(t *testing.T) {
	service, cleanup := setupRuleTestDB(t)
	defer cleanup()

	ctx := context.Background()
	rule, err := service.CreateRule(ctx, topupParams("user1"))
	if err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}

	if err := service.DeleteRule(ctx, rule.Id); err != nil {
		t.Fatalf("DeleteRule failed: %v", err)
	}
	if _, err := service.GetRule(ctx, rule.Id); !errors.Is(err, store.ErrRuleNotFound) {
		t.Fatalf("Expected ErrRuleNotFound after delete, got %v", err)
	}
	if err := service.DeleteRule(ctx, rule.Id); !errors.Is(err, store.ErrRuleNotFound) {
		t.Fatalf("Expected ErrRuleNotFound on double delete, got %v", err)
	}
	if err := service.ReactivateRule(ctx, rule.Id); !errors.Is(err, store.ErrRuleNotFound) {
		t.Fatalf("Expected ErrRuleNotFound on reactivate after delete, got %v", err)
	}
}
