package api

import (
	"context"
	"testing"
	"time"

	"tevra-automation-go/internal/database"
	"tevra-automation-go/internal/models"
	"tevra-automation-go/internal/store"

	"github.com/shopspring/decimal"
)

func setupRuleService(t *testing.T) (*RuleService, func()) {
	t.Helper()
	db, err := database.NewService(context.Background(), models.DatabaseConfig{
		Path:         ":memory:",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		PingTimeout:  5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	return NewRuleService(db, nil), db.Close
}

func validCreateParams(owner string) store.CreateRuleParams {
	return store.CreateRuleParams{
		Owner:            owner,
		Direction:        models.DirectionTopup,
		Asset:            "USDC",
		Recipient:        "vault",
		Amount:           decimal.NewFromInt(50),
		Threshold:        decimal.NewFromInt(100),
		ScheduleInterval: time.Hour,
	}
}

func TestCreateRuleSuccess(t *testing.T) {
	service, cleanup := setupRuleService(t)
	defer cleanup()

	result, err := service.CreateRule(context.Background(), validCreateParams("alice"))
	if err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}
	if !result.Success || result.Rule == nil {
		t.Fatalf("expected successful result with rule, got %+v", result)
	}
	if result.Rule.Status != models.StatusActive {
		t.Errorf("expected new rule active, got %s", result.Rule.Status)
	}
}

func TestCreateRuleValidationFailureInResult(t *testing.T) {
	service, cleanup := setupRuleService(t)
	defer cleanup()

	params := validCreateParams("alice")
	params.Amount = decimal.Zero

	result, err := service.CreateRule(context.Background(), params)
	if err != nil {
		t.Fatalf("expected validation failure in result, got error %v", err)
	}
	if result.Success || result.Error == "" {
		t.Fatalf("expected failed result with message, got %+v", result)
	}
}

func TestPauseAndReactivateRule(t *testing.T) {
	service, cleanup := setupRuleService(t)
	defer cleanup()
	ctx := context.Background()

	created, err := service.CreateRule(ctx, validCreateParams("alice"))
	if err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}
	ruleId := created.Rule.Id

	paused, err := service.PauseRule(ctx, ruleId)
	if err != nil {
		t.Fatalf("PauseRule failed: %v", err)
	}
	if !paused.Success || paused.Rule.Status != models.StatusPaused {
		t.Fatalf("expected paused rule, got %+v", paused)
	}

	// Pausing twice is an invalid transition reported in the result.
	again, err := service.PauseRule(ctx, ruleId)
	if err != nil {
		t.Fatalf("second PauseRule errored: %v", err)
	}
	if again.Success {
		t.Error("expected pausing a paused rule to fail")
	}

	reactivated, err := service.ReactivateRule(ctx, ruleId)
	if err != nil {
		t.Fatalf("ReactivateRule failed: %v", err)
	}
	if !reactivated.Success || reactivated.Rule.Status != models.StatusActive {
		t.Fatalf("expected active rule, got %+v", reactivated)
	}
}

func TestDeleteRuleRemovesFromListing(t *testing.T) {
	service, cleanup := setupRuleService(t)
	defer cleanup()
	ctx := context.Background()

	created, err := service.CreateRule(ctx, validCreateParams("alice"))
	if err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}

	result, err := service.DeleteRule(ctx, created.Rule.Id)
	if err != nil || !result.Success {
		t.Fatalf("DeleteRule failed: result %+v, err %v", result, err)
	}

	rules, err := service.ListRules(ctx, "alice")
	if err != nil {
		t.Fatalf("ListRules failed: %v", err)
	}
	if len(rules) != 0 {
		t.Errorf("expected deleted rule excluded from listing, got %d rules", len(rules))
	}

	// Deleting again reports not found in the result.
	again, err := service.DeleteRule(ctx, created.Rule.Id)
	if err != nil {
		t.Fatalf("second DeleteRule errored: %v", err)
	}
	if again.Success {
		t.Error("expected deleting a deleted rule to fail")
	}
}

func TestUpdateRuleRevalidates(t *testing.T) {
	service, cleanup := setupRuleService(t)
	defer cleanup()
	ctx := context.Background()

	created, err := service.CreateRule(ctx, validCreateParams("alice"))
	if err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}

	bad := decimal.NewFromInt(-5)
	result, err := service.UpdateRule(ctx, created.Rule.Id, store.UpdateRuleParams{Amount: &bad})
	if err != nil {
		t.Fatalf("expected validation failure in result, got error %v", err)
	}
	if result.Success {
		t.Error("expected negative amount update to fail validation")
	}

	amount := decimal.NewFromInt(75)
	result, err = service.UpdateRule(ctx, created.Rule.Id, store.UpdateRuleParams{Amount: &amount})
	if err != nil {
		t.Fatalf("UpdateRule failed: %v", err)
	}
	if !result.Success || !result.Rule.Amount.Equal(amount) {
		t.Fatalf("expected amount updated to 75, got %+v", result)
	}
}
