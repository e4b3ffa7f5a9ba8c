package engine

import (
	"context"
	"testing"
	"time"

	"tevra-automation-go/internal/database"
	"tevra-automation-go/internal/models"
	"tevra-automation-go/internal/store"

	"github.com/shopspring/decimal"
)

func setupEngineTest(t *testing.T) (*database.Service, *fakeLedger, *collectEmitter, *Engine, func()) {
	t.Helper()
	service, fake, emitter, dispatcher, cleanup := setupDispatchTest(t)
	engine := NewEngine(service, dispatcher, testEngineConfig())
	return service, fake, emitter, engine, cleanup
}

func createActiveTopup(t *testing.T, service *database.Service, owner, recipient string) *models.AutomationRule {
	t.Helper()
	rule, err := service.CreateRule(context.Background(), store.CreateRuleParams{
		Owner:            owner,
		Direction:        models.DirectionTopup,
		Asset:            "USDC",
		Recipient:        recipient,
		Amount:           decimal.NewFromInt(50),
		Threshold:        decimal.NewFromInt(100),
		ScheduleInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}
	return rule
}

func TestSweepExecutesDueRule(t *testing.T) {
	service, fake, emitter, engine, cleanup := setupEngineTest(t)
	defer cleanup()
	ctx := context.Background()

	rule := createActiveTopup(t, service, "alice", "vault")
	fake.setBalance("vault", decimal.NewFromInt(40))

	engine.sweep(ctx)
	engine.wg.Wait()

	updated, err := service.GetRule(ctx, rule.Id)
	if err != nil {
		t.Fatalf("GetRule failed: %v", err)
	}
	if updated.Status != models.StatusActive {
		t.Errorf("expected rule settled back to active, got %s", updated.Status)
	}
	if updated.LastExecuted.IsZero() {
		t.Error("expected last_executed stamped by the sweep")
	}
	if len(emitter.byType(models.EventExecuted)) != 1 {
		t.Error("expected one executed event from the sweep")
	}
}

func TestSweepIgnoresPausedAndFutureRules(t *testing.T) {
	service, fake, _, engine, cleanup := setupEngineTest(t)
	defer cleanup()
	ctx := context.Background()

	paused := createActiveTopup(t, service, "alice", "vault-a")
	if err := service.PauseRule(ctx, paused.Id); err != nil {
		t.Fatalf("PauseRule failed: %v", err)
	}

	// Push a second rule's next_eligible a day out by completing one cycle.
	future := createActiveTopup(t, service, "alice", "vault-b")
	if _, err := service.ClaimRule(ctx, future.Id, time.Now().UTC()); err != nil {
		t.Fatalf("ClaimRule failed: %v", err)
	}
	farOut := time.Now().UTC().Add(24 * time.Hour)
	if err := service.CompleteExecution(ctx, future.Id, time.Now().UTC(), farOut); err != nil {
		t.Fatalf("CompleteExecution failed: %v", err)
	}

	fake.setBalance("vault-a", decimal.Zero)
	fake.setBalance("vault-b", decimal.Zero)

	engine.sweep(ctx)
	engine.wg.Wait()

	if fake.submits != 0 {
		t.Errorf("expected no dispatches, got %d submissions", fake.submits)
	}
}

func TestOverlappingSweepsClaimOnce(t *testing.T) {
	service, fake, _, engine, cleanup := setupEngineTest(t)
	defer cleanup()
	ctx := context.Background()

	rule := createActiveTopup(t, service, "alice", "vault")
	fake.setBalance("vault", decimal.NewFromInt(40))

	// Hold the first worker inside its balance read, then run a second sweep
	// over the same due rule. The claim must not be re-acquired.
	gate := make(chan struct{})
	fake.mu.Lock()
	fake.balanceGate = gate
	fake.mu.Unlock()

	engine.sweep(ctx)
	engine.sweep(ctx)

	fake.mu.Lock()
	fake.balanceGate = nil
	fake.mu.Unlock()
	close(gate)
	engine.wg.Wait()

	if fake.submits != 1 {
		t.Fatalf("expected exactly one submission for one due window, got %d", fake.submits)
	}

	updated, err := service.GetRule(ctx, rule.Id)
	if err != nil {
		t.Fatalf("GetRule failed: %v", err)
	}
	if updated.Status != models.StatusActive {
		t.Errorf("expected rule settled, got %s", updated.Status)
	}
}

func TestBlockedRuleStaysDueNextSweep(t *testing.T) {
	service, fake, _, engine, cleanup := setupEngineTest(t)
	defer cleanup()
	ctx := context.Background()

	rule := createActiveTopup(t, service, "alice", "vault")
	// Balance at the threshold: due, claimed, then skipped as stale.
	fake.setBalance("vault", decimal.NewFromInt(100))

	engine.sweep(ctx)
	engine.wg.Wait()

	due, err := service.ListDue(ctx, time.Now().UTC().Add(time.Second))
	if err != nil {
		t.Fatalf("ListDue failed: %v", err)
	}
	found := false
	for _, d := range due {
		if d.Id == rule.Id {
			found = true
		}
	}
	if !found {
		t.Error("expected blocked rule to remain due for the next sweep")
	}

	// Once the balance drops, the very next sweep executes it without
	// waiting out the schedule interval.
	fake.setBalance("vault", decimal.NewFromInt(40))
	engine.sweep(ctx)
	engine.wg.Wait()

	updated, err := service.GetRule(ctx, rule.Id)
	if err != nil {
		t.Fatalf("GetRule failed: %v", err)
	}
	if updated.LastExecuted.IsZero() {
		t.Error("expected blocked rule to execute once conditions cleared")
	}
}

func TestStartRecoversStrandedClaims(t *testing.T) {
	service, fake, _, engine, cleanup := setupEngineTest(t)
	defer cleanup()
	ctx := context.Background()

	rule := createActiveTopup(t, service, "alice", "vault")
	fake.setBalance("vault", decimal.NewFromInt(40))
	if _, err := service.ClaimRule(ctx, rule.Id, time.Now().UTC()); err != nil {
		t.Fatalf("ClaimRule failed: %v", err)
	}

	// A fresh engine start must release the stranded claim.
	if err := engine.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer engine.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for {
		updated, err := service.GetRule(ctx, rule.Id)
		if err != nil {
			t.Fatalf("GetRule failed: %v", err)
		}
		if updated.Status != models.StatusInFlight {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("stranded claim was never released")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestEngineStatusSnapshot(t *testing.T) {
	service, fake, _, engine, cleanup := setupEngineTest(t)
	defer cleanup()
	ctx := context.Background()

	createActiveTopup(t, service, "alice", "vault")
	fake.setBalance("vault", decimal.NewFromInt(40))

	engine.sweep(ctx)
	engine.wg.Wait()

	status := engine.Status()
	if status.LastSweep.IsZero() {
		t.Error("expected last sweep stamped")
	}
	if status.RulesDue < 1 {
		t.Errorf("expected at least one due rule counted, got %d", status.RulesDue)
	}
	if status.InFlight != 0 {
		t.Errorf("expected no in-flight rules after settling, got %d", status.InFlight)
	}
}
