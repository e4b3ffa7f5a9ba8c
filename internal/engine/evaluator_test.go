package engine

import (
	"testing"
	"time"

	"tevra-automation-go/internal/models"

	"github.com/shopspring/decimal"
)

func dec(v string) decimal.Decimal {
	d, err := decimal.NewFromString(v)
	if err != nil {
		panic(err)
	}
	return d
}

// topupRule mirrors the canonical funding case: keep the recipient topped up
// to 100 in steps of 50, never past 500, only while the price sits in
// [0.9, 1.1].
func topupRule(now time.Time) *models.AutomationRule {
	return &models.AutomationRule{
		Id:               "rule-topup",
		Owner:            "alice",
		Direction:        models.DirectionTopup,
		Asset:            "USDC",
		Recipient:        "vault",
		Amount:           dec("50"),
		Threshold:        dec("100"),
		MaxBalance:       dec("500"),
		ScheduleInterval: time.Hour,
		PriceMin:         dec("0.9"),
		PriceMax:         dec("1.1"),
		Status:           models.StatusActive,
		NextEligible:     now.Add(-time.Minute),
	}
}

func TestEvaluateTopupReady(t *testing.T) {
	now := time.Now()
	rule := topupRule(now)

	if got := Evaluate(rule, dec("80"), dec("1.0"), now); got != DecisionReady {
		t.Errorf("expected ready, got %s", got)
	}
}

func TestEvaluateTopupBlockedAtThreshold(t *testing.T) {
	now := time.Now()
	rule := topupRule(now)

	if got := Evaluate(rule, dec("120"), dec("1.0"), now); got != DecisionBlockedByBalance {
		t.Errorf("expected blocked_by_balance for balance above threshold, got %s", got)
	}
	// Exactly at the threshold also blocks: topups fire strictly below it.
	if got := Evaluate(rule, dec("100"), dec("1.0"), now); got != DecisionBlockedByBalance {
		t.Errorf("expected blocked_by_balance at threshold, got %s", got)
	}
}

func TestEvaluateBlockedByPrice(t *testing.T) {
	now := time.Now()
	rule := topupRule(now)

	if got := Evaluate(rule, dec("80"), dec("1.2"), now); got != DecisionBlockedByPrice {
		t.Errorf("expected blocked_by_price above band, got %s", got)
	}
	if got := Evaluate(rule, dec("80"), dec("0.5"), now); got != DecisionBlockedByPrice {
		t.Errorf("expected blocked_by_price below band, got %s", got)
	}
}

func TestEvaluateNoPriceBandSkipsPriceGate(t *testing.T) {
	now := time.Now()
	rule := topupRule(now)
	rule.PriceMin = decimal.Zero
	rule.PriceMax = decimal.Zero

	if HasPriceBand(rule) {
		t.Error("expected no price band when both bounds are zero")
	}
	// Price zero would be outside any real band; without a band it is ignored.
	if got := Evaluate(rule, dec("80"), decimal.Zero, now); got != DecisionReady {
		t.Errorf("expected ready without price band, got %s", got)
	}
}

func TestEvaluateTopupOvershootGate(t *testing.T) {
	now := time.Now()
	rule := topupRule(now)
	rule.Threshold = dec("500")
	rule.MaxBalance = dec("500")

	// 480 + 50 would land at 530, past the 500 ceiling.
	if got := Evaluate(rule, dec("480"), dec("1.0"), now); got != DecisionBlockedByBalance {
		t.Errorf("expected overshoot to block, got %s", got)
	}
	// 440 + 50 = 490 stays under the ceiling.
	if got := Evaluate(rule, dec("440"), dec("1.0"), now); got != DecisionReady {
		t.Errorf("expected ready under ceiling, got %s", got)
	}
}

func TestEvaluateWithdrawOvershootGate(t *testing.T) {
	now := time.Now()
	rule := &models.AutomationRule{
		Id:               "rule-withdraw",
		Owner:            "alice",
		Direction:        models.DirectionWithdraw,
		Asset:            "USDC",
		Recipient:        "treasury:sink",
		Amount:           dec("500"),
		Threshold:        dec("500"),
		MaxBalance:       dec("100"), // floor
		ScheduleInterval: time.Hour,
		Status:           models.StatusActive,
		NextEligible:     now.Add(-time.Minute),
	}

	// 550 - 500 = 50, below the 100 floor.
	if got := Evaluate(rule, dec("550"), decimal.Zero, now); got != DecisionBlockedByBalance {
		t.Errorf("expected floor overshoot to block, got %s", got)
	}
	// 650 - 500 = 150 keeps the floor intact.
	if got := Evaluate(rule, dec("650"), decimal.Zero, now); got != DecisionReady {
		t.Errorf("expected ready above floor, got %s", got)
	}
	// At or below the threshold there is nothing to drain.
	if got := Evaluate(rule, dec("500"), decimal.Zero, now); got != DecisionBlockedByBalance {
		t.Errorf("expected blocked_by_balance at threshold, got %s", got)
	}
}

func TestEvaluateStatusGates(t *testing.T) {
	now := time.Now()

	for _, status := range []models.RuleStatus{
		models.StatusPaused, models.StatusInFlight, models.StatusFailed, models.StatusDeleted,
	} {
		rule := topupRule(now)
		rule.Status = status
		if got := Evaluate(rule, dec("80"), dec("1.0"), now); got != DecisionNotEligible {
			t.Errorf("expected not_eligible for %s rule, got %s", status, got)
		}
	}

	retrying := topupRule(now)
	retrying.Status = models.StatusRetrying
	if got := Evaluate(retrying, dec("80"), dec("1.0"), now); got != DecisionReady {
		t.Errorf("expected retrying rule to stay evaluable, got %s", got)
	}
}

func TestEvaluateNotDue(t *testing.T) {
	now := time.Now()
	rule := topupRule(now)
	rule.NextEligible = now.Add(time.Hour)

	if got := Evaluate(rule, dec("80"), dec("1.0"), now); got != DecisionNotDue {
		t.Errorf("expected not_due, got %s", got)
	}
}

func TestMonitoredAccount(t *testing.T) {
	now := time.Now()
	topup := topupRule(now)
	if got := MonitoredAccount(topup); got != "vault" {
		t.Errorf("expected topup to monitor the recipient, got %s", got)
	}

	withdraw := topupRule(now)
	withdraw.Direction = models.DirectionWithdraw
	if got := MonitoredAccount(withdraw); got != "alice" {
		t.Errorf("expected withdraw to monitor the owner, got %s", got)
	}
}
