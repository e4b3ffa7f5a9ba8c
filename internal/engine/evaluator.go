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
	"time"

	"tevra-automation-go/internal/models"

	"github.com/shopspring/decimal"
)

// Decision is the evaluator's verdict for one rule at one instant.
type Decision string

const (
	DecisionReady            Decision = "ready"
	DecisionNotEligible      Decision = "not_eligible"
	DecisionNotDue           Decision = "not_due"
	DecisionBlockedByPrice   Decision = "blocked_by_price"
	DecisionBlockedByBalance Decision = "blocked_by_balance"
)

// Evaluate decides whether a rule should execute right now. It is a pure
// function of its inputs and never touches the store or the ledger.
//
// Blocked rules keep their nextEligible untouched: they stay due and get
// re-checked on the next sweep, so a price or balance condition clearing
// within minutes is not deferred a whole schedule interval.
func Evaluate(rule *models.AutomationRule, balance, price decimal.Decimal, now time.Time) Decision {
	if !rule.Evaluable() {
		return DecisionNotEligible
	}
	if now.Before(rule.NextEligible) {
		return DecisionNotDue
	}

	if HasPriceBand(rule) {
		if rule.PriceMin.IsPositive() && price.LessThan(rule.PriceMin) {
			return DecisionBlockedByPrice
		}
		if rule.PriceMax.IsPositive() && price.GreaterThan(rule.PriceMax) {
			return DecisionBlockedByPrice
		}
	}

	switch rule.Direction {
	case models.DirectionTopup:
		// Fund only while the monitored balance sits below the threshold.
		if balance.GreaterThanOrEqual(rule.Threshold) {
			return DecisionBlockedByBalance
		}
		// Overshoot gate: never push the balance past its ceiling. Uses the
		// pre-transfer estimate rather than a read-after-write re-check.
		if rule.MaxBalance.IsPositive() && balance.Add(rule.Amount).GreaterThan(rule.MaxBalance) {
			return DecisionBlockedByBalance
		}
	case models.DirectionWithdraw:
		// Drain only while the monitored balance sits above the threshold.
		if balance.LessThanOrEqual(rule.Threshold) {
			return DecisionBlockedByBalance
		}
		// Overshoot gate: never drain the balance below its floor.
		if rule.MaxBalance.IsPositive() && balance.Sub(rule.Amount).LessThan(rule.MaxBalance) {
			return DecisionBlockedByBalance
		}
	}

	return DecisionReady
}

// HasPriceBand reports whether the rule constrains execution to a price
// range. Rules without a band skip the price feed read entirely.
func HasPriceBand(rule *models.AutomationRule) bool {
	return rule.PriceMin.IsPositive() || rule.PriceMax.IsPositive()
}

// MonitoredAccount is the account whose balance gates the rule: the recipient
// for topups (we fund it until it reaches the threshold), the owner for
// withdrawals (we drain it while it exceeds the threshold).
func MonitoredAccount(rule *models.AutomationRule) string {
	if rule.Direction == models.DirectionTopup {
		return rule.Recipient
	}
	return rule.Owner
}
