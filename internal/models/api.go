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

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RuleResult represents the result of a rule mutation
type RuleResult struct {
	Success bool            `json:"success"`
	Rule    *AutomationRule `json:"rule,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// ExecutionRecord represents one execution in a rule's history
type ExecutionRecord struct {
	Id          string          `json:"id"`
	RuleId      string          `json:"rule_id"`
	Direction   Direction       `json:"direction"`
	Asset       string          `json:"asset"`
	Amount      decimal.Decimal `json:"amount"`
	Recipient   string          `json:"recipient,omitempty"`
	Attempt     int             `json:"attempt"`
	Status      string          `json:"status"`
	TxRef       string          `json:"tx_ref,omitempty"`
	Error       string          `json:"error,omitempty"`
	ProcessedAt time.Time       `json:"processed_at"`
}

// EngineStatus reports the health of the sweep loop
type EngineStatus struct {
	Running        bool      `json:"running"`
	LastSweep      time.Time `json:"last_sweep"`
	RulesEvaluated int64     `json:"rules_evaluated"`
	RulesDue       int64     `json:"rules_due"`
	InFlight       int       `json:"in_flight"`
}
