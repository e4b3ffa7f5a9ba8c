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

// Direction determines which side of the threshold a rule acts on.
type Direction string

const (
	// DirectionTopup moves funds INTO the recipient while its balance is below the threshold.
	DirectionTopup Direction = "topup"
	// DirectionWithdraw moves funds OUT of the recipient while its balance is above the threshold.
	DirectionWithdraw Direction = "withdraw"
)

// RuleStatus is the single state machine for a rule. The owner-facing active
// flag and the engine-facing execution state are one tagged value so that
// illegal combinations (a deleted-but-active rule) cannot be represented.
type RuleStatus string

const (
	StatusActive   RuleStatus = "active"
	StatusPaused   RuleStatus = "paused"
	StatusInFlight RuleStatus = "in_flight" // claimed by an execution worker
	StatusRetrying RuleStatus = "retrying"  // failed transiently, retry scheduled
	StatusFailed   RuleStatus = "failed"    // retry budget exhausted or permanent error
	StatusDeleted  RuleStatus = "deleted"   // tombstone, excluded from iteration
)

// RetryState tracks an in-progress retry sequence. Zero value means the rule
// is not retrying.
type RetryState struct {
	Attempt       int       `db:"retry_attempt" json:"attempt"`
	NextRetry     time.Time `db:"retry_at" json:"next_retry"`
	LastErrorKind string    `db:"last_error" json:"last_error_kind,omitempty"`
}

// AutomationRule is a stored automation intent: move `Amount` of `Asset`
// to/from `Recipient` whenever the balance threshold, the price band and the
// schedule are all satisfied at once.
type AutomationRule struct {
	Id               string          `db:"id" json:"id"`
	Owner            string          `db:"owner" json:"owner"`
	Direction        Direction       `db:"direction" json:"direction"`
	Asset            string          `db:"asset" json:"asset"`
	Recipient        string          `db:"recipient" json:"recipient"`
	Amount           decimal.Decimal `db:"amount" json:"amount"`
	Threshold        decimal.Decimal `db:"threshold" json:"threshold"`
	MaxBalance       decimal.Decimal `db:"max_balance" json:"max_balance"`
	ScheduleInterval time.Duration   `db:"schedule_interval" json:"schedule_interval"`
	PriceMin         decimal.Decimal `db:"price_min" json:"price_min"`
	PriceMax         decimal.Decimal `db:"price_max" json:"price_max"`
	Status           RuleStatus      `db:"status" json:"status"`
	LastExecuted     time.Time       `db:"last_executed" json:"last_executed"` // zero = never
	NextEligible     time.Time       `db:"next_eligible" json:"next_eligible"`
	Retry            RetryState      `json:"retry,omitempty"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}

// Evaluable reports whether the scheduler may consider this rule at all.
// Retrying rules stay evaluable: their retry is driven by RetryState.NextRetry.
func (r *AutomationRule) Evaluable() bool {
	return r.Status == StatusActive || r.Status == StatusRetrying
}

// RuleExecution is one row of the execution journal. Every attempt that
// reaches the ledger leaves a record, keyed by the deterministic idempotency
// key so an ambiguous outcome can be resolved before resubmitting.
type RuleExecution struct {
	Id             string          `db:"id" json:"id"`
	RuleId         string          `db:"rule_id" json:"rule_id"`
	Owner          string          `db:"owner" json:"owner"`
	IdempotencyKey string          `db:"idempotency_key" json:"idempotency_key"`
	Direction      Direction       `db:"direction" json:"direction"`
	Asset          string          `db:"asset" json:"asset"`
	Recipient      string          `db:"recipient" json:"recipient"`
	Amount         decimal.Decimal `db:"amount" json:"amount"`
	Attempt        int             `db:"attempt" json:"attempt"`
	Status         string          `db:"status" json:"status"` // submitted | confirmed | failed
	TxRef          string          `db:"tx_ref" json:"tx_ref,omitempty"`
	Error          string          `db:"error" json:"error,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	CompletedAt    time.Time       `db:"completed_at" json:"completed_at"`
}

// Execution journal statuses.
const (
	ExecutionSubmitted = "submitted"
	ExecutionConfirmed = "confirmed"
	ExecutionFailed    = "failed"
)
