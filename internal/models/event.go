package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType distinguishes lifecycle notifications emitted by the engine.
type EventType string

const (
	EventRuleCreated    EventType = "rule.created"
	EventRuleUpdated    EventType = "rule.updated"
	EventRuleDeleted    EventType = "rule.deleted"
	EventExecuted       EventType = "rule.executed"
	EventRetryScheduled EventType = "rule.retry_scheduled"
	EventFailed         EventType = "rule.failed"
)

// Event is a single engine notification. Payload fields that do not apply to
// a given type are left at their zero value and omitted from JSON.
type Event struct {
	Type      EventType       `json:"type"`
	RuleId    string          `json:"rule_id"`
	Owner     string          `json:"owner"`
	Timestamp time.Time       `json:"timestamp"`
	Asset     string          `json:"asset,omitempty"`
	Recipient string          `json:"recipient,omitempty"`
	Amount    decimal.Decimal `json:"amount,omitempty"`
	TxRef     string          `json:"tx_ref,omitempty"`
	Attempt   int             `json:"attempt,omitempty"`
	NextRetry time.Time       `json:"next_retry,omitempty"`
	ErrorKind string          `json:"error_kind,omitempty"`
	Detail    string          `json:"detail,omitempty"`
}
