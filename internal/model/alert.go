package model

import "time"

// AlertType identifies an alert rule.
type AlertType string

const (
	AlertWhaleMovement       AlertType = "whale_movement"
	AlertLargeTransaction    AlertType = "large_transaction"
	AlertRiskDetected        AlertType = "risk_detected"
	AlertContractInteraction AlertType = "contract_interaction"
	AlertPriceImpact         AlertType = "price_impact"
)

// AlertTypes lists every alert type in display order.
var AlertTypes = []AlertType{
	AlertWhaleMovement,
	AlertLargeTransaction,
	AlertRiskDetected,
	AlertContractInteraction,
	AlertPriceImpact,
}

// ParseAlertType returns the alert type named s.
func ParseAlertType(s string) (AlertType, bool) {
	for _, t := range AlertTypes {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// Severity grades an alert.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AlertKey is the dedup and cooldown unit.
type AlertKey struct {
	Type    AlertType `json:"type"`
	Subject string    `json:"subject"`
}

// NewAlertKey builds the key for an alert about subject.
func NewAlertKey(t AlertType, subject string) AlertKey {
	return AlertKey{Type: t, Subject: subject}
}

func (k AlertKey) String() string {
	return string(k.Type) + ":" + k.Subject
}

// AlertCandidate is a policy result that has not yet passed the gate.
type AlertCandidate struct {
	Key         AlertKey
	Severity    Severity
	Description string
	Conditions  map[string]any
	Transaction *TransactionRecord
}

// AlertRecord is the gate's bookkeeping for one key.
type AlertRecord struct {
	ID             string         `json:"id"`
	Key            AlertKey       `json:"key"`
	Severity       Severity       `json:"severity"`
	Description    string         `json:"description"`
	Conditions     map[string]any `json:"conditions,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	LastTriggered  *time.Time     `json:"last_triggered,omitempty"`
	TriggerCount   int            `json:"trigger_count"`
	CooldownPeriod time.Duration  `json:"cooldown_period"`
	Active         bool           `json:"active"`
}

// Clone returns a deep copy safe to hand outside the owning store.
func (r *AlertRecord) Clone() *AlertRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.LastTriggered != nil {
		t := *r.LastTriggered
		c.LastTriggered = &t
	}
	if r.Conditions != nil {
		c.Conditions = make(map[string]any, len(r.Conditions))
		for k, v := range r.Conditions {
			c.Conditions[k] = v
		}
	}
	return &c
}
