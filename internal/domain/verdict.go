package domain

import (
	"strings"
	"time"
)

// Fraud sources distinguish how a verdict was produced. Only the rule
// engine emits verdicts today; the model source is reserved for offline
// scoring artifacts feeding the same log.
const (
	FraudSourceRule  = "rule"
	FraudSourceModel = "model"
)

// Verdict is the evaluation outcome for one transaction.
//
// Invariant for the rule source: IsFraud == (len(FraudReasons) > 0).
type Verdict struct {
	// ID is generated per evaluation. The verdict log keys on it, so
	// duplicate transaction IDs never collide in storage.
	ID string `json:"id"`

	TransactionID string `json:"transaction_id"`
	IsFraud       bool   `json:"is_fraud"`
	FraudSource   string `json:"fraud_source"`

	// FraudReasons holds one human-readable string per matched rule,
	// in rule-store order.
	FraudReasons []string `json:"fraud_reasons"`

	EvaluatedAt time.Time `json:"evaluated_at"`
}

// JoinedReasons renders the reason list as a single string for the
// batch response format.
func (v *Verdict) JoinedReasons() string {
	return strings.Join(v.FraudReasons, ", ")
}
