package domain

import (
	"fmt"
	"time"
)

// RuleType identifies which match predicate a rule uses.
type RuleType string

const (
	RuleAmountThreshold RuleType = "AmountThreshold"
	RuleVelocityCount   RuleType = "VelocityCount"
	RuleBlockedIP       RuleType = "BlockedIP"
	RuleBlockedBrowser  RuleType = "BlockedBrowser"
	RuleBlockedGateway  RuleType = "BlockedGateway"
	RuleBlockedEmail    RuleType = "BlockedEmail"

	// RuleExpression matches when a CEL expression over the transaction
	// evaluates to true. Used for policies the fixed types can't express.
	RuleExpression RuleType = "Expression"
)

// Rule is one configurable fraud-detection policy.
//
// Field presence is conditional on Type: threshold types carry Threshold,
// blocklist types carry BlockedValue, expression rules carry Expression.
// Validate enforces this at construction so the rest of the system never
// sees a half-formed rule.
type Rule struct {
	ID   string   `json:"id"`
	Type RuleType `json:"rule_type"`

	// Threshold is required for AmountThreshold and VelocityCount rules.
	Threshold *float64 `json:"threshold,omitempty"`

	// BlockedValue is required for the blocklist types. It is matched
	// case-sensitively against the corresponding transaction field.
	BlockedValue string `json:"blocked_value,omitempty"`

	// Expression is required for Expression rules (CEL, must return bool).
	Expression string `json:"expression,omitempty"`

	// Active is the soft-delete flag. Inactive rules are excluded from
	// evaluation but retained for audit.
	Active bool `json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsThresholdType reports whether the rule compares a numeric value
// against Threshold.
func (t RuleType) IsThresholdType() bool {
	return t == RuleAmountThreshold || t == RuleVelocityCount
}

// IsBlocklistType reports whether the rule matches a transaction attribute
// against BlockedValue.
func (t RuleType) IsBlocklistType() bool {
	switch t {
	case RuleBlockedIP, RuleBlockedBrowser, RuleBlockedGateway, RuleBlockedEmail:
		return true
	}
	return false
}

// Known reports whether t is part of the rule type enumeration.
func (t RuleType) Known() bool {
	return t.IsThresholdType() || t.IsBlocklistType() || t == RuleExpression
}

// Validate checks that the rule carries the fields its type requires.
// A failing rule is rejected at write time and skipped at evaluation time.
func (r *Rule) Validate() error {
	switch {
	case !r.Type.Known():
		return fmt.Errorf("%w: unrecognized rule_type %q", ErrInvalidRule, r.Type)
	case r.Type.IsThresholdType() && r.Threshold == nil:
		return fmt.Errorf("%w: rule_type %s requires threshold", ErrInvalidRule, r.Type)
	case r.Type.IsThresholdType() && *r.Threshold < 0:
		return fmt.Errorf("%w: rule_type %s threshold must be non-negative", ErrInvalidRule, r.Type)
	case r.Type.IsBlocklistType() && r.BlockedValue == "":
		return fmt.Errorf("%w: rule_type %s requires blocked_value", ErrInvalidRule, r.Type)
	case r.Type == RuleExpression && r.Expression == "":
		return fmt.Errorf("%w: rule_type %s requires expression", ErrInvalidRule, r.Type)
	}
	return nil
}
