package rules

import (
	"reflect"
	"testing"

	"github.com/transactai/sentinel/internal/domain"
)

func newTestEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("failed to create evaluator: %v", err)
	}
	return eval
}

func f64(v float64) *float64 {
	return &v
}

func TestAmountThresholdMatch(t *testing.T) {
	eval := newTestEvaluator(t)

	ruleSet := []*domain.Rule{
		{ID: "r1", Type: domain.RuleAmountThreshold, Threshold: f64(1000), Active: true},
	}
	tx := &domain.Transaction{TransactionID: "tx-1", Amount: 1500}

	v := eval.Evaluate(Input{Tx: tx}, ruleSet)

	if !v.IsFraud {
		t.Error("expected is_fraud=true")
	}
	want := []string{"High transaction amount (> 1000)"}
	if !reflect.DeepEqual(v.FraudReasons, want) {
		t.Errorf("expected reasons %v, got %v", want, v.FraudReasons)
	}
	if v.FraudSource != domain.FraudSourceRule {
		t.Errorf("expected fraud_source %q, got %q", domain.FraudSourceRule, v.FraudSource)
	}
}

func TestBlockedIPNoMatch(t *testing.T) {
	eval := newTestEvaluator(t)

	ruleSet := []*domain.Rule{
		{ID: "r1", Type: domain.RuleBlockedIP, BlockedValue: "10.0.0.1", Active: true},
	}
	tx := &domain.Transaction{TransactionID: "tx-1", Amount: 10, PayerIP: "10.0.0.2"}

	v := eval.Evaluate(Input{Tx: tx}, ruleSet)

	if v.IsFraud {
		t.Error("expected is_fraud=false")
	}
	if len(v.FraudReasons) != 0 {
		t.Errorf("expected empty reasons, got %v", v.FraudReasons)
	}
}

func TestOnlyMatchingRulesContribute(t *testing.T) {
	eval := newTestEvaluator(t)

	ruleSet := []*domain.Rule{
		{ID: "r1", Type: domain.RuleAmountThreshold, Threshold: f64(100), Active: true},
		{ID: "r2", Type: domain.RuleBlockedEmail, BlockedValue: "x@y.com", Active: true},
	}
	tx := &domain.Transaction{TransactionID: "tx-1", Amount: 50, PayerEmail: "x@y.com"}

	v := eval.Evaluate(Input{Tx: tx}, ruleSet)

	if !v.IsFraud {
		t.Error("expected is_fraud=true")
	}
	want := []string{"Blocked Email: x@y.com"}
	if !reflect.DeepEqual(v.FraudReasons, want) {
		t.Errorf("expected reasons %v, got %v", want, v.FraudReasons)
	}
}

func TestNoShortCircuit(t *testing.T) {
	eval := newTestEvaluator(t)

	// All three match; reasons must be present in rule order.
	ruleSet := []*domain.Rule{
		{ID: "r1", Type: domain.RuleAmountThreshold, Threshold: f64(100), Active: true},
		{ID: "r2", Type: domain.RuleBlockedIP, BlockedValue: "10.0.0.1", Active: true},
		{ID: "r3", Type: domain.RuleBlockedBrowser, BlockedValue: "Tor", Active: true},
	}
	tx := &domain.Transaction{
		TransactionID: "tx-1",
		Amount:        500,
		PayerIP:       "10.0.0.1",
		PayerBrowser:  "Tor",
	}

	v := eval.Evaluate(Input{Tx: tx}, ruleSet)

	want := []string{
		"High transaction amount (> 100)",
		"Blocked IP: 10.0.0.1",
		"Blocked Browser: Tor",
	}
	if !reflect.DeepEqual(v.FraudReasons, want) {
		t.Errorf("expected reasons %v, got %v", want, v.FraudReasons)
	}
}

func TestReasonOrderFollowsRuleOrder(t *testing.T) {
	eval := newTestEvaluator(t)

	tx := &domain.Transaction{
		TransactionID: "tx-1",
		Amount:        500,
		PayerEmail:    "bad@x.com",
	}

	forward := []*domain.Rule{
		{ID: "r1", Type: domain.RuleAmountThreshold, Threshold: f64(100), Active: true},
		{ID: "r2", Type: domain.RuleBlockedEmail, BlockedValue: "bad@x.com", Active: true},
	}
	reversed := []*domain.Rule{forward[1], forward[0]}

	v1 := eval.Evaluate(Input{Tx: tx}, forward)
	v2 := eval.Evaluate(Input{Tx: tx}, reversed)

	if v1.FraudReasons[0] != "High transaction amount (> 100)" {
		t.Errorf("forward order wrong: %v", v1.FraudReasons)
	}
	if v2.FraudReasons[0] != "Blocked Email: bad@x.com" {
		t.Errorf("reversed order wrong: %v", v2.FraudReasons)
	}
}

func TestFraudInvariant(t *testing.T) {
	eval := newTestEvaluator(t)

	ruleSet := []*domain.Rule{
		{ID: "r1", Type: domain.RuleAmountThreshold, Threshold: f64(1000), Active: true},
		{ID: "r2", Type: domain.RuleBlockedGateway, BlockedValue: "shadybank", Active: true},
	}

	cases := []struct {
		name string
		tx   domain.Transaction
	}{
		{"clean", domain.Transaction{TransactionID: "a", Amount: 10}},
		{"amount", domain.Transaction{TransactionID: "b", Amount: 2000}},
		{"gateway", domain.Transaction{TransactionID: "c", Amount: 10, GatewayBank: "shadybank"}},
		{"both", domain.Transaction{TransactionID: "d", Amount: 2000, GatewayBank: "shadybank"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := eval.Evaluate(Input{Tx: &tc.tx}, ruleSet)
			if v.IsFraud != (len(v.FraudReasons) > 0) {
				t.Errorf("invariant violated: is_fraud=%v with %d reasons", v.IsFraud, len(v.FraudReasons))
			}
		})
	}
}

func TestEvaluateIsIdempotent(t *testing.T) {
	eval := newTestEvaluator(t)

	ruleSet := []*domain.Rule{
		{ID: "r1", Type: domain.RuleAmountThreshold, Threshold: f64(100), Active: true},
		{ID: "r2", Type: domain.RuleExpression, Expression: `payment_mode == "card" && amount > 50.0`, Active: true},
	}
	tx := &domain.Transaction{TransactionID: "tx-1", Amount: 200, PaymentMode: "card"}

	v1 := eval.Evaluate(Input{Tx: tx}, ruleSet)
	v2 := eval.Evaluate(Input{Tx: tx}, ruleSet)

	if !reflect.DeepEqual(v1, v2) {
		t.Errorf("expected identical verdicts, got %+v and %+v", v1, v2)
	}
}

func TestMalformedRuleSkipped(t *testing.T) {
	eval := newTestEvaluator(t)

	// r1 is missing its threshold, r3 has an unknown type. Both must be
	// skipped without blocking r2.
	ruleSet := []*domain.Rule{
		{ID: "r1", Type: domain.RuleAmountThreshold, Active: true},
		{ID: "r2", Type: domain.RuleBlockedIP, BlockedValue: "10.0.0.1", Active: true},
		{ID: "r3", Type: domain.RuleType("CreditScore"), Active: true},
	}
	tx := &domain.Transaction{TransactionID: "tx-1", Amount: 99999, PayerIP: "10.0.0.1"}

	v := eval.Evaluate(Input{Tx: tx}, ruleSet)

	want := []string{"Blocked IP: 10.0.0.1"}
	if !reflect.DeepEqual(v.FraudReasons, want) {
		t.Errorf("expected reasons %v, got %v", want, v.FraudReasons)
	}
}

func TestEmptyFieldNeverMatchesBlocklist(t *testing.T) {
	eval := newTestEvaluator(t)

	ruleSet := []*domain.Rule{
		{ID: "r1", Type: domain.RuleBlockedBrowser, BlockedValue: "Tor", Active: true},
	}
	tx := &domain.Transaction{TransactionID: "tx-1", Amount: 10}

	v := eval.Evaluate(Input{Tx: tx}, ruleSet)
	if v.IsFraud {
		t.Error("empty transaction field must not match a blocklist rule")
	}
}

func TestBlocklistMatchIsCaseSensitive(t *testing.T) {
	eval := newTestEvaluator(t)

	ruleSet := []*domain.Rule{
		{ID: "r1", Type: domain.RuleBlockedEmail, BlockedValue: "X@Y.com", Active: true},
	}
	tx := &domain.Transaction{TransactionID: "tx-1", Amount: 10, PayerEmail: "x@y.com"}

	v := eval.Evaluate(Input{Tx: tx}, ruleSet)
	if v.IsFraud {
		t.Error("blocklist match must be case-sensitive")
	}
}

func TestVelocityCountRule(t *testing.T) {
	eval := newTestEvaluator(t)

	ruleSet := []*domain.Rule{
		{ID: "r1", Type: domain.RuleVelocityCount, Threshold: f64(5), Active: true},
	}
	tx := &domain.Transaction{TransactionID: "tx-1", Amount: 10, PayerID: "p1"}

	v := eval.Evaluate(Input{Tx: tx, VelocityCount: 5}, ruleSet)
	if v.IsFraud {
		t.Error("count equal to threshold must not match")
	}

	v = eval.Evaluate(Input{Tx: tx, VelocityCount: 6}, ruleSet)
	if !v.IsFraud {
		t.Error("count above threshold must match")
	}
	want := []string{"Too many transactions in short time (> 5)"}
	if !reflect.DeepEqual(v.FraudReasons, want) {
		t.Errorf("expected reasons %v, got %v", want, v.FraudReasons)
	}
}

func TestExpressionRule(t *testing.T) {
	eval := newTestEvaluator(t)

	ruleSet := []*domain.Rule{
		{ID: "r1", Type: domain.RuleExpression, Expression: `channel == "web" && amount > 100.0`, Active: true},
	}

	v := eval.Evaluate(Input{Tx: &domain.Transaction{TransactionID: "a", Amount: 200, Channel: "web"}}, ruleSet)
	if !v.IsFraud {
		t.Error("expected expression rule to match")
	}
	if v.FraudReasons[0] != `Custom rule matched: channel == "web" && amount > 100.0` {
		t.Errorf("unexpected reason: %q", v.FraudReasons[0])
	}

	v = eval.Evaluate(Input{Tx: &domain.Transaction{TransactionID: "b", Amount: 200, Channel: "mobile"}}, ruleSet)
	if v.IsFraud {
		t.Error("expected expression rule not to match")
	}
}

func TestBrokenExpressionSkipped(t *testing.T) {
	eval := newTestEvaluator(t)

	ruleSet := []*domain.Rule{
		{ID: "r1", Type: domain.RuleExpression, Expression: "this is not CEL !!!", Active: true},
		{ID: "r2", Type: domain.RuleAmountThreshold, Threshold: f64(100), Active: true},
	}
	tx := &domain.Transaction{TransactionID: "tx-1", Amount: 500}

	v := eval.Evaluate(Input{Tx: tx}, ruleSet)

	want := []string{"High transaction amount (> 100)"}
	if !reflect.DeepEqual(v.FraudReasons, want) {
		t.Errorf("expected reasons %v, got %v", want, v.FraudReasons)
	}
}

func TestValidateExpression(t *testing.T) {
	eval := newTestEvaluator(t)

	if err := eval.ValidateExpression("amount > 100.0"); err != nil {
		t.Errorf("valid expression rejected: %v", err)
	}
	if err := eval.ValidateExpression("amount +"); err == nil {
		t.Error("expected error for broken expression")
	}
	if err := eval.ValidateExpression("amount + 1.0"); err == nil {
		t.Error("expected error for non-bool expression")
	}
}

func TestHasVelocityRule(t *testing.T) {
	if HasVelocityRule([]*domain.Rule{{Type: domain.RuleBlockedIP, BlockedValue: "x"}}) {
		t.Error("expected false without a velocity rule")
	}
	if !HasVelocityRule([]*domain.Rule{{Type: domain.RuleVelocityCount, Threshold: f64(3)}}) {
		t.Error("expected true with a velocity rule")
	}
	if HasVelocityRule([]*domain.Rule{{Type: domain.RuleVelocityCount}}) {
		t.Error("malformed velocity rule must not count")
	}
}

func TestFormatThreshold(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{1000, "1000"},
		{99.5, "99.5"},
		{0, "0"},
	}
	for _, tc := range cases {
		if got := formatThreshold(tc.in); got != tc.want {
			t.Errorf("formatThreshold(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
