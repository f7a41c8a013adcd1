// Package rules implements the fraud rule evaluator.
package rules

import (
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/transactai/sentinel/internal/domain"
)

// Input holds the transaction data for one evaluation.
type Input struct {
	Tx *domain.Transaction

	// VelocityCount is the payer's transaction count in the trailing
	// window, computed by the velocity collaborator. The evaluator only
	// compares it to VelocityCount rule thresholds.
	VelocityCount int64
}

// Evaluator applies a rule snapshot to a transaction.
//
// Evaluation is a pure transform over its inputs: no side effects beyond
// warning logs, safe for concurrent callers sharing the same snapshot.
// The only internal state is a compiled-program cache for Expression rules,
// which never changes an evaluation's outcome.
type Evaluator struct {
	env *cel.Env

	mu       sync.RWMutex
	programs map[string]compiledExpr
}

type compiledExpr struct {
	expression string
	program    cel.Program
}

// NewEvaluator creates an evaluator with the CEL environment for
// Expression rules.
func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("velocity_count", cel.IntType),
		cel.Variable("channel", cel.StringType),
		cel.Variable("payment_mode", cel.StringType),
		cel.Variable("gateway_bank", cel.StringType),
		cel.Variable("payer_id", cel.StringType),
		cel.Variable("payer_email", cel.StringType),
		cel.Variable("payer_browser", cel.StringType),
		cel.Variable("payer_ip", cel.StringType),
		cel.Variable("payer_mobile", cel.StringType),
		cel.Variable("payee_id", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Evaluator{
		env:      env,
		programs: make(map[string]compiledExpr),
	}, nil
}

// Evaluate applies every rule in the snapshot, in order, and returns the
// verdict. There is no short-circuiting: all rules run even after a match,
// so FraudReasons accumulates every violated policy for auditors.
//
// A malformed rule (unknown type, missing required field, broken
// expression) is skipped with a warning; it never blocks evaluation
// against the remaining rules. Callers assign the verdict ID and
// timestamp; this function stays deterministic for a given (input, rules).
func (e *Evaluator) Evaluate(in Input, ruleSet []*domain.Rule) domain.Verdict {
	v := domain.Verdict{
		TransactionID: in.Tx.TransactionID,
		FraudSource:   domain.FraudSourceRule,
		FraudReasons:  []string{},
	}

	for _, r := range ruleSet {
		matched, reason, err := e.apply(in, r)
		if err != nil {
			slog.Warn("skipping malformed rule",
				"rule_id", r.ID,
				"rule_type", r.Type,
				"error", err,
			)
			continue
		}
		if matched {
			v.FraudReasons = append(v.FraudReasons, reason)
		}
	}

	v.IsFraud = len(v.FraudReasons) > 0
	return v
}

// apply runs one rule's match predicate against the input.
func (e *Evaluator) apply(in Input, r *domain.Rule) (bool, string, error) {
	if err := r.Validate(); err != nil {
		return false, "", err
	}

	tx := in.Tx
	switch r.Type {
	case domain.RuleAmountThreshold:
		if tx.Amount > *r.Threshold {
			return true, fmt.Sprintf("High transaction amount (> %s)", formatThreshold(*r.Threshold)), nil
		}

	case domain.RuleVelocityCount:
		if float64(in.VelocityCount) > *r.Threshold {
			return true, fmt.Sprintf("Too many transactions in short time (> %s)", formatThreshold(*r.Threshold)), nil
		}

	case domain.RuleBlockedIP:
		if tx.PayerIP != "" && tx.PayerIP == r.BlockedValue {
			return true, "Blocked IP: " + r.BlockedValue, nil
		}

	case domain.RuleBlockedBrowser:
		if tx.PayerBrowser != "" && tx.PayerBrowser == r.BlockedValue {
			return true, "Blocked Browser: " + r.BlockedValue, nil
		}

	case domain.RuleBlockedGateway:
		if tx.GatewayBank != "" && tx.GatewayBank == r.BlockedValue {
			return true, "Blocked Payment Gateway: " + r.BlockedValue, nil
		}

	case domain.RuleBlockedEmail:
		if tx.PayerEmail != "" && tx.PayerEmail == r.BlockedValue {
			return true, "Blocked Email: " + r.BlockedValue, nil
		}

	case domain.RuleExpression:
		return e.applyExpression(in, r)
	}

	return false, "", nil
}

// applyExpression evaluates a CEL rule against the transaction.
func (e *Evaluator) applyExpression(in Input, r *domain.Rule) (bool, string, error) {
	prg, err := e.program(r)
	if err != nil {
		return false, "", err
	}

	tx := in.Tx
	out, _, err := prg.Eval(map[string]any{
		"amount":         tx.Amount,
		"velocity_count": in.VelocityCount,
		"channel":        tx.Channel,
		"payment_mode":   tx.PaymentMode,
		"gateway_bank":   tx.GatewayBank,
		"payer_id":       tx.PayerID,
		"payer_email":    tx.PayerEmail,
		"payer_browser":  tx.PayerBrowser,
		"payer_ip":       tx.PayerIP,
		"payer_mobile":   tx.PayerMobile,
		"payee_id":       tx.PayeeID,
	})
	if err != nil {
		return false, "", fmt.Errorf("expression evaluation failed: %w", err)
	}

	if b, ok := out.(types.Bool); ok && bool(b) {
		return true, "Custom rule matched: " + r.Expression, nil
	}
	return false, "", nil
}

// ValidateExpression compiles an expression without caching it. Used by
// the rule store to reject broken Expression rules at write time.
func (e *Evaluator) ValidateExpression(expression string) error {
	_, err := e.compile(expression)
	return err
}

// program returns the compiled program for an Expression rule,
// recompiling when the stored expression changed.
func (e *Evaluator) program(r *domain.Rule) (cel.Program, error) {
	e.mu.RLock()
	cached, ok := e.programs[r.ID]
	e.mu.RUnlock()
	if ok && cached.expression == r.Expression {
		return cached.program, nil
	}

	prg, err := e.compile(r.Expression)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.programs[r.ID] = compiledExpr{expression: r.Expression, program: prg}
	e.mu.Unlock()

	return prg, nil
}

func (e *Evaluator) compile(expression string) (cel.Program, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidRule, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("%w: expression must return bool, got %s", domain.ErrInvalidRule, ast.OutputType())
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidRule, err)
	}
	return prg, nil
}

// HasVelocityRule reports whether the snapshot contains a valid
// VelocityCount rule. The ingestor uses it to skip the count query when
// no rule needs it.
func HasVelocityRule(ruleSet []*domain.Rule) bool {
	for _, r := range ruleSet {
		if r.Type == domain.RuleVelocityCount && r.Threshold != nil {
			return true
		}
	}
	return false
}

// formatThreshold renders thresholds the way they were entered:
// 1000 stays 1000, 99.5 stays 99.5.
func formatThreshold(t float64) string {
	return strconv.FormatFloat(t, 'f', -1, 64)
}
