// Package ingest orchestrates the scoring pipeline: rule snapshot,
// velocity count, evaluation, persistence, alerting.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/transactai/sentinel/internal/domain"
	"github.com/transactai/sentinel/internal/rules"
	"github.com/transactai/sentinel/internal/velocity"
)

// Service runs transactions through detection end to end.
type Service struct {
	repo       domain.Repository
	eval       *rules.Evaluator
	velocity   *velocity.Service
	dispatcher AlertDispatcher

	velocityWindow time.Duration
}

// AlertDispatcher fires a fraud notification without blocking scoring.
type AlertDispatcher interface {
	Dispatch(tx *domain.Transaction, v *domain.Verdict)
}

// NewService creates the scoring pipeline. dispatcher may be nil; fraud
// verdicts are then persisted but not announced.
func NewService(repo domain.Repository, eval *rules.Evaluator, vel *velocity.Service, dispatcher AlertDispatcher, velocityWindow time.Duration) *Service {
	if velocityWindow <= 0 {
		velocityWindow = 10 * time.Minute
	}
	return &Service{
		repo:           repo,
		eval:           eval,
		velocity:       vel,
		dispatcher:     dispatcher,
		velocityWindow: velocityWindow,
	}
}

// ProcessOne scores a single transaction and persists the verdict.
//
// The rule snapshot is loaded once per call so a concurrent rule change
// cannot split one evaluation across two rule sets. A failed snapshot
// load or verdict write is fatal for the request; a failed velocity
// count is fatal only when an active VelocityCount rule would consume
// it, because defaulting the count to zero could silently clear a
// transaction that should have been flagged.
func (s *Service) ProcessOne(ctx context.Context, tx *domain.Transaction) (*domain.Verdict, error) {
	if err := tx.Validate(); err != nil {
		return nil, err
	}

	ruleSet, err := s.repo.ListActiveRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}

	in := rules.Input{Tx: tx}
	if rules.HasVelocityRule(ruleSet) {
		n, err := s.velocity.Count(ctx, tx.PayerID, s.velocityWindow)
		if err != nil {
			return nil, fmt.Errorf("%w: velocity count: %v", domain.ErrStoreUnavailable, err)
		}
		in.VelocityCount = n
	}

	v := s.eval.Evaluate(in, ruleSet)
	v.ID = uuid.New().String()
	v.EvaluatedAt = time.Now().UTC()

	if err := s.repo.SaveVerdict(ctx, tx, &v); err != nil {
		return nil, fmt.Errorf("failed to save verdict: %w", err)
	}

	if err := s.velocity.Record(ctx, tx.PayerID, s.velocityWindow); err != nil {
		slog.Warn("failed to bump velocity counter",
			"payer_id", tx.PayerID,
			"error", err,
		)
	}

	if v.IsFraud && s.dispatcher != nil {
		s.dispatcher.Dispatch(tx, &v)
	}

	slog.Info("transaction scored",
		"transaction_id", tx.TransactionID,
		"is_fraud", v.IsFraud,
		"reason_count", len(v.FraudReasons),
	)

	return &v, nil
}

// BatchOutcome is the per-transaction result of a batch run.
type BatchOutcome struct {
	Verdict *domain.Verdict
	Err     error
}

// ProcessBatch scores each transaction independently, in order. One
// item's failure never aborts the rest. Results are keyed by
// transaction_id; when a batch repeats an ID, the later item's outcome
// wins, matching what the verdict log considers most recent.
func (s *Service) ProcessBatch(ctx context.Context, txs []*domain.Transaction) map[string]*BatchOutcome {
	out := make(map[string]*BatchOutcome, len(txs))
	for _, tx := range txs {
		v, err := s.ProcessOne(ctx, tx)
		if err != nil {
			slog.Error("batch item failed",
				"transaction_id", tx.TransactionID,
				"error", err,
			)
			out[tx.TransactionID] = &BatchOutcome{Err: err}
			continue
		}
		out[tx.TransactionID] = &BatchOutcome{Verdict: v}
	}
	return out
}
