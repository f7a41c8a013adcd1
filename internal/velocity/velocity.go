// Package velocity computes payer transaction counts in a trailing window.
//
// VelocityCount rules compare a precomputed count against their threshold;
// this package is the collaborator that produces that count. The verdict
// log is the authoritative source. When a cache is configured, a windowed
// counter keyed per payer serves as a fast path: it is bumped on every
// persisted transaction and expires after the window, which approximates
// the trailing window without a table scan per request.
package velocity

import (
	"context"
	"fmt"
	"time"

	"github.com/transactai/sentinel/internal/domain"
)

// Service calculates transaction velocity for payers.
type Service struct {
	repo  domain.Repository
	cache domain.Cache
}

// NewService creates a velocity service. cache may be nil; counts then
// always come from the repository.
func NewService(repo domain.Repository, cache domain.Cache) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
	}
}

// Count returns the payer's transaction count within the trailing window.
// An error here is surfaced to the caller rather than degraded to zero:
// a silent zero would turn a velocity match into a false "not fraud".
func (s *Service) Count(ctx context.Context, payerID string, window time.Duration) (int64, error) {
	if payerID == "" {
		return 0, nil
	}

	if s.cache != nil {
		if n, ok := s.cachedCount(ctx, payerID); ok {
			return n, nil
		}
	}

	if s.repo == nil {
		return 0, fmt.Errorf("no data source available")
	}

	since := time.Now().Add(-window)
	return s.repo.CountByPayerSince(ctx, payerID, since)
}

// Record bumps the payer's windowed counter after a transaction is
// persisted. Counter failures are reported but non-fatal upstream; the
// repository count remains correct either way.
func (s *Service) Record(ctx context.Context, payerID string, window time.Duration) error {
	if s.cache == nil || payerID == "" {
		return nil
	}
	_, err := s.cache.IncrementCounter(ctx, counterKey(payerID), window)
	return err
}

// cachedCount reads the windowed counter without incrementing it.
func (s *Service) cachedCount(ctx context.Context, payerID string) (int64, bool) {
	n, ok, err := s.cache.GetCounter(ctx, counterKey(payerID))
	if err != nil || !ok {
		return 0, false
	}
	return n, true
}

func counterKey(payerID string) string {
	return "velocity:" + payerID
}
