// Package domain defines the core types and interfaces for Sentinel.
package domain

import (
	"context"
	"time"
)

// Repository is the durable store for rules and the verdict log.
type Repository interface {
	// AddRule validates and inserts a rule, returning its generated ID.
	// Fails with ErrInvalidRule on missing type-conditional fields.
	AddRule(ctx context.Context, rule *Rule) (string, error)

	// ListActiveRules returns a point-in-time snapshot of active rules in
	// insertion order. No lock is held across the caller's use of the
	// snapshot; concurrent mutations may race with in-flight evaluations.
	ListActiveRules(ctx context.Context) ([]*Rule, error)

	// DeactivateRule soft-deletes a rule. Returns ErrNotFound for an
	// unknown or already-inactive id; callers treat that as non-fatal.
	DeactivateRule(ctx context.Context, id string) error

	// RulesLastModified returns the time of the most recent rule mutation.
	// Consumers poll it instead of sharing a mutable "new data" flag.
	RulesLastModified(ctx context.Context) (time.Time, error)

	// SaveVerdict appends one (transaction, verdict) record to the audit
	// log. Exactly one record per evaluated transaction.
	SaveVerdict(ctx context.Context, tx *Transaction, v *Verdict) error

	// GetVerdict returns the most recent verdict for a transaction ID.
	GetVerdict(ctx context.Context, txID string) (*Transaction, *Verdict, error)

	// ListVerdicts returns the latest records from the log, newest first.
	ListVerdicts(ctx context.Context, limit int) ([]*VerdictRecord, error)

	// CountByPayerSince counts persisted transactions for a payer with
	// timestamp >= since. Backs the velocity window computation.
	CountByPayerSince(ctx context.Context, payerID string, since time.Time) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}

// VerdictRecord pairs a persisted transaction with its verdict.
type VerdictRecord struct {
	Transaction Transaction `json:"transaction"`
	Verdict     Verdict     `json:"verdict"`
}

// RepositoryConfig holds settings for repository initialization.
type RepositoryConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string

	SQLitePath string

	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
