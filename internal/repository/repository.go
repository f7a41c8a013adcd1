// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/transactai/sentinel/internal/domain"
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (*SQLRepository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// AddRule validates and inserts a rule, returning its generated ID.
func (r *SQLRepository) AddRule(ctx context.Context, rule *domain.Rule) (string, error) {
	if err := rule.Validate(); err != nil {
		return "", err
	}

	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	rule.Active = true

	var threshold sql.NullFloat64
	if rule.Threshold != nil {
		threshold = sql.NullFloat64{Float64: *rule.Threshold, Valid: true}
	}

	// The blocked value lands in the column matching the rule type; the
	// others stay NULL, mirroring the type-conditional table layout.
	cols := map[domain.RuleType]string{}
	for _, t := range []domain.RuleType{
		domain.RuleBlockedIP, domain.RuleBlockedBrowser,
		domain.RuleBlockedGateway, domain.RuleBlockedEmail,
	} {
		cols[t] = ""
	}
	if rule.Type.IsBlocklistType() {
		cols[rule.Type] = rule.BlockedValue
	}

	query := `
		INSERT INTO fraud_rules (
			id, rule_type, threshold,
			blocked_ip, blocked_payer_browser, blocked_payment_gateway, blocked_email,
			expression, is_active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, string(rule.Type), threshold,
		nullable(cols[domain.RuleBlockedIP]),
		nullable(cols[domain.RuleBlockedBrowser]),
		nullable(cols[domain.RuleBlockedGateway]),
		nullable(cols[domain.RuleBlockedEmail]),
		nullable(rule.Expression),
		now, now,
	)
	if err != nil {
		return "", fmt.Errorf("%w: insert rule: %v", domain.ErrStoreUnavailable, err)
	}

	return rule.ID, nil
}

// ListActiveRules returns active rules in insertion order. The snapshot is
// point-in-time; no lock is held across the caller's use of it.
func (r *SQLRepository) ListActiveRules(ctx context.Context) ([]*domain.Rule, error) {
	query := `
		SELECT id, rule_type, threshold,
		       blocked_ip, blocked_payer_browser, blocked_payment_gateway, blocked_email,
		       expression, created_at, updated_at
		FROM fraud_rules
		WHERE is_active = 1
		ORDER BY created_at, id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: list rules: %v", domain.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var ruleSet []*domain.Rule
	for rows.Next() {
		var rule domain.Rule
		var threshold sql.NullFloat64
		var ip, browser, gateway, email, expression sql.NullString
		var ruleType string

		if err := rows.Scan(
			&rule.ID, &ruleType, &threshold,
			&ip, &browser, &gateway, &email,
			&expression, &rule.CreatedAt, &rule.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("%w: scan rule: %v", domain.ErrStoreUnavailable, err)
		}

		rule.Type = domain.RuleType(ruleType)
		rule.Active = true
		if threshold.Valid {
			v := threshold.Float64
			rule.Threshold = &v
		}
		rule.BlockedValue = firstNonEmpty(ip.String, browser.String, gateway.String, email.String)
		rule.Expression = expression.String

		ruleSet = append(ruleSet, &rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list rules: %v", domain.ErrStoreUnavailable, err)
	}
	return ruleSet, nil
}

// DeactivateRule soft-deletes a rule. Idempotent from the caller's view:
// an unknown or already-inactive id reports ErrNotFound, which is
// non-fatal upstream.
func (r *SQLRepository) DeactivateRule(ctx context.Context, id string) error {
	query := `
		UPDATE fraud_rules
		SET is_active = 0, updated_at = ?
		WHERE id = ? AND is_active = 1
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("%w: deactivate rule: %v", domain.ErrStoreUnavailable, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: rule %s", domain.ErrNotFound, id)
	}
	return nil
}

// RulesLastModified returns the time of the most recent rule mutation,
// or the zero time when no rules exist. Consumers poll this instead of a
// shared "new data available" flag.
func (r *SQLRepository) RulesLastModified(ctx context.Context) (time.Time, error) {
	var ts sql.NullTime
	err := r.db.QueryRowContext(ctx, `SELECT MAX(updated_at) FROM fraud_rules`).Scan(&ts)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: rules last modified: %v", domain.ErrStoreUnavailable, err)
	}
	if !ts.Valid {
		return time.Time{}, nil
	}
	return ts.Time.UTC(), nil
}

// SaveVerdict appends one (transaction, verdict) record to the audit log.
func (r *SQLRepository) SaveVerdict(ctx context.Context, tx *domain.Transaction, v *domain.Verdict) error {
	reasons, _ := json.Marshal(v.FraudReasons)

	isFraud := 0
	if v.IsFraud {
		isFraud = 1
	}

	query := `
		INSERT INTO transactions (
			verdict_id, transaction_id, amount, timestamp,
			channel, payment_mode, gateway_bank,
			payer_id, payer_email, payer_browser, payer_ip, payer_mobile, payee_id,
			is_fraud, fraud_source, fraud_reasons, evaluated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		v.ID, tx.TransactionID, tx.Amount, tx.Timestamp,
		tx.Channel, tx.PaymentMode, tx.GatewayBank,
		tx.PayerID, tx.PayerEmail, tx.PayerBrowser, tx.PayerIP, tx.PayerMobile, tx.PayeeID,
		isFraud, v.FraudSource, string(reasons), v.EvaluatedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: save verdict: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// GetVerdict returns the most recent record for a transaction ID.
func (r *SQLRepository) GetVerdict(ctx context.Context, txID string) (*domain.Transaction, *domain.Verdict, error) {
	query := selectVerdictColumns + `
		WHERE transaction_id = ?
		ORDER BY evaluated_at DESC
		LIMIT 1
	`

	rec, err := r.scanRecord(r.db.QueryRowContext(ctx, r.rebind(query), txID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("%w: transaction %s", domain.ErrNotFound, txID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w: get verdict: %v", domain.ErrStoreUnavailable, err)
	}
	return &rec.Transaction, &rec.Verdict, nil
}

// ListVerdicts returns the latest records, newest first.
func (r *SQLRepository) ListVerdicts(ctx context.Context, limit int) ([]*domain.VerdictRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	query := selectVerdictColumns + `
		ORDER BY evaluated_at DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list verdicts: %v", domain.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var records []*domain.VerdictRecord
	for rows.Next() {
		rec, err := r.scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan verdict: %v", domain.ErrStoreUnavailable, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CountByPayerSince counts persisted transactions for a payer in the
// trailing window. Backs VelocityCount rules.
func (r *SQLRepository) CountByPayerSince(ctx context.Context, payerID string, since time.Time) (int64, error) {
	query := `
		SELECT COUNT(*) FROM transactions
		WHERE payer_id = ? AND timestamp >= ?
	`

	var count int64
	err := r.db.QueryRowContext(ctx, r.rebind(query), payerID, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%w: count by payer: %v", domain.ErrStoreUnavailable, err)
	}
	return count, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

const selectVerdictColumns = `
	SELECT verdict_id, transaction_id, amount, timestamp,
	       channel, payment_mode, gateway_bank,
	       payer_id, payer_email, payer_browser, payer_ip, payer_mobile, payee_id,
	       is_fraud, fraud_source, fraud_reasons, evaluated_at
	FROM transactions
`

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *SQLRepository) scanRecord(row rowScanner) (*domain.VerdictRecord, error) {
	var rec domain.VerdictRecord
	var isFraud int
	var reasons string

	err := row.Scan(
		&rec.Verdict.ID, &rec.Transaction.TransactionID, &rec.Transaction.Amount, &rec.Transaction.Timestamp,
		&rec.Transaction.Channel, &rec.Transaction.PaymentMode, &rec.Transaction.GatewayBank,
		&rec.Transaction.PayerID, &rec.Transaction.PayerEmail, &rec.Transaction.PayerBrowser,
		&rec.Transaction.PayerIP, &rec.Transaction.PayerMobile, &rec.Transaction.PayeeID,
		&isFraud, &rec.Verdict.FraudSource, &reasons, &rec.Verdict.EvaluatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Verdict.TransactionID = rec.Transaction.TransactionID
	rec.Verdict.IsFraud = isFraud == 1
	if err := json.Unmarshal([]byte(reasons), &rec.Verdict.FraudReasons); err != nil {
		rec.Verdict.FraudReasons = []string{}
	}

	return &rec, nil
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
