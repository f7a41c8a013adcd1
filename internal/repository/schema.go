package repository

// Schema definitions for the Sentinel database.
// Compatible with both SQLite and PostgreSQL.

// fraud_rules keeps one row per rule. Field presence is conditional on
// rule_type; the domain layer enforces it at construction, the schema only
// provides nullability. Rows are never deleted, only deactivated.
const schemaFraudRules = `
CREATE TABLE IF NOT EXISTS fraud_rules (
    id TEXT PRIMARY KEY,
    rule_type TEXT NOT NULL,
    threshold REAL,
    blocked_ip TEXT,
    blocked_payer_browser TEXT,
    blocked_payment_gateway TEXT,
    blocked_email TEXT,
    expression TEXT,
    is_active INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_fraud_rules_active ON fraud_rules(is_active, created_at);
`

// transactions is the append-only verdict log. It keys on the generated
// verdict_id, so duplicate transaction_ids are distinct evaluation records.
const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    verdict_id TEXT PRIMARY KEY,
    transaction_id TEXT NOT NULL,
    amount REAL NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    channel TEXT,
    payment_mode TEXT,
    gateway_bank TEXT,
    payer_id TEXT,
    payer_email TEXT,
    payer_browser TEXT,
    payer_ip TEXT,
    payer_mobile TEXT,
    payee_id TEXT,
    is_fraud INTEGER NOT NULL,
    fraud_source TEXT NOT NULL,
    fraud_reasons TEXT NOT NULL,
    evaluated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_tx_id ON transactions(transaction_id);
CREATE INDEX IF NOT EXISTS idx_transactions_payer ON transactions(payer_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_transactions_fraud ON transactions(is_fraud, evaluated_at);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaFraudRules,
		schemaTransactions,
	}
}
