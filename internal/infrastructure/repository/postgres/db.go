package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// schemaLockKey serializes bootstrap DDL across api and worker startups.
const schemaLockKey int64 = 2026101901

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS ledger_transactions (
	seq BIGSERIAL NOT NULL,
	id TEXT PRIMARY KEY,
	tx_date DATE NOT NULL,
	description TEXT NOT NULL,
	amount NUMERIC(20,4) NOT NULL,
	currency CHAR(3) NOT NULL,
	category TEXT NOT NULL DEFAULT '',
	category_source TEXT NOT NULL DEFAULT '',
	source_document_id TEXT NOT NULL,
	source_kind TEXT NOT NULL,
	ordinal INTEGER NOT NULL DEFAULT 0,
	fingerprint_scope TEXT NOT NULL DEFAULT '',
	balance_after NUMERIC(20,4),
	raw_fields JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

ALTER TABLE ledger_transactions ADD COLUMN IF NOT EXISTS fingerprint_scope TEXT NOT NULL DEFAULT '';

CREATE UNIQUE INDEX IF NOT EXISTS idx_ledger_transactions_seq ON ledger_transactions(seq);
CREATE INDEX IF NOT EXISTS idx_ledger_transactions_date ON ledger_transactions(tx_date);
CREATE INDEX IF NOT EXISTS idx_ledger_transactions_category ON ledger_transactions(lower(category));
CREATE INDEX IF NOT EXISTS idx_ledger_transactions_document ON ledger_transactions(source_document_id);

CREATE TABLE IF NOT EXISTS ingestion_jobs (
	job_id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL DEFAULT '',
	filename TEXT NOT NULL,
	storage_key TEXT NOT NULL,
	kind TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	added INTEGER NOT NULL DEFAULT 0,
	skipped_duplicate INTEGER NOT NULL DEFAULT 0,
	row_errors INTEGER NOT NULL DEFAULT 0,
	error_kind TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ingestion_jobs_status ON ingestion_jobs(status);
CREATE INDEX IF NOT EXISTS idx_ingestion_jobs_created_at ON ingestion_jobs(created_at DESC);
`

// EnsureSchema creates the ledger and job tables if they are missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockKey); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}
