package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/core/domain"
)

// ledgerWriteLockKey makes Append a single writer across processes.
const ledgerWriteLockKey int64 = 2026101902

const ledgerColumns = `id, tx_date, description, amount, currency, category, category_source, source_document_id, source_kind, ordinal, fingerprint_scope, balance_after, raw_fields`

type LedgerRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewLedgerRepository(db *sql.DB) *LedgerRepository {
	return &LedgerRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (r *LedgerRepository) Load(ctx context.Context) ([]domain.Transaction, error) {
	var out []domain.Transaction
	for tx, err := range r.Query(ctx, domain.LedgerFilter{}) {
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, nil
}

// Append inserts inside one transaction holding an advisory lock. Rows whose
// id already exists are left untouched.
func (r *LedgerRepository) Append(ctx context.Context, txs []domain.Transaction) ([]string, error) {
	if len(txs) == 0 {
		return nil, nil
	}
	for _, t := range txs {
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("append transaction %s: %w", t.ID, err)
		}
	}

	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin append tx: %w", err)
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	if _, err := sqlTx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, ledgerWriteLockKey); err != nil {
		return nil, fmt.Errorf("acquire ledger lock: %w", err)
	}

	now := r.now()
	var added []string
	for _, t := range txs {
		rawFields, err := json.Marshal(nonNilFields(t.RawFields))
		if err != nil {
			return nil, fmt.Errorf("marshal raw fields: %w", err)
		}

		var id string
		err = sqlTx.QueryRowContext(ctx, `
INSERT INTO ledger_transactions (
	`+ledgerColumns+`, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
ON CONFLICT (id) DO NOTHING
RETURNING id
`,
			t.ID, t.Date.Time(), t.Description, t.Amount.String(), t.Currency, string(t.Category), string(t.CategorySource),
			t.SourceDocumentID, string(t.SourceKind), t.Ordinal, t.FingerprintScope, nullDecimal(t.BalanceAfter), rawFields, now, now,
		).Scan(&id)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			continue
		case err != nil:
			return nil, fmt.Errorf("insert transaction %s: %w", t.ID, err)
		}
		added = append(added, id)
	}

	if err := sqlTx.Commit(); err != nil {
		return nil, fmt.Errorf("commit append tx: %w", err)
	}
	return added, nil
}

// Query streams matching rows in insertion order.
func (r *LedgerRepository) Query(ctx context.Context, filter domain.LedgerFilter) iter.Seq2[domain.Transaction, error] {
	return func(yield func(domain.Transaction, error) bool) {
		query, args := buildLedgerQuery(filter)
		rows, err := r.db.QueryContext(ctx, query, args...)
		if err != nil {
			yield(domain.Transaction{}, fmt.Errorf("query ledger: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			t, err := scanTransaction(rows)
			if err != nil {
				yield(domain.Transaction{}, err)
				return
			}
			if !yield(t, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(domain.Transaction{}, fmt.Errorf("iterate ledger: %w", err))
		}
	}
}

func buildLedgerQuery(filter domain.LedgerFilter) (string, []any) {
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Category != "" {
		where = append(where, "lower(category) = lower("+arg(string(filter.Category))+")")
	}
	if filter.Uncategorized {
		where = append(where, "(category = '' OR category = "+arg(string(domain.CategoryUncategorized))+")")
	}
	if !filter.From.IsZero() {
		where = append(where, "tx_date >= "+arg(filter.From.Time()))
	}
	if !filter.To.IsZero() {
		where = append(where, "tx_date <= "+arg(filter.To.Time()))
	}
	if filter.SourceDocumentID != "" {
		where = append(where, "source_document_id = "+arg(filter.SourceDocumentID))
	}

	var b strings.Builder
	b.WriteString("SELECT " + ledgerColumns + " FROM ledger_transactions")
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY seq")
	if filter.Limit > 0 {
		b.WriteString(" LIMIT " + arg(filter.Limit))
	}
	return b.String(), args
}

func (r *LedgerRepository) Get(ctx context.Context, id string) (domain.Transaction, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+ledgerColumns+` FROM ledger_transactions WHERE id = $1`, id)
	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Transaction{}, domain.WrapError(domain.ErrNotFound, "get transaction", fmt.Errorf("id %s", id))
		}
		return domain.Transaction{}, err
	}
	return t, nil
}

// SetCategory updates in one statement that refuses to touch an override.
func (r *LedgerRepository) SetCategory(ctx context.Context, id string, category domain.Category, source domain.CategorySource) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE ledger_transactions
SET category = $2, category_source = $3, updated_at = $4
WHERE id = $1 AND category_source <> 'override'
`, id, string(category), string(source), r.now())
	if err != nil {
		return fmt.Errorf("update category: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update category rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var current string
	err = r.db.QueryRowContext(ctx, `SELECT category_source FROM ledger_transactions WHERE id = $1`, id).Scan(&current)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return domain.WrapError(domain.ErrNotFound, "set category", fmt.Errorf("id %s", id))
	case err != nil:
		return fmt.Errorf("read category source: %w", err)
	}
	return domain.WrapError(domain.ErrOverrideFinal, "set category", fmt.Errorf("id %s", id))
}

// Flush is a no-op: every Append commits on its own.
func (r *LedgerRepository) Flush(context.Context) error {
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (domain.Transaction, error) {
	var (
		t              domain.Transaction
		day            time.Time
		amount         string
		category       string
		categorySource string
		sourceKind     string
		balance        sql.NullString
		rawFields      []byte
	)
	if err := row.Scan(&t.ID, &day, &t.Description, &amount, &t.Currency, &category, &categorySource,
		&t.SourceDocumentID, &sourceKind, &t.Ordinal, &t.FingerprintScope, &balance, &rawFields); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Transaction{}, err
		}
		return domain.Transaction{}, fmt.Errorf("scan transaction: %w", err)
	}

	var err error
	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return domain.Transaction{}, fmt.Errorf("scan transaction %s amount: %w", t.ID, err)
	}
	if balance.Valid {
		b, err := decimal.NewFromString(balance.String)
		if err != nil {
			return domain.Transaction{}, fmt.Errorf("scan transaction %s balance: %w", t.ID, err)
		}
		t.BalanceAfter = &b
	}
	if len(rawFields) > 0 {
		if err := json.Unmarshal(rawFields, &t.RawFields); err != nil {
			return domain.Transaction{}, fmt.Errorf("unmarshal raw fields: %w", err)
		}
		if len(t.RawFields) == 0 {
			t.RawFields = nil
		}
	}
	t.Date = domain.DateOf(day)
	t.Category = domain.Category(category)
	t.CategorySource = domain.CategorySource(categorySource)
	t.SourceKind = domain.SourceKind(sourceKind)
	return t, nil
}

func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func nonNilFields(fields map[string]string) map[string]string {
	if fields == nil {
		return map[string]string{}
	}
	return fields
}
