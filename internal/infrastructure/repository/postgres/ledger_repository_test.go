package postgres

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"

	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/core/domain"
)

func newLedgerWithMock(t *testing.T) (*LedgerRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	repo := NewLedgerRepository(db)
	repo.now = func() time.Time { return time.Date(2024, time.May, 1, 9, 0, 0, 0, time.UTC) }
	return repo, mock, func() { _ = db.Close() }
}

func pgTx(id string) domain.Transaction {
	balance := decimal.RequireFromString("9550")
	return domain.Transaction{
		ID:               id,
		Date:             domain.NewDate(2024, time.April, 1),
		Description:      "UPI-ZOMATO-ORDER",
		Amount:           decimal.RequireFromString("-450"),
		Currency:         "INR",
		Category:         domain.CategoryFoodDining,
		CategorySource:   domain.CategorySourceRule,
		SourceDocumentID: "doc_1",
		SourceKind:       domain.SourceKindXLSStatement,
		BalanceAfter:     &balance,
	}
}

func ledgerRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "tx_date", "description", "amount", "currency", "category", "category_source",
		"source_document_id", "source_kind", "ordinal", "fingerprint_scope", "balance_after", "raw_fields",
	})
}

func TestAppendInsertsUnderAdvisoryLock(t *testing.T) {
	repo, mock, done := newLedgerWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").
		WithArgs(ledgerWriteLockKey).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("INSERT INTO ledger_transactions").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("a"))
	mock.ExpectQuery("INSERT INTO ledger_transactions").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectCommit()

	added, err := repo.Append(context.Background(), []domain.Transaction{pgTx("a"), pgTx("b")})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if len(added) != 1 || added[0] != "a" {
		t.Fatalf("expected only a to be added, got %v", added)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAppendRollsBackOnInsertError(t *testing.T) {
	repo, mock, done := newLedgerWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("INSERT INTO ledger_transactions").WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	if _, err := repo.Append(context.Background(), []domain.Transaction{pgTx("a")}); err == nil {
		t.Fatalf("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAppendValidatesBeforeTouchingDatabase(t *testing.T) {
	repo, mock, done := newLedgerWithMock(t)
	defer done()

	bad := pgTx("a")
	bad.Currency = ""
	if _, err := repo.Append(context.Background(), []domain.Transaction{bad}); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestBuildLedgerQuery(t *testing.T) {
	query, args := buildLedgerQuery(domain.LedgerFilter{
		Category:         domain.CategoryFoodDining,
		From:             domain.NewDate(2024, time.April, 1),
		SourceDocumentID: "doc_1",
		Limit:            5,
	})
	want := "WHERE lower(category) = lower($1) AND tx_date >= $2 AND source_document_id = $3 ORDER BY seq LIMIT $4"
	if !strings.HasSuffix(query, want) {
		t.Fatalf("unexpected query: %s", query)
	}
	if len(args) != 4 || args[3] != 5 {
		t.Fatalf("unexpected args: %v", args)
	}

	query, args = buildLedgerQuery(domain.LedgerFilter{})
	if strings.Contains(query, "WHERE") || len(args) != 0 {
		t.Fatalf("expected unfiltered query, got %s %v", query, args)
	}
}

func TestQueryScansTransactions(t *testing.T) {
	repo, mock, done := newLedgerWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, tx_date").
		WithArgs("Food & Dining").
		WillReturnRows(ledgerRows().
			AddRow("a", time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC), "UPI-ZOMATO-ORDER", "-450.0000", "INR",
				"Food & Dining", "rule", "doc_1", "xls_statement", int64(0), "acct:5010001", "9550.0000", []byte(`{"Narration":"UPI-ZOMATO-ORDER"}`)).
			AddRow("b", time.Date(2024, time.April, 3, 0, 0, 0, 0, time.UTC), "SWIGGY", "-120.5000", "INR",
				"Food & Dining", "ai", "doc_1", "xls_statement", int64(1), "acct:5010001", nil, []byte(`{}`)))

	var txs []domain.Transaction
	for tx, err := range repo.Query(context.Background(), domain.LedgerFilter{Category: domain.CategoryFoodDining}) {
		if err != nil {
			t.Fatalf("Query() error = %v", err)
		}
		txs = append(txs, tx)
	}
	if len(txs) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(txs))
	}
	first := txs[0]
	if !first.Amount.Equal(decimal.NewFromInt(-450)) || first.Date != domain.NewDate(2024, time.April, 1) {
		t.Fatalf("unexpected first transaction: %+v", first)
	}
	if first.BalanceAfter == nil || !first.BalanceAfter.Equal(decimal.NewFromInt(9550)) {
		t.Fatalf("unexpected balance: %v", first.BalanceAfter)
	}
	if first.RawFields["Narration"] != "UPI-ZOMATO-ORDER" || txs[1].RawFields != nil {
		t.Fatalf("unexpected raw fields: %+v / %+v", first.RawFields, txs[1].RawFields)
	}
	if first.FingerprintScope != "acct:5010001" {
		t.Fatalf("expected fingerprint scope to be scanned, got %q", first.FingerprintScope)
	}
	if txs[1].CategorySource != domain.CategorySourceAI || txs[1].Ordinal != 1 || txs[1].BalanceAfter != nil {
		t.Fatalf("unexpected second transaction: %+v", txs[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newLedgerWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, tx_date").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSetCategoryRefusesToReplaceOverride(t *testing.T) {
	repo, mock, done := newLedgerWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE ledger_transactions").
		WithArgs("a", "Shopping", "ai", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT category_source FROM ledger_transactions").
		WithArgs("a").
		WillReturnRows(sqlmock.NewRows([]string{"category_source"}).AddRow("override"))

	err := repo.SetCategory(context.Background(), "a", domain.CategoryShopping, domain.CategorySourceAI)
	if !domain.IsKind(err, domain.ErrOverrideFinal) {
		t.Fatalf("expected ErrOverrideFinal, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSetCategoryRefusesSecondOverride(t *testing.T) {
	repo, mock, done := newLedgerWithMock(t)
	defer done()

	mock.ExpectExec(`UPDATE ledger_transactions .* WHERE id = \$1 AND category_source <> 'override'$`).
		WithArgs("a", "Bills", "override", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT category_source FROM ledger_transactions").
		WithArgs("a").
		WillReturnRows(sqlmock.NewRows([]string{"category_source"}).AddRow("override"))

	err := repo.SetCategory(context.Background(), "a", domain.CategoryBills, domain.CategorySourceOverride)
	if !domain.IsKind(err, domain.ErrOverrideFinal) {
		t.Fatalf("expected ErrOverrideFinal, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSetCategoryUnknownTransaction(t *testing.T) {
	repo, mock, done := newLedgerWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE ledger_transactions").
		WithArgs("missing", "Shopping", "override", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT category_source FROM ledger_transactions").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	err := repo.SetCategory(context.Background(), "missing", domain.CategoryShopping, domain.CategorySourceOverride)
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSetCategoryUpdatesRow(t *testing.T) {
	repo, mock, done := newLedgerWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE ledger_transactions").
		WithArgs("a", "Bills", "override", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.SetCategory(context.Background(), "a", domain.CategoryBills, domain.CategorySourceOverride); err != nil {
		t.Fatalf("SetCategory() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
