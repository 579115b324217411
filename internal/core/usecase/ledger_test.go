package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/core/domain"
)

func TestOverrideCategory(t *testing.T) {
	tx := testTx(domain.NewDate(2024, time.June, 3), "-899", "AMAZON PAY")
	tx.Category, tx.CategorySource = domain.CategoryShopping, domain.CategorySourceRule
	store := newLedgerFake(tx)
	uc := NewLedgerUseCase(store, NewCategorizer(nil, nil, nil, 0, nil))

	updated, err := uc.OverrideCategory(context.Background(), tx.ID, "bills")
	if err != nil {
		t.Fatalf("OverrideCategory() error = %v", err)
	}
	if updated.Category != domain.CategoryBills || updated.CategorySource != domain.CategorySourceOverride {
		t.Fatalf("unexpected transaction: %+v", updated)
	}
	if store.flushes != 1 {
		t.Fatalf("expected ledger flush, got %d", store.flushes)
	}
}

func TestOverrideCategoryIsFinal(t *testing.T) {
	tx := testTx(domain.NewDate(2024, time.June, 3), "-899", "AMAZON PAY")
	store := newLedgerFake(tx)
	uc := NewLedgerUseCase(store, NewCategorizer(nil, nil, nil, 0, nil))

	if _, err := uc.OverrideCategory(context.Background(), tx.ID, "Shopping"); err != nil {
		t.Fatalf("OverrideCategory() error = %v", err)
	}
	_, err := uc.OverrideCategory(context.Background(), tx.ID, "Bills")
	if !domain.IsKind(err, domain.ErrOverrideFinal) {
		t.Fatalf("expected second override to be refused, got %v", err)
	}

	stored, err := store.Get(context.Background(), tx.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if stored.Category != domain.CategoryShopping {
		t.Fatalf("expected first override to stand, got %s", stored.Category)
	}
}

func TestOverrideCategoryRejectsUnknownCategory(t *testing.T) {
	tx := testTx(domain.NewDate(2024, time.June, 3), "-899", "AMAZON PAY")
	uc := NewLedgerUseCase(newLedgerFake(tx), NewCategorizer(nil, nil, nil, 0, nil))

	_, err := uc.OverrideCategory(context.Background(), tx.ID, "Crypto Moonshots")
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestOverrideCategoryUnknownTransaction(t *testing.T) {
	uc := NewLedgerUseCase(newLedgerFake(), NewCategorizer(nil, nil, nil, 0, nil))

	_, err := uc.OverrideCategory(context.Background(), "missing", "Bills")
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRecategorizeSkipsOverrides(t *testing.T) {
	day := domain.NewDate(2024, time.June, 3)
	fixed := testTx(day, "-60", "ZOMATO")
	fixed.Category, fixed.CategorySource = domain.CategoryBills, domain.CategorySourceOverride
	open := testTx(day, "-70", "ZOMATO ORDER 2")
	open.Category, open.CategorySource = domain.CategoryUncategorized, domain.CategorySourceFallback

	store := newLedgerFake(fixed, open)
	uc := NewLedgerUseCase(store, NewCategorizer(rulesFake{"zomato": domain.CategoryFoodDining}, nil, nil, 0, nil))

	changed, err := uc.Recategorize(context.Background(), domain.LedgerFilter{})
	if err != nil {
		t.Fatalf("Recategorize() error = %v", err)
	}
	if changed != 1 {
		t.Fatalf("expected 1 change, got %d", changed)
	}
	got, _ := store.Get(context.Background(), fixed.ID)
	if got.Category != domain.CategoryBills {
		t.Fatalf("override was replaced: %+v", got)
	}
	got, _ = store.Get(context.Background(), open.ID)
	if got.Category != domain.CategoryFoodDining || got.CategorySource != domain.CategorySourceRule {
		t.Fatalf("expected rule category, got %+v", got)
	}
}

func TestLedgerQueryAppliesFilter(t *testing.T) {
	jan := testTx(domain.NewDate(2024, time.January, 10), "-10", "A")
	feb := testTx(domain.NewDate(2024, time.February, 10), "-20", "B")
	uc := NewLedgerUseCase(newLedgerFake(jan, feb), NewCategorizer(nil, nil, nil, 0, nil))

	got, err := uc.Query(context.Background(), domain.LedgerFilter{From: domain.NewDate(2024, time.February, 1)})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != feb.ID {
		t.Fatalf("unexpected result: %+v", got)
	}
}
