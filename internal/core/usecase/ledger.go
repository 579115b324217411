package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/core/domain"
	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/core/ports"
)

// LedgerUseCase serves ledger reads and the category update path.
type LedgerUseCase struct {
	store       ports.LedgerStore
	categorizer *Categorizer
}

func NewLedgerUseCase(store ports.LedgerStore, categorizer *Categorizer) *LedgerUseCase {
	return &LedgerUseCase{store: store, categorizer: categorizer}
}

func (uc *LedgerUseCase) Query(ctx context.Context, filter domain.LedgerFilter) ([]domain.Transaction, error) {
	var out []domain.Transaction
	for tx, err := range uc.store.Query(ctx, filter) {
		if err != nil {
			return nil, fmt.Errorf("query ledger: %w", err)
		}
		out = append(out, tx)
	}
	return out, nil
}

// OverrideCategory records a human correction. It is final: neither a second
// override nor automated categorization replaces it.
func (uc *LedgerUseCase) OverrideCategory(ctx context.Context, id, category string) (domain.Transaction, error) {
	resolved, ok := uc.categorizer.Taxonomy().Lookup(category)
	if !ok {
		return domain.Transaction{}, domain.WrapError(domain.ErrInvalidInput, "override category", fmt.Errorf("unknown category %q", category))
	}
	if err := uc.store.SetCategory(ctx, id, resolved, domain.CategorySourceOverride); err != nil {
		return domain.Transaction{}, fmt.Errorf("override category: %w", err)
	}
	if err := uc.store.Flush(ctx); err != nil {
		return domain.Transaction{}, fmt.Errorf("flush ledger: %w", err)
	}
	slog.Info("category_overridden", "transaction_id", id, "category", resolved)
	return uc.store.Get(ctx, id)
}

// Recategorize re-runs categorization over matching transactions, skipping
// overrides, and returns how many changed.
func (uc *LedgerUseCase) Recategorize(ctx context.Context, filter domain.LedgerFilter) (int, error) {
	candidates, err := uc.Query(ctx, filter)
	if err != nil {
		return 0, err
	}

	changed := 0
	for _, tx := range candidates {
		if tx.IsOverridden() {
			continue
		}
		category, source := uc.categorizer.Categorize(ctx, tx)
		if category == tx.Category && source == tx.CategorySource {
			continue
		}
		if err := uc.store.SetCategory(ctx, tx.ID, category, source); err != nil {
			if domain.IsKind(err, domain.ErrOverrideFinal) {
				continue
			}
			return changed, fmt.Errorf("recategorize %s: %w", tx.ID, err)
		}
		changed++
	}
	if changed > 0 {
		if err := uc.store.Flush(ctx); err != nil {
			return changed, fmt.Errorf("flush ledger: %w", err)
		}
	}
	return changed, nil
}
