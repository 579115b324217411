package usecase

import (
	"context"
	"fmt"
	"sync"

	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/core/domain"
	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/core/ports"
)

func fingerprintDescription(description string) string {
	return domain.DescriptionKey(description)
}

// AssignIdentities numbers identical-looking rows of one document in order
// and recomputes their ids, so genuine repeats stay distinct.
func AssignIdentities(txs []domain.Transaction, scope string) {
	seen := make(map[string]int, len(txs))
	for i := range txs {
		key := txs[i].Date.String() + "|" + txs[i].Amount.String() + "|" + fingerprintDescription(txs[i].Description)
		ordinal := seen[key]
		seen[key] = ordinal + 1

		txs[i].Ordinal = ordinal
		txs[i].FingerprintScope = scope
		txs[i].ID = txs[i].Fingerprint()
	}
}

// Deduplicator is the only path through which transactions enter the ledger.
type Deduplicator struct {
	store ports.LedgerStore

	// mu serializes appends within the process; stores guard across processes.
	mu sync.Mutex
}

func NewDeduplicator(store ports.LedgerStore) *Deduplicator {
	return &Deduplicator{store: store}
}

// Ingest appends transactions whose id is not yet in the ledger. Re-ingesting
// the same set adds nothing and reports every entry as a duplicate.
func (d *Deduplicator) Ingest(ctx context.Context, txs []domain.Transaction) (domain.IngestResult, error) {
	if len(txs) == 0 {
		return domain.IngestResult{}, nil
	}

	unique := make([]domain.Transaction, 0, len(txs))
	seen := make(map[string]struct{}, len(txs))
	for _, tx := range txs {
		if err := tx.Validate(); err != nil {
			return domain.IngestResult{}, fmt.Errorf("ingest transaction %q: %w", tx.ID, err)
		}
		if _, dup := seen[tx.ID]; dup {
			continue
		}
		seen[tx.ID] = struct{}{}
		unique = append(unique, tx)
	}

	d.mu.Lock()
	added, err := d.store.Append(ctx, unique)
	d.mu.Unlock()
	if err != nil {
		return domain.IngestResult{}, fmt.Errorf("append to ledger: %w", err)
	}

	return domain.IngestResult{
		Added:            len(added),
		SkippedDuplicate: len(txs) - len(added),
		AddedIDs:         added,
	}, nil
}
