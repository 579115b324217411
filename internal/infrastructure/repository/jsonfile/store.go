package jsonfile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/core/domain"
)

const fileVersion = 1

type ledgerFile struct {
	Version      int                  `json:"version"`
	Transactions []domain.Transaction `json:"transactions"`
}

// Store keeps the ledger in memory in insertion order and rewrites the
// whole file on Flush. One process owns a ledger file at a time.
type Store struct {
	path string

	mu    sync.RWMutex
	txs   []domain.Transaction
	index map[string]int
	dirty bool
}

// Open loads path if it exists; a missing file is an empty ledger.
func Open(path string) (*Store, error) {
	if path == "" {
		path = "./data/ledger.json"
	}
	s := &Store{path: path, index: make(map[string]int)}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("read ledger file: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return s, nil
	}

	var file ledgerFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode ledger file %s: %w", path, err)
	}
	if file.Version > fileVersion {
		return nil, fmt.Errorf("ledger file %s has version %d, newest supported is %d", path, file.Version, fileVersion)
	}
	for _, tx := range file.Transactions {
		if _, ok := s.index[tx.ID]; ok {
			slog.Warn("ledger_duplicate_id_dropped", "path", path, "transaction_id", tx.ID)
			continue
		}
		s.index[tx.ID] = len(s.txs)
		s.txs = append(s.txs, tx)
	}
	return s, nil
}

func (s *Store) Load(ctx context.Context) ([]domain.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Transaction(nil), s.txs...), nil
}

func (s *Store) Append(ctx context.Context, txs []domain.Transaction) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, tx := range txs {
		if err := tx.Validate(); err != nil {
			return nil, fmt.Errorf("append transaction %s: %w", tx.ID, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var added []string
	for _, tx := range txs {
		if _, ok := s.index[tx.ID]; ok {
			continue
		}
		tx.RawFields = domain.FreezeFields(tx.RawFields)
		s.index[tx.ID] = len(s.txs)
		s.txs = append(s.txs, tx)
		added = append(added, tx.ID)
	}
	if len(added) > 0 {
		s.dirty = true
	}
	return added, nil
}

// Query ranges over a snapshot taken when iteration starts.
func (s *Store) Query(ctx context.Context, filter domain.LedgerFilter) iter.Seq2[domain.Transaction, error] {
	return func(yield func(domain.Transaction, error) bool) {
		if err := ctx.Err(); err != nil {
			yield(domain.Transaction{}, err)
			return
		}
		s.mu.RLock()
		snapshot := append([]domain.Transaction(nil), s.txs...)
		s.mu.RUnlock()

		n := 0
		for _, tx := range snapshot {
			if !filter.Match(tx) {
				continue
			}
			if filter.Limit > 0 && n >= filter.Limit {
				return
			}
			n++
			if !yield(tx, nil) {
				return
			}
		}
	}
}

func (s *Store) Get(_ context.Context, id string) (domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return domain.Transaction{}, domain.WrapError(domain.ErrNotFound, "get transaction", fmt.Errorf("id %s", id))
	}
	return s.txs[i], nil
}

func (s *Store) SetCategory(_ context.Context, id string, category domain.Category, source domain.CategorySource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[id]
	if !ok {
		return domain.WrapError(domain.ErrNotFound, "set category", fmt.Errorf("id %s", id))
	}
	if s.txs[i].IsOverridden() {
		return domain.WrapError(domain.ErrOverrideFinal, "set category", fmt.Errorf("id %s", id))
	}
	if s.txs[i].Category == category && s.txs[i].CategorySource == source {
		return nil
	}
	s.txs[i].Category = category
	s.txs[i].CategorySource = source
	s.dirty = true
	return nil
}

// Flush writes the ledger to a temporary file next to the target and renames
// it over the target, so readers never observe a partial file.
func (s *Store) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}

	payload, err := json.MarshalIndent(ledgerFile{Version: fileVersion, Transactions: s.txs}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	if err := writeAtomic(s.path, payload); err != nil {
		return err
	}
	s.dirty = false
	slog.Debug("ledger_flushed", "path", s.path, "transactions", len(s.txs))
	return nil
}

func writeAtomic(path string, payload []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create ledger dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp ledger file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp ledger file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp ledger file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp ledger file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("replace ledger file: %w", err)
	}
	return nil
}
