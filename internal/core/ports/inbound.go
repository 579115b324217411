package ports

import (
	"context"

	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/core/domain"
)

// BatchIngestor runs one ingestion batch over the supplied documents.
type BatchIngestor interface {
	IngestBatch(ctx context.Context, docs []*domain.Document) domain.BatchReport
}

// LedgerReader is the read contract for analytics and chat consumers.
type LedgerReader interface {
	Query(ctx context.Context, filter domain.LedgerFilter) ([]domain.Transaction, error)
}

// CategoryOverrider applies a final human category correction.
type CategoryOverrider interface {
	OverrideCategory(ctx context.Context, id, category string) (domain.Transaction, error)
}

// ReportBuilder derives the aggregated report artifact from the ledger.
type ReportBuilder interface {
	Build(ctx context.Context, filter domain.LedgerFilter) (*domain.Report, error)
}
