package ports

import (
	"context"
	"io"
	"iter"
	"time"

	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/core/domain"
)

// AIContent is the document payload handed to a provider. Providers that
// cannot read binary documents fall back to Text.
type AIContent struct {
	MIMEType string
	Data     []byte
	Text     string
}

// AIProvider is the single capability every generative backend implements:
// submit a prompt with content and get free-form text back.
type AIProvider interface {
	Name() string
	Submit(ctx context.Context, prompt string, content AIContent) (string, error)
}

// StatementParser reads a tabular bank export into rows without AI.
type StatementParser interface {
	ParseStatement(ctx context.Context, doc *domain.Document, plan domain.ParsePlan) (*domain.Statement, error)
}

// TextExtractor pulls plain text out of a binary document.
type TextExtractor interface {
	ExtractText(ctx context.Context, content []byte) (string, error)
}

// CategoryRules is the deterministic first tier of categorization.
type CategoryRules interface {
	Match(description string) (domain.Category, bool)
	Categories() []domain.Category
}

// LedgerStore persists transactions keyed by id. Append ignores ids that are
// already present and reports the ids it actually added.
type LedgerStore interface {
	Load(ctx context.Context) ([]domain.Transaction, error)
	Append(ctx context.Context, txs []domain.Transaction) ([]string, error)
	Query(ctx context.Context, filter domain.LedgerFilter) iter.Seq2[domain.Transaction, error]
	Get(ctx context.Context, id string) (domain.Transaction, error)
	SetCategory(ctx context.Context, id string, category domain.Category, source domain.CategorySource) error
	Flush(ctx context.Context) error
}

// ObjectStorage stores uploaded documents and generated artifacts.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// DocumentQueue hands documents to asynchronous workers.
type DocumentQueue interface {
	PublishDocumentQueued(ctx context.Context, job domain.DocumentJob) error
	SubscribeDocumentQueued(ctx context.Context, handler func(context.Context, domain.DocumentJob) error) error
}

// BatchNotifier announces flushed batches to downstream consumers.
type BatchNotifier interface {
	PublishBatchFlushed(ctx context.Context, report domain.BatchReport) error
}

// PipelineObserver receives pipeline measurements.
type PipelineObserver interface {
	ObserveDocument(kind domain.SourceKind, status domain.ExtractionStatus, duration time.Duration)
	ObserveRows(outcome string, n int)
	ObserveExtractionAttempt(provider, result string)
	ObserveCategorization(source domain.CategorySource)
}

// DocumentRegistry tracks queued documents through to their outcome.
type DocumentRegistry interface {
	Register(ctx context.Context, job domain.DocumentJob) error
	RecordOutcome(ctx context.Context, jobID string, report domain.DocumentReport) error
	Get(ctx context.Context, jobID string) (*domain.DocumentRecord, error)
}
