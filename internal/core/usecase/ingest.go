package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/core/domain"
	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/core/ports"
)

const (
	defaultBatchConcurrency = 4
	flushTimeout            = 30 * time.Second
)

// BatchIngestUseCase runs documents through route, parse or extract,
// normalize, categorize and ledger ingestion. Documents are processed in
// parallel; only the ledger append is serialized.
type BatchIngestUseCase struct {
	parser      ports.StatementParser
	extractor   *Extractor
	normalizer  *Normalizer
	categorizer *Categorizer
	dedup       *Deduplicator
	store       ports.LedgerStore
	notifier    ports.BatchNotifier
	observer    ports.PipelineObserver
	concurrency int
}

type BatchIngestDeps struct {
	Parser      ports.StatementParser
	Extractor   *Extractor
	Normalizer  *Normalizer
	Categorizer *Categorizer
	Store       ports.LedgerStore
	Notifier    ports.BatchNotifier
	Observer    ports.PipelineObserver
	Concurrency int
}

func NewBatchIngestUseCase(deps BatchIngestDeps) *BatchIngestUseCase {
	concurrency := deps.Concurrency
	if concurrency <= 0 {
		concurrency = defaultBatchConcurrency
	}
	return &BatchIngestUseCase{
		parser:      deps.Parser,
		extractor:   deps.Extractor,
		normalizer:  deps.Normalizer,
		categorizer: deps.Categorizer,
		dedup:       NewDeduplicator(deps.Store),
		store:       deps.Store,
		notifier:    deps.Notifier,
		observer:    observerOrNop(deps.Observer),
		concurrency: concurrency,
	}
}

// IngestBatch never aborts on a single document. When ctx is cancelled the
// documents already appended stay in the ledger and the rest are reported
// as failed.
func (uc *BatchIngestUseCase) IngestBatch(ctx context.Context, docs []*domain.Document) domain.BatchReport {
	report := domain.BatchReport{
		BatchID:   uuid.NewString(),
		Documents: make([]domain.DocumentReport, len(docs)),
	}

	var g errgroup.Group
	g.SetLimit(uc.concurrency)
	for i, doc := range docs {
		g.Go(func() error {
			report.Documents[i] = uc.processDocument(ctx, doc)
			return nil
		})
	}
	_ = g.Wait()

	report.Tally()
	if report.Added > 0 {
		report.Flushed = uc.flush(ctx, report.BatchID)
	}
	if report.Flushed && uc.notifier != nil {
		if err := uc.notifier.PublishBatchFlushed(context.WithoutCancel(ctx), report); err != nil {
			slog.Warn("batch_notify_failed", "batch_id", report.BatchID, "error", err)
		}
	}

	slog.Info("batch_ingested",
		"batch_id", report.BatchID,
		"documents", len(docs),
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"added", report.Added,
		"skipped_duplicate", report.Skipped,
		"row_errors", report.RowErrors,
	)
	return report
}

func (uc *BatchIngestUseCase) flush(ctx context.Context, batchID string) bool {
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
	defer cancel()
	if err := uc.store.Flush(flushCtx); err != nil {
		slog.Error("ledger_flush_failed", "batch_id", batchID, "error", err)
		return false
	}
	return true
}

func (uc *BatchIngestUseCase) processDocument(ctx context.Context, doc *domain.Document) domain.DocumentReport {
	start := time.Now()
	rep := domain.DocumentReport{DocumentID: doc.ID, Filename: doc.Filename}
	defer doc.Release()

	err := uc.runPipeline(ctx, doc, &rep)
	if err != nil {
		rep.Status = domain.StatusFailed
		rep.ErrorKind = domain.KindName(err)
		rep.Error = err.Error()
		slog.Warn("document_failed",
			"document_id", doc.ID,
			"filename", doc.Filename,
			"error_kind", rep.ErrorKind,
			"error", err,
		)
	} else {
		rep.Status = domain.StatusSucceeded
		slog.Info("document_ingested",
			"document_id", doc.ID,
			"filename", doc.Filename,
			"kind", rep.Kind,
			"added", rep.Added,
			"skipped_duplicate", rep.SkippedDuplicate,
			"row_errors", len(rep.RowErrors),
			"warnings", len(rep.Warnings),
		)
	}
	doc.Status = rep.Status

	uc.observer.ObserveDocument(rep.Kind, rep.Status, time.Since(start))
	uc.observer.ObserveRows("error", len(rep.RowErrors))
	uc.observer.ObserveRows("added", rep.Added)
	uc.observer.ObserveRows("duplicate", rep.SkippedDuplicate)
	return rep
}

func (uc *BatchIngestUseCase) runPipeline(ctx context.Context, doc *domain.Document, rep *domain.DocumentReport) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("document not started: %w", err)
	}

	plan, err := RouteDocument(doc)
	if err != nil {
		return err
	}
	rep.Kind = plan.Kind

	var normalized NormalizeResult
	switch plan.Path {
	case domain.PathTabular:
		normalized, err = uc.readStatement(ctx, doc, plan, rep)
	default:
		normalized, err = uc.readWithAI(ctx, doc, plan, rep)
	}
	if err != nil {
		return err
	}
	rep.RowErrors = append(rep.RowErrors, normalized.Errors...)
	rep.Warnings = normalized.Warnings

	if len(normalized.Transactions) == 0 && len(rep.RowErrors) > 0 {
		return domain.WrapError(domain.ErrMalformedStatement, "normalize document",
			fmt.Errorf("all %d rows were rejected", len(rep.RowErrors)))
	}

	uc.categorizer.Apply(ctx, normalized.Transactions)

	// The ledger is touched only after every slow step for this document
	// has finished.
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("document cancelled before ledger append: %w", err)
	}
	result, err := uc.dedup.Ingest(ctx, normalized.Transactions)
	if err != nil {
		return err
	}
	rep.Added = result.Added
	rep.SkippedDuplicate = result.SkippedDuplicate
	return nil
}

func (uc *BatchIngestUseCase) readStatement(ctx context.Context, doc *domain.Document, plan domain.ParsePlan, rep *domain.DocumentReport) (NormalizeResult, error) {
	statement, err := uc.parser.ParseStatement(ctx, doc, plan)
	if err != nil {
		return NormalizeResult{}, err
	}
	rep.RowErrors = append(rep.RowErrors, statement.Errors()...)

	src := SourceContext{
		DocumentID:     doc.ID,
		Scope:          documentScope(doc, statement.Info, nil),
		Kind:           plan.Kind,
		Currency:       statement.Currency,
		DateLayouts:    statement.DateLayouts,
		Ordered:        true,
		OpeningBalance: statement.Info.OpeningBalance,
	}
	return uc.normalizer.NormalizeAll(statement.Rows(), src), nil
}

func (uc *BatchIngestUseCase) readWithAI(ctx context.Context, doc *domain.Document, plan domain.ParsePlan, rep *domain.DocumentReport) (NormalizeResult, error) {
	if uc.extractor == nil {
		return NormalizeResult{}, domain.WrapError(domain.ErrProviderUnavailable, "extract "+doc.Filename,
			errors.New("no AI provider is configured"))
	}
	extracted, err := uc.extractor.Extract(ctx, doc)
	if err != nil {
		return NormalizeResult{}, err
	}
	rep.RowErrors = append(rep.RowErrors, extracted.Errors...)

	src := SourceContext{
		DocumentID: doc.ID,
		Scope:      documentScope(doc, extracted.Info, extracted.Rows),
		Kind:       plan.Kind,
		Ordered:    slices.ContainsFunc(extracted.Rows, func(r domain.RawRow) bool { return r.Balance != "" }),
	}
	return uc.normalizer.NormalizeAll(slices.Values(extracted.Rows), src), nil
}

// documentScope picks the identity a document's fingerprints are scoped to.
// Statements of one account share a scope, so overlapping exports collide;
// an invoice is scoped to vendor and number; anything else to the file.
func documentScope(doc *domain.Document, info domain.StatementInfo, rows []domain.RawRow) string {
	if account := normalizeAccount(info.AccountNumber); account != "" {
		return "acct:" + account
	}
	if len(rows) == 1 {
		number := strings.TrimSpace(rows[0].Fields["invoice_number"])
		if number != "" {
			vendor := fingerprintDescription(rows[0].Fields["vendor"])
			return "inv:" + vendor + ":" + strings.ToUpper(number)
		}
	}
	return doc.ID
}

func normalizeAccount(account string) string {
	var b strings.Builder
	for _, r := range account {
		if (r >= '0' && r <= '9') || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') {
			b.WriteRune(r)
		}
	}
	return strings.ToUpper(b.String())
}
