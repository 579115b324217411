package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/core/domain"
	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/core/ports"
)

// ProcessJobUseCase runs a queued document through the batch pipeline on a
// worker.
type ProcessJobUseCase struct {
	intake   *IntakeUseCase
	ingestor ports.BatchIngestor
	registry ports.DocumentRegistry
}

func NewProcessJobUseCase(intake *IntakeUseCase, ingestor ports.BatchIngestor, registry ports.DocumentRegistry) *ProcessJobUseCase {
	return &ProcessJobUseCase{
		intake:   intake,
		ingestor: ingestor,
		registry: registry,
	}
}

// Process records the document outcome. It returns an error only when the
// job is worth delivering again: the document could not be loaded, or the
// provider was transiently unavailable.
func (uc *ProcessJobUseCase) Process(ctx context.Context, job domain.DocumentJob) error {
	doc, err := uc.intake.Load(ctx, job)
	if err != nil {
		if domain.IsKind(err, domain.ErrInvalidInput) || domain.IsKind(err, domain.ErrNotFound) {
			uc.recordOutcome(ctx, job, domain.DocumentReport{
				Filename:  job.Filename,
				Status:    domain.StatusFailed,
				ErrorKind: domain.KindName(err),
				Error:     err.Error(),
			})
			return nil
		}
		return domain.WrapError(domain.ErrTemporary, "load job "+job.DocumentID, err)
	}

	batch := uc.ingestor.IngestBatch(ctx, []*domain.Document{doc})
	if len(batch.Documents) != 1 {
		return fmt.Errorf("job %s: batch returned %d reports", job.DocumentID, len(batch.Documents))
	}
	report := batch.Documents[0]
	uc.recordOutcome(ctx, job, report)

	if isRetryableFailure(report) {
		slog.Warn("document_job_retry",
			"job_id", job.DocumentID,
			"document_id", report.DocumentID,
			"error_kind", report.ErrorKind,
			"attempt", job.Attempt,
		)
		return domain.WrapError(domain.ErrTemporary, "process document job", fmt.Errorf("%s", report.Error))
	}
	return nil
}

func (uc *ProcessJobUseCase) recordOutcome(ctx context.Context, job domain.DocumentJob, report domain.DocumentReport) {
	if uc.registry == nil {
		return
	}
	if err := uc.registry.RecordOutcome(context.WithoutCancel(ctx), job.DocumentID, report); err != nil {
		slog.Error("document_outcome_record_failed", "job_id", job.DocumentID, "error", err)
	}
}

func isRetryableFailure(report domain.DocumentReport) bool {
	if report.Status != domain.StatusFailed {
		return false
	}
	switch report.ErrorKind {
	case "provider_unavailable", "provider_timeout", "temporary":
		return true
	default:
		return false
	}
}
