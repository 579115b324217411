package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/core/domain"
)

// DocumentRegistry tracks asynchronously queued documents by job id.
type DocumentRegistry struct {
	db  *sql.DB
	now func() time.Time
}

func NewDocumentRegistry(db *sql.DB) *DocumentRegistry {
	return &DocumentRegistry{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Register records a queued job. Registering the same job twice keeps the
// first record.
func (r *DocumentRegistry) Register(ctx context.Context, job domain.DocumentJob) error {
	now := r.now()
	_, err := r.db.ExecContext(ctx, `
INSERT INTO ingestion_jobs (
	job_id, filename, storage_key, kind, status, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (job_id) DO NOTHING
`,
		job.DocumentID, job.Filename, job.StorageKey, string(job.Kind), string(domain.StatusPending), now, now,
	)
	if err != nil {
		return fmt.Errorf("insert ingestion job: %w", err)
	}
	return nil
}

func (r *DocumentRegistry) RecordOutcome(ctx context.Context, jobID string, report domain.DocumentReport) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE ingestion_jobs
SET document_id = $2, kind = COALESCE(NULLIF($3, ''), kind), status = $4, added = $5, skipped_duplicate = $6, row_errors = $7,
	error_kind = $8, error_message = $9, updated_at = $10
WHERE job_id = $1
`,
		jobID, report.DocumentID, string(report.Kind), string(report.Status), report.Added, report.SkippedDuplicate,
		len(report.RowErrors), report.ErrorKind, report.Error, r.now(),
	)
	if err != nil {
		return fmt.Errorf("record ingestion outcome: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("record ingestion outcome rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrNotFound, "record ingestion outcome", fmt.Errorf("job %s", jobID))
	}
	return nil
}

func (r *DocumentRegistry) Get(ctx context.Context, jobID string) (*domain.DocumentRecord, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT job_id, document_id, filename, storage_key, kind, status, added, skipped_duplicate, row_errors,
	error_kind, error_message, created_at, updated_at
FROM ingestion_jobs
WHERE job_id = $1
`, jobID)

	var rec domain.DocumentRecord
	var kind, status string
	err := row.Scan(
		&rec.JobID, &rec.DocumentID, &rec.Filename, &rec.StorageKey, &kind, &status, &rec.Added,
		&rec.SkippedDuplicate, &rec.RowErrors, &rec.ErrorKind, &rec.Error, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get ingestion job", fmt.Errorf("job %s", jobID))
		}
		return nil, fmt.Errorf("scan ingestion job: %w", err)
	}
	rec.Kind = domain.SourceKind(kind)
	rec.Status = domain.ExtractionStatus(status)
	return &rec, nil
}
