package usecase

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/core/domain"
	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/core/ports"
)

const maxDocumentBytes = 50 << 20

// IntakeUseCase stores uploaded documents and queues them for a worker.
type IntakeUseCase struct {
	storage  ports.ObjectStorage
	queue    ports.DocumentQueue
	registry ports.DocumentRegistry
}

// NewIntakeUseCase wires intake. registry may be nil.
func NewIntakeUseCase(storage ports.ObjectStorage, queue ports.DocumentQueue, registry ports.DocumentRegistry) *IntakeUseCase {
	return &IntakeUseCase{
		storage:  storage,
		queue:    queue,
		registry: registry,
	}
}

func (uc *IntakeUseCase) Enqueue(
	ctx context.Context,
	filename string,
	kind domain.SourceKind,
	body io.Reader,
) (domain.DocumentJob, error) {
	if uc.queue == nil {
		return domain.DocumentJob{}, domain.WrapError(domain.ErrTemporary, "enqueue document", fmt.Errorf("document queue is not configured"))
	}
	id := uuid.NewString()
	job := domain.DocumentJob{
		DocumentID: id,
		Filename:   filename,
		StorageKey: fmt.Sprintf("%s_%s", id, sanitizeFilename(filename)),
		Kind:       kind,
	}

	if err := uc.storage.Save(ctx, job.StorageKey, body); err != nil {
		return domain.DocumentJob{}, fmt.Errorf("save to object storage: %w", err)
	}
	if uc.registry != nil {
		if err := uc.registry.Register(ctx, job); err != nil {
			return domain.DocumentJob{}, fmt.Errorf("register document job: %w", err)
		}
	}
	if err := uc.queue.PublishDocumentQueued(ctx, job); err != nil {
		return domain.DocumentJob{}, fmt.Errorf("publish document job: %w", err)
	}
	return job, nil
}

// Status returns the tracked state of a queued document.
func (uc *IntakeUseCase) Status(ctx context.Context, jobID string) (*domain.DocumentRecord, error) {
	if uc.registry == nil {
		return nil, domain.WrapError(domain.ErrNotFound, "document status", fmt.Errorf("document tracking is disabled"))
	}
	return uc.registry.Get(ctx, jobID)
}

// Load reads a queued document back from storage.
func (uc *IntakeUseCase) Load(ctx context.Context, job domain.DocumentJob) (*domain.Document, error) {
	reader, err := uc.storage.Open(ctx, job.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("open queued document: %w", err)
	}
	defer reader.Close()

	content, err := ReadDocument(reader)
	if err != nil {
		return nil, err
	}
	return domain.NewDocument(job.Filename, job.Kind, content), nil
}

// ReadDocument reads a whole document, refusing oversized input.
func ReadDocument(r io.Reader) ([]byte, error) {
	content, err := io.ReadAll(io.LimitReader(r, maxDocumentBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	if len(content) > maxDocumentBytes {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read document", fmt.Errorf("document exceeds %d bytes", maxDocumentBytes))
	}
	if len(content) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read document", fmt.Errorf("document is empty"))
	}
	return content, nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "document.bin"
	}
	return base
}
