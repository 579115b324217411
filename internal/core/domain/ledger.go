package domain

import (
	"strings"
	"time"
)

// LedgerFilter selects transactions. Zero fields match everything.
type LedgerFilter struct {
	Category         Category `json:"category,omitempty"`
	From             Date     `json:"from"`
	To               Date     `json:"to"`
	SourceDocumentID string   `json:"source_document_id,omitempty"`
	Uncategorized    bool     `json:"uncategorized,omitempty"`
	Limit            int      `json:"limit,omitempty"`
}

func (f LedgerFilter) Match(t Transaction) bool {
	if f.Category != "" && !strings.EqualFold(string(f.Category), string(t.Category)) {
		return false
	}
	if f.Uncategorized && t.Category != "" && t.Category != CategoryUncategorized {
		return false
	}
	if !f.From.IsZero() && t.Date.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && t.Date.After(f.To) {
		return false
	}
	if f.SourceDocumentID != "" && t.SourceDocumentID != f.SourceDocumentID {
		return false
	}
	return true
}

type IngestResult struct {
	Added            int      `json:"added"`
	SkippedDuplicate int      `json:"skipped_duplicate"`
	AddedIDs         []string `json:"-"`
}

// DocumentReport is the per-document outcome of a batch.
type DocumentReport struct {
	DocumentID       string           `json:"document_id"`
	Filename         string           `json:"filename"`
	Kind             SourceKind       `json:"kind,omitempty"`
	Status           ExtractionStatus `json:"status"`
	Added            int              `json:"added"`
	SkippedDuplicate int              `json:"skipped_duplicate"`
	RowErrors        []RowError       `json:"row_errors,omitempty"`
	Warnings         []Warning        `json:"warnings,omitempty"`
	ErrorKind        string           `json:"error_kind,omitempty"`
	Error            string           `json:"error,omitempty"`
}

type BatchReport struct {
	BatchID   string           `json:"batch_id"`
	Documents []DocumentReport `json:"documents"`
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
	Added     int              `json:"added"`
	Skipped   int              `json:"skipped_duplicate"`
	RowErrors int              `json:"row_errors"`
	Flushed   bool             `json:"flushed"`
}

func (r *BatchReport) Tally() {
	r.Succeeded, r.Failed, r.Added, r.Skipped, r.RowErrors = 0, 0, 0, 0, 0
	for _, d := range r.Documents {
		if d.Status == StatusSucceeded {
			r.Succeeded++
		} else {
			r.Failed++
		}
		r.Added += d.Added
		r.Skipped += d.SkippedDuplicate
		r.RowErrors += len(d.RowErrors)
	}
}

// DocumentJob is the queued unit of work for asynchronous ingestion.
type DocumentJob struct {
	DocumentID string     `json:"document_id"`
	Filename   string     `json:"filename"`
	StorageKey string     `json:"storage_key"`
	Kind       SourceKind `json:"kind,omitempty"`

	// Attempt counts earlier deliveries of this job.
	Attempt int `json:"attempt,omitempty"`
}

// DocumentRecord is the tracked state of a queued document.
type DocumentRecord struct {
	JobID            string           `json:"job_id"`
	DocumentID       string           `json:"document_id,omitempty"`
	Filename         string           `json:"filename"`
	StorageKey       string           `json:"storage_key"`
	Kind             SourceKind       `json:"kind,omitempty"`
	Status           ExtractionStatus `json:"status"`
	Added            int              `json:"added"`
	SkippedDuplicate int              `json:"skipped_duplicate"`
	RowErrors        int              `json:"row_errors"`
	ErrorKind        string           `json:"error_kind,omitempty"`
	Error            string           `json:"error,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}
