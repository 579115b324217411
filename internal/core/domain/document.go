package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"iter"
	"sync"

	"github.com/shopspring/decimal"
)

type ExtractionStatus string

const (
	StatusPending   ExtractionStatus = "pending"
	StatusSucceeded ExtractionStatus = "succeeded"
	StatusFailed    ExtractionStatus = "failed"
)

// Document is an ingestion input. Content lives only for the extraction
// session and is dropped by Release.
type Document struct {
	ID           string           `json:"id"`
	Filename     string           `json:"filename"`
	DeclaredKind SourceKind       `json:"declared_kind,omitempty"`
	Content      []byte           `json:"-"`
	Status       ExtractionStatus `json:"status"`
}

// NewDocument derives the id from the content, so the same file always maps
// to the same document.
func NewDocument(filename string, declared SourceKind, content []byte) *Document {
	doc := &Document{
		Filename:     filename,
		DeclaredKind: declared,
		Content:      content,
		Status:       StatusPending,
	}
	doc.ID = "doc_" + doc.Checksum()[:16]
	return doc
}

func (d *Document) Checksum() string {
	sum := sha256.Sum256(d.Content)
	return hex.EncodeToString(sum[:])
}

func (d *Document) Release() {
	d.Content = nil
}

type ParsePath string

const (
	PathTabular ParsePath = "tabular"
	PathAI      ParsePath = "ai"
)

type Container string

const (
	ContainerPDF  Container = "pdf"
	ContainerXLSX Container = "xlsx"
	ContainerXLS  Container = "xls"
)

// ParsePlan is the router's decision for one document.
type ParsePlan struct {
	Kind      SourceKind `json:"kind"`
	Path      ParsePath  `json:"path"`
	Container Container  `json:"container"`
}

// StatementInfo holds header metadata found above the transaction table.
type StatementInfo struct {
	AccountNumber  string           `json:"account_number,omitempty"`
	AccountHolder  string           `json:"account_holder,omitempty"`
	PeriodFrom     Date             `json:"period_from"`
	PeriodTo       Date             `json:"period_to"`
	OpeningBalance *decimal.Decimal `json:"opening_balance,omitempty"`
	ClosingBalance *decimal.Decimal `json:"closing_balance,omitempty"`
}

// Statement is a parsed tabular export. Rows are produced on demand, in file
// order, each time Rows is ranged over.
type Statement struct {
	Format      string
	Info        StatementInfo
	DateLayouts []string
	Currency    string

	scan iter.Seq2[RawRow, *RowError]

	errOnce sync.Once
	errs    []RowError
}

func NewStatement(format string, info StatementInfo, layouts []string, currency string, scan iter.Seq2[RawRow, *RowError]) *Statement {
	return &Statement{
		Format:      format,
		Info:        info,
		DateLayouts: layouts,
		Currency:    currency,
		scan:        scan,
	}
}

func (s *Statement) Rows() iter.Seq[RawRow] {
	return func(yield func(RawRow) bool) {
		for row, rowErr := range s.scan {
			if rowErr != nil {
				continue
			}
			if !yield(row) {
				return
			}
		}
	}
}

// Errors lists the rows skipped while reading the table.
func (s *Statement) Errors() []RowError {
	s.errOnce.Do(func() {
		for _, rowErr := range s.scan {
			if rowErr != nil {
				s.errs = append(s.errs, *rowErr)
			}
		}
	})
	return s.errs
}

// ExtractionResult is what the AI path yields for one document.
type ExtractionResult struct {
	Rows     []RawRow   `json:"rows"`
	Errors   []RowError `json:"errors,omitempty"`
	Attempts int        `json:"attempts"`
	Info     StatementInfo
}
