package domain

import (
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/shopspring/decimal"
)

type SourceKind string

const (
	SourceKindPDFInvoice   SourceKind = "pdf_invoice"
	SourceKindXLSStatement SourceKind = "xls_statement"
)

func (k SourceKind) Valid() bool {
	return k == SourceKindPDFInvoice || k == SourceKindXLSStatement
}

func ParseSourceKind(s string) (SourceKind, error) {
	kind := SourceKind(strings.ToLower(strings.TrimSpace(s)))
	if !kind.Valid() {
		return "", WrapError(ErrUnsupportedFormat, "parse source kind", fmt.Errorf("unknown kind %q", s))
	}
	return kind, nil
}

// CategorySource records who assigned a transaction's category.
type CategorySource string

const (
	CategorySourceNone     CategorySource = ""
	CategorySourceRule     CategorySource = "rule"
	CategorySourceAI       CategorySource = "ai"
	CategorySourceFallback CategorySource = "fallback"
	CategorySourceOverride CategorySource = "override"
)

// Transaction is the canonical ledger entry. Only Category and CategorySource
// change after creation.
type Transaction struct {
	ID               string            `json:"id"`
	Date             Date              `json:"date"`
	Description      string            `json:"description"`
	Amount           decimal.Decimal   `json:"amount"`
	Currency         string            `json:"currency"`
	Category         Category          `json:"category,omitempty"`
	CategorySource   CategorySource    `json:"category_source,omitempty"`
	SourceDocumentID string            `json:"source_document_id"`
	SourceKind       SourceKind        `json:"source_kind"`
	Ordinal          int               `json:"ordinal"`
	FingerprintScope string            `json:"fingerprint_scope,omitempty"`
	BalanceAfter     *decimal.Decimal  `json:"balance_after,omitempty"`
	RawFields        map[string]string `json:"raw_fields,omitempty"`
}

func (t Transaction) Validate() error {
	var problems []error
	if strings.TrimSpace(t.ID) == "" {
		problems = append(problems, errors.New("id is empty"))
	}
	if t.Date.IsZero() {
		problems = append(problems, errors.New("date is empty"))
	}
	if t.Amount.IsZero() {
		problems = append(problems, errors.New("amount sign is unresolved"))
	}
	if len(t.Currency) != 3 {
		problems = append(problems, fmt.Errorf("currency %q is not an ISO code", t.Currency))
	}
	if !t.SourceKind.Valid() {
		problems = append(problems, fmt.Errorf("source kind %q is invalid", t.SourceKind))
	}
	if strings.TrimSpace(t.SourceDocumentID) == "" {
		problems = append(problems, errors.New("source document id is empty"))
	}
	if t.Ordinal < 0 {
		problems = append(problems, errors.New("ordinal is negative"))
	}
	if len(problems) > 0 {
		return WrapError(ErrInvalidInput, "validate transaction", errors.Join(problems...))
	}
	return nil
}

func (t Transaction) IsExpense() bool {
	return t.Amount.IsNegative()
}

func (t Transaction) IsOverridden() bool {
	return t.CategorySource == CategorySourceOverride
}

// IsCategorized reports whether automated categorization has nothing left to do.
func (t Transaction) IsCategorized() bool {
	return t.Category != "" && t.CategorySource != CategorySourceNone
}

// FreezeFields returns a private copy of raw extracted fields.
func FreezeFields(fields map[string]string) map[string]string {
	if len(fields) == 0 {
		return nil
	}
	return maps.Clone(fields)
}
