package domain

import "fmt"

// RawRow is a candidate transaction as read from a document, before any
// sign, date or currency normalization.
type RawRow struct {
	Line        int               `json:"line"`
	Date        string            `json:"date"`
	Description string            `json:"description"`
	Debit       string            `json:"debit,omitempty"`
	Credit      string            `json:"credit,omitempty"`
	Amount      string            `json:"amount,omitempty"`
	Type        string            `json:"type,omitempty"`
	Balance     string            `json:"balance,omitempty"`
	Currency    string            `json:"currency,omitempty"`
	Fields      map[string]string `json:"fields,omitempty"`
}

const (
	StageParse     = "parse"
	StageExtract   = "extract"
	StageNormalize = "normalize"
	StageLedger    = "ledger"
)

// RowError records a row that was skipped. It never aborts its document.
type RowError struct {
	Line   int    `json:"line"`
	Stage  string `json:"stage"`
	Reason string `json:"reason"`
}

func (e RowError) Error() string {
	return fmt.Sprintf("%s line %d: %s", e.Stage, e.Line, e.Reason)
}

// Warning flags a suspicious but accepted transaction.
type Warning struct {
	Line          int    `json:"line"`
	TransactionID string `json:"transaction_id,omitempty"`
	Reason        string `json:"reason"`
	Expected      string `json:"expected,omitempty"`
	Stated        string `json:"stated,omitempty"`
}
