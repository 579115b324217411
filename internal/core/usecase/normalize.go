package usecase

import (
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/core/domain"
)

// Day-first layouts come before month-first ones; statements in scope are
// written day-first.
var commonDateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"02/01/06",
	"2/1/2006",
	"02-01-2006",
	"02-01-06",
	"02.01.2006",
	"2006/01/02",
	"02 Jan 2006",
	"2 Jan 2006",
	"02-Jan-2006",
	"02-Jan-06",
	"02 January 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	time.RFC3339,
}

var currencySymbols = map[string]string{
	"₹":   "INR",
	"RS":  "INR",
	"RS.": "INR",
	"$":   "USD",
	"€":   "EUR",
	"£":   "GBP",
}

// SourceContext carries what the normalizer needs to know about a row's
// origin.
type SourceContext struct {
	DocumentID string
	// Scope is the document identity component of the fingerprint.
	Scope       string
	Kind        domain.SourceKind
	Currency    string
	DateLayouts []string
	// Ordered is set when rows arrive in statement order, enabling the
	// running balance check.
	Ordered        bool
	OpeningBalance *decimal.Decimal
}

type NormalizeResult struct {
	Transactions []domain.Transaction
	Errors       []domain.RowError
	Warnings     []domain.Warning
}

type Normalizer struct {
	defaultCurrency string
	tolerance       decimal.Decimal
}

func NewNormalizer(defaultCurrency string, tolerance decimal.Decimal) *Normalizer {
	currency := strings.ToUpper(strings.TrimSpace(defaultCurrency))
	if currency == "" {
		currency = "INR"
	}
	if tolerance.IsNegative() {
		tolerance = tolerance.Abs()
	}
	return &Normalizer{defaultCurrency: currency, tolerance: tolerance}
}

// Normalize converts one raw row. The returned transaction carries ordinal 0;
// NormalizeAll assigns real ordinals across a document.
func (n *Normalizer) Normalize(row domain.RawRow, src SourceContext) (domain.Transaction, error) {
	var problems []error

	date, err := n.resolveDate(row.Date, src.DateLayouts)
	if err != nil {
		problems = append(problems, err)
	}
	amount, err := resolveAmount(row)
	if err != nil {
		problems = append(problems, err)
	}
	description := NormalizeDescription(row.Description)
	if description == "" {
		problems = append(problems, errors.New("description is empty"))
	}
	if len(problems) > 0 {
		return domain.Transaction{}, domain.WrapError(domain.ErrInvalidInput, "normalize row", errors.Join(problems...))
	}

	tx := domain.Transaction{
		Date:             date,
		Description:      description,
		Amount:           amount,
		Currency:         n.resolveCurrency(row.Currency, src.Currency),
		SourceDocumentID: src.DocumentID,
		SourceKind:       src.Kind,
		FingerprintScope: scopeOf(src),
		RawFields:        rawFieldsOf(row),
	}
	if balance, ok := statedBalance(row.Balance); ok {
		tx.BalanceAfter = &balance
	}
	tx.ID = tx.Fingerprint()
	return tx, nil
}

// NormalizeAll normalizes a document's rows, assigns occurrence ordinals and
// ids, and checks the running balance when row order is known. It always
// returns; defective rows end up in Errors.
func (n *Normalizer) NormalizeAll(rows iter.Seq[domain.RawRow], src SourceContext) NormalizeResult {
	var result NormalizeResult
	var lines []int
	var running *decimal.Decimal
	if src.OpeningBalance != nil {
		opening := *src.OpeningBalance
		running = &opening
	}

	for row := range rows {
		tx, err := n.Normalize(row, src)
		if err != nil {
			result.Errors = append(result.Errors, domain.RowError{
				Line:   row.Line,
				Stage:  domain.StageNormalize,
				Reason: err.Error(),
			})
			continue
		}
		result.Transactions = append(result.Transactions, tx)
		lines = append(lines, row.Line)

		if !src.Ordered {
			continue
		}
		running = n.checkBalance(row, tx, running, &result)
	}

	AssignIdentities(result.Transactions, scopeOf(src))
	byLine := make(map[int]string, len(lines))
	for i, line := range lines {
		byLine[line] = result.Transactions[i].ID
	}
	for i := range result.Warnings {
		result.Warnings[i].TransactionID = byLine[result.Warnings[i].Line]
		slog.Warn("balance_mismatch",
			"document_id", src.DocumentID,
			"transaction_id", result.Warnings[i].TransactionID,
			"line", result.Warnings[i].Line,
			"expected", result.Warnings[i].Expected,
			"stated", result.Warnings[i].Stated,
		)
	}
	return result
}

// checkBalance compares the recomputed running balance with the stated one
// and re-anchors on the stated value so one export glitch does not cascade.
func (n *Normalizer) checkBalance(row domain.RawRow, tx domain.Transaction, running *decimal.Decimal, result *NormalizeResult) *decimal.Decimal {
	stated, ok := statedBalance(row.Balance)
	if !ok {
		if running == nil {
			return nil
		}
		next := running.Add(tx.Amount)
		return &next
	}
	if running != nil {
		expected := running.Add(tx.Amount)
		if expected.Sub(stated).Abs().GreaterThan(n.tolerance) {
			result.Warnings = append(result.Warnings, domain.Warning{
				Line:     row.Line,
				Reason:   "running balance does not match stated balance",
				Expected: expected.StringFixed(2),
				Stated:   stated.StringFixed(2),
			})
		}
	}
	return &stated
}

// statedBalance reads a balance cell; a trailing Dr marks an overdrawn balance.
func statedBalance(raw string) (decimal.Decimal, bool) {
	value, tag := splitTypeSuffix(raw)
	if value == "" || value == "-" {
		return decimal.Zero, false
	}
	d, err := domain.ParseAmount(value)
	if err != nil {
		return decimal.Zero, false
	}
	if tag == "dr" {
		d = d.Abs().Neg()
	}
	return d, true
}

func (n *Normalizer) resolveDate(raw string, layouts []string) (domain.Date, error) {
	if strings.TrimSpace(raw) == "" {
		return domain.Date{}, errors.New("date is missing")
	}
	all := make([]string, 0, len(layouts)+len(commonDateLayouts))
	all = append(all, layouts...)
	all = append(all, commonDateLayouts...)
	d, err := domain.ParseDateLayouts(raw, all)
	if err != nil {
		return domain.Date{}, fmt.Errorf("unparseable date: %w", err)
	}
	return d, nil
}

func (n *Normalizer) resolveCurrency(raw, sourceDefault string) string {
	value := strings.ToUpper(strings.TrimSpace(raw))
	if code, ok := currencySymbols[value]; ok {
		return code
	}
	if isISOCode(value) {
		return value
	}
	if fallback := strings.ToUpper(strings.TrimSpace(sourceDefault)); isISOCode(fallback) {
		return fallback
	}
	return n.defaultCurrency
}

// resolveAmount applies the sign convention: money out is negative, money in
// is positive.
func resolveAmount(row domain.RawRow) (decimal.Decimal, error) {
	hasDebit := !domain.IsBlankAmount(row.Debit)
	hasCredit := !domain.IsBlankAmount(row.Credit)

	switch {
	case hasDebit && hasCredit:
		return decimal.Zero, errors.New("both debit and credit are set")
	case hasDebit:
		d, err := domain.ParseAmount(row.Debit)
		if err != nil {
			return decimal.Zero, err
		}
		return nonZero(d.Abs().Neg())
	case hasCredit:
		c, err := domain.ParseAmount(row.Credit)
		if err != nil {
			return decimal.Zero, err
		}
		return nonZero(c.Abs())
	}

	raw, suffixTag := splitTypeSuffix(row.Amount)
	if domain.IsBlankAmount(raw) {
		return decimal.Zero, errors.New("amount is missing")
	}
	amount, err := domain.ParseAmount(raw)
	if err != nil {
		return decimal.Zero, err
	}

	tag := strings.ToLower(strings.TrimSpace(row.Type))
	if tag == "" {
		tag = suffixTag
	}
	switch tag {
	case "debit", "dr", "withdrawal", "expense", "payment", "purchase":
		return nonZero(amount.Abs().Neg())
	case "credit", "cr", "deposit", "income", "refund":
		return nonZero(amount.Abs())
	default:
		return nonZero(amount)
	}
}

func splitTypeSuffix(raw string) (string, string) {
	value := strings.TrimSpace(raw)
	upper := strings.ToUpper(value)
	for _, suffix := range []string{"DR", "CR"} {
		if strings.HasSuffix(upper, suffix) {
			return strings.TrimSpace(value[:len(value)-len(suffix)]), strings.ToLower(suffix)
		}
	}
	return value, ""
}

func nonZero(d decimal.Decimal) (decimal.Decimal, error) {
	if d.IsZero() {
		return decimal.Zero, errors.New("amount is zero")
	}
	return d, nil
}

// NormalizeDescription trims and collapses internal whitespace.
func NormalizeDescription(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func rawFieldsOf(row domain.RawRow) map[string]string {
	if len(row.Fields) > 0 {
		return domain.FreezeFields(row.Fields)
	}
	fields := map[string]string{}
	for k, v := range map[string]string{
		"date":        row.Date,
		"description": row.Description,
		"debit":       row.Debit,
		"credit":      row.Credit,
		"amount":      row.Amount,
		"type":        row.Type,
		"balance":     row.Balance,
		"currency":    row.Currency,
	} {
		if strings.TrimSpace(v) != "" {
			fields[k] = v
		}
	}
	return fields
}

func scopeOf(src SourceContext) string {
	if src.Scope != "" {
		return src.Scope
	}
	return src.DocumentID
}

func isISOCode(s string) bool {
	if len(s) != 3 {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
