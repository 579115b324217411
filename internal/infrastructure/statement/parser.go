package statement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/core/domain"
)

var (
	accountNumberPattern = regexp.MustCompile(`\d{9,18}`)
	periodDatePattern    = regexp.MustCompile(`\d{1,2}/\d{1,2}/\d{2,4}`)
)

// Parser reads bank statement workbooks using a fixed set of formats. The
// first format whose header row is found wins.
type Parser struct {
	formats []Format
}

func NewParser(formats ...Format) *Parser {
	if len(formats) == 0 {
		formats = []Format{HDFC()}
	}
	return &Parser{formats: formats}
}

// layout maps fields to column indexes of the header row; -1 means absent.
type layout struct {
	header      int
	captions    []string
	date        int
	description int
	debit       int
	credit      int
	amount      int
	kind        int
	balance     int
}

func (l layout) split() bool {
	return l.debit >= 0 && l.credit >= 0
}

func (p *Parser) ParseStatement(ctx context.Context, doc *domain.Document, plan domain.ParsePlan) (*domain.Statement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if doc == nil || len(doc.Content) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "parse statement", errors.New("document is empty"))
	}

	sheets, err := readSheets(plan.Container, doc.Content)
	if err != nil {
		return nil, err
	}

	var missing error
	for _, sh := range sheets {
		for _, f := range p.formats {
			lay, found, err := locateHeader(sh.rows, f)
			if !found {
				continue
			}
			if err != nil {
				missing = err
				continue
			}

			end := tableEnd(sh.rows, lay.header, f)
			info := readInfo(sh.rows, lay.header, end, f)
			slog.Info("statement_header_found",
				"document_id", doc.ID,
				"format", f.Name,
				"sheet", sh.name,
				"header_line", lay.header+1,
				"table_rows", end-lay.header-1,
			)
			return domain.NewStatement(f.Name, info, f.DateLayouts, f.Currency, scanRows(sh.rows, lay, end, f)), nil
		}
	}

	if missing != nil {
		return nil, domain.WrapError(domain.ErrMalformedStatement, "parse statement "+doc.Filename, missing)
	}
	return nil, domain.WrapError(domain.ErrMalformedStatement, "parse statement "+doc.Filename, errors.New("no transaction header row found"))
}

// locateHeader finds the first row carrying every header marker. found is
// true once such a row exists, even if required columns are then missing.
func locateHeader(rows [][]string, f Format) (layout, bool, error) {
	for i, cells := range rows {
		if !hasAllMarkers(cells, f.HeaderMarkers) {
			continue
		}

		lay := layout{header: i, captions: cells, date: -1, description: -1, debit: -1, credit: -1, amount: -1, kind: -1, balance: -1}
		for c, cell := range cells {
			switch {
			case lay.date < 0 && matchesAny(cell, f.Columns.Date):
				lay.date = c
			case lay.description < 0 && matchesAny(cell, f.Columns.Description):
				lay.description = c
			case lay.debit < 0 && matchesAny(cell, f.Columns.Debit):
				lay.debit = c
			case lay.credit < 0 && matchesAny(cell, f.Columns.Credit):
				lay.credit = c
			case lay.amount < 0 && matchesAny(cell, f.Columns.Amount):
				lay.amount = c
			case lay.kind < 0 && matchesAny(cell, f.Columns.Type):
				lay.kind = c
			case lay.balance < 0 && matchesAny(cell, f.Columns.Balance):
				lay.balance = c
			}
		}

		var absent []string
		if lay.date < 0 {
			absent = append(absent, "date")
		}
		if lay.description < 0 {
			absent = append(absent, "description")
		}
		if !lay.split() && lay.amount < 0 {
			switch {
			case lay.debit < 0 && lay.credit < 0:
				absent = append(absent, "debit/credit or amount")
			case lay.debit < 0:
				absent = append(absent, "debit")
			default:
				absent = append(absent, "credit")
			}
		}
		if len(absent) > 0 {
			return lay, true, fmt.Errorf("format %s: header on line %d lacks column(s): %s", f.Name, i+1, strings.Join(absent, ", "))
		}
		return lay, true, nil
	}
	return layout{}, false, nil
}

func hasAllMarkers(cells []string, markers []string) bool {
	for _, marker := range markers {
		found := false
		for _, cell := range cells {
			if matchesAny(cell, []string{marker}) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return len(markers) > 0
}

// tableEnd returns the index of the first row after the table.
func tableEnd(rows [][]string, header int, f Format) int {
	for i := header + 1; i < len(rows); i++ {
		if containsMarker(firstCell(rows[i]), f.EndMarkers) {
			return i
		}
	}
	return len(rows)
}

func scanRows(rows [][]string, lay layout, end int, f Format) func(yield func(domain.RawRow, *domain.RowError) bool) {
	return func(yield func(domain.RawRow, *domain.RowError) bool) {
		for i := lay.header + 1; i < end; i++ {
			row, rowErr, ok := readRow(rows[i], i+1, lay, f)
			if !ok {
				continue
			}
			if !yield(row, rowErr) {
				return
			}
		}
	}
}

// readRow converts one table row. ok is false for rows ignored silently:
// blanks, separators and summary lines.
func readRow(cells []string, line int, lay layout, f Format) (domain.RawRow, *domain.RowError, bool) {
	if isBlankRow(cells) || isSeparator(firstCell(cells)) {
		return domain.RawRow{}, nil, false
	}
	dateCell := cellAt(cells, lay.date)
	if containsMarker(dateCell, f.SkipMarkers) || containsMarker(firstCell(cells), f.SkipMarkers) || isSeparator(dateCell) {
		return domain.RawRow{}, nil, false
	}

	reject := func(format string, args ...any) (domain.RawRow, *domain.RowError, bool) {
		return domain.RawRow{}, &domain.RowError{Line: line, Stage: domain.StageParse, Reason: fmt.Sprintf(format, args...)}, true
	}

	if dateCell == "" {
		if !hasAmount(cells, lay) {
			return domain.RawRow{}, nil, false
		}
		return reject("date is missing")
	}
	if _, err := domain.ParseDateLayouts(dateCell, f.DateLayouts); err != nil {
		return reject("unparseable date %q", dateCell)
	}

	row := domain.RawRow{
		Line:        line,
		Date:        dateCell,
		Description: cellAt(cells, lay.description),
		Currency:    f.Currency,
		Fields:      make(map[string]string, len(lay.captions)),
	}
	for c, caption := range lay.captions {
		if caption == "" {
			continue
		}
		if v := cellAt(cells, c); v != "" {
			row.Fields[caption] = v
		}
	}

	if lay.split() {
		debitRaw, creditRaw := cellAt(cells, lay.debit), cellAt(cells, lay.credit)
		debitBlank, creditBlank := domain.IsBlankAmount(debitRaw), domain.IsBlankAmount(creditRaw)
		switch {
		case debitBlank && creditBlank:
			return reject("neither debit nor credit amount is present")
		case !debitBlank && !creditBlank:
			return reject("both debit %q and credit %q are present", debitRaw, creditRaw)
		case !debitBlank:
			d, err := f.amount(debitRaw)
			if err != nil {
				return reject("non-numeric debit amount %q", debitRaw)
			}
			row.Debit = d.String()
		default:
			d, err := f.amount(creditRaw)
			if err != nil {
				return reject("non-numeric credit amount %q", creditRaw)
			}
			row.Credit = d.String()
		}
	} else {
		raw := cellAt(cells, lay.amount)
		if domain.IsBlankAmount(raw) {
			return reject("amount is missing")
		}
		d, err := f.amount(raw)
		if err != nil {
			return reject("non-numeric amount %q", raw)
		}
		row.Amount = d.String()
		row.Type = cellAt(cells, lay.kind)
	}

	if raw := cellAt(cells, lay.balance); raw != "" {
		if d, err := f.amount(raw); err == nil {
			row.Balance = d.String()
		}
	}
	return row, nil, true
}

func (f Format) amount(raw string) (decimal.Decimal, error) {
	return domain.ParseAmountSeparators(raw, f.DecimalSeparator, f.ThousandsSeparator)
}

func hasAmount(cells []string, lay layout) bool {
	for _, idx := range []int{lay.debit, lay.credit, lay.amount} {
		if !domain.IsBlankAmount(cellAt(cells, idx)) {
			return true
		}
	}
	return false
}

func firstCell(cells []string) string {
	for _, c := range cells {
		if c != "" {
			return c
		}
	}
	return ""
}

func containsMarker(cell string, markers []string) bool {
	if cell == "" {
		return false
	}
	upper := strings.ToUpper(cell)
	for _, marker := range markers {
		if marker != "" && strings.Contains(upper, strings.ToUpper(marker)) {
			return true
		}
	}
	return false
}

// isSeparator reports rows drawn with '*' or '-' only.
func isSeparator(cell string) bool {
	if cell == "" {
		return false
	}
	return strings.Trim(cell, "*- ") == ""
}

// readInfo collects header metadata above the table and the summary block
// below it.
func readInfo(rows [][]string, header, end int, f Format) domain.StatementInfo {
	var info domain.StatementInfo
	labels := f.Metadata

	for i := 0; i < header; i++ {
		cells := rows[i]
		text := strings.Join(cells, " ")

		if info.AccountHolder == "" && i < 15 {
			if first := firstCell(cells); hasPrefixFold(first, labels.HolderPrefixes) {
				info.AccountHolder = strings.Join(strings.Fields(first), " ")
			}
		}
		if info.AccountNumber == "" {
			if rest, ok := afterFold(text, labels.AccountNumber); ok {
				info.AccountNumber = accountNumberPattern.FindString(rest)
			}
		}
		if info.PeriodFrom.IsZero() {
			if rest, ok := afterFold(text, labels.Period); ok {
				layouts := append([]string{"02/01/2006"}, f.DateLayouts...)
				dates := periodDatePattern.FindAllString(rest, 2)
				if len(dates) > 0 {
					info.PeriodFrom, _ = domain.ParseDateLayouts(dates[0], layouts)
				}
				if len(dates) > 1 {
					info.PeriodTo, _ = domain.ParseDateLayouts(dates[1], layouts)
				}
			}
		}
	}

	outside := func(yield func(int) bool) {
		for i := 0; i < header; i++ {
			if !yield(i) {
				return
			}
		}
		for i := end; i < len(rows); i++ {
			if !yield(i) {
				return
			}
		}
	}
	for i := range outside {
		if info.OpeningBalance == nil {
			info.OpeningBalance = labelledAmount(rows, i, labels.OpeningBalance, f)
		}
		if info.ClosingBalance == nil {
			info.ClosingBalance = labelledAmount(rows, i, labels.ClosingBalance, f)
		}
	}
	return info
}

// labelledAmount reads the value of a caption cell, either directly below it
// or in the next non-empty cell to its right.
func labelledAmount(rows [][]string, i int, captions []string, f Format) *decimal.Decimal {
	for c, cell := range rows[i] {
		if !matchesAny(cell, captions) {
			continue
		}
		if i+1 < len(rows) {
			if d, err := f.amount(cellAt(rows[i+1], c)); err == nil {
				return &d
			}
		}
		for _, right := range rows[i][c+1:] {
			if right == "" {
				continue
			}
			if d, err := f.amount(right); err == nil {
				return &d
			}
			break
		}
	}
	return nil
}

func hasPrefixFold(s string, prefixes []string) bool {
	upper := strings.ToUpper(s)
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(upper, strings.ToUpper(p)) {
			return true
		}
	}
	return false
}

// afterFold returns the upper-cased remainder of s from the first needle on.
func afterFold(s string, needles []string) (string, bool) {
	upper := strings.ToUpper(s)
	for _, n := range needles {
		if n == "" {
			continue
		}
		if at := strings.Index(upper, strings.ToUpper(n)); at >= 0 {
			return upper[at:], true
		}
	}
	return "", false
}
