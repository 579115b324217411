package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

var (
	dateKeys        = []string{"date", "transaction_date", "invoice_date", "txn_date"}
	descriptionKeys = []string{"description", "narration", "vendor", "merchant", "particulars"}
	amountKeys      = []string{"amount", "total_amount", "total"}
	debitKeys       = []string{"debit", "withdrawal", "withdrawal_amount"}
	creditKeys      = []string{"credit", "deposit", "deposit_amount"}
)

// ValidateCandidate converts one untrusted, decoded JSON item into a RawRow.
// Items without a date, a description or any amount are rejected.
func ValidateCandidate(item map[string]any, line int) (RawRow, error) {
	if item == nil {
		return RawRow{}, WrapError(ErrInvalidInput, "validate candidate", errors.New("item is not an object"))
	}

	row := RawRow{Line: line, Fields: make(map[string]string, len(item))}
	keys := make([]string, 0, len(item))
	for k := range item {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if s, ok := scalarString(item[k]); ok {
			row.Fields[k] = s
		}
	}

	var problems []error
	var ok bool
	if row.Date, ok = firstText(item, dateKeys); !ok {
		problems = append(problems, errors.New("date is missing"))
	}
	if row.Description, ok = firstText(item, descriptionKeys); !ok {
		problems = append(problems, errors.New("description is missing"))
	}

	row.Amount, _ = firstNumber(item, amountKeys)
	row.Debit, _ = firstNumber(item, debitKeys)
	row.Credit, _ = firstNumber(item, creditKeys)
	if row.Amount == "" && row.Debit == "" && row.Credit == "" {
		problems = append(problems, errors.New("amount is missing"))
	}
	for _, raw := range []string{row.Amount, row.Debit, row.Credit} {
		if raw == "" {
			continue
		}
		if _, err := ParseAmount(raw); err != nil {
			problems = append(problems, err)
		}
	}

	row.Type, _ = firstText(item, []string{"type", "transaction_type"})
	row.Currency, _ = firstText(item, []string{"currency"})
	row.Balance, _ = firstNumber(item, []string{"balance", "closing_balance"})

	if len(problems) > 0 {
		return RawRow{}, WrapError(ErrInvalidInput, fmt.Sprintf("validate candidate %d", line), errors.Join(problems...))
	}
	return row, nil
}

func firstText(item map[string]any, keys []string) (string, bool) {
	for _, k := range keys {
		s, ok := item[k].(string)
		if !ok {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			return s, true
		}
	}
	return "", false
}

// firstNumber accepts JSON numbers and numeric strings. Null and blank values
// count as absent.
func firstNumber(item map[string]any, keys []string) (string, bool) {
	for _, k := range keys {
		switch v := item[k].(type) {
		case json.Number:
			if !IsBlankAmount(v.String()) {
				return v.String(), true
			}
		case float64:
			if v != 0 {
				return strconv.FormatFloat(v, 'f', -1, 64), true
			}
		case string:
			if !IsBlankAmount(v) {
				return strings.TrimSpace(v), true
			}
		}
	}
	return "", false
}

func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}
