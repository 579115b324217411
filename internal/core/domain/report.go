package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Report is derived from the ledger on demand and never edited by hand.
type Report struct {
	GeneratedAt  time.Time           `json:"generated_at"`
	Filter       LedgerFilter        `json:"filter"`
	Transactions int                 `json:"transactions"`
	Totals       ReportTotals        `json:"totals"`
	ByCategory   []CategoryTotal     `json:"by_category"`
	Monthly      []MonthlyTrend      `json:"monthly"`
	TopExpenses  []Transaction       `json:"top_expenses"`
	Recurring    []RecurringMerchant `json:"recurring"`
	Unusual      []Transaction       `json:"unusual"`
}

type ReportTotals struct {
	Income      decimal.Decimal `json:"income"`
	Expenses    decimal.Decimal `json:"expenses"`
	Net         decimal.Decimal `json:"net"`
	SavingsRate decimal.Decimal `json:"savings_rate"`
}

type CategoryTotal struct {
	Category Category        `json:"category"`
	Total    decimal.Decimal `json:"total"`
	Count    int             `json:"count"`
	Share    decimal.Decimal `json:"share"`
}

type MonthlyTrend struct {
	Month    string          `json:"month"`
	Income   decimal.Decimal `json:"income"`
	Expenses decimal.Decimal `json:"expenses"`
	Net      decimal.Decimal `json:"net"`
}

type RecurringMerchant struct {
	Merchant    string          `json:"merchant"`
	Occurrences int             `json:"occurrences"`
	Average     decimal.Decimal `json:"average"`
	Total       decimal.Decimal `json:"total"`
}
