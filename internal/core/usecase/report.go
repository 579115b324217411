package usecase

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/core/domain"
	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/core/ports"
)

const (
	topExpensesLimit    = 10
	recurringLimit      = 10
	merchantKeyMaxChars = 30
	unusualSigma        = 3
)

var hundred = decimal.NewFromInt(100)

type ReportUseCase struct {
	store   ports.LedgerStore
	storage ports.ObjectStorage
	now     func() time.Time
}

func NewReportUseCase(store ports.LedgerStore, storage ports.ObjectStorage) *ReportUseCase {
	return &ReportUseCase{
		store:   store,
		storage: storage,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (uc *ReportUseCase) Build(ctx context.Context, filter domain.LedgerFilter) (*domain.Report, error) {
	var txs []domain.Transaction
	for tx, err := range uc.store.Query(ctx, filter) {
		if err != nil {
			return nil, fmt.Errorf("read ledger for report: %w", err)
		}
		txs = append(txs, tx)
	}
	report := BuildReport(txs)
	report.GeneratedAt = uc.now()
	report.Filter = filter
	return report, nil
}

// Publish regenerates the report and writes it to storage under key.
func (uc *ReportUseCase) Publish(ctx context.Context, filter domain.LedgerFilter, key string) (*domain.Report, error) {
	report, err := uc.Build(ctx, filter)
	if err != nil {
		return nil, err
	}
	if uc.storage == nil {
		return report, nil
	}
	payload, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	if err := uc.storage.Save(ctx, key, bytes.NewReader(payload)); err != nil {
		return nil, fmt.Errorf("save report: %w", err)
	}
	return report, nil
}

// BuildReport aggregates a set of transactions. It is pure.
func BuildReport(txs []domain.Transaction) *domain.Report {
	report := &domain.Report{
		Transactions: len(txs),
		ByCategory:   []domain.CategoryTotal{},
		Monthly:      []domain.MonthlyTrend{},
		TopExpenses:  []domain.Transaction{},
		Recurring:    []domain.RecurringMerchant{},
		Unusual:      []domain.Transaction{},
	}

	byCategory := map[domain.Category]*domain.CategoryTotal{}
	byMonth := map[string]*domain.MonthlyTrend{}
	var expenses []domain.Transaction

	for _, tx := range txs {
		month := byMonth[tx.Date.MonthKey()]
		if month == nil {
			month = &domain.MonthlyTrend{Month: tx.Date.MonthKey()}
			byMonth[month.Month] = month
		}

		if !tx.IsExpense() {
			report.Totals.Income = report.Totals.Income.Add(tx.Amount)
			month.Income = month.Income.Add(tx.Amount)
			continue
		}

		spent := tx.Amount.Abs()
		expenses = append(expenses, tx)
		report.Totals.Expenses = report.Totals.Expenses.Add(spent)
		month.Expenses = month.Expenses.Add(spent)

		category := tx.Category
		if category == "" {
			category = domain.CategoryUncategorized
		}
		total := byCategory[category]
		if total == nil {
			total = &domain.CategoryTotal{Category: category}
			byCategory[category] = total
		}
		total.Total = total.Total.Add(spent)
		total.Count++
	}

	report.Totals.Net = report.Totals.Income.Sub(report.Totals.Expenses)
	if report.Totals.Income.IsPositive() {
		report.Totals.SavingsRate = report.Totals.Net.Div(report.Totals.Income).Mul(hundred).Round(2)
	}

	for _, total := range byCategory {
		if report.Totals.Expenses.IsPositive() {
			total.Share = total.Total.Div(report.Totals.Expenses).Mul(hundred).Round(2)
		}
		report.ByCategory = append(report.ByCategory, *total)
	}
	slices.SortFunc(report.ByCategory, func(a, b domain.CategoryTotal) int {
		if c := b.Total.Cmp(a.Total); c != 0 {
			return c
		}
		return cmp.Compare(a.Category, b.Category)
	})

	for _, month := range byMonth {
		month.Net = month.Income.Sub(month.Expenses)
		report.Monthly = append(report.Monthly, *month)
	}
	slices.SortFunc(report.Monthly, func(a, b domain.MonthlyTrend) int {
		return cmp.Compare(a.Month, b.Month)
	})

	report.TopExpenses = topExpenses(expenses, topExpensesLimit)
	report.Recurring = recurringMerchants(expenses, recurringLimit)
	report.Unusual = unusualExpenses(expenses, unusualSigma)
	return report
}

func topExpenses(expenses []domain.Transaction, n int) []domain.Transaction {
	sorted := slices.Clone(expenses)
	slices.SortStableFunc(sorted, func(a, b domain.Transaction) int {
		return a.Amount.Cmp(b.Amount)
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	if sorted == nil {
		return []domain.Transaction{}
	}
	return sorted
}

func recurringMerchants(expenses []domain.Transaction, n int) []domain.RecurringMerchant {
	groups := map[string]*domain.RecurringMerchant{}
	for _, tx := range expenses {
		key := merchantKey(tx.Description)
		if key == "" {
			continue
		}
		group := groups[key]
		if group == nil {
			group = &domain.RecurringMerchant{Merchant: key}
			groups[key] = group
		}
		group.Occurrences++
		group.Total = group.Total.Add(tx.Amount.Abs())
	}

	out := []domain.RecurringMerchant{}
	for _, group := range groups {
		if group.Occurrences < 2 {
			continue
		}
		group.Average = group.Total.Div(decimal.NewFromInt(int64(group.Occurrences))).Round(2)
		out = append(out, *group)
	}
	slices.SortFunc(out, func(a, b domain.RecurringMerchant) int {
		if c := b.Total.Cmp(a.Total); c != 0 {
			return c
		}
		return cmp.Compare(a.Merchant, b.Merchant)
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// merchantKey keeps the part of a description before any UPI handle, capped
// in length, so repeated payments to one payee group together.
func merchantKey(description string) string {
	key := fingerprintDescription(description)
	if idx := strings.IndexByte(key, '@'); idx >= 0 {
		key = key[:idx]
	}
	if runes := []rune(key); len(runes) > merchantKeyMaxChars {
		key = string(runes[:merchantKeyMaxChars])
	}
	return strings.TrimSpace(key)
}

// unusualExpenses returns expenses larger than mean + sigma standard deviations.
func unusualExpenses(expenses []domain.Transaction, sigma float64) []domain.Transaction {
	out := []domain.Transaction{}
	if len(expenses) < 2 {
		return out
	}

	count := decimal.NewFromInt(int64(len(expenses)))
	sum := decimal.Zero
	for _, tx := range expenses {
		sum = sum.Add(tx.Amount.Abs())
	}
	mean := sum.Div(count)

	variance := decimal.Zero
	for _, tx := range expenses {
		diff := tx.Amount.Abs().Sub(mean)
		variance = variance.Add(diff.Mul(diff))
	}
	variance = variance.Div(decimal.NewFromInt(int64(len(expenses) - 1)))
	stddev := decimal.NewFromFloat(math.Sqrt(variance.InexactFloat64()))
	threshold := mean.Add(stddev.Mul(decimal.NewFromFloat(sigma)))

	for _, tx := range expenses {
		if tx.Amount.Abs().GreaterThan(threshold) {
			out = append(out, tx)
		}
	}
	return out
}
