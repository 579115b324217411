package rules

import (
	"strings"
	"testing"

	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/core/domain"
)

func TestDefaultTableMatches(t *testing.T) {
	table := Default()

	tests := []struct {
		description string
		want        domain.Category
		ok          bool
	}{
		{"UPI-SWIGGY-ORDER-8812@ybl", domain.CategoryFoodDining, true},
		{"POS AMAZON PAY INDIA", domain.CategoryShopping, true},
		{"IMPS-RENT-LANDLORD", domain.CategoryTransfer, true},
		{"UPI-SURESH RAO-OKAXIS", domain.CategoryTransfer, true},
		{"ACH D- ZERODHA BROKING", domain.CategoryInvestment, true},
		{"BILLDESK CREDIT CARD", domain.CategoryBills, true},
		{"NEXTBILLION TECH PVT LTD", domain.CategorySalary, true},
		{"CASH WITHDRAWAL ATM", "", false},
		{"   ", "", false},
	}
	for _, tc := range tests {
		got, ok := table.Match(tc.description)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("Match(%q) = %q, %v; want %q, %v", tc.description, got, ok, tc.want, tc.ok)
		}
	}
}

func TestMatchFirstRuleWins(t *testing.T) {
	table, err := New([]Rule{
		{Category: "Travel", Keywords: []string{"uber"}},
		{Category: "Transportation", Keywords: []string{"uber", "ola"}},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if got, _ := table.Match("UBER TRIP"); got != "Travel" {
		t.Fatalf("expected first rule to win, got %q", got)
	}
	if got, _ := table.Match("OLA CABS"); got != domain.CategoryTransportation {
		t.Fatalf("expected second rule, got %q", got)
	}
}

func TestParseRulesFromYAML(t *testing.T) {
	table, err := Parse([]byte(`
rules:
  - category: Groceries
    keywords: [bigbasket, "D MART"]
  - category: Rent
    patterns: ['^neft-.*landlord']
  - category: Groceries
    keywords: [blinkit]
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if got, ok := table.Match("POS D MART ANDHERI"); !ok || got != "Groceries" {
		t.Fatalf("unexpected keyword match: %q %v", got, ok)
	}
	if got, ok := table.Match("NEFT-HDFC-LANDLORD APR"); !ok || got != "Rent" {
		t.Fatalf("unexpected pattern match: %q %v", got, ok)
	}
	cats := table.Categories()
	if len(cats) != 2 || cats[0] != "Groceries" || cats[1] != "Rent" {
		t.Fatalf("unexpected categories: %v", cats)
	}
}

func TestParseRulesRejectsBadEntries(t *testing.T) {
	_, err := Parse([]byte(`
rules:
  - category: ""
    keywords: [x]
  - category: Broken
    patterns: ['([']
  - category: Empty
`))
	if err == nil {
		t.Fatalf("expected error")
	}
	for _, want := range []string{"category is required", "Broken", "no keywords or patterns"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}

	if _, err := Parse([]byte("rules: []")); err == nil {
		t.Fatalf("expected error for empty table")
	}
}
