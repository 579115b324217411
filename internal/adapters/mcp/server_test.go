package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/shopspring/decimal"

	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/core/domain"
)

type ledgerFake struct {
	txs    []domain.Transaction
	filter domain.LedgerFilter
	err    error
}

func (f *ledgerFake) Query(_ context.Context, filter domain.LedgerFilter) ([]domain.Transaction, error) {
	f.filter = filter
	return f.txs, f.err
}

type reportsFake struct {
	filter domain.LedgerFilter
}

func (f *reportsFake) Build(_ context.Context, filter domain.LedgerFilter) (*domain.Report, error) {
	f.filter = filter
	return &domain.Report{Filter: filter, Transactions: 2, Totals: domain.ReportTotals{Income: decimal.NewFromInt(60000)}}, nil
}

func callRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{Params: mcp.CallToolParams{Arguments: args}}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) != 1 {
		t.Fatalf("expected one content item, got %d", len(result.Content))
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", result.Content[0])
	}
	return text.Text
}

func TestLedgerQueryTool(t *testing.T) {
	ledger := &ledgerFake{txs: []domain.Transaction{{
		ID:          "tx_1",
		Date:        domain.NewDate(2024, 4, 1),
		Description: "UPI-ZOMATO-ORDER",
		Amount:      decimal.NewFromInt(-450),
		Currency:    "INR",
		Category:    domain.CategoryFoodDining,
	}}}
	tools := NewTools(ledger, &reportsFake{})

	result, err := tools.handleQuery(context.Background(), callRequest(map[string]any{
		"category": "food & dining",
		"from":     "2024-04-01",
		"limit":    float64(5),
	}))
	if err != nil {
		t.Fatalf("handleQuery() error = %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, result))
	}
	if ledger.filter.Limit != 5 || ledger.filter.From != domain.NewDate(2024, 4, 1) || ledger.filter.Category != "food & dining" {
		t.Fatalf("unexpected filter: %+v", ledger.filter)
	}

	var payload struct {
		Count        int                  `json:"count"`
		Transactions []domain.Transaction `json:"transactions"`
	}
	if err := json.Unmarshal([]byte(resultText(t, result)), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Count != 1 || payload.Transactions[0].ID != "tx_1" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestLedgerQueryToolRejectsBadArguments(t *testing.T) {
	tools := NewTools(&ledgerFake{}, &reportsFake{})

	for _, args := range []map[string]any{
		{"from": "April 1"},
		{"limit": float64(5000)},
	} {
		result, err := tools.handleQuery(context.Background(), callRequest(args))
		if err != nil {
			t.Fatalf("handleQuery() error = %v", err)
		}
		if !result.IsError {
			t.Fatalf("expected tool error for %v", args)
		}
	}
}

func TestLedgerQueryToolReportsStoreFailure(t *testing.T) {
	tools := NewTools(&ledgerFake{err: errors.New("ledger unavailable")}, &reportsFake{})

	result, err := tools.handleQuery(context.Background(), callRequest(nil))
	if err != nil {
		t.Fatalf("handleQuery() error = %v", err)
	}
	if !result.IsError || !strings.Contains(resultText(t, result), "ledger unavailable") {
		t.Fatalf("expected store failure in tool result, got %+v", result)
	}
}

func TestLedgerReportTool(t *testing.T) {
	reports := &reportsFake{}
	tools := NewTools(&ledgerFake{}, reports)

	result, err := tools.handleReport(context.Background(), callRequest(map[string]any{"to": "2024-04-30"}))
	if err != nil {
		t.Fatalf("handleReport() error = %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, result))
	}
	if reports.filter.To != domain.NewDate(2024, 4, 30) {
		t.Fatalf("unexpected filter: %+v", reports.filter)
	}
	if !strings.Contains(resultText(t, result), `"income":"60000"`) {
		t.Fatalf("expected income in report payload, got %s", resultText(t, result))
	}
}

func TestNewServerRegistersTools(t *testing.T) {
	s := NewServer(NewTools(&ledgerFake{}, &reportsFake{}), "test")
	for _, name := range []string{"ledger_query", "ledger_report"} {
		if s.GetTool(name) == nil {
			t.Fatalf("tool %s is not registered", name)
		}
	}
}
