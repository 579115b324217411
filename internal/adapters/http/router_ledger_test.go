package httpadapter

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/config"
	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/core/domain"
)

func TestListTransactionsAppliesFilter(t *testing.T) {
	tr := newTestRouter(config.Config{})

	req := httptest.NewRequest(http.MethodGet, "/v1/transactions?category=Food+%26+Dining&from=2024-04-01&to=2024-04-30&limit=10", nil)
	res := httptest.NewRecorder()
	tr.handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	want := domain.LedgerFilter{
		Category: domain.CategoryFoodDining,
		From:     domain.NewDate(2024, 4, 1),
		To:       domain.NewDate(2024, 4, 30),
		Limit:    10,
	}
	if tr.ledger.filter != want {
		t.Fatalf("unexpected filter: %+v", tr.ledger.filter)
	}

	var resp struct {
		Transactions []domain.Transaction `json:"transactions"`
		Count        int                  `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Count != 1 || resp.Transactions[0].ID != "tx_1" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestListTransactionsRejectsBadFilter(t *testing.T) {
	tr := newTestRouter(config.Config{})

	for _, query := range []string{"from=01/04/2024", "limit=-1", "from=2024-05-01&to=2024-04-01", "uncategorized=maybe"} {
		req := httptest.NewRequest(http.MethodGet, "/v1/transactions?"+query, nil)
		res := httptest.NewRecorder()
		tr.handler.ServeHTTP(res, req)
		if res.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", query, res.Code)
		}
	}
}

func TestOverrideCategory(t *testing.T) {
	tr := newTestRouter(config.Config{})

	req := httptest.NewRequest(http.MethodPut, "/v1/transactions/tx_1/category", bytes.NewBufferString(`{"category":"Shopping"}`))
	res := httptest.NewRecorder()
	tr.handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if tr.ledger.overrides["tx_1"] != "Shopping" {
		t.Fatalf("override not applied: %+v", tr.ledger.overrides)
	}
	var tx domain.Transaction
	if err := json.NewDecoder(res.Body).Decode(&tx); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if tx.CategorySource != domain.CategorySourceOverride {
		t.Fatalf("unexpected transaction: %+v", tx)
	}
}

func TestOverrideCategoryRequiresCategory(t *testing.T) {
	tr := newTestRouter(config.Config{})

	for _, body := range []string{`{}`, `not json`} {
		req := httptest.NewRequest(http.MethodPut, "/v1/transactions/tx_1/category", bytes.NewBufferString(body))
		res := httptest.NewRecorder()
		tr.handler.ServeHTTP(res, req)
		if res.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", body, res.Code)
		}
	}
}

func TestGetReport(t *testing.T) {
	tr := newTestRouter(config.Config{ReportPath: "reports/report.json"})

	req := httptest.NewRequest(http.MethodGet, "/v1/report?from=2024-04-01", nil)
	res := httptest.NewRecorder()
	tr.handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if tr.reports.published != "" {
		t.Fatalf("plain GET must not write the report")
	}
	if tr.reports.filter.From != domain.NewDate(2024, 4, 1) {
		t.Fatalf("unexpected filter: %+v", tr.reports.filter)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/report?save=true", nil)
	res = httptest.NewRecorder()
	tr.handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if tr.reports.published != "reports/report.json" {
		t.Fatalf("expected report to be published to configured path, got %q", tr.reports.published)
	}
}

func TestWrongMethodIsRejected(t *testing.T) {
	tr := newTestRouter(config.Config{})

	req := httptest.NewRequest(http.MethodDelete, "/v1/transactions", nil)
	res := httptest.NewRecorder()
	tr.handler.ServeHTTP(res, req)
	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", res.Code)
	}
}
