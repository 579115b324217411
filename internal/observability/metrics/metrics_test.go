package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/core/domain"
)

func scrape(t *testing.T, registry *prometheus.Registry) string {
	t.Helper()
	rec := httptest.NewRecorder()
	Handler(registry).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	return string(body)
}

func TestPipelineMetricsExposeObservations(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewPipelineMetrics("worker", registry)

	m.ObserveDocument(domain.SourceKindXLSStatement, domain.StatusSucceeded, 120*time.Millisecond)
	m.ObserveRows("added", 12)
	m.ObserveRows("error", 0)
	m.ObserveExtractionAttempt("gemini", "invalid")
	m.ObserveCategorization(domain.CategorySourceRule)
	m.ObserveRetry("ollama.generate")
	m.ObserveBreakerState("ollama.generate", "open")
	m.StartJob()
	m.FinishJob(time.Second, nil)

	out := scrape(t, registry)
	for _, want := range []string{
		`expense_pipeline_documents_total{kind="xls_statement",service="worker",status="succeeded"} 1`,
		`expense_pipeline_rows_total{outcome="added",service="worker"} 12`,
		`expense_extraction_attempts_total{provider="gemini",result="invalid",service="worker"} 1`,
		`expense_categorization_assignments_total{service="worker",source="rule"} 1`,
		`expense_resilience_retries_total{operation="ollama.generate",service="worker"} 1`,
		`expense_resilience_breaker_state{operation="ollama.generate",service="worker"} 2`,
		`expense_worker_jobs_total{service="worker",status="success"} 1`,
		`expense_worker_jobs_in_flight{service="worker"} 0`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in metrics output:\n%s", want, out)
		}
	}
	if strings.Contains(out, `outcome="error"`) {
		t.Fatalf("expected zero-row observations to be skipped")
	}
}

func TestHTTPMiddlewareNormalizesPaths(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewHTTPServerMetrics("api", registry)

	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	for _, path := range []string{"/v1/transactions/abc/category", "/v1/transactions/def/category"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPut, path, nil))
	}

	out := scrape(t, registry)
	want := `expense_http_requests_total{method="PUT",path="/v1/transactions/{id}/category",service="api",status="404"} 2`
	if !strings.Contains(out, want) {
		t.Fatalf("expected %q in metrics output:\n%s", want, out)
	}
}
