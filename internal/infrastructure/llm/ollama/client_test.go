package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/core/domain"
	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/core/ports"
	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/infrastructure/resilience"
)

func TestSubmitSendsPromptWithDocumentText(t *testing.T) {
	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"response":"  {\"transactions\": []}  "}`))
	}))
	defer server.Close()

	client := New(server.URL+"/", "llama3.1", time.Second, nil)
	answer, err := client.Submit(context.Background(), "Extract transactions.", ports.AIContent{
		MIMEType: "application/pdf",
		Data:     []byte("%PDF-1.4"),
		Text:     "01/04/24 ZOMATO 450.00",
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if answer != `{"transactions": []}` {
		t.Fatalf("unexpected answer: %q", answer)
	}
	prompt, _ := payload["prompt"].(string)
	if !strings.HasPrefix(prompt, "Extract transactions.") || !strings.Contains(prompt, "ZOMATO 450.00") {
		t.Fatalf("unexpected prompt: %s", prompt)
	}
	if payload["model"] != "llama3.1" || payload["stream"] != false {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestSubmitRejectsBinaryWithoutText(t *testing.T) {
	client := New("http://127.0.0.1:1", "llama3.1", time.Second, nil)
	_, err := client.Submit(context.Background(), "Extract.", ports.AIContent{MIMEType: "application/pdf", Data: []byte("%PDF-1.4")})
	if !domain.IsKind(err, domain.ErrExtractionUnreliable) {
		t.Fatalf("expected extraction unreliable, got %v", err)
	}
	if domain.IsKind(err, domain.ErrProviderUnavailable) || domain.IsKind(err, domain.ErrProviderTimeout) {
		t.Fatalf("a document without text must not look like a provider outage, got %v", err)
	}
}

func TestSubmitIncludesHTTPBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	client := New(server.URL, "llama3.1", time.Second, nil)
	_, err := client.Submit(context.Background(), "Categorize.", ports.AIContent{Text: "UBER TRIP"})
	if !domain.IsKind(err, domain.ErrProviderUnavailable) {
		t.Fatalf("expected provider unavailable, got %v", err)
	}
	if !strings.Contains(err.Error(), "model unavailable") {
		t.Fatalf("expected response body in error, got %v", err)
	}
}

func TestSubmitTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer server.Close()
	defer close(release)

	client := New(server.URL, "llama3.1", time.Second, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.Submit(ctx, "Categorize.", ports.AIContent{Text: "UBER TRIP"})
	if !domain.IsKind(err, domain.ErrProviderTimeout) {
		t.Fatalf("expected provider timeout, got %v", err)
	}
}

func TestSubmitBreakerOpensOnServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	executor := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:        1,
		RetryInitialBackoff:     time.Millisecond,
		RetryMaxBackoff:         time.Millisecond,
		RetryMultiplier:         2,
		BreakerEnabled:          true,
		BreakerMinRequests:      2,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      time.Minute,
		BreakerHalfOpenMaxCalls: 1,
	})
	client := New(server.URL, "llama3.1", time.Second, executor)

	for i := 0; i < 3; i++ {
		_, err := client.Submit(context.Background(), "Categorize.", ports.AIContent{Text: "UBER TRIP"})
		if !domain.IsKind(err, domain.ErrProviderUnavailable) {
			t.Fatalf("call %d: expected provider unavailable, got %v", i, err)
		}
	}
	if calls.Load() != 2 {
		t.Fatalf("expected breaker to stop the third call, server saw %d", calls.Load())
	}
}

func TestClassifyOllamaError(t *testing.T) {
	if class := classifyOllamaError(&HTTPStatusError{StatusCode: http.StatusBadRequest}); class.Retryable || class.RecordFailure {
		t.Fatalf("expected bad request to be ignored by the breaker, got %+v", class)
	}
	if class := classifyOllamaError(&HTTPStatusError{StatusCode: http.StatusTooManyRequests}); !class.Retryable || !class.RecordFailure {
		t.Fatalf("expected 429 to be retryable, got %+v", class)
	}
	if class := classifyOllamaError(context.Canceled); class.RecordFailure {
		t.Fatalf("expected cancellation not to be recorded, got %+v", class)
	}
}
