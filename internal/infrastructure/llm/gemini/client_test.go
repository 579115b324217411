package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/core/domain"
	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/core/ports"
)

type generateRequest struct {
	Contents []struct {
		Role  string `json:"role"`
		Parts []struct {
			Text       string `json:"text"`
			InlineData *struct {
				MIMEType string `json:"mimeType"`
				Data     string `json:"data"`
			} `json:"inlineData"`
		} `json:"parts"`
	} `json:"contents"`
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := New(context.Background(), Config{APIKey: "test-key", Model: "gemini-test", BaseURL: server.URL, Timeout: time.Second}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return client
}

func TestSubmitSendsInlinePDF(t *testing.T) {
	var captured generateRequest
	var path string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"transactions\":[]}"}]}}]}`))
	})

	answer, err := client.Submit(context.Background(), "Extract transactions.", ports.AIContent{
		MIMEType: "application/pdf",
		Data:     []byte("%PDF-1.4"),
		Text:     "ignored when bytes are attached",
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if answer != `{"transactions":[]}` {
		t.Fatalf("unexpected answer: %q", answer)
	}
	if !strings.Contains(path, "gemini-test:generateContent") {
		t.Fatalf("unexpected path: %s", path)
	}
	if len(captured.Contents) != 1 || len(captured.Contents[0].Parts) != 2 {
		t.Fatalf("unexpected request: %+v", captured)
	}
	parts := captured.Contents[0].Parts
	if parts[0].Text != "Extract transactions." || parts[1].InlineData == nil || parts[1].InlineData.MIMEType != "application/pdf" {
		t.Fatalf("unexpected parts: %+v", parts)
	}
}

func TestSubmitSendsTextInput(t *testing.T) {
	var captured generateRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&captured)
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"Transportation"}]}}]}`))
	})

	answer, err := client.Submit(context.Background(), "Pick a category.", ports.AIContent{Text: "UBER TRIP"})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if answer != "Transportation" {
		t.Fatalf("unexpected answer: %q", answer)
	}
	if parts := captured.Contents[0].Parts; len(parts) != 2 || !strings.Contains(parts[1].Text, "UBER TRIP") {
		t.Fatalf("unexpected parts: %+v", parts)
	}
}

func TestSubmitMapsServerErrorToUnavailable(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"code":503,"message":"overloaded","status":"UNAVAILABLE"}}`))
	})

	_, err := client.Submit(context.Background(), "Extract.", ports.AIContent{Text: "x"})
	if !domain.IsKind(err, domain.ErrProviderUnavailable) {
		t.Fatalf("expected provider unavailable, got %v", err)
	}
	if class := classifyGeminiError(err); !class.Retryable {
		t.Fatalf("expected 503 to be retryable, got %+v", class)
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New(context.Background(), Config{}, nil); err == nil {
		t.Fatalf("expected error without api key")
	}
}
