package httpadapter

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/config"
	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/core/domain"
)

func multipartUpload(t *testing.T, fields map[string]string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for name, content := range files {
		part, err := writer.CreateFormFile("file", name)
		if err != nil {
			t.Fatalf("CreateFormFile() error = %v", err)
		}
		if _, err := part.Write([]byte(content)); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			t.Fatalf("WriteField() error = %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return &body, writer.FormDataContentType()
}

func TestHealthzEndpoint(t *testing.T) {
	tr := newTestRouter(config.Config{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()
	tr.handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected request id header")
	}
}

func TestUploadDocumentsRunsBatch(t *testing.T) {
	tr := newTestRouter(config.Config{})
	body, contentType := multipartUpload(t, map[string]string{"kind": "xls_statement"}, map[string]string{
		"april.xlsx": "first",
		"may.xlsx":   "second",
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	tr.handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	var report domain.BatchReport
	if err := json.NewDecoder(res.Body).Decode(&report); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if report.Succeeded != 2 || report.Added != 4 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if len(tr.ingestor.docs) != 2 || tr.ingestor.docs[0].DeclaredKind != domain.SourceKindXLSStatement {
		t.Fatalf("unexpected documents handed to ingestor: %+v", tr.ingestor.docs)
	}
}

func TestUploadDocumentsAsyncQueuesJobs(t *testing.T) {
	tr := newTestRouter(config.Config{})
	body, contentType := multipartUpload(t, nil, map[string]string{"invoice.pdf": "%PDF-1.4"})

	req := httptest.NewRequest(http.MethodPost, "/v1/documents?async=true", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	tr.handler.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", res.Code, res.Body.String())
	}
	if len(tr.intake.jobs) != 1 || tr.intake.jobs[0].Filename != "invoice.pdf" {
		t.Fatalf("unexpected queued jobs: %+v", tr.intake.jobs)
	}
	if len(tr.ingestor.docs) != 0 {
		t.Fatalf("async upload must not run a batch inline")
	}
}

func TestUploadDocumentsRejectsUnknownKind(t *testing.T) {
	tr := newTestRouter(config.Config{})
	body, contentType := multipartUpload(t, map[string]string{"kind": "receipt"}, map[string]string{"a.pdf": "x"})

	req := httptest.NewRequest(http.MethodPost, "/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	tr.handler.ServeHTTP(res, req)

	if res.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d", res.Code)
	}
}

func TestUploadDocumentsMissingMultipartField(t *testing.T) {
	tr := newTestRouter(config.Config{})

	req := httptest.NewRequest(http.MethodPost, "/v1/documents", bytes.NewBufferString("plain-text"))
	req.Header.Set("Content-Type", "text/plain")
	res := httptest.NewRecorder()
	tr.handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestUploadDocumentsRejectsEmptyFile(t *testing.T) {
	tr := newTestRouter(config.Config{})
	body, contentType := multipartUpload(t, nil, map[string]string{"empty.xlsx": ""})

	req := httptest.NewRequest(http.MethodPost, "/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	tr.handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestUploadDocumentsTooLarge(t *testing.T) {
	tr := newTestRouter(config.Config{APIMaxUploadBytes: 64})
	body, contentType := multipartUpload(t, nil, map[string]string{"big.xlsx": string(bytes.Repeat([]byte("x"), 1024))})

	req := httptest.NewRequest(http.MethodPost, "/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	tr.handler.ServeHTTP(res, req)

	if res.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", res.Code)
	}
}

func TestGetDocumentJob(t *testing.T) {
	tr := newTestRouter(config.Config{})
	tr.intake.records["job-1"] = &domain.DocumentRecord{JobID: "job-1", Status: domain.StatusSucceeded, Added: 3}

	req := httptest.NewRequest(http.MethodGet, "/v1/documents/job-1", nil)
	res := httptest.NewRecorder()
	tr.handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var rec map[string]any
	if err := json.NewDecoder(res.Body).Decode(&rec); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if rec["status"] != "succeeded" {
		t.Fatalf("unexpected record: %+v", rec)
	}
}
