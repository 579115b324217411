package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/config"
	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/core/domain"
	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/core/ports"
	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/core/usecase"
	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/observability/metrics"
)

const multipartMemory = 32 << 20

// DocumentIntake stores uploads for asynchronous workers and reports their
// progress.
type DocumentIntake interface {
	Enqueue(ctx context.Context, filename string, kind domain.SourceKind, body io.Reader) (domain.DocumentJob, error)
	Status(ctx context.Context, jobID string) (*domain.DocumentRecord, error)
}

type ReportService interface {
	ports.ReportBuilder
	Publish(ctx context.Context, filter domain.LedgerFilter, key string) (*domain.Report, error)
}

// Services are the use cases behind the API. Intake may be nil when no
// queue is configured; asynchronous uploads are then refused.
type Services struct {
	Ingestor  ports.BatchIngestor
	Intake    DocumentIntake
	Ledger    ports.LedgerReader
	Overrider ports.CategoryOverrider
	Reports   ReportService
}

type Router struct {
	cfg      config.Config
	services Services

	httpMetrics    *metrics.HTTPServerMetrics
	metricsHandler http.Handler
}

func NewRouter(cfg config.Config, services Services) *Router {
	return &Router{
		cfg:      cfg,
		services: services,
	}
}

// WithMetrics instruments requests and serves /metrics.
func (rt *Router) WithMetrics(httpMetrics *metrics.HTTPServerMetrics, handler http.Handler) *Router {
	rt.httpMetrics = httpMetrics
	rt.metricsHandler = handler
	return rt
}

func (rt *Router) Handler() http.Handler {
	api := http.NewServeMux()
	api.Handle("POST /v1/documents", backpressureMiddleware(http.HandlerFunc(rt.uploadDocuments), rt.cfg.APIMaxInFlightBatch, rt.cfg.APIBatchQueueWait))
	api.HandleFunc("GET /v1/documents/{job_id}", rt.getDocumentJob)
	api.HandleFunc("GET /v1/transactions", rt.listTransactions)
	api.HandleFunc("PUT /v1/transactions/{id}/category", rt.overrideCategory)
	api.HandleFunc("GET /v1/report", rt.getReport)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	if rt.metricsHandler != nil {
		mux.Handle("GET /metrics", rt.metricsHandler)
	}
	mux.Handle("/v1/", rateLimitMiddleware(api, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst))

	var handler http.Handler = mux
	if rt.httpMetrics != nil {
		handler = rt.httpMetrics.Middleware(handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// uploadDocuments runs a batch over every "file" part, or queues the files
// when async=true.
func (rt *Router) uploadDocuments(w http.ResponseWriter, r *http.Request) {
	if limit := rt.cfg.APIMaxUploadBytes; limit > 0 {
		if r.ContentLength > limit {
			rt.writeError(w, r, &http.MaxBytesError{Limit: limit})
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		rt.writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "parse upload", err))
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		rt.writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "parse upload", errors.New("multipart field 'file' is required")))
		return
	}

	var kind domain.SourceKind
	if raw := strings.TrimSpace(r.FormValue("kind")); raw != "" {
		parsed, err := domain.ParseSourceKind(raw)
		if err != nil {
			rt.writeError(w, r, err)
			return
		}
		kind = parsed
	}

	async, _ := strconv.ParseBool(r.URL.Query().Get("async"))
	if async {
		rt.enqueueDocuments(w, r, files, kind)
		return
	}

	docs := make([]*domain.Document, 0, len(files))
	for _, fh := range files {
		content, err := readUpload(fh)
		if err != nil {
			rt.writeError(w, r, err)
			return
		}
		rt.recordUpload("sync", len(content))
		docs = append(docs, domain.NewDocument(fh.Filename, kind, content))
	}

	report := rt.services.Ingestor.IngestBatch(r.Context(), docs)
	slog.Info("batch_completed",
		"request_id", requestIDFromContext(r.Context()),
		"batch_id", report.BatchID,
		"succeeded", report.Succeeded,
		"documents", len(report.Documents),
		"added", report.Added,
	)
	writeJSON(w, http.StatusOK, report)
}

func (rt *Router) enqueueDocuments(w http.ResponseWriter, r *http.Request, files []*multipart.FileHeader, kind domain.SourceKind) {
	if rt.services.Intake == nil {
		rt.writeError(w, r, domain.WrapError(domain.ErrTemporary, "enqueue documents", errors.New("asynchronous ingestion is not configured")))
		return
	}

	jobs := make([]domain.DocumentJob, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			rt.writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "open upload "+fh.Filename, err))
			return
		}
		job, err := rt.services.Intake.Enqueue(r.Context(), fh.Filename, kind, f)
		_ = f.Close()
		if err != nil {
			rt.writeError(w, r, err)
			return
		}
		rt.recordUpload("async", int(fh.Size))
		jobs = append(jobs, job)
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"jobs": jobs})
}

func (rt *Router) getDocumentJob(w http.ResponseWriter, r *http.Request) {
	if rt.services.Intake == nil {
		rt.writeError(w, r, domain.WrapError(domain.ErrNotFound, "document status", errors.New("document tracking is disabled")))
		return
	}
	record, err := rt.services.Intake.Status(r.Context(), r.PathValue("job_id"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (rt *Router) listTransactions(w http.ResponseWriter, r *http.Request) {
	filter, err := parseLedgerFilter(r.URL.Query())
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	txs, err := rt.services.Ledger.Query(r.Context(), filter)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if txs == nil {
		txs = []domain.Transaction{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txs, "count": len(txs)})
}

func (rt *Router) overrideCategory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Category string `json:"category"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rt.writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "decode override", errors.New("invalid json")))
		return
	}
	if strings.TrimSpace(req.Category) == "" {
		rt.writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "decode override", errors.New("category is required")))
		return
	}

	tx, err := rt.services.Overrider.OverrideCategory(r.Context(), r.PathValue("id"), req.Category)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

// getReport builds the report; save=true also writes it to the configured
// report path.
func (rt *Router) getReport(w http.ResponseWriter, r *http.Request) {
	filter, err := parseLedgerFilter(r.URL.Query())
	if err != nil {
		rt.writeError(w, r, err)
		return
	}

	var report *domain.Report
	if save, _ := strconv.ParseBool(r.URL.Query().Get("save")); save {
		report, err = rt.services.Reports.Publish(r.Context(), filter, rt.cfg.ReportPath)
	} else {
		report, err = rt.services.Reports.Build(r.Context(), filter)
	}
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (rt *Router) recordUpload(mode string, size int) {
	if rt.httpMetrics != nil {
		rt.httpMetrics.RecordUpload(mode, size)
	}
}

func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("http_handler_failed", "request_id", requestIDFromContext(r.Context()), "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, map[string]string{
		"error":      err.Error(),
		"kind":       domain.KindName(err),
		"request_id": requestIDFromContext(r.Context()),
	})
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "open upload "+fh.Filename, err)
	}
	defer f.Close()
	return usecase.ReadDocument(f)
}

func parseLedgerFilter(q url.Values) (domain.LedgerFilter, error) {
	filter := domain.LedgerFilter{
		Category:         domain.Category(strings.TrimSpace(q.Get("category"))),
		SourceDocumentID: strings.TrimSpace(q.Get("source_document_id")),
	}

	var problems []error
	if raw := q.Get("from"); raw != "" {
		d, err := domain.ParseDate(raw)
		if err != nil {
			problems = append(problems, err)
		}
		filter.From = d
	}
	if raw := q.Get("to"); raw != "" {
		d, err := domain.ParseDate(raw)
		if err != nil {
			problems = append(problems, err)
		}
		filter.To = d
	}
	if raw := q.Get("uncategorized"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Errorf("uncategorized: %w", err))
		}
		filter.Uncategorized = v
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			problems = append(problems, fmt.Errorf("limit must be a non-negative integer, got %q", raw))
		}
		filter.Limit = n
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		problems = append(problems, errors.New("to is before from"))
	}
	if len(problems) > 0 {
		return domain.LedgerFilter{}, domain.WrapError(domain.ErrInvalidInput, "parse ledger filter", errors.Join(problems...))
	}
	return filter, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
