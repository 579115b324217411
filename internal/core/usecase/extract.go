package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/core/domain"
	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/core/ports"
)

const (
	defaultExtractionAttempts = 3
	defaultExtractionTimeout  = 120 * time.Second
)

type ExtractorConfig struct {
	// MaxAttempts counts the first submission too.
	MaxAttempts int
	Timeout     time.Duration
}

// Extractor turns a document into validated candidate rows through an AI
// provider. Responses are untrusted and validated item by item.
type Extractor struct {
	provider ports.AIProvider
	text     ports.TextExtractor
	cfg      ExtractorConfig
	observer ports.PipelineObserver
}

func NewExtractor(provider ports.AIProvider, text ports.TextExtractor, cfg ExtractorConfig, observer ports.PipelineObserver) *Extractor {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultExtractionAttempts
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultExtractionTimeout
	}
	return &Extractor{
		provider: provider,
		text:     text,
		cfg:      cfg,
		observer: observerOrNop(observer),
	}
}

func (e *Extractor) Extract(ctx context.Context, doc *domain.Document) (domain.ExtractionResult, error) {
	docCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	content := e.prepareContent(docCtx, doc)
	layout := guessLayout(content.Text)

	var defect error
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		prompt := buildExtractionPrompt(layout, defect)
		response, err := e.provider.Submit(docCtx, prompt, content)
		if err != nil {
			return domain.ExtractionResult{Attempts: attempt}, e.providerFailure(ctx, docCtx, err)
		}

		result, parseErr := parseExtractionResponse(response)
		if parseErr == nil {
			e.observer.ObserveExtractionAttempt(e.provider.Name(), "ok")
			result.Attempts = attempt
			return result, nil
		}

		defect = parseErr
		e.observer.ObserveExtractionAttempt(e.provider.Name(), "invalid")
		slog.Warn("extraction_response_rejected",
			"document_id", doc.ID,
			"provider", e.provider.Name(),
			"layout", layout.String(),
			"attempt", attempt,
			"max_attempts", e.cfg.MaxAttempts,
			"error", parseErr,
		)
	}

	return domain.ExtractionResult{Attempts: e.cfg.MaxAttempts}, domain.WrapError(
		domain.ErrExtractionUnreliable,
		"extract document",
		fmt.Errorf("%d attempts rejected: %w", e.cfg.MaxAttempts, defect),
	)
}

func (e *Extractor) prepareContent(ctx context.Context, doc *domain.Document) ports.AIContent {
	content := ports.AIContent{MIMEType: "application/pdf", Data: doc.Content}
	if e.text == nil {
		return content
	}
	text, err := e.text.ExtractText(ctx, doc.Content)
	if err != nil {
		slog.Warn("pdf_text_extraction_failed", "document_id", doc.ID, "error", err)
		return content
	}
	content.Text = text
	return content
}

// providerFailure separates timeouts from every other provider failure. The
// caller's own cancellation is passed through untouched.
func (e *Extractor) providerFailure(parent, docCtx context.Context, err error) error {
	if parentErr := parent.Err(); parentErr != nil {
		return fmt.Errorf("extract document: %w", parentErr)
	}
	// The provider cannot read this document; asking again will not help.
	if domain.IsKind(err, domain.ErrExtractionUnreliable) {
		e.observer.ObserveExtractionAttempt(e.provider.Name(), "invalid")
		return fmt.Errorf("extract document: %w", err)
	}
	if errors.Is(err, context.DeadlineExceeded) || domain.IsKind(err, domain.ErrProviderTimeout) || errors.Is(docCtx.Err(), context.DeadlineExceeded) {
		e.observer.ObserveExtractionAttempt(e.provider.Name(), "timeout")
		return domain.WrapError(domain.ErrProviderTimeout, "extract document", err)
	}
	e.observer.ObserveExtractionAttempt(e.provider.Name(), "unavailable")
	if domain.IsKind(err, domain.ErrProviderUnavailable) {
		return fmt.Errorf("extract document: %w", err)
	}
	return domain.WrapError(domain.ErrProviderUnavailable, "extract document", err)
}

// parseExtractionResponse accepts {"transactions":[...]}, {"invoice":{...}},
// a bare invoice object or a bare array. A response with no valid item at
// all is a defect; individual invalid items are dropped and reported.
func parseExtractionResponse(response string) (domain.ExtractionResult, error) {
	payload := cleanModelJSON(response)
	if payload == "" {
		return domain.ExtractionResult{}, errors.New("response contained no JSON")
	}

	dec := json.NewDecoder(strings.NewReader(payload))
	dec.UseNumber()
	var decoded any
	if err := dec.Decode(&decoded); err != nil {
		return domain.ExtractionResult{}, fmt.Errorf("response is not valid JSON: %w", err)
	}

	var items []any
	var result domain.ExtractionResult
	switch v := decoded.(type) {
	case []any:
		items = v
	case map[string]any:
		result.Info = statementInfoFromResponse(v)
		switch {
		case isArray(v["transactions"]):
			items = v["transactions"].([]any)
		case isArray(v["items"]):
			items = v["items"].([]any)
		case isObject(v["invoice"]):
			items = []any{invoiceItem(v["invoice"].(map[string]any))}
		case v["total_amount"] != nil || v["invoice_number"] != nil:
			items = []any{invoiceItem(v)}
		default:
			return domain.ExtractionResult{}, errors.New(`response has no "transactions" array or "invoice" object`)
		}
	default:
		return domain.ExtractionResult{}, errors.New("response is neither an object nor an array")
	}

	for i, raw := range items {
		line := i + 1
		item, ok := raw.(map[string]any)
		if !ok {
			result.Errors = append(result.Errors, domain.RowError{Line: line, Stage: domain.StageExtract, Reason: "item is not an object"})
			continue
		}
		row, err := domain.ValidateCandidate(item, line)
		if err != nil {
			result.Errors = append(result.Errors, domain.RowError{Line: line, Stage: domain.StageExtract, Reason: err.Error()})
			continue
		}
		result.Rows = append(result.Rows, row)
	}

	if len(result.Rows) == 0 {
		return domain.ExtractionResult{}, fmt.Errorf("none of %d items passed validation", len(items))
	}
	return result, nil
}

// invoiceItem maps an invoice onto a single debit line.
func invoiceItem(inv map[string]any) map[string]any {
	item := make(map[string]any, len(inv)+2)
	for k, v := range inv {
		item[k] = v
	}
	if _, ok := item["description"]; !ok {
		vendor, _ := inv["vendor"].(string)
		number, _ := inv["invoice_number"].(string)
		desc := strings.TrimSpace(vendor)
		if number != "" {
			desc = strings.TrimSpace(desc + " invoice " + number)
		}
		item["description"] = desc
	}
	if _, ok := item["type"]; !ok {
		item["type"] = "debit"
	}
	return item
}

func statementInfoFromResponse(v map[string]any) domain.StatementInfo {
	var info domain.StatementInfo
	info.AccountNumber, _ = v["account_number"].(string)
	info.AccountHolder, _ = v["account_holder"].(string)
	if s, ok := v["period_from"].(string); ok {
		info.PeriodFrom, _ = domain.ParseDateLayouts(s, commonDateLayouts)
	}
	if s, ok := v["period_to"].(string); ok {
		info.PeriodTo, _ = domain.ParseDateLayouts(s, commonDateLayouts)
	}
	return info
}

// cleanModelJSON strips markdown fences and any prose around the outermost
// JSON value.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```JSON")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return ""
	}
	closer := "}"
	if s[start] == '[' {
		closer = "]"
	}
	end := strings.LastIndex(s, closer)
	if end <= start {
		return ""
	}
	return s[start : end+1]
}

func isArray(v any) bool {
	_, ok := v.([]any)
	return ok
}

func isObject(v any) bool {
	_, ok := v.(map[string]any)
	return ok
}
