package pdftext

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/core/domain"
)

// Extractor pulls the text layer out of PDF documents for providers that
// only accept text. Scanned PDFs yield an empty string.
type Extractor struct {
	password string
	maxPages int
}

func NewExtractor(password string, maxPages int) *Extractor {
	if maxPages <= 0 {
		maxPages = 50
	}
	return &Extractor{password: password, maxPages: maxPages}
}

func (e *Extractor) ExtractText(ctx context.Context, content []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = domain.WrapError(domain.ErrMalformedStatement, "extract pdf text", fmt.Errorf("corrupt pdf: %v", r))
		}
	}()

	reader, err := pdf.NewReaderEncrypted(bytes.NewReader(content), int64(len(content)), e.passwords())
	if err != nil {
		if errors.Is(err, pdf.ErrInvalidPassword) {
			return "", domain.WrapError(domain.ErrInvalidInput, "open pdf", err)
		}
		return "", domain.WrapError(domain.ErrMalformedStatement, "open pdf", err)
	}

	pages := min(reader.NumPage(), e.maxPages)
	fonts := make(map[string]*pdf.Font)
	var out strings.Builder
	for i := 1; i <= pages; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		for _, name := range page.Fonts() {
			if _, ok := fonts[name]; !ok {
				font := page.Font(name)
				fonts[name] = &font
			}
		}
		pageText, err := page.GetPlainText(fonts)
		if err != nil {
			return "", domain.WrapError(domain.ErrMalformedStatement, fmt.Sprintf("extract pdf page %d", i), err)
		}
		if pageText = strings.TrimSpace(pageText); pageText != "" {
			if out.Len() > 0 {
				out.WriteString("\n\n")
			}
			out.WriteString(pageText)
		}
	}
	return out.String(), nil
}

// passwords yields the configured password once. The reader keeps asking
// until it gets an empty string.
func (e *Extractor) passwords() func() string {
	tried := e.password == ""
	return func() string {
		if tried {
			return ""
		}
		tried = true
		return e.password
	}
}
