package usecase

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/core/domain"
)

var (
	pdfMagic  = []byte("%PDF-")
	ole2Magic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
	zipMagic  = []byte{'P', 'K', 0x03, 0x04}
)

// RouteDocument decides how a document is parsed from its file signature,
// using the extension only to tell spreadsheet zips from other zips. It never
// looks at the financial content itself.
func RouteDocument(doc *domain.Document) (domain.ParsePlan, error) {
	if doc == nil || len(doc.Content) == 0 {
		return domain.ParsePlan{}, domain.WrapError(domain.ErrUnsupportedFormat, "route document", errors.New("empty document"))
	}

	container, err := sniffContainer(doc.Content, doc.Filename)
	if err != nil {
		return domain.ParsePlan{}, domain.WrapError(domain.ErrUnsupportedFormat, "route document", err)
	}

	plan := domain.ParsePlan{Container: container}
	switch container {
	case domain.ContainerPDF:
		plan.Kind = domain.SourceKindPDFInvoice
		plan.Path = domain.PathAI
	default:
		plan.Kind = domain.SourceKindXLSStatement
		plan.Path = domain.PathTabular
	}

	if doc.DeclaredKind != "" && doc.DeclaredKind != plan.Kind {
		return domain.ParsePlan{}, domain.WrapError(
			domain.ErrUnsupportedFormat,
			"route document",
			fmt.Errorf("declared kind %s does not match %s content", doc.DeclaredKind, container),
		)
	}
	return plan, nil
}

func sniffContainer(content []byte, filename string) (domain.Container, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch {
	case bytes.HasPrefix(content, pdfMagic):
		return domain.ContainerPDF, nil
	case bytes.HasPrefix(content, ole2Magic):
		if ext != "" && ext != ".xls" {
			return "", fmt.Errorf("compound file with extension %q is not a statement export", ext)
		}
		return domain.ContainerXLS, nil
	case bytes.HasPrefix(content, zipMagic):
		if ext != ".xlsx" && ext != ".xlsm" && ext != ".xls" {
			return "", fmt.Errorf("zip archive with extension %q is not a spreadsheet", ext)
		}
		return domain.ContainerXLSX, nil
	default:
		return "", fmt.Errorf("unrecognised file signature for %q", filename)
	}
}
