package usecase

import (
	"time"

	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/core/domain"
	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/core/ports"
)

type nopObserver struct{}

func (nopObserver) ObserveDocument(domain.SourceKind, domain.ExtractionStatus, time.Duration) {}

func (nopObserver) ObserveRows(string, int) {}

func (nopObserver) ObserveExtractionAttempt(string, string) {}

func (nopObserver) ObserveCategorization(domain.CategorySource) {}

func observerOrNop(observer ports.PipelineObserver) ports.PipelineObserver {
	if observer == nil {
		return nopObserver{}
	}
	return observer
}
