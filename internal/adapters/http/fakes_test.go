package httpadapter

import (
	"context"
	"io"
	"net/http"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/config"
	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/core/domain"
)

type ingestorFake struct {
	mu   sync.Mutex
	docs []*domain.Document
}

func (f *ingestorFake) IngestBatch(_ context.Context, docs []*domain.Document) domain.BatchReport {
	f.mu.Lock()
	f.docs = append(f.docs, docs...)
	f.mu.Unlock()

	report := domain.BatchReport{BatchID: "batch-1"}
	for _, doc := range docs {
		report.Documents = append(report.Documents, domain.DocumentReport{
			DocumentID: doc.ID,
			Filename:   doc.Filename,
			Kind:       domain.SourceKindXLSStatement,
			Status:     domain.StatusSucceeded,
			Added:      2,
		})
	}
	report.Tally()
	return report
}

type intakeFake struct {
	jobs    []domain.DocumentJob
	records map[string]*domain.DocumentRecord
	err     error
}

func (f *intakeFake) Enqueue(_ context.Context, filename string, kind domain.SourceKind, body io.Reader) (domain.DocumentJob, error) {
	if f.err != nil {
		return domain.DocumentJob{}, f.err
	}
	if _, err := io.ReadAll(body); err != nil {
		return domain.DocumentJob{}, err
	}
	job := domain.DocumentJob{DocumentID: "job-1", Filename: filename, StorageKey: "job-1_" + filename, Kind: kind}
	f.jobs = append(f.jobs, job)
	return job, nil
}

func (f *intakeFake) Status(_ context.Context, jobID string) (*domain.DocumentRecord, error) {
	if rec, ok := f.records[jobID]; ok {
		return rec, nil
	}
	return nil, domain.WrapError(domain.ErrNotFound, "document status", io.EOF)
}

type ledgerFake struct {
	txs       []domain.Transaction
	filter    domain.LedgerFilter
	err       error
	overrides map[string]string
}

func (f *ledgerFake) Query(_ context.Context, filter domain.LedgerFilter) ([]domain.Transaction, error) {
	f.filter = filter
	if f.err != nil {
		return nil, f.err
	}
	return f.txs, nil
}

func (f *ledgerFake) OverrideCategory(_ context.Context, id, category string) (domain.Transaction, error) {
	if f.err != nil {
		return domain.Transaction{}, f.err
	}
	for _, tx := range f.txs {
		if tx.ID == id {
			if f.overrides == nil {
				f.overrides = map[string]string{}
			}
			f.overrides[id] = category
			tx.Category = domain.Category(category)
			tx.CategorySource = domain.CategorySourceOverride
			return tx, nil
		}
	}
	return domain.Transaction{}, domain.WrapError(domain.ErrNotFound, "override category", io.EOF)
}

type reportsFake struct {
	published string
	filter    domain.LedgerFilter
}

func (f *reportsFake) Build(_ context.Context, filter domain.LedgerFilter) (*domain.Report, error) {
	f.filter = filter
	return &domain.Report{Filter: filter, Transactions: 1, Totals: domain.ReportTotals{Expenses: decimal.NewFromInt(450)}}, nil
}

func (f *reportsFake) Publish(ctx context.Context, filter domain.LedgerFilter, key string) (*domain.Report, error) {
	f.published = key
	return f.Build(ctx, filter)
}

func sampleTx() domain.Transaction {
	return domain.Transaction{
		ID:               "tx_1",
		Date:             domain.NewDate(2024, 4, 1),
		Description:      "UPI-ZOMATO-ORDER",
		Amount:           decimal.NewFromInt(-450),
		Currency:         "INR",
		Category:         domain.CategoryFoodDining,
		CategorySource:   domain.CategorySourceRule,
		SourceDocumentID: "doc_1",
		SourceKind:       domain.SourceKindXLSStatement,
	}
}

type testRouter struct {
	handler  http.Handler
	ingestor *ingestorFake
	intake   *intakeFake
	ledger   *ledgerFake
	reports  *reportsFake
}

func newTestRouter(cfg config.Config) testRouter {
	tr := testRouter{
		ingestor: &ingestorFake{},
		intake:   &intakeFake{records: map[string]*domain.DocumentRecord{}},
		ledger:   &ledgerFake{txs: []domain.Transaction{sampleTx()}},
		reports:  &reportsFake{},
	}
	tr.handler = NewRouter(cfg, Services{
		Ingestor:  tr.ingestor,
		Intake:    tr.intake,
		Ledger:    tr.ledger,
		Overrider: tr.ledger,
		Reports:   tr.reports,
	}).Handler()
	return tr
}
