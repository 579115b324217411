package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/config"
	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/core/ports"
	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/core/usecase"
	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/infrastructure/extractor/pdftext"
	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/infrastructure/llm/gemini"
	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/infrastructure/llm/ollama"
	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/infrastructure/llm/ratelimit"
	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/infrastructure/queue/nats"
	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/infrastructure/repository/jsonfile"
	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/infrastructure/repository/postgres"
	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/infrastructure/resilience"
	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/infrastructure/rules"
	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/infrastructure/statement"
	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/infrastructure/storage/localfs"
	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/observability/metrics"
)

// Options select the optional parts of the graph per binary.
type Options struct {
	Service string
	// Queue connects to NATS for asynchronous intake and batch notifications.
	Queue bool
	// Offline skips the AI provider; only tabular statements can be ingested
	// and categorization stops at the rule table.
	Offline bool
}

type App struct {
	Config   config.Config
	Registry *prometheus.Registry
	Metrics  *metrics.PipelineMetrics

	Store     ports.LedgerStore
	Storage   *localfs.Storage
	Queue     *nats.Queue
	Documents ports.DocumentRegistry

	IngestUC  *usecase.BatchIngestUseCase
	LedgerUC  *usecase.LedgerUseCase
	ReportUC  *usecase.ReportUseCase
	IntakeUC  *usecase.IntakeUseCase
	ProcessUC *usecase.ProcessJobUseCase

	closers []func()
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	app := &App{Config: cfg, Registry: prometheus.NewRegistry()}
	app.Metrics = metrics.NewPipelineMetrics(opts.Service, app.Registry)

	if err := app.wire(ctx, opts); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) wire(ctx context.Context, opts Options) error {
	cfg := a.Config

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return fmt.Errorf("init object storage: %w", err)
	}
	a.Storage = storage

	var db *sql.DB
	switch strings.ToLower(cfg.LedgerBackend) {
	case "postgres":
		db, err = postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		a.closers = append(a.closers, func() { _ = db.Close() })
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
		a.Store = postgres.NewLedgerRepository(db)
		a.Documents = postgres.NewDocumentRegistry(db)
	case "jsonfile", "":
		store, err := jsonfile.Open(cfg.LedgerPath)
		if err != nil {
			return fmt.Errorf("open ledger file: %w", err)
		}
		a.Store = store
	default:
		return fmt.Errorf("unknown ledger backend %q", cfg.LedgerBackend)
	}

	if opts.Queue {
		queue, err := nats.NewWithOptions(cfg.NATSURL, nats.Options{
			DocumentSubject:    cfg.NATSSubject,
			BatchSubject:       cfg.NATSBatchSubject,
			MaxDeliveries:      cfg.NATSMaxDeliveries,
			ResilienceExecutor: a.executor(resilience.DefaultConfig()),
		})
		if err != nil {
			return fmt.Errorf("init message queue: %w", err)
		}
		a.Queue = queue
		a.closers = append(a.closers, queue.Close)
	}

	var provider ports.AIProvider
	if !opts.Offline {
		provider, err = a.provider(ctx)
		if err != nil {
			return err
		}
	}

	formats := []statement.Format{statement.HDFC()}
	if cfg.StatementFormatsPath != "" {
		loaded, err := statement.LoadFormats(cfg.StatementFormatsPath)
		if err != nil {
			return err
		}
		formats = append(loaded, formats...)
	}

	table := rules.Default()
	if cfg.CategoryRulesPath != "" {
		table, err = rules.Load(cfg.CategoryRulesPath)
		if err != nil {
			return err
		}
	}

	tolerance, err := decimal.NewFromString(cfg.BalanceTolerance)
	if err != nil {
		return fmt.Errorf("parse balance tolerance %q: %w", cfg.BalanceTolerance, err)
	}

	categorizer := usecase.NewCategorizer(table, provider, nil, cfg.CategorizeTimeout, a.Metrics)
	var extractor *usecase.Extractor
	if provider != nil {
		extractor = usecase.NewExtractor(provider, pdftext.NewExtractor(cfg.PDFPassword, cfg.PDFMaxPages), usecase.ExtractorConfig{
			MaxAttempts: cfg.ExtractionAttempts,
			Timeout:     cfg.ExtractionTimeout,
		}, a.Metrics)
	}

	deps := usecase.BatchIngestDeps{
		Parser:      statement.NewParser(formats...),
		Extractor:   extractor,
		Normalizer:  usecase.NewNormalizer(cfg.DefaultCurrency, tolerance),
		Categorizer: categorizer,
		Store:       a.Store,
		Observer:    a.Metrics,
		Concurrency: cfg.WorkerConcurrency,
	}
	if a.Queue != nil {
		deps.Notifier = a.Queue
	}

	a.IngestUC = usecase.NewBatchIngestUseCase(deps)
	a.LedgerUC = usecase.NewLedgerUseCase(a.Store, categorizer)
	a.ReportUC = usecase.NewReportUseCase(a.Store, storage)

	var queue ports.DocumentQueue
	if a.Queue != nil {
		queue = a.Queue
	}
	a.IntakeUC = usecase.NewIntakeUseCase(storage, queue, a.Documents)
	a.ProcessUC = usecase.NewProcessJobUseCase(a.IntakeUC, a.IngestUC, a.Documents)
	return nil
}

// provider builds the configured AI backend behind a breaker and a rate
// limiter. Retries stay with the extractor, which re-prompts on bad output.
func (a *App) provider(ctx context.Context) (ports.AIProvider, error) {
	cfg := a.Config
	policy := resilience.DefaultConfig()
	policy.RetryMaxAttempts = 1
	policy.BreakerEnabled = cfg.ResilienceBreakerEnabled
	executor := a.executor(policy)

	var provider ports.AIProvider
	switch strings.ToLower(cfg.AIProvider) {
	case "ollama", "":
		provider = ollama.New(cfg.OllamaURL, cfg.OllamaModel, cfg.ExtractionTimeout, executor)
	case "gemini":
		client, err := gemini.New(ctx, gemini.Config{
			APIKey:  cfg.GeminiAPIKey,
			Model:   cfg.GeminiModel,
			BaseURL: cfg.GeminiURL,
			Timeout: cfg.ExtractionTimeout,
		}, executor)
		if err != nil {
			return nil, fmt.Errorf("init gemini provider: %w", err)
		}
		provider = client
	default:
		return nil, fmt.Errorf("unknown AI provider %q", cfg.AIProvider)
	}

	slog.Info("ai_provider_configured", "provider", provider.Name(), "rps", cfg.ProviderRPS)
	return ratelimit.Wrap(provider, cfg.ProviderRPS, cfg.ProviderBurst), nil
}

func (a *App) executor(policy resilience.Config) *resilience.Executor {
	return resilience.NewExecutor(policy).WithObserver(a.Metrics)
}

// Close flushes the ledger and releases connections in reverse order.
func (a *App) Close() {
	if a.Store != nil {
		flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := a.Store.Flush(flushCtx); err != nil {
			slog.Error("ledger_flush_failed", "error", err)
		}
		cancel()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
