package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/bootstrap"
	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/config"
	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/core/domain"
	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/observability/logging"
	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/observability/metrics"
)

// jobTimeout bounds one document: extraction retries plus the ledger append.
const jobTimeout = 5 * time.Minute

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger("worker", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{Service: "worker", Queue: true})
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           metrics.Handler(app.Registry),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	slog.Info("worker_subscribed", "subject", cfg.NATSSubject, "metrics_addr", metricsServer.Addr)
	err = app.Queue.SubscribeDocumentQueued(ctx, func(handlerCtx context.Context, job domain.DocumentJob) error {
		processCtx, cancel := context.WithTimeout(handlerCtx, jobTimeout)
		defer cancel()

		start := time.Now()
		app.Metrics.StartJob()
		err := app.ProcessUC.Process(processCtx, job)
		app.Metrics.FinishJob(time.Since(start), err)
		return err
	})
	if err != nil {
		slog.Error("worker_subscribe_failed", "error", err)
		os.Exit(1)
	}
}
