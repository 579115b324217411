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

	httpadapter "github.com/OMGitsNIK/AI-Expense-Analyzer/internal/adapters/http"
	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/bootstrap"
	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/config"
	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/observability/logging"
	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger("api", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Service: "api",
		Queue:   cfg.APIAsyncIntake,
	})
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	services := httpadapter.Services{
		Ingestor:  app.IngestUC,
		Ledger:    app.LedgerUC,
		Overrider: app.LedgerUC,
		Reports:   app.ReportUC,
	}
	if app.Queue != nil {
		services.Intake = app.IntakeUC
	}

	router := httpadapter.NewRouter(cfg, services).
		WithMetrics(metrics.NewHTTPServerMetrics("api", app.Registry), metrics.Handler(app.Registry))
	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      10 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("api_listening", "addr", server.Addr, "ledger_backend", cfg.LedgerBackend, "async", app.Queue != nil)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("api_shutdown_failed", "error", err)
	}
}
