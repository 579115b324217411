package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"

	mcpadapter "github.com/OMGitsNIK/AI-Expense-Analyzer/internal/adapters/mcp"
	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/bootstrap"
	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/config"
	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/observability/logging"
)

var version = "dev"

// main serves the ledger tools over stdio. Stdout belongs to the protocol,
// so every log line goes to stderr.
func main() {
	cfg := config.Load()
	logger := logging.NewCLILogger(os.Stderr, "mcp", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{Service: "mcp", Offline: true})
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	tools := mcpadapter.NewTools(app.LedgerUC, app.ReportUC)
	stdio := server.NewStdioServer(mcpadapter.NewServer(tools, version))
	stdio.SetErrorLogger(slog.NewLogLogger(logger.Handler(), slog.LevelError))

	slog.Info("mcp_serving_stdio", "ledger_backend", cfg.LedgerBackend)
	if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("mcp_server_failed", "error", err)
	}
}
