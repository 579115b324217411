package main

import (
	"encoding/json"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/bootstrap"
	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/config"
	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/observability/logging"
)

// rootOptions carry the persistent flags. Set flags win over the environment.
type rootOptions struct {
	backend  string
	ledger   string
	storage  string
	provider string
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "expense",
		Short: "Ingest bank statements and invoices into a categorized ledger",
		Long: `expense reads bank statement workbooks (.xls, .xlsx) and invoices (PDF, images),
normalizes them into one deduplicated ledger and reports on it.

Examples:
  expense ingest statement-apr.xlsx statement-may.xlsx
  expense ingest --kind pdf_invoice receipt.pdf
  expense query --category "Food & Dining" --from 2024-04-01
  expense report --out reports/april.json
  expense override 3f2a... Shopping`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.backend, "backend", "", "ledger backend: jsonfile or postgres (env LEDGER_BACKEND)")
	flags.StringVar(&opts.ledger, "ledger", "", "ledger file for the jsonfile backend (env LEDGER_PATH)")
	flags.StringVar(&opts.storage, "storage", "", "directory for stored documents and reports (env STORAGE_PATH)")
	flags.StringVar(&opts.provider, "provider", "", "AI provider: ollama or gemini (env AI_PROVIDER)")
	flags.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error (env LOG_LEVEL)")

	root.AddCommand(
		newIngestCmd(opts),
		newQueryCmd(opts),
		newReportCmd(opts),
		newOverrideCmd(opts),
		newRecategorizeCmd(opts),
	)
	return root
}

func (o *rootOptions) config() config.Config {
	cfg := config.Load()
	if o.backend != "" {
		cfg.LedgerBackend = o.backend
	}
	if o.ledger != "" {
		cfg.LedgerPath = o.ledger
	}
	if o.storage != "" {
		cfg.StoragePath = o.storage
	}
	if o.provider != "" {
		cfg.AIProvider = o.provider
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	return cfg
}

// open wires the application for one command. Logs go to stderr so stdout
// carries only command output.
func (o *rootOptions) open(cmd *cobra.Command, offline bool) (*bootstrap.App, error) {
	cfg := o.config()
	slog.SetDefault(logging.NewCLILogger(cmd.ErrOrStderr(), "expense", cfg.LogLevel))
	return bootstrap.New(cmd.Context(), cfg, bootstrap.Options{Service: "expense", Offline: offline})
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
