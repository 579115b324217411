package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/bootstrap"
	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/core/domain"
	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/core/usecase"
	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/infrastructure/storage/localfs"
)

func newIngestCmd(root *rootOptions) *cobra.Command {
	var (
		kind    string
		offline bool
	)
	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Ingest documents as one batch",
		Long: `Ingest parses or extracts every file, categorizes the rows and appends new
transactions to the ledger. A failing document does not stop the others; the
command fails only when no document succeeded.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var declared domain.SourceKind
			if kind != "" {
				parsed, err := domain.ParseSourceKind(kind)
				if err != nil {
					return err
				}
				declared = parsed
			}

			docs := make([]*domain.Document, 0, len(args))
			for _, path := range args {
				content, err := readFile(path)
				if err != nil {
					return err
				}
				docs = append(docs, domain.NewDocument(filepath.Base(path), declared, content))
			}

			app, err := root.open(cmd, offline)
			if err != nil {
				return err
			}
			defer app.Close()

			report := app.IngestUC.IngestBatch(cmd.Context(), docs)
			if err := printJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if report.Succeeded == 0 {
				return fmt.Errorf("all %d documents failed", report.Failed)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "declared source kind for every file: pdf_invoice or xls_statement")
	cmd.Flags().BoolVar(&offline, "offline", false, "skip the AI provider; statements only, rule-based categories")
	return cmd
}

func readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "open "+path, err)
	}
	defer f.Close()
	return usecase.ReadDocument(f)
}

// filterFlags binds the ledger filter shared by query, report and recategorize.
type filterFlags struct {
	category      string
	from          string
	to            string
	document      string
	uncategorized bool
	limit         int
}

func (f *filterFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.category, "category", "", "only this category")
	cmd.Flags().StringVar(&f.from, "from", "", "first date, YYYY-MM-DD")
	cmd.Flags().StringVar(&f.to, "to", "", "last date, YYYY-MM-DD")
	cmd.Flags().StringVar(&f.document, "document", "", "only rows from this source document id")
	cmd.Flags().BoolVar(&f.uncategorized, "uncategorized", false, "only uncategorized rows")
}

func (f *filterFlags) filter() (domain.LedgerFilter, error) {
	filter := domain.LedgerFilter{
		Category:         domain.Category(f.category),
		SourceDocumentID: f.document,
		Uncategorized:    f.uncategorized,
		Limit:            f.limit,
	}
	var problems []error
	if f.from != "" {
		d, err := domain.ParseDate(f.from)
		if err != nil {
			problems = append(problems, fmt.Errorf("--from: %w", err))
		}
		filter.From = d
	}
	if f.to != "" {
		d, err := domain.ParseDate(f.to)
		if err != nil {
			problems = append(problems, fmt.Errorf("--to: %w", err))
		}
		filter.To = d
	}
	if f.limit < 0 {
		problems = append(problems, errors.New("--limit must not be negative"))
	}
	if len(problems) > 0 {
		return domain.LedgerFilter{}, domain.WrapError(domain.ErrInvalidInput, "parse filter", errors.Join(problems...))
	}
	return filter, nil
}

func newQueryCmd(root *rootOptions) *cobra.Command {
	var flags filterFlags
	cmd := &cobra.Command{
		Use:   "query",
		Short: "List ledger transactions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter, err := flags.filter()
			if err != nil {
				return err
			}
			app, err := root.open(cmd, true)
			if err != nil {
				return err
			}
			defer app.Close()

			txs, err := app.LedgerUC.Query(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if txs == nil {
				txs = []domain.Transaction{}
			}
			return printJSON(cmd.OutOrStdout(), txs)
		},
	}
	flags.bind(cmd)
	cmd.Flags().IntVar(&flags.limit, "limit", 0, "maximum number of rows, 0 for all")
	return cmd
}

func newReportCmd(root *rootOptions) *cobra.Command {
	var (
		flags   filterFlags
		out     string
		publish bool
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize spending by category and month",
		Long: `Report prints the aggregated report as JSON. With --out it is written to that file;
with --publish it is stored under REPORT_PATH in the storage directory, where the API serves it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter, err := flags.filter()
			if err != nil {
				return err
			}
			app, err := root.open(cmd, true)
			if err != nil {
				return err
			}
			defer app.Close()

			if out == "" && !publish {
				report, err := app.ReportUC.Build(cmd.Context(), filter)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), report)
			}

			reports, key, target := app.ReportUC, app.Config.ReportPath, ""
			if out != "" {
				reports, key, err = fileReports(app, out)
				if err != nil {
					return err
				}
				target = out
			} else if target, err = app.Storage.Path(key); err != nil {
				return err
			}

			report, err := reports.Publish(cmd.Context(), filter, key)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "report written to %s (%d transactions)\n", target, report.Transactions)
			return nil
		},
	}
	flags.bind(cmd)
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the report to this file instead of stdout")
	cmd.Flags().BoolVar(&publish, "publish", false, "store the report under REPORT_PATH in the storage directory")
	cmd.MarkFlagsMutuallyExclusive("out", "publish")
	return cmd
}

// fileReports publishes into the directory of path, so the write is atomic
// like every other stored report.
func fileReports(app *bootstrap.App, path string) (*usecase.ReportUseCase, string, error) {
	dir, err := localfs.New(filepath.Dir(path))
	if err != nil {
		return nil, "", err
	}
	return usecase.NewReportUseCase(app.Store, dir), filepath.Base(path), nil
}

func newOverrideCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "override <transaction-id> <category>",
		Short: "Set a transaction's category by hand",
		Long:  "Override pins a category on a transaction. Later categorization runs never change it.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := root.open(cmd, true)
			if err != nil {
				return err
			}
			defer app.Close()

			tx, err := app.LedgerUC.OverrideCategory(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), tx)
		},
	}
}

func newRecategorizeCmd(root *rootOptions) *cobra.Command {
	var (
		flags   filterFlags
		offline bool
	)
	cmd := &cobra.Command{
		Use:   "recategorize",
		Short: "Re-run categorization over stored transactions",
		Long:  "Recategorize applies the current rule table (and the AI provider unless --offline) to matching rows. Overridden rows are left alone.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter, err := flags.filter()
			if err != nil {
				return err
			}
			app, err := root.open(cmd, offline)
			if err != nil {
				return err
			}
			defer app.Close()

			changed, err := app.LedgerUC.Recategorize(cmd.Context(), filter)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d transactions recategorized\n", changed)
			return nil
		},
	}
	flags.bind(cmd)
	cmd.Flags().BoolVar(&offline, "offline", false, "use the rule table only")
	return cmd
}
