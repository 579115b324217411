package mcpadapter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/core/domain"
	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/core/ports"
)

const (
	defaultQueryLimit = 100
	maxQueryLimit     = 1000
)

// Tools exposes the ledger read side to chat agents. It never writes.
type Tools struct {
	ledger  ports.LedgerReader
	reports ports.ReportBuilder
}

func NewTools(ledger ports.LedgerReader, reports ports.ReportBuilder) *Tools {
	return &Tools{ledger: ledger, reports: reports}
}

// NewServer registers ledger_query and ledger_report on a new MCP server.
func NewServer(tools *Tools, version string) *server.MCPServer {
	s := server.NewMCPServer("ai-expense-analyzer", version, server.WithToolCapabilities(false))

	filterOptions := []mcp.ToolOption{
		mcp.WithString("category", mcp.Description("Category name, case-insensitive")),
		mcp.WithString("from", mcp.Description("Earliest transaction date, YYYY-MM-DD")),
		mcp.WithString("to", mcp.Description("Latest transaction date, YYYY-MM-DD")),
		mcp.WithString("source_document_id", mcp.Description("Only transactions extracted from this document")),
	}

	queryOptions := append([]mcp.ToolOption{
		mcp.WithDescription("List ledger transactions matching a filter, oldest first."),
		mcp.WithBoolean("uncategorized", mcp.Description("Only transactions without a category")),
		mcp.WithNumber("limit", mcp.Description(fmt.Sprintf("Maximum rows, default %d, at most %d", defaultQueryLimit, maxQueryLimit))),
	}, filterOptions...)
	s.AddTool(mcp.NewTool("ledger_query", queryOptions...), tools.handleQuery)

	reportOptions := append([]mcp.ToolOption{
		mcp.WithDescription("Aggregate the ledger: totals, spending by category, monthly trend, recurring merchants and unusual expenses."),
	}, filterOptions...)
	s.AddTool(mcp.NewTool("ledger_report", reportOptions...), tools.handleReport)

	return s
}

func (t *Tools) handleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter, err := filterFromRequest(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	filter.Uncategorized = req.GetBool("uncategorized", false)
	filter.Limit = req.GetInt("limit", defaultQueryLimit)
	if filter.Limit <= 0 || filter.Limit > maxQueryLimit {
		return mcp.NewToolResultError(fmt.Sprintf("limit must be between 1 and %d", maxQueryLimit)), nil
	}

	txs, err := t.ledger.Query(ctx, filter)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("ledger query failed", err), nil
	}
	if txs == nil {
		txs = []domain.Transaction{}
	}
	return mcp.NewToolResultJSON(map[string]any{"transactions": txs, "count": len(txs)})
}

func (t *Tools) handleReport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter, err := filterFromRequest(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	report, err := t.reports.Build(ctx, filter)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("ledger report failed", err), nil
	}
	return mcp.NewToolResultJSON(report)
}

func filterFromRequest(req mcp.CallToolRequest) (domain.LedgerFilter, error) {
	filter := domain.LedgerFilter{
		Category:         domain.Category(strings.TrimSpace(req.GetString("category", ""))),
		SourceDocumentID: strings.TrimSpace(req.GetString("source_document_id", "")),
	}
	var problems []error
	if raw := req.GetString("from", ""); raw != "" {
		d, err := domain.ParseDate(raw)
		if err != nil {
			problems = append(problems, err)
		}
		filter.From = d
	}
	if raw := req.GetString("to", ""); raw != "" {
		d, err := domain.ParseDate(raw)
		if err != nil {
			problems = append(problems, err)
		}
		filter.To = d
	}
	return filter, errors.Join(problems...)
}
