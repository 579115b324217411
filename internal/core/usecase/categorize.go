package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/core/domain"
	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/core/ports"
)

const defaultCategorizeTimeout = 20 * time.Second

// Categorizer resolves a category from the rule table first and asks the AI
// provider only when no rule matches. It never fails.
type Categorizer struct {
	rules    ports.CategoryRules
	provider ports.AIProvider
	taxonomy *domain.Taxonomy
	timeout  time.Duration
	observer ports.PipelineObserver
}

// NewCategorizer builds a categorizer. A nil provider disables the AI tier.
func NewCategorizer(
	rules ports.CategoryRules,
	provider ports.AIProvider,
	taxonomy *domain.Taxonomy,
	timeout time.Duration,
	observer ports.PipelineObserver,
) *Categorizer {
	if taxonomy == nil {
		taxonomy = domain.DefaultTaxonomy()
	}
	if rules != nil {
		taxonomy = taxonomy.With(rules.Categories()...)
	}
	if timeout <= 0 {
		timeout = defaultCategorizeTimeout
	}
	return &Categorizer{
		rules:    rules,
		provider: provider,
		taxonomy: taxonomy,
		timeout:  timeout,
		observer: observerOrNop(observer),
	}
}

func (c *Categorizer) Taxonomy() *domain.Taxonomy {
	return c.taxonomy
}

func (c *Categorizer) Categorize(ctx context.Context, tx domain.Transaction) (domain.Category, domain.CategorySource) {
	if tx.IsOverridden() {
		return tx.Category, domain.CategorySourceOverride
	}
	if c.rules != nil {
		if category, ok := c.rules.Match(tx.Description); ok {
			return category, domain.CategorySourceRule
		}
	}
	if c.provider == nil {
		return domain.CategoryUncategorized, domain.CategorySourceFallback
	}
	return c.classifyWithAI(ctx, tx)
}

// Apply categorizes transactions in place. Overridden transactions are left
// untouched and identical descriptions reuse the AI's first answer.
func (c *Categorizer) Apply(ctx context.Context, txs []domain.Transaction) {
	type answer struct {
		category domain.Category
		source   domain.CategorySource
	}
	cache := make(map[string]answer)

	for i := range txs {
		if txs[i].IsOverridden() {
			continue
		}
		key := fingerprintDescription(txs[i].Description)
		if cached, ok := cache[key]; ok && cached.source == domain.CategorySourceAI {
			txs[i].Category, txs[i].CategorySource = cached.category, cached.source
			c.observer.ObserveCategorization(cached.source)
			continue
		}
		category, source := c.Categorize(ctx, txs[i])
		txs[i].Category, txs[i].CategorySource = category, source
		cache[key] = answer{category: category, source: source}
		c.observer.ObserveCategorization(source)
	}
}

func (c *Categorizer) classifyWithAI(ctx context.Context, tx domain.Transaction) (domain.Category, domain.CategorySource) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	prompt := buildCategorizationPrompt(tx, c.taxonomy.Names())
	response, err := c.provider.Submit(callCtx, prompt, ports.AIContent{Text: tx.Description})
	if err != nil {
		slog.Warn("categorize_ai_failed", "transaction_id", tx.ID, "provider", c.provider.Name(), "error", err)
		return domain.CategoryUncategorized, domain.CategorySourceFallback
	}

	category, ok := c.taxonomy.Lookup(cleanCategoryAnswer(response))
	if !ok || category == domain.CategoryUncategorized {
		slog.Debug("categorize_ai_out_of_set", "transaction_id", tx.ID, "response", response)
		return domain.CategoryUncategorized, domain.CategorySourceFallback
	}
	return category, domain.CategorySourceAI
}

func cleanCategoryAnswer(response string) string {
	answer := strings.TrimSpace(response)
	if idx := strings.IndexByte(answer, '\n'); idx >= 0 {
		answer = answer[:idx]
	}
	answer = strings.TrimPrefix(answer, "Category:")
	return strings.Trim(answer, " \t\"'`.*")
}
