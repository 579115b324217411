package rules

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/core/domain"
)

// Rule assigns Category when the lowercased description contains any keyword
// or matches any pattern.
type Rule struct {
	Category string   `yaml:"category"`
	Keywords []string `yaml:"keywords"`
	Patterns []string `yaml:"patterns"`
}

type compiledRule struct {
	category domain.Category
	keywords []string
	patterns []*regexp.Regexp
}

// Table evaluates rules in order; the first matching rule wins.
type Table struct {
	rules      []compiledRule
	categories []domain.Category
}

var defaultRules = []Rule{
	{Category: string(domain.CategoryFoodDining), Keywords: []string{"swiggy", "zomato", "restaurant", "food", "cafe", "domino", "mcdonald", "kfc"}},
	{Category: string(domain.CategoryShopping), Keywords: []string{"amazon", "flipkart", "myntra", "ajio", "shop", "mall", "store"}},
	{Category: string(domain.CategoryTransportation), Keywords: []string{"uber", "ola", "rapido", "petrol", "fuel", "parking"}},
	{Category: string(domain.CategoryUtilities), Keywords: []string{"electricity", "water", "gas", "internet", "mobile", "recharge", "jio", "airtel"}},
	{Category: string(domain.CategoryInvestment), Keywords: []string{"groww", "zerodha", "upstox", "mutual fund", "sip", "investment"}},
	{Category: string(domain.CategoryEntertainment), Keywords: []string{"netflix", "prime", "hotstar", "spotify", "movie", "theatre", "book"}},
	{Category: string(domain.CategoryHealthcare), Keywords: []string{"medical", "pharmacy", "hospital", "doctor", "medicine", "health"}},
	{Category: string(domain.CategoryTransfer), Keywords: []string{"neft", "imps", "rtgs", "transfer"}, Patterns: []string{`upi-.*rao`}},
	{Category: string(domain.CategorySalary), Keywords: []string{"salary", "nextbillion", "payroll"}},
	{Category: string(domain.CategoryBills), Keywords: []string{"bill", "payment", "autopay"}},
}

// Default returns the built-in keyword table.
func Default() *Table {
	t, err := New(defaultRules)
	if err != nil {
		panic(fmt.Sprintf("rules: built-in table: %v", err))
	}
	return t
}

func New(rules []Rule) (*Table, error) {
	t := &Table{}
	seen := make(map[domain.Category]bool)
	var problems []error

	for i, r := range rules {
		category := domain.Category(strings.TrimSpace(r.Category))
		if category == "" {
			problems = append(problems, fmt.Errorf("rule %d: category is required", i))
			continue
		}
		compiled := compiledRule{category: category}
		for _, kw := range r.Keywords {
			if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
				compiled.keywords = append(compiled.keywords, kw)
			}
		}
		for _, p := range r.Patterns {
			re, err := regexp.Compile("(?i)" + p)
			if err != nil {
				problems = append(problems, fmt.Errorf("rule %d (%s): pattern %q: %w", i, category, p, err))
				continue
			}
			compiled.patterns = append(compiled.patterns, re)
		}
		if len(compiled.keywords) == 0 && len(compiled.patterns) == 0 {
			problems = append(problems, fmt.Errorf("rule %d (%s): no keywords or patterns", i, category))
			continue
		}

		t.rules = append(t.rules, compiled)
		if !seen[category] {
			seen[category] = true
			t.categories = append(t.categories, category)
		}
	}
	if err := errors.Join(problems...); err != nil {
		return nil, err
	}
	return t, nil
}

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// Load reads a rule table from YAML of the form `rules: [...]`.
func Load(path string) (*Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read category rules: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Table, error) {
	var file ruleFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode category rules: %w", err)
	}
	if len(file.Rules) == 0 {
		return nil, errors.New("category rules: no rules defined")
	}
	return New(file.Rules)
}

func (t *Table) Match(description string) (domain.Category, bool) {
	desc := strings.ToLower(description)
	if strings.TrimSpace(desc) == "" {
		return "", false
	}
	for _, r := range t.rules {
		for _, kw := range r.keywords {
			if strings.Contains(desc, kw) {
				return r.category, true
			}
		}
		for _, re := range r.patterns {
			if re.MatchString(desc) {
				return r.category, true
			}
		}
	}
	return "", false
}

// Categories lists every category a rule can assign, in table order.
func (t *Table) Categories() []domain.Category {
	out := make([]domain.Category, len(t.categories))
	copy(out, t.categories)
	return out
}
