package domain

import (
	"slices"
	"strings"
)

type Category string

const (
	CategoryFoodDining     Category = "Food & Dining"
	CategoryShopping       Category = "Shopping"
	CategoryTransportation Category = "Transportation"
	CategoryUtilities      Category = "Utilities"
	CategoryInvestment     Category = "Investment"
	CategoryEntertainment  Category = "Entertainment"
	CategoryHealthcare     Category = "Healthcare"
	CategoryTransfer       Category = "Transfer"
	CategorySalary         Category = "Salary"
	CategoryBills          Category = "Bills"
	CategoryUncategorized  Category = "Uncategorized"
)

// Taxonomy is the closed set of categories a transaction may carry.
type Taxonomy struct {
	categories []Category
	index      map[string]Category
}

func DefaultTaxonomy() *Taxonomy {
	return NewTaxonomy(
		CategoryFoodDining,
		CategoryShopping,
		CategoryTransportation,
		CategoryUtilities,
		CategoryInvestment,
		CategoryEntertainment,
		CategoryHealthcare,
		CategoryTransfer,
		CategorySalary,
		CategoryBills,
	)
}

// NewTaxonomy builds a taxonomy; Uncategorized is always a member.
func NewTaxonomy(categories ...Category) *Taxonomy {
	t := &Taxonomy{index: make(map[string]Category)}
	for _, c := range categories {
		t.add(c)
	}
	t.add(CategoryUncategorized)
	return t
}

func (t *Taxonomy) add(c Category) {
	name := strings.TrimSpace(string(c))
	if name == "" {
		return
	}
	key := categoryKey(name)
	if _, ok := t.index[key]; ok {
		return
	}
	t.index[key] = Category(name)
	t.categories = append(t.categories, Category(name))
}

// With returns a copy extended with extra categories.
func (t *Taxonomy) With(extra ...Category) *Taxonomy {
	out := NewTaxonomy(t.categories...)
	for _, c := range extra {
		out.add(c)
	}
	return out
}

// Lookup resolves free text to a member, ignoring case, punctuation and spacing.
func (t *Taxonomy) Lookup(s string) (Category, bool) {
	c, ok := t.index[categoryKey(s)]
	return c, ok
}

func (t *Taxonomy) Categories() []Category {
	return slices.Clone(t.categories)
}

func (t *Taxonomy) Names() []string {
	out := make([]string, 0, len(t.categories))
	for _, c := range t.categories {
		out = append(out, string(c))
	}
	return out
}

func categoryKey(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r > 127 {
			b.WriteRune(r)
		}
	}
	return b.String()
}
