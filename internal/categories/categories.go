// Package categories implements keyword-based transaction classification.
//
// A Config is an explicit, ordered value object: category order is part of the
// contract, so classification is deterministic even when a keyword appears
// under more than one category (the last matching category in stored order
// wins). Nothing here touches global state; callers load a Config, pass it
// around, and persist it back.
package categories

import (
	"strings"

	"tally/internal/core"
)

// Category is a name plus the keyword list bound to it. Keywords are matched
// against transaction descriptions by exact equality after trimming and
// lowercasing.
type Category struct {
	Name     string
	Keywords []string
}

// Config is the full category/keyword mapping in stored order.
type Config struct {
	Categories []Category
}

// Default returns a config containing only the reserved default category.
func Default() Config {
	return Config{Categories: []Category{{Name: core.Uncategorized}}}
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Names returns the category names in stored order, guaranteeing that the
// reserved default is present.
func (c Config) Names() []string {
	names := make([]string, 0, len(c.Categories)+1)
	seen := false
	for _, cat := range c.Categories {
		if cat.Name == core.Uncategorized {
			seen = true
		}
		names = append(names, cat.Name)
	}
	if !seen {
		names = append([]string{core.Uncategorized}, names...)
	}
	return names
}

// Categorize derives the Category field for every transaction. Every row
// defaults to Uncategorized; a row whose normalized description equals a
// normalized keyword of a category takes that category. Matching is exact
// equality, never substring or fuzzy. Categories are visited in stored order,
// so on conflicting keywords the last category wins.
func (c Config) Categorize(txs []core.Transaction) []core.Transaction {
	out := make([]core.Transaction, len(txs))
	copy(out, txs)
	for i := range out {
		out[i].Category = core.Uncategorized
	}

	for _, cat := range c.Categories {
		if cat.Name == core.Uncategorized || len(cat.Keywords) == 0 {
			continue
		}
		kw := make(map[string]struct{}, len(cat.Keywords))
		for _, k := range cat.Keywords {
			kw[normalize(k)] = struct{}{}
		}
		for i := range out {
			if _, ok := kw[normalize(out[i].Description)]; ok {
				out[i].Category = cat.Name
			}
		}
	}
	return out
}

// Learn records a user reassignment: the raw description becomes a keyword of
// the target category. Idempotent: an already-present keyword (compared after
// normalization) is not duplicated. A missing category is created at the end
// of the stored order. The keyword is not removed from other categories; the
// deterministic iteration order of Categorize resolves any overlap.
func (c *Config) Learn(description, category string) {
	if strings.TrimSpace(description) == "" || category == core.Uncategorized {
		return
	}
	for i := range c.Categories {
		if c.Categories[i].Name != category {
			continue
		}
		for _, k := range c.Categories[i].Keywords {
			if normalize(k) == normalize(description) {
				return
			}
		}
		c.Categories[i].Keywords = append(c.Categories[i].Keywords, description)
		return
	}
	c.Categories = append(c.Categories, Category{Name: category, Keywords: []string{description}})
}

// AddCategory registers an empty category if it does not exist yet.
func (c *Config) AddCategory(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	for _, cat := range c.Categories {
		if cat.Name == name {
			return false
		}
	}
	c.Categories = append(c.Categories, Category{Name: name})
	return true
}

// RemoveKeyword drops a keyword from a category without disturbing the rest
// of the config. Reports whether anything changed.
func (c *Config) RemoveKeyword(category, keyword string) bool {
	for i := range c.Categories {
		if c.Categories[i].Name != category {
			continue
		}
		kws := c.Categories[i].Keywords
		for j, k := range kws {
			if normalize(k) == normalize(keyword) {
				c.Categories[i].Keywords = append(kws[:j], kws[j+1:]...)
				return true
			}
		}
	}
	return false
}
