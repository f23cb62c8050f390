package categories

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"tally/internal/core"
)

// The on-disk format is a plain JSON object mapping category name to keyword
// list, e.g. {"Food": ["mcdonald's", "grab kovan"], "Uncategorized": []}.
// JSON objects carry no order, so categories load sorted by name with
// Uncategorized pinned first; from then on the Config's stored order is
// authoritative.

// LoadFile reads a category config. A missing file yields the default config
// rather than an error, so a fresh deployment starts clean.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read categories file: %w", err)
	}

	var raw map[string][]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("parse categories file: %w", err)
	}

	names := make([]string, 0, len(raw))
	for name := range raw {
		if name == core.Uncategorized {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	cfg := Config{Categories: []Category{{Name: core.Uncategorized}}}
	for _, name := range names {
		cfg.Categories = append(cfg.Categories, Category{Name: name, Keywords: raw[name]})
	}
	return cfg, nil
}

// SaveFile writes the config back in the same name→keywords shape.
func SaveFile(path string, cfg Config) error {
	raw := make(map[string][]string, len(cfg.Categories))
	for _, cat := range cfg.Categories {
		kws := cat.Keywords
		if kws == nil {
			kws = []string{}
		}
		raw[cat.Name] = kws
	}
	if _, ok := raw[core.Uncategorized]; !ok {
		raw[core.Uncategorized] = []string{}
	}

	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("encode categories: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write categories file: %w", err)
	}
	return nil
}
