package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tally/internal/categories"
	"tally/internal/core"

	_ "modernc.org/sqlite"
)

// SQLiteRepository is the ledger store. The identity-key invariant is enforced
// by a unique index plus conflict-ignoring inserts, so concurrent or
// duplicate-laden batches cannot create duplicate rows.
type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// InsertBatch inserts candidates under the given source tag, skipping any that
// collide with a stored identity key, and returns the count actually inserted.
// No batch-level atomicity: a failing insert surfaces as-is with the count of
// rows written before it.
func (r *SQLiteRepository) InsertBatch(ctx context.Context, candidates []core.Transaction, source string) (int, error) {
	inserted := 0
	for _, c := range candidates {
		c.Source = source
		if err := c.Validate(); err != nil {
			return inserted, fmt.Errorf("invalid candidate %q: %w", c.Description, err)
		}

		params := InsertTransactionParams{
			Description: c.Description,
			AmountCents: c.Amount.Cents,
			Source:      c.Source,
		}
		if !c.Date.IsEmpty() {
			params.Date = sql.NullString{String: c.Date.ISO(), Valid: true}
		}
		if c.Currency != "" {
			params.Currency = sql.NullString{String: c.Currency, Valid: true}
		}

		ok, err := r.queries.InsertTransaction(ctx, params)
		if err != nil {
			return inserted, fmt.Errorf("insert transaction: %w", err)
		}
		if ok {
			inserted++
		}
	}

	slog.InfoContext(ctx, "Ledger batch inserted",
		"source", source,
		"candidates", len(candidates),
		"inserted", inserted,
		"duplicates_skipped", len(candidates)-inserted)

	return inserted, nil
}

// ListTransactions returns the full ledger ordered by date ascending, unknown
// dates last. Category is left blank; callers derive it through a
// categories.Config.
func (r *SQLiteRepository) ListTransactions(ctx context.Context) ([]core.Transaction, error) {
	rows, err := r.queries.ListTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	txs := make([]core.Transaction, len(rows))
	for i, row := range rows {
		t := core.Transaction{
			Description: row.Description,
			Amount:      core.Money{Cents: row.AmountCents},
		}
		if row.Date.Valid {
			if ts, err := time.Parse("2006-01-02", row.Date.String); err == nil {
				t.Date = core.Date{Time: ts}
			}
		}
		if row.Currency.Valid {
			t.Currency = row.Currency.String
		}
		if row.Source.Valid {
			t.Source = row.Source.String
		}
		txs[i] = t
	}
	return txs, nil
}

// ListSources returns the distinct source tags present in the ledger.
func (r *SQLiteRepository) ListSources(ctx context.Context) ([]string, error) {
	sources, err := r.queries.ListSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	return sources, nil
}

// HasSource reports whether any stored transaction carries the source tag.
// Drives the "statement already uploaded" short-circuit.
func (r *SQLiteRepository) HasSource(ctx context.Context, source string) (bool, error) {
	sources, err := r.ListSources(ctx)
	if err != nil {
		return false, err
	}
	for _, s := range sources {
		if s == source {
			return true, nil
		}
	}
	return false, nil
}

// LoadCategories reads the relational category/keyword tables into an ordered
// Config. Row order (position, then id) is the deterministic iteration order
// the categorizer relies on.
func (r *SQLiteRepository) LoadCategories(ctx context.Context) (categories.Config, error) {
	cats, err := r.queries.ListCategories(ctx)
	if err != nil {
		return categories.Config{}, fmt.Errorf("list categories: %w", err)
	}

	cfg := categories.Config{}
	for _, cat := range cats {
		kws, err := r.queries.ListKeywordsByCategory(ctx, cat.ID)
		if err != nil {
			return categories.Config{}, fmt.Errorf("list keywords for %q: %w", cat.Name, err)
		}
		entry := categories.Category{Name: cat.Name}
		for _, kw := range kws {
			entry.Keywords = append(entry.Keywords, kw.Keyword)
		}
		cfg.Categories = append(cfg.Categories, entry)
	}
	if len(cfg.Categories) == 0 {
		cfg = categories.Default()
	}
	return cfg, nil
}

// AddCategory creates an empty category; reports false when it already exists.
func (r *SQLiteRepository) AddCategory(ctx context.Context, name string) (bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return false, fmt.Errorf("empty category name")
	}
	created, err := r.queries.InsertCategory(ctx, name)
	if err != nil {
		return false, fmt.Errorf("insert category: %w", err)
	}
	return created, nil
}

// AddKeyword binds a keyword to a category, creating the category if needed.
// Idempotent on the (category, keyword) pair. This is the storage side of the
// learn operation.
func (r *SQLiteRepository) AddKeyword(ctx context.Context, category, keyword string) error {
	if category == core.Uncategorized {
		return fmt.Errorf("cannot attach keywords to %s", core.Uncategorized)
	}
	if strings.TrimSpace(keyword) == "" {
		return fmt.Errorf("empty keyword")
	}

	if _, err := r.queries.InsertCategory(ctx, category); err != nil {
		return fmt.Errorf("ensure category: %w", err)
	}
	id, err := r.queries.GetCategoryID(ctx, category)
	if err != nil {
		return fmt.Errorf("resolve category %q: %w", category, err)
	}
	added, err := r.queries.InsertKeyword(ctx, id, keyword)
	if err != nil {
		return fmt.Errorf("insert keyword: %w", err)
	}
	if !added {
		slog.DebugContext(ctx, "Keyword already present", "category", category, "keyword", keyword)
	}
	return nil
}

// RemoveKeyword detaches a keyword from a category; absent pairs are a no-op.
func (r *SQLiteRepository) RemoveKeyword(ctx context.Context, category, keyword string) error {
	id, err := r.queries.GetCategoryID(ctx, category)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("resolve category %q: %w", category, err)
	}
	if _, err := r.queries.DeleteKeyword(ctx, id, keyword); err != nil {
		return fmt.Errorf("delete keyword: %w", err)
	}
	return nil
}

// ListRecurring returns every recurring definition ordered by day of month.
func (r *SQLiteRepository) ListRecurring(ctx context.Context) ([]core.RecurringDefinition, error) {
	rows, err := r.queries.ListRecurring(ctx)
	if err != nil {
		return nil, fmt.Errorf("list recurring definitions: %w", err)
	}
	defs := make([]core.RecurringDefinition, len(rows))
	for i, row := range rows {
		defs[i] = core.RecurringDefinition{
			ID:          row.ID,
			DayOfMonth:  int(row.DayOfMonth),
			Description: row.Description,
			Amount:      core.Money{Cents: row.AmountCents},
			Currency:    row.Currency,
			Source:      row.Source,
		}
	}
	return defs, nil
}

// AddRecurring validates and stores a definition, returning its id.
func (r *SQLiteRepository) AddRecurring(ctx context.Context, def core.RecurringDefinition) (int64, error) {
	if err := def.Validate(); err != nil {
		return 0, err
	}
	id, err := r.queries.InsertRecurring(ctx, InsertRecurringParams{
		DayOfMonth:  int64(def.DayOfMonth),
		Description: def.Description,
		AmountCents: def.Amount.Cents,
		Currency:    def.Currency,
		Source:      def.Source,
	})
	if err != nil {
		return 0, fmt.Errorf("insert recurring definition: %w", err)
	}
	return id, nil
}

// DeleteRecurring removes a definition by id.
func (r *SQLiteRepository) DeleteRecurring(ctx context.Context, id int64) error {
	if err := r.queries.DeleteRecurring(ctx, id); err != nil {
		return fmt.Errorf("delete recurring definition: %w", err)
	}
	return nil
}
