package storage

import (
	"context"
	"path/filepath"
	"testing"

	"tally/internal/core"
)

func newTestRepository(t *testing.T) *SQLiteRepository {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "tally_test.db")
	repo, err := NewSQLiteRepository(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestInsertBatchDeduplicates(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	batch := []core.Transaction{
		{Date: core.NewDate(2025, 4, 19), Description: "NETFLIX.COM", Amount: core.Money{Cents: 1598}, Currency: "SGD"},
		{Date: core.NewDate(2025, 4, 20), Description: "GRAB RIDE", Amount: core.Money{Cents: 1230}, Currency: "SGD"},
	}

	n, err := repo.InsertBatch(ctx, batch, "dbs-2025-04.pdf")
	if err != nil {
		t.Fatalf("InsertBatch() error = %v", err)
	}
	if n != 2 {
		t.Fatalf("InsertBatch() inserted = %d, want 2", n)
	}

	// A replay of the same statement must be a full no-op.
	n, err = repo.InsertBatch(ctx, batch, "dbs-2025-04.pdf")
	if err != nil {
		t.Fatalf("InsertBatch() replay error = %v", err)
	}
	if n != 0 {
		t.Errorf("InsertBatch() replay inserted = %d, want 0", n)
	}

	txs, err := repo.ListTransactions(ctx)
	if err != nil {
		t.Fatalf("ListTransactions() error = %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("ListTransactions() len = %d, want 2", len(txs))
	}
	if txs[0].Date.ISO() != "2025-04-19" {
		t.Errorf("first transaction date = %q, want 2025-04-19", txs[0].Date.ISO())
	}
	if txs[0].Source != "dbs-2025-04.pdf" {
		t.Errorf("source = %q, want dbs-2025-04.pdf", txs[0].Source)
	}
}

func TestInsertBatchDedupWithinBatch(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	tx := core.Transaction{Date: core.NewDate(2025, 1, 5), Description: "SPOTIFY", Amount: core.Money{Cents: 999}, Currency: "SGD"}
	n, err := repo.InsertBatch(ctx, []core.Transaction{tx, tx, tx}, "manual")
	if err != nil {
		t.Fatalf("InsertBatch() error = %v", err)
	}
	if n != 1 {
		t.Errorf("InsertBatch() inserted = %d, want 1", n)
	}
}

func TestInsertBatchFieldSensitivity(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	base := core.Transaction{Date: core.NewDate(2025, 3, 1), Description: "COFFEE", Amount: core.Money{Cents: 450}, Currency: "SGD"}
	if _, err := repo.InsertBatch(ctx, []core.Transaction{base}, "cardA"); err != nil {
		t.Fatalf("seed insert error = %v", err)
	}

	tests := []struct {
		name   string
		mutate func(core.Transaction) core.Transaction
		source string
	}{
		{"different date", func(tx core.Transaction) core.Transaction { tx.Date = core.NewDate(2025, 3, 2); return tx }, "cardA"},
		{"different description", func(tx core.Transaction) core.Transaction { tx.Description = "COFFEE BEAN"; return tx }, "cardA"},
		{"different amount", func(tx core.Transaction) core.Transaction { tx.Amount = core.Money{Cents: 451}; return tx }, "cardA"},
		{"different currency", func(tx core.Transaction) core.Transaction { tx.Currency = "USD"; return tx }, "cardA"},
		{"different source", func(tx core.Transaction) core.Transaction { return tx }, "cardB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := repo.InsertBatch(ctx, []core.Transaction{tt.mutate(base)}, tt.source)
			if err != nil {
				t.Fatalf("InsertBatch() error = %v", err)
			}
			if n != 1 {
				t.Errorf("InsertBatch() inserted = %d, want 1 (variant should not collide)", n)
			}
		})
	}
}

func TestInsertBatchNullDate(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	batch := []core.Transaction{
		{Description: "UNKNOWN DATE CHARGE", Amount: core.Money{Cents: 2000}, Currency: "SGD"},
		{Date: core.NewDate(2025, 2, 1), Description: "DATED CHARGE", Amount: core.Money{Cents: 1000}, Currency: "SGD"},
	}
	if _, err := repo.InsertBatch(ctx, batch, "manual"); err != nil {
		t.Fatalf("InsertBatch() error = %v", err)
	}

	// Null-date replays dedupe too.
	n, err := repo.InsertBatch(ctx, batch[:1], "manual")
	if err != nil {
		t.Fatalf("InsertBatch() replay error = %v", err)
	}
	if n != 0 {
		t.Errorf("null-date replay inserted = %d, want 0", n)
	}

	txs, err := repo.ListTransactions(ctx)
	if err != nil {
		t.Fatalf("ListTransactions() error = %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("ListTransactions() len = %d, want 2", len(txs))
	}
	// Unknown dates sort last.
	if !txs[1].Date.IsEmpty() {
		t.Errorf("expected unknown-date transaction last, got date %q", txs[1].Date.ISO())
	}
}

func TestInsertBatchRejectsInvalid(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	_, err := repo.InsertBatch(ctx, []core.Transaction{{Description: "", Amount: core.Money{Cents: 100}}}, "manual")
	if err == nil {
		t.Fatal("InsertBatch() with empty description expected error, got nil")
	}
}

func TestListSourcesAndHasSource(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	seed := []struct {
		source string
		tx     core.Transaction
	}{
		{"dbs-2025-01.pdf", core.Transaction{Date: core.NewDate(2025, 1, 3), Description: "A", Amount: core.Money{Cents: 100}, Currency: "SGD"}},
		{"manual", core.Transaction{Date: core.NewDate(2025, 1, 4), Description: "B", Amount: core.Money{Cents: 200}, Currency: "SGD"}},
	}
	for _, s := range seed {
		if _, err := repo.InsertBatch(ctx, []core.Transaction{s.tx}, s.source); err != nil {
			t.Fatalf("seed insert error = %v", err)
		}
	}

	sources, err := repo.ListSources(ctx)
	if err != nil {
		t.Fatalf("ListSources() error = %v", err)
	}
	if len(sources) != 2 {
		t.Errorf("ListSources() len = %d, want 2", len(sources))
	}

	ok, err := repo.HasSource(ctx, "dbs-2025-01.pdf")
	if err != nil || !ok {
		t.Errorf("HasSource(dbs-2025-01.pdf) = %v, %v, want true, nil", ok, err)
	}
	ok, err = repo.HasSource(ctx, "dbs-2025-02.pdf")
	if err != nil || ok {
		t.Errorf("HasSource(dbs-2025-02.pdf) = %v, %v, want false, nil", ok, err)
	}
}

func TestCategoryAndKeywordPersistence(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	created, err := repo.AddCategory(ctx, "Subscriptions")
	if err != nil {
		t.Fatalf("AddCategory() error = %v", err)
	}
	if !created {
		t.Error("AddCategory() created = false, want true")
	}
	created, err = repo.AddCategory(ctx, "Subscriptions")
	if err != nil {
		t.Fatalf("AddCategory() duplicate error = %v", err)
	}
	if created {
		t.Error("AddCategory() duplicate created = true, want false")
	}

	if err := repo.AddKeyword(ctx, "Subscriptions", "netflix.com"); err != nil {
		t.Fatalf("AddKeyword() error = %v", err)
	}
	// Idempotent on the pair.
	if err := repo.AddKeyword(ctx, "Subscriptions", "netflix.com"); err != nil {
		t.Fatalf("AddKeyword() repeat error = %v", err)
	}
	// AddKeyword creates missing categories.
	if err := repo.AddKeyword(ctx, "Transport", "grab ride"); err != nil {
		t.Fatalf("AddKeyword() new category error = %v", err)
	}

	cfg, err := repo.LoadCategories(ctx)
	if err != nil {
		t.Fatalf("LoadCategories() error = %v", err)
	}
	names := cfg.Names()
	if len(names) != 3 || names[0] != core.Uncategorized {
		t.Fatalf("LoadCategories() names = %v, want [Uncategorized Subscriptions Transport]", names)
	}
	var subs []string
	for _, c := range cfg.Categories {
		if c.Name == "Subscriptions" {
			subs = c.Keywords
		}
	}
	if len(subs) != 1 || subs[0] != "netflix.com" {
		t.Errorf("Subscriptions keywords = %v, want [netflix.com]", subs)
	}

	if err := repo.RemoveKeyword(ctx, "Subscriptions", "netflix.com"); err != nil {
		t.Fatalf("RemoveKeyword() error = %v", err)
	}
	// Absent pair and absent category are both no-ops.
	if err := repo.RemoveKeyword(ctx, "Subscriptions", "netflix.com"); err != nil {
		t.Errorf("RemoveKeyword() repeat error = %v", err)
	}
	if err := repo.RemoveKeyword(ctx, "NoSuchCategory", "x"); err != nil {
		t.Errorf("RemoveKeyword() missing category error = %v", err)
	}
}

func TestAddKeywordRejectsUncategorized(t *testing.T) {
	repo := newTestRepository(t)
	if err := repo.AddKeyword(context.Background(), core.Uncategorized, "anything"); err == nil {
		t.Error("AddKeyword(Uncategorized) expected error, got nil")
	}
}

func TestRecurringDefinitionCRUD(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	def := core.RecurringDefinition{
		DayOfMonth:  15,
		Description: "GYM MEMBERSHIP",
		Amount:      core.Money{Cents: 8900},
		Currency:    "SGD",
		Source:      "Recurring",
	}
	id, err := repo.AddRecurring(ctx, def)
	if err != nil {
		t.Fatalf("AddRecurring() error = %v", err)
	}
	if id == 0 {
		t.Error("AddRecurring() id = 0, want nonzero")
	}

	if _, err := repo.AddRecurring(ctx, core.RecurringDefinition{DayOfMonth: 29, Description: "X", Amount: core.Money{Cents: 1}, Source: "Recurring"}); err == nil {
		t.Error("AddRecurring() day 29 expected error, got nil")
	}

	defs, err := repo.ListRecurring(ctx)
	if err != nil {
		t.Fatalf("ListRecurring() error = %v", err)
	}
	if len(defs) != 1 || defs[0].Description != "GYM MEMBERSHIP" || defs[0].DayOfMonth != 15 {
		t.Fatalf("ListRecurring() = %+v, want one GYM MEMBERSHIP on day 15", defs)
	}

	if err := repo.DeleteRecurring(ctx, defs[0].ID); err != nil {
		t.Fatalf("DeleteRecurring() error = %v", err)
	}
	defs, err = repo.ListRecurring(ctx)
	if err != nil {
		t.Fatalf("ListRecurring() after delete error = %v", err)
	}
	if len(defs) != 0 {
		t.Errorf("ListRecurring() after delete len = %d, want 0", len(defs))
	}
}
