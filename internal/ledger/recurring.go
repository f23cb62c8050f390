package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tally/internal/core"
	"tally/internal/storage"
)

// RecurringProcessor materializes transactions from recurring definitions.
// Idempotency comes from the ledger's identity key: a definition firing on a
// given day always produces the same candidate, so reruns within the day
// insert nothing.
type RecurringProcessor struct {
	storage *storage.SQLiteRepository
}

func NewRecurringProcessor(storage *storage.SQLiteRepository) *RecurringProcessor {
	return &RecurringProcessor{storage: storage}
}

// ProcessDue inserts a candidate for every definition whose day of month
// matches now. Returns the number of transactions actually written.
func (p *RecurringProcessor) ProcessDue(ctx context.Context, now time.Time) (int, error) {
	if p.storage == nil {
		return 0, fmt.Errorf("processor not properly initialized")
	}

	defs, err := p.storage.ListRecurring(ctx)
	if err != nil {
		return 0, fmt.Errorf("list recurring definitions: %w", err)
	}

	slog.InfoContext(ctx, "Processing recurring definitions",
		"total", len(defs),
		"processing_date", now.Format("2006-01-02"))

	created := 0
	for _, def := range defs {
		if !def.DueOn(now) {
			continue
		}

		candidate := def.Candidate(now)
		n, err := p.storage.InsertBatch(ctx, []core.Transaction{candidate}, def.Source)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to materialize recurring transaction",
				"recurring_id", def.ID,
				"description", def.Description,
				"error", err)
			continue
		}
		if n == 0 {
			slog.DebugContext(ctx, "Recurring transaction already materialized",
				"recurring_id", def.ID,
				"description", def.Description)
			continue
		}

		created++
		slog.InfoContext(ctx, "Created transaction from recurring definition",
			"recurring_id", def.ID,
			"description", def.Description,
			"amount_cents", def.Amount.Cents,
			"day_of_month", def.DayOfMonth)
	}

	slog.InfoContext(ctx, "Recurring processing complete",
		"created", created,
		"total_checked", len(defs))

	return created, nil
}
