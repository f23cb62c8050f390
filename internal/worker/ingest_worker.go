package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tally/internal/amqp"
	"tally/internal/core"
	"tally/internal/storage"
)

// StatementParser turns a statement file into ledger candidates.
type StatementParser interface {
	Parse(path string, now time.Time) ([]core.Transaction, error)
}

// IngestWorker consumes statement jobs and writes the parsed transactions to
// the ledger.
type IngestWorker struct {
	storage *storage.SQLiteRepository
	parser  StatementParser
}

func NewIngestWorker(storage *storage.SQLiteRepository, parser StatementParser) *IngestWorker {
	return &IngestWorker{
		storage: storage,
		parser:  parser,
	}
}

// HandleStatementJob processes a single statement job from AMQP. A parse
// failure is permanent for that file, so the job is logged and dropped rather
// than requeued; only storage errors requeue.
func (w *IngestWorker) HandleStatementJob(ctx context.Context, job *amqp.StatementJob) error {
	slog.InfoContext(ctx, "Processing statement job",
		"path", job.Path,
		"source", job.Source)

	candidates, err := w.parser.Parse(job.Path, time.Now())
	if err != nil {
		slog.ErrorContext(ctx, "Statement parse failed, dropping job",
			"path", job.Path,
			"source", job.Source,
			"error", err)
		return nil
	}

	if len(candidates) == 0 {
		slog.WarnContext(ctx, "Statement yielded no transactions",
			"path", job.Path,
			"source", job.Source)
		return nil
	}

	inserted, err := w.storage.InsertBatch(ctx, candidates, job.Source)
	if err != nil {
		return fmt.Errorf("insert statement batch: %w", err)
	}

	slog.InfoContext(ctx, "Statement ingested",
		"source", job.Source,
		"parsed", len(candidates),
		"inserted", inserted,
		"duplicates_skipped", len(candidates)-inserted)

	return nil
}
