package worker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"tally/internal/amqp"
	"tally/internal/core"
	"tally/internal/storage"
)

type fakeParser struct {
	txs []core.Transaction
	err error
}

func (p *fakeParser) Parse(_ string, _ time.Time) ([]core.Transaction, error) {
	return p.txs, p.err
}

func newTestStorage(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "worker_test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestHandleStatementJobInserts(t *testing.T) {
	repo := newTestStorage(t)
	parser := &fakeParser{txs: []core.Transaction{
		{Date: core.NewDate(2025, 4, 19), Description: "NETFLIX.COM", Amount: core.Money{Cents: 1598}, Currency: "SGD"},
		{Date: core.NewDate(2025, 4, 20), Description: "GRAB ORCHARD", Amount: core.Money{Cents: 1230}, Currency: "SGD"},
	}}
	w := NewIngestWorker(repo, parser)

	job := amqp.NewStatementJob("/data/uploads/dbs-2025-04.pdf", "dbs-2025-04.pdf")
	if err := w.HandleStatementJob(context.Background(), job); err != nil {
		t.Fatalf("HandleStatementJob() error = %v", err)
	}

	txs, err := repo.ListTransactions(context.Background())
	if err != nil {
		t.Fatalf("ListTransactions() error = %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("ledger len = %d, want 2", len(txs))
	}
	if txs[0].Source != "dbs-2025-04.pdf" {
		t.Errorf("source = %q, want dbs-2025-04.pdf", txs[0].Source)
	}

	// Redelivery of the same job must not duplicate rows.
	if err := w.HandleStatementJob(context.Background(), job); err != nil {
		t.Fatalf("HandleStatementJob() redelivery error = %v", err)
	}
	txs, _ = repo.ListTransactions(context.Background())
	if len(txs) != 2 {
		t.Errorf("ledger len after redelivery = %d, want 2", len(txs))
	}
}

func TestHandleStatementJobParseFailureDropsJob(t *testing.T) {
	repo := newTestStorage(t)
	w := NewIngestWorker(repo, &fakeParser{err: errors.New("corrupt pdf")})

	job := amqp.NewStatementJob("/data/uploads/bad.pdf", "bad.pdf")
	if err := w.HandleStatementJob(context.Background(), job); err != nil {
		t.Errorf("HandleStatementJob() parse failure error = %v, want nil (no requeue)", err)
	}
}

func TestHandleStatementJobEmptyStatement(t *testing.T) {
	repo := newTestStorage(t)
	w := NewIngestWorker(repo, &fakeParser{})

	job := amqp.NewStatementJob("/data/uploads/empty.pdf", "empty.pdf")
	if err := w.HandleStatementJob(context.Background(), job); err != nil {
		t.Errorf("HandleStatementJob() empty statement error = %v, want nil", err)
	}

	txs, _ := repo.ListTransactions(context.Background())
	if len(txs) != 0 {
		t.Errorf("ledger len = %d, want 0", len(txs))
	}
}
