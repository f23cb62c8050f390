package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"tally/internal/amqp"
	"tally/internal/categories"
	"tally/internal/core"
	"tally/internal/storage"
)

// ErrBrokerUnavailable means statement ingestion is disabled: no AMQP
// connection and no inline parser were configured at startup.
var ErrBrokerUnavailable = errors.New("message broker unavailable")

// StatementParser turns a stored statement file into transaction candidates.
type StatementParser interface {
	Parse(path string, now time.Time) ([]core.Transaction, error)
}

// Service orchestrates ledger operations across SQLite and AMQP. Categories
// are applied on read, so relabeling a keyword retroactively recolors the
// whole history without touching stored rows.
type Service struct {
	storage    *storage.SQLiteRepository
	amqpClient *amqp.Client

	// parser handles statements inline when no broker is available.
	parser StatementParser
}

func NewService(storage *storage.SQLiteRepository, amqpClient *amqp.Client, parser StatementParser) *Service {
	return &Service{
		storage:    storage,
		amqpClient: amqpClient,
		parser:     parser,
	}
}

// AddTransaction records a manually entered transaction. The ledger's identity
// key decides whether it is new; a replayed entry reports inserted=false.
func (s *Service) AddTransaction(ctx context.Context, tx core.Transaction) (bool, error) {
	tx.Description = strings.TrimSpace(tx.Description)
	if tx.Source == "" {
		tx.Source = "manual"
	}
	if tx.Currency == "" {
		tx.Currency = core.DefaultCurrency
	}

	n, err := s.storage.InsertBatch(ctx, []core.Transaction{tx}, tx.Source)
	if err != nil {
		return false, fmt.Errorf("add transaction: %w", err)
	}
	return n == 1, nil
}

// SubmitStatement queues an uploaded statement file for asynchronous parsing.
// The source tag is the statement's identity; a tag already present in the
// ledger is rejected before anything is queued. Without a broker the
// statement is parsed inline instead, so uploads keep working degraded.
func (s *Service) SubmitStatement(ctx context.Context, path, source string) error {
	if s.amqpClient == nil && s.parser == nil {
		return ErrBrokerUnavailable
	}

	seen, err := s.storage.HasSource(ctx, source)
	if err != nil {
		return fmt.Errorf("check statement source: %w", err)
	}
	if seen {
		return fmt.Errorf("statement %q already ingested: %w", source, core.ErrDuplicateStatement)
	}

	if s.amqpClient == nil {
		return s.ingestInline(ctx, path, source)
	}

	if err := s.amqpClient.PublishStatementJob(ctx, path, source); err != nil {
		return fmt.Errorf("publish statement job: %w", err)
	}

	slog.InfoContext(ctx, "Statement queued for ingestion", "source", source)
	return nil
}

func (s *Service) ingestInline(ctx context.Context, path, source string) error {
	txs, err := s.parser.Parse(path, time.Now())
	if err != nil {
		return fmt.Errorf("parse statement: %w", err)
	}
	if len(txs) == 0 {
		slog.WarnContext(ctx, "Statement produced no transactions", "source", source)
		return nil
	}

	inserted, err := s.storage.InsertBatch(ctx, txs, source)
	if err != nil {
		return fmt.Errorf("ingest statement: %w", err)
	}

	slog.InfoContext(ctx, "Statement ingested inline",
		"source", source,
		"parsed", len(txs),
		"inserted", inserted,
		"duplicates_skipped", len(txs)-inserted)
	return nil
}

// Transactions returns the ledger with categories applied.
func (s *Service) Transactions(ctx context.Context) ([]core.Transaction, error) {
	txs, err := s.storage.ListTransactions(ctx)
	if err != nil {
		return nil, err
	}
	cfg, err := s.storage.LoadCategories(ctx)
	if err != nil {
		return nil, err
	}
	return cfg.Categorize(txs), nil
}

// Categories returns the current category configuration.
func (s *Service) Categories(ctx context.Context) (categories.Config, error) {
	return s.storage.LoadCategories(ctx)
}

// AddCategory creates an empty category.
func (s *Service) AddCategory(ctx context.Context, name string) (bool, error) {
	return s.storage.AddCategory(ctx, name)
}

// Learn binds a transaction description to a category so future reads
// classify it. The raw trimmed description becomes the keyword; matching is
// case and whitespace insensitive, so no further normalization is stored.
func (s *Service) Learn(ctx context.Context, description, category string) error {
	description = strings.TrimSpace(description)
	if description == "" {
		return core.ErrEmptyDescription
	}
	if category == "" || category == core.Uncategorized {
		return fmt.Errorf("cannot learn into %q", category)
	}

	if err := s.storage.AddKeyword(ctx, category, description); err != nil {
		return fmt.Errorf("learn keyword: %w", err)
	}

	slog.InfoContext(ctx, "Keyword learned", "category", category, "keyword", description)
	return nil
}

// RemoveKeyword detaches a keyword from a category.
func (s *Service) RemoveKeyword(ctx context.Context, category, keyword string) error {
	return s.storage.RemoveKeyword(ctx, category, keyword)
}

// ExportCategories snapshots the stored category configuration to a JSON
// file, for backup or hand editing.
func (s *Service) ExportCategories(ctx context.Context, path string) error {
	cfg, err := s.storage.LoadCategories(ctx)
	if err != nil {
		return fmt.Errorf("load categories: %w", err)
	}
	if err := categories.SaveFile(path, cfg); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Categories exported", "path", path, "categories", len(cfg.Categories))
	return nil
}

// ImportCategories merges a category file into the stored configuration.
// Existing categories gain any new keywords; nothing is removed.
func (s *Service) ImportCategories(ctx context.Context, path string) (int, error) {
	cfg, err := categories.LoadFile(path)
	if err != nil {
		return 0, err
	}

	imported := 0
	for _, cat := range cfg.Categories {
		if cat.Name == core.Uncategorized {
			continue
		}
		if _, err := s.storage.AddCategory(ctx, cat.Name); err != nil {
			return imported, fmt.Errorf("import category %q: %w", cat.Name, err)
		}
		for _, kw := range cat.Keywords {
			if err := s.storage.AddKeyword(ctx, cat.Name, kw); err != nil {
				return imported, fmt.Errorf("import keyword %q: %w", kw, err)
			}
		}
		imported++
	}

	slog.InfoContext(ctx, "Categories imported", "path", path, "categories", imported)
	return imported, nil
}

// Sources returns the distinct source tags in the ledger.
func (s *Service) Sources(ctx context.Context) ([]string, error) {
	return s.storage.ListSources(ctx)
}

// Recurring returns all recurring definitions.
func (s *Service) Recurring(ctx context.Context) ([]core.RecurringDefinition, error) {
	return s.storage.ListRecurring(ctx)
}

// AddRecurring stores a recurring definition.
func (s *Service) AddRecurring(ctx context.Context, def core.RecurringDefinition) (int64, error) {
	if def.Source == "" {
		def.Source = "Recurring"
	}
	if def.Currency == "" {
		def.Currency = core.DefaultCurrency
	}
	return s.storage.AddRecurring(ctx, def)
}

// DeleteRecurring removes a recurring definition.
func (s *Service) DeleteRecurring(ctx context.Context, id int64) error {
	return s.storage.DeleteRecurring(ctx, id)
}

// Close closes both storage and AMQP connections.
func (s *Service) Close() error {
	var errs []error

	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if s.amqpClient != nil {
		if err := s.amqpClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close ledger service: %v", errs)
	}

	return nil
}
