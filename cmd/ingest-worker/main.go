package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tally/internal/amqp"
	"tally/internal/config"
	"tally/internal/sources/pdf"
	"tally/internal/storage"
	"tally/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("Starting ingest-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	sqliteRepo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer sqliteRepo.Close()

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	ingestWorker := worker.NewIngestWorker(sqliteRepo, pdf.NewParser())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Consuming statement jobs",
		"exchange", cfg.AMQPExchange,
		"queue", cfg.AMQPQueue,
		"db", cfg.SQLiteDBPath)

	if err := amqpClient.ConsumeStatementJobs(ctx, func(job *amqp.StatementJob) error {
		return ingestWorker.HandleStatementJob(ctx, job)
	}); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Statement consumption failed", "error", err)
		os.Exit(1)
	}

	// Give in-flight handlers a moment before the AMQP channel closes.
	logger.Info("Shutting down ingest-worker...")
	time.Sleep(2 * time.Second)
	logger.Info("Ingest-worker shutdown complete")
}
