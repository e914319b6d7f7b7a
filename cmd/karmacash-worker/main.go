package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"karmacash/internal/amqp"
	"karmacash/internal/config"
	"karmacash/internal/log"
	"karmacash/internal/services"
	"karmacash/internal/sheets"
	"karmacash/internal/sheets/google"
	"karmacash/internal/storage"
	"karmacash/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := log.New(log.DefaultConfig())
	log.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", log.FieldError, err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	var consumer worker.Consumer
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			os.Exit(1)
		}
		defer client.Close()
		consumer = client
		logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP disabled; running expansion passes only")
	}

	// Summary export to Google Sheets is optional.
	var exporter sheets.SummaryExporter
	if cfg.GoogleSpreadsheetID != "" {
		exporter, err = google.New(context.Background(), cfg.GoogleSpreadsheetID, cfg.GoogleSummarySheet)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets exporter", log.FieldError, err)
			os.Exit(1)
		}
		logger.Info("Google Sheets exporter initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		logger.Info("Summary export disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	expander := services.NewExpander(repo, nil, services.ExpanderConfig{
		WindowPastMonths:   cfg.WindowPastMonths,
		WindowFutureMonths: cfg.WindowFutureMonths,
		BatchSize:          cfg.WriteBatchSize,
	}, logger)
	recalculator := services.NewRecalculator(repo, logger)

	w := worker.New(repo, recalculator, expander, consumer, exporter, cfg.ExpandInterval, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())
		cancel()
	}()

	logger.Info("Starting karmacash-worker", "expand_interval", cfg.ExpandInterval)
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Worker stopped gracefully")
}
