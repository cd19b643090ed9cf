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
	"golang.org/x/sync/errgroup"

	"finbook/internal/amqp"
	"finbook/internal/config"
	"finbook/internal/export/sheets"
	"finbook/internal/log"
	"finbook/internal/services"
	"finbook/internal/storage"
	"finbook/internal/worker"
)

// ledger-worker consumes domain events into the audit log and, when a
// spreadsheet is configured, exports the previous month's summary for every
// user once a day.
func main() {
	_ = godotenv.Load()

	logger := log.New(log.Config{
		Level:     slog.LevelInfo,
		Component: log.ComponentWorker,
	})
	log.SetDefault(logger)

	logger.Info("Starting ledger-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	var exporter *sheets.Client
	if cfg.SheetsExportEnabled() {
		exporter, err = sheets.NewFromEnv(context.Background())
		if err != nil {
			logger.Warn("Sheets export disabled", "error", err)
			exporter = nil
		} else {
			logger.Info("Sheets export enabled", "spreadsheet", cfg.GoogleSpreadsheetID)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	audit := worker.NewAuditWorker(repo, amqpClient)
	g.Go(func() error {
		err := audit.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if exporter != nil {
		accounts := services.NewAccountService(repo)
		g.Go(func() error {
			ticker := time.NewTicker(24 * time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					exportPreviousMonth(gctx, logger, repo, accounts, exporter)
				}
			}
		})
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())
		cancel()
	}()

	if err := g.Wait(); err != nil {
		logger.Error("Ledger-worker stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Ledger-worker shutdown complete")
}

func exportPreviousMonth(ctx context.Context, logger *log.Logger, repo *storage.SQLiteRepository, accounts *services.AccountService, exporter *sheets.Client) {
	prev := time.Now().AddDate(0, -1, 0)
	year, month := prev.Year(), int(prev.Month())

	userIDs, err := repo.Queries().ListUserIDs(ctx)
	if err != nil {
		logger.Error("Failed to list users for export", "error", err)
		return
	}
	for _, userID := range userIDs {
		summary, err := accounts.MonthlySummary(ctx, userID, year, month)
		if err != nil {
			logger.Error("Failed to build monthly summary",
				"user_id", userID, "error", err)
			continue
		}
		if err := exporter.ExportMonthlySummary(ctx, summary); err != nil {
			logger.Error("Failed to export monthly summary",
				"user_id", userID, "error", err)
		}
	}
}
