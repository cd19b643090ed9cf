package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"finbook/internal/amqp"
	"finbook/internal/config"
	"finbook/internal/log"
	"finbook/internal/services"
	"finbook/internal/storage"
)

// schedule-worker drives the time-based machinery: recurring transaction
// generation, bill auto-pay, and the missed-payment sweep, on a fixed
// interval.
func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := log.New(log.Config{
		Level:     slog.LevelInfo,
		Component: log.ComponentWorker,
	})
	log.SetDefault(logger)

	logger.Info("Starting schedule-worker")

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

	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without events", "error", err)
			amqpClient = nil
		} else {
			defer amqpClient.Close()
			logger.Info("AMQP client initialized")
		}
	} else {
		logger.Info("AMQP disabled - no events will be published")
	}

	recurring := services.NewRecurringProcessor(repo, amqpClient)
	bills := services.NewBillProcessor(repo, amqpClient)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runSweep := func(now time.Time) {
		// The three sweeps touch disjoint rows; run them concurrently.
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			n, err := recurring.ProcessDueTemplates(gctx, now)
			if err != nil {
				return err
			}
			logger.Info("Recurring sweep complete", "generated", n)
			return nil
		})
		g.Go(func() error {
			n, err := bills.ProcessAutoPay(gctx, now)
			if err != nil {
				return err
			}
			logger.Info("Auto-pay sweep complete", "paid", n)
			return nil
		})
		g.Go(func() error {
			n, err := bills.SweepMissed(gctx, now)
			if err != nil {
				return err
			}
			logger.Info("Missed-payment sweep complete", "missed", n)
			return nil
		})
		if err := g.Wait(); err != nil {
			logger.Error("Schedule sweep failed", "error", err)
		}
	}

	logger.Info("Schedule worker configured",
		"interval", cfg.ScheduleInterval,
		"sqlite_db", cfg.SQLiteDBPath)

	ticker := time.NewTicker(cfg.ScheduleInterval)
	defer ticker.Stop()

	logger.Info("Running initial schedule sweep...")
	runSweep(time.Now())

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				runSweep(now)
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("Shutdown signal received", "signal", sig.String())
	cancel()
	logger.Info("Schedule-worker shutdown complete")
}
