package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"finbook/internal/config"
	"finbook/internal/core"
	"finbook/internal/log"
	"finbook/internal/services"
	"finbook/internal/storage"
)

// reconcile is the one-shot recovery tool: it recomputes every account
// balance from the full transaction history and every budget's spent
// counters from scratch, correcting any drift the incremental maintenance
// may have accumulated.
func main() {
	_ = godotenv.Load()

	logger := log.New(log.Config{
		Level:     slog.LevelInfo,
		Component: log.ComponentStorage,
	})
	log.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to open database", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	ctx := context.Background()
	accounts := services.NewAccountService(repo)
	budgets := services.NewBudgetService(repo, nil)

	userIDs, err := repo.Queries().ListUserIDs(ctx)
	if err != nil {
		logger.Error("Failed to list users", "error", err)
		os.Exit(1)
	}

	corrected := 0
	for _, userID := range userIDs {
		accs, err := repo.Queries().ListAccounts(ctx, userID)
		if err != nil {
			logger.Error("Failed to list accounts", "user_id", userID, "error", err)
			continue
		}
		for _, a := range accs {
			check, err := accounts.RecalculateBalance(ctx, a.ID)
			if err != nil {
				logger.Error("Balance reconciliation failed",
					"account_id", a.ID, "error", err)
				continue
			}
			if check.Corrected {
				corrected++
				logger.Warn("Balance corrected",
					"account_id", a.ID,
					"stored", core.FormatCents(check.Stored.Cents),
					"computed", core.FormatCents(check.Computed.Cents))
			}
		}

		userBudgets, err := repo.Queries().ListBudgets(ctx, userID)
		if err != nil {
			logger.Error("Failed to list budgets", "user_id", userID, "error", err)
			continue
		}
		for _, b := range userBudgets {
			if b.Status != core.BudgetActive {
				continue
			}
			if _, err := budgets.RecalculateSpent(ctx, userID, b.ID); err != nil {
				logger.Error("Budget reconciliation failed",
					"budget_id", b.ID, "error", err)
			}
		}
	}

	logger.Info("Reconciliation complete",
		"users", len(userIDs),
		"balances_corrected", corrected)
}
