package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"finbook/internal/core"
	"finbook/internal/storage"
)

// AccountService covers account lifecycle plus the derived user-level
// numbers: balance reconciliation, net worth, and monthly summaries.
type AccountService struct {
	repo *storage.SQLiteRepository
}

func NewAccountService(repo *storage.SQLiteRepository) *AccountService {
	return &AccountService{repo: repo}
}

func (s *AccountService) CreateAccount(ctx context.Context, a core.Account) (core.Account, error) {
	if err := a.Validate(); err != nil {
		return core.Account{}, err
	}
	a.Balance = a.InitialBalance
	id, err := s.repo.Queries().CreateAccount(ctx, a)
	if err != nil {
		return core.Account{}, err
	}
	a.ID = id

	slog.InfoContext(ctx, "Account created",
		"account_id", id,
		"type", a.Type,
		"initial_balance_cents", a.InitialBalance.Cents)
	return a, nil
}

func (s *AccountService) GetAccount(ctx context.Context, userID, id int64) (core.Account, error) {
	a, err := s.repo.Queries().GetAccount(ctx, id)
	if err != nil {
		return core.Account{}, err
	}
	if a.UserID != userID {
		return core.Account{}, core.ErrNotOwner
	}
	return a, nil
}

func (s *AccountService) ListAccounts(ctx context.Context, userID int64) ([]core.Account, error) {
	return s.repo.Queries().ListAccounts(ctx, userID)
}

// DeleteAccount soft-deletes: the row stays so history keeps resolving, but
// the account drops out of listings and refuses new transactions.
func (s *AccountService) DeleteAccount(ctx context.Context, userID, id int64) error {
	a, err := s.repo.Queries().GetAccount(ctx, id)
	if err != nil {
		return err
	}
	if a.UserID != userID {
		return core.ErrNotOwner
	}
	if a.DeletedAt != nil {
		return nil
	}
	if err := s.repo.Queries().SoftDeleteAccount(ctx, id, time.Now()); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Account soft-deleted", "account_id", id)
	return nil
}

// RecalculateBalance recomputes the balance from the initial balance plus
// the full signed transaction history, and corrects the stored value when
// they disagree. This is the recovery path when incremental maintenance is
// suspected to have drifted.
func (s *AccountService) RecalculateBalance(ctx context.Context, accountID int64) (core.BalanceCheck, error) {
	check := core.BalanceCheck{AccountID: accountID}
	err := s.repo.InTx(ctx, func(q *storage.Queries) error {
		a, err := q.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		sum, err := q.AccountSignedSum(ctx, accountID)
		if err != nil {
			return err
		}
		check.Stored = a.Balance
		check.Computed = core.Money{Cents: a.InitialBalance.Cents + sum}
		if check.Computed.Cents != check.Stored.Cents {
			if err := q.SetAccountBalance(ctx, accountID, check.Computed.Cents); err != nil {
				return err
			}
			check.Corrected = true
		}
		return nil
	})
	if err != nil {
		return core.BalanceCheck{}, err
	}

	if check.Corrected {
		slog.WarnContext(ctx, "Account balance corrected",
			"account_id", accountID,
			"stored_cents", check.Stored.Cents,
			"computed_cents", check.Computed.Cents)
	}
	return check, nil
}

// NetWorth sums account contributions: assets positive, liabilities
// negative, excluded accounts skipped.
func (s *AccountService) NetWorth(ctx context.Context, userID int64) (core.NetWorth, error) {
	accounts, err := s.repo.Queries().ListAccounts(ctx, userID)
	if err != nil {
		return core.NetWorth{}, err
	}

	nw := core.NetWorth{AsOf: time.Now()}
	for _, a := range accounts {
		if !a.IncludeInNetWorth {
			continue
		}
		if a.Type.IsLiability() {
			nw.Liabilities = nw.Liabilities.Add(a.Balance)
		} else {
			nw.Assets = nw.Assets.Add(a.Balance)
		}
	}
	nw.Total = nw.Assets.Sub(nw.Liabilities)
	return nw, nil
}

// MonthlySummary aggregates one calendar month of cleared activity.
func (s *AccountService) MonthlySummary(ctx context.Context, userID int64, year, month int) (core.MonthlySummary, error) {
	if month < 1 || month > 12 {
		return core.MonthlySummary{}, core.Invalid("month", errors.New("month must be 1-12"))
	}
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, -1)

	income, expenses, err := s.repo.Queries().SumUserTransactions(ctx, userID, start, end)
	if err != nil {
		return core.MonthlySummary{}, err
	}
	byCategory, err := s.repo.Queries().ExpensesByCategory(ctx, userID, start, end)
	if err != nil {
		return core.MonthlySummary{}, err
	}

	return core.MonthlySummary{
		Year:       year,
		Month:      month,
		Income:     core.Money{Cents: income},
		Expenses:   core.Money{Cents: expenses},
		Net:        core.Money{Cents: income - expenses},
		ByCategory: byCategory,
	}, nil
}
