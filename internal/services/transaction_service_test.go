package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"finbook/internal/core"
	"finbook/internal/storage"
)

func newTestRepo(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "finbook.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func newUser(t *testing.T, repo *storage.SQLiteRepository) int64 {
	t.Helper()
	id, err := repo.Queries().CreateUser(context.Background(), "mario", "EUR", 10000)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return id
}

func newAccount(t *testing.T, repo *storage.SQLiteRepository, userID, balanceCents int64) int64 {
	t.Helper()
	id, err := repo.Queries().CreateAccount(context.Background(), core.Account{
		UserID:            userID,
		Name:              "Main",
		Type:              core.AccountChecking,
		Balance:           core.Money{Cents: balanceCents},
		InitialBalance:    core.Money{Cents: balanceCents},
		Currency:          "EUR",
		Active:            true,
		IncludeInNetWorth: true,
	})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	return id
}

// sharedCategory finds a seeded system category by name.
func sharedCategory(t *testing.T, repo *storage.SQLiteRepository, userID int64, name string) int64 {
	t.Helper()
	cats, err := repo.Queries().ListCategories(context.Background(), userID)
	if err != nil {
		t.Fatalf("ListCategories: %v", err)
	}
	for _, c := range cats {
		if c.Name == name {
			return c.ID
		}
	}
	t.Fatalf("seeded category %q not found", name)
	return 0
}

func balanceOf(t *testing.T, repo *storage.SQLiteRepository, accountID int64) int64 {
	t.Helper()
	a, err := repo.Queries().GetAccount(context.Background(), accountID)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	return a.Balance.Cents
}

func TestTransactionLifecycleBalances(t *testing.T) {
	repo := newTestRepo(t)
	svc := NewTransactionService(repo, nil)
	ctx := context.Background()

	userID := newUser(t, repo)
	accountID := newAccount(t, repo, userID, 100000)
	foodID := sharedCategory(t, repo, userID, "Food")

	tx, err := svc.CreateTransaction(ctx, core.Transaction{
		UserID:      userID,
		AccountID:   accountID,
		CategoryID:  &foodID,
		Type:        core.TypeExpense,
		Amount:      core.Money{Cents: 15000},
		Date:        time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		Description: "groceries",
	})
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if got := balanceOf(t, repo, accountID); got != 85000 {
		t.Errorf("balance after 150.00 expense = %d, want 85000", got)
	}

	// Raising the amount to 200.00 must land the balance at 800.00, not at
	// some double-applied number.
	tx.Amount = core.Money{Cents: 20000}
	tx, err = svc.UpdateTransaction(ctx, tx)
	if err != nil {
		t.Fatalf("UpdateTransaction: %v", err)
	}
	if got := balanceOf(t, repo, accountID); got != 80000 {
		t.Errorf("balance after update to 200.00 = %d, want 80000", got)
	}

	if err := svc.DeleteTransaction(ctx, userID, tx.ID); err != nil {
		t.Fatalf("DeleteTransaction: %v", err)
	}
	if got := balanceOf(t, repo, accountID); got != 100000 {
		t.Errorf("balance after delete = %d, want 100000", got)
	}
}

func TestPendingTransactionHasNoBalanceEffect(t *testing.T) {
	repo := newTestRepo(t)
	svc := NewTransactionService(repo, nil)
	ctx := context.Background()

	userID := newUser(t, repo)
	accountID := newAccount(t, repo, userID, 50000)

	tx, err := svc.CreateTransaction(ctx, core.Transaction{
		UserID:    userID,
		AccountID: accountID,
		Type:      core.TypeExpense,
		Amount:    core.Money{Cents: 10000},
		Date:      time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		Pending:   true,
	})
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if got := balanceOf(t, repo, accountID); got != 50000 {
		t.Errorf("balance with pending expense = %d, want 50000", got)
	}

	// Clearing the pending flag applies the effect exactly once.
	tx.Pending = false
	if _, err := svc.UpdateTransaction(ctx, tx); err != nil {
		t.Fatalf("UpdateTransaction: %v", err)
	}
	if got := balanceOf(t, repo, accountID); got != 40000 {
		t.Errorf("balance after clearing = %d, want 40000", got)
	}
}

func TestTransferCreatesTwoLinkedLegs(t *testing.T) {
	repo := newTestRepo(t)
	svc := NewTransactionService(repo, nil)
	ctx := context.Background()

	userID := newUser(t, repo)
	checking := newAccount(t, repo, userID, 100000)
	savings := newAccount(t, repo, userID, 20000)

	out, in, err := svc.CreateTransfer(ctx, userID, checking, savings,
		core.Money{Cents: 30000}, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), "to savings")
	if err != nil {
		t.Fatalf("CreateTransfer: %v", err)
	}

	if got := balanceOf(t, repo, checking); got != 70000 {
		t.Errorf("source balance = %d, want 70000", got)
	}
	if got := balanceOf(t, repo, savings); got != 50000 {
		t.Errorf("destination balance = %d, want 50000", got)
	}
	if out.TransferTransactionID == nil || *out.TransferTransactionID != in.ID {
		t.Error("out leg should link to in leg")
	}
	if in.TransferTransactionID == nil || *in.TransferTransactionID != out.ID {
		t.Error("in leg should link to out leg")
	}

	// Deleting one leg reverses and removes both.
	if err := svc.DeleteTransaction(ctx, userID, in.ID); err != nil {
		t.Fatalf("DeleteTransaction: %v", err)
	}
	if got := balanceOf(t, repo, checking); got != 100000 {
		t.Errorf("source balance after delete = %d, want 100000", got)
	}
	if got := balanceOf(t, repo, savings); got != 20000 {
		t.Errorf("destination balance after delete = %d, want 20000", got)
	}
	if _, err := repo.Queries().GetTransaction(ctx, out.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("counterpart leg should be gone, got err %v", err)
	}
}

func TestTransferToSameAccountRejected(t *testing.T) {
	repo := newTestRepo(t)
	svc := NewTransactionService(repo, nil)
	ctx := context.Background()

	userID := newUser(t, repo)
	accountID := newAccount(t, repo, userID, 100000)

	_, _, err := svc.CreateTransfer(ctx, userID, accountID, accountID,
		core.Money{Cents: 1000}, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), "")
	if !errors.Is(err, core.ErrSameAccount) {
		t.Errorf("err = %v, want ErrSameAccount", err)
	}
}

func TestCrossUserAccessRejected(t *testing.T) {
	repo := newTestRepo(t)
	svc := NewTransactionService(repo, nil)
	ctx := context.Background()

	alice := newUser(t, repo)
	accountID := newAccount(t, repo, alice, 100000)
	bob, err := repo.Queries().CreateUser(ctx, "bob", "EUR", 0)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	_, err = svc.CreateTransaction(ctx, core.Transaction{
		UserID:    bob,
		AccountID: accountID,
		Type:      core.TypeExpense,
		Amount:    core.Money{Cents: 1000},
		Date:      time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	if !errors.Is(err, core.ErrNotOwner) {
		t.Errorf("create err = %v, want ErrNotOwner", err)
	}

	tx, err := svc.CreateTransaction(ctx, core.Transaction{
		UserID:    alice,
		AccountID: accountID,
		Type:      core.TypeExpense,
		Amount:    core.Money{Cents: 1000},
		Date:      time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if err := svc.DeleteTransaction(ctx, bob, tx.ID); !errors.Is(err, core.ErrNotOwner) {
		t.Errorf("delete err = %v, want ErrNotOwner", err)
	}
}

func TestCategoryTypeMismatchRejected(t *testing.T) {
	repo := newTestRepo(t)
	svc := NewTransactionService(repo, nil)
	ctx := context.Background()

	userID := newUser(t, repo)
	accountID := newAccount(t, repo, userID, 100000)
	salaryID := sharedCategory(t, repo, userID, "Salary") // income category

	_, err := svc.CreateTransaction(ctx, core.Transaction{
		UserID:     userID,
		AccountID:  accountID,
		CategoryID: &salaryID,
		Type:       core.TypeExpense,
		Amount:     core.Money{Cents: 1000},
		Date:       time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	if !errors.Is(err, core.ErrTypeMismatch) {
		t.Errorf("err = %v, want ErrTypeMismatch", err)
	}
}

func TestSplitIntoCategories(t *testing.T) {
	repo := newTestRepo(t)
	svc := NewTransactionService(repo, nil)
	ctx := context.Background()

	userID := newUser(t, repo)
	accountID := newAccount(t, repo, userID, 100000)
	groceries := sharedCategory(t, repo, userID, "Groceries")
	restaurants := sharedCategory(t, repo, userID, "Restaurants")
	food := sharedCategory(t, repo, userID, "Food")

	parent, err := svc.CreateTransaction(ctx, core.Transaction{
		UserID:      userID,
		AccountID:   accountID,
		CategoryID:  &food,
		Type:        core.TypeExpense,
		Amount:      core.Money{Cents: 9000},
		Date:        time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC),
		Description: "supermarket run",
	})
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}

	t.Run("sum mismatch rejected", func(t *testing.T) {
		_, err := svc.SplitIntoCategories(ctx, userID, parent.ID, []SplitPart{
			{CategoryID: &groceries, Amount: core.Money{Cents: 6000}},
			{CategoryID: &restaurants, Amount: core.Money{Cents: 2000}},
		})
		if !errors.Is(err, core.ErrSplitSumMismatch) {
			t.Errorf("err = %v, want ErrSplitSumMismatch", err)
		}
	})

	t.Run("valid split keeps single balance effect", func(t *testing.T) {
		children, err := svc.SplitIntoCategories(ctx, userID, parent.ID, []SplitPart{
			{CategoryID: &groceries, Amount: core.Money{Cents: 6000}},
			{CategoryID: &restaurants, Amount: core.Money{Cents: 3000}},
		})
		if err != nil {
			t.Fatalf("SplitIntoCategories: %v", err)
		}
		if len(children) != 2 {
			t.Fatalf("children = %d, want 2", len(children))
		}
		// The split parent still carries the one account effect.
		if got := balanceOf(t, repo, accountID); got != 91000 {
			t.Errorf("balance after split = %d, want 91000", got)
		}
		got, err := repo.Queries().GetTransaction(ctx, parent.ID)
		if err != nil {
			t.Fatalf("GetTransaction: %v", err)
		}
		if !got.IsSplit {
			t.Error("parent should be flagged split")
		}
	})

	t.Run("one cent rounding tolerated", func(t *testing.T) {
		_, err := svc.SplitIntoCategories(ctx, userID, parent.ID, []SplitPart{
			{CategoryID: &groceries, Amount: core.Money{Cents: 4500}},
			{CategoryID: &restaurants, Amount: core.Money{Cents: 4501}},
		})
		if err != nil {
			t.Fatalf("SplitIntoCategories with 1 cent excess: %v", err)
		}
	})

	t.Run("deleting parent cascades", func(t *testing.T) {
		if err := svc.DeleteTransaction(ctx, userID, parent.ID); err != nil {
			t.Fatalf("DeleteTransaction: %v", err)
		}
		if got := balanceOf(t, repo, accountID); got != 100000 {
			t.Errorf("balance after delete = %d, want 100000", got)
		}
		children, err := repo.Queries().ListChildren(ctx, parent.ID)
		if err != nil {
			t.Fatalf("ListChildren: %v", err)
		}
		if len(children) != 0 {
			t.Errorf("children after parent delete = %d, want 0", len(children))
		}
	})
}

func TestNetWorthAndReconcile(t *testing.T) {
	repo := newTestRepo(t)
	txSvc := NewTransactionService(repo, nil)
	acctSvc := NewAccountService(repo)
	ctx := context.Background()

	userID := newUser(t, repo)
	checking := newAccount(t, repo, userID, 500000)
	credit, err := repo.Queries().CreateAccount(ctx, core.Account{
		UserID:            userID,
		Name:              "Visa",
		Type:              core.AccountCredit,
		Balance:           core.Money{Cents: 120000},
		InitialBalance:    core.Money{Cents: 120000},
		Currency:          "EUR",
		Active:            true,
		IncludeInNetWorth: true,
	})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	nw, err := acctSvc.NetWorth(ctx, userID)
	if err != nil {
		t.Fatalf("NetWorth: %v", err)
	}
	if nw.Assets.Cents != 500000 || nw.Liabilities.Cents != 120000 {
		t.Errorf("assets/liabilities = %d/%d, want 500000/120000", nw.Assets.Cents, nw.Liabilities.Cents)
	}
	if nw.Total.Cents != 380000 {
		t.Errorf("total = %d, want 380000", nw.Total.Cents)
	}
	_ = credit

	// Corrupt the stored balance, then reconcile.
	if _, err := txSvc.CreateTransaction(ctx, core.Transaction{
		UserID:    userID,
		AccountID: checking,
		Type:      core.TypeExpense,
		Amount:    core.Money{Cents: 50000},
		Date:      time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}); err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if err := repo.Queries().SetAccountBalance(ctx, checking, 123); err != nil {
		t.Fatalf("SetAccountBalance: %v", err)
	}

	check, err := acctSvc.RecalculateBalance(ctx, checking)
	if err != nil {
		t.Fatalf("RecalculateBalance: %v", err)
	}
	if !check.Corrected {
		t.Error("reconciliation should report a correction")
	}
	if check.Computed.Cents != 450000 {
		t.Errorf("computed = %d, want 450000", check.Computed.Cents)
	}
	if got := balanceOf(t, repo, checking); got != 450000 {
		t.Errorf("stored balance after reconcile = %d, want 450000", got)
	}
}

func TestMonthlySummary(t *testing.T) {
	repo := newTestRepo(t)
	txSvc := NewTransactionService(repo, nil)
	acctSvc := NewAccountService(repo)
	ctx := context.Background()

	userID := newUser(t, repo)
	accountID := newAccount(t, repo, userID, 0)
	salary := sharedCategory(t, repo, userID, "Salary")
	food := sharedCategory(t, repo, userID, "Food")

	for _, tx := range []core.Transaction{
		{Type: core.TypeIncome, CategoryID: &salary, Amount: core.Money{Cents: 250000}, Date: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)},
		{Type: core.TypeExpense, CategoryID: &food, Amount: core.Money{Cents: 40000}, Date: time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC)},
		{Type: core.TypeExpense, CategoryID: &food, Amount: core.Money{Cents: 20000}, Date: time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)},
		// outside the month
		{Type: core.TypeExpense, CategoryID: &food, Amount: core.Money{Cents: 99900}, Date: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)},
	} {
		tx.UserID = userID
		tx.AccountID = accountID
		if _, err := txSvc.CreateTransaction(ctx, tx); err != nil {
			t.Fatalf("CreateTransaction: %v", err)
		}
	}

	sum, err := acctSvc.MonthlySummary(ctx, userID, 2026, 3)
	if err != nil {
		t.Fatalf("MonthlySummary: %v", err)
	}
	if sum.Income.Cents != 250000 {
		t.Errorf("income = %d, want 250000", sum.Income.Cents)
	}
	if sum.Expenses.Cents != 60000 {
		t.Errorf("expenses = %d, want 60000", sum.Expenses.Cents)
	}
	if sum.Net.Cents != 190000 {
		t.Errorf("net = %d, want 190000", sum.Net.Cents)
	}
	if len(sum.ByCategory) != 1 || sum.ByCategory[0].Name != "Food" || sum.ByCategory[0].Amount.Cents != 60000 {
		t.Errorf("by category = %+v", sum.ByCategory)
	}
}

func TestClearingPendingSplitParentChargesChildren(t *testing.T) {
	repo := newTestRepo(t)
	txSvc := NewTransactionService(repo, nil)
	budgetSvc := NewBudgetService(repo, nil)
	ctx := context.Background()

	userID := newUser(t, repo)
	accountID := newAccount(t, repo, userID, 100000)
	food := sharedCategory(t, repo, userID, "Food")
	transport := sharedCategory(t, repo, userID, "Transport")

	b := marchBudget(t, budgetSvc, userID, 0)
	bcFood, err := budgetSvc.CreateAllocation(ctx, userID, b.ID, food, core.Money{Cents: 20000})
	if err != nil {
		t.Fatalf("CreateAllocation food: %v", err)
	}
	bcTransport, err := budgetSvc.CreateAllocation(ctx, userID, b.ID, transport, core.Money{Cents: 10000})
	if err != nil {
		t.Fatalf("CreateAllocation transport: %v", err)
	}

	parent, err := txSvc.CreateTransaction(ctx, core.Transaction{
		UserID:     userID,
		AccountID:  accountID,
		CategoryID: &food,
		Type:       core.TypeExpense,
		Amount:     core.Money{Cents: 9000},
		Date:       time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		Pending:    true,
	})
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if _, err := txSvc.SplitIntoCategories(ctx, userID, parent.ID, []SplitPart{
		{CategoryID: &food, Amount: core.Money{Cents: 6000}},
		{CategoryID: &transport, Amount: core.Money{Cents: 3000}},
	}); err != nil {
		t.Fatalf("SplitIntoCategories: %v", err)
	}

	// While pending nothing is charged anywhere.
	if got := balanceOf(t, repo, accountID); got != 100000 {
		t.Fatalf("pending balance = %d, want 100000", got)
	}

	cleared := parent
	cleared.Pending = false
	if _, err := txSvc.UpdateTransaction(ctx, cleared); err != nil {
		t.Fatalf("UpdateTransaction: %v", err)
	}

	if got := balanceOf(t, repo, accountID); got != 91000 {
		t.Errorf("balance after clearing = %d, want 91000", got)
	}
	gotFood, err := repo.Queries().GetBudgetCategory(ctx, bcFood.ID)
	if err != nil {
		t.Fatalf("GetBudgetCategory: %v", err)
	}
	if gotFood.Spent.Cents != 6000 {
		t.Errorf("food spent = %d, want 6000", gotFood.Spent.Cents)
	}
	gotTransport, err := repo.Queries().GetBudgetCategory(ctx, bcTransport.ID)
	if err != nil {
		t.Fatalf("GetBudgetCategory: %v", err)
	}
	if gotTransport.Spent.Cents != 3000 {
		t.Errorf("transport spent = %d, want 3000", gotTransport.Spent.Cents)
	}

	// Re-marking the parent pending takes the charges back out.
	repending := cleared
	repending.Pending = true
	if _, err := txSvc.UpdateTransaction(ctx, repending); err != nil {
		t.Fatalf("UpdateTransaction back to pending: %v", err)
	}
	if got := balanceOf(t, repo, accountID); got != 100000 {
		t.Errorf("balance after re-pending = %d, want 100000", got)
	}
	gotFood, err = repo.Queries().GetBudgetCategory(ctx, bcFood.ID)
	if err != nil {
		t.Fatalf("GetBudgetCategory: %v", err)
	}
	if gotFood.Spent.Cents != 0 {
		t.Errorf("food spent after re-pending = %d, want 0", gotFood.Spent.Cents)
	}
}
