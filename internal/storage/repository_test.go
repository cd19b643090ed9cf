package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"finbook/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "finbook.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func seedUser(t *testing.T, repo *SQLiteRepository) int64 {
	t.Helper()
	id, err := repo.Queries().CreateUser(context.Background(), "mario", "EUR", 10000)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return id
}

func seedAccount(t *testing.T, repo *SQLiteRepository, userID, balanceCents int64) int64 {
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

func TestAccountRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	userID := seedUser(t, repo)

	limit := int64(500000)
	id, err := repo.Queries().CreateAccount(ctx, core.Account{
		UserID:            userID,
		Name:              "Visa",
		Type:              core.AccountCredit,
		Balance:           core.Money{Cents: 12050},
		InitialBalance:    core.Money{Cents: 0},
		CreditLimitCents:  &limit,
		Currency:          "EUR",
		Active:            true,
		IncludeInNetWorth: true,
	})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	got, err := repo.Queries().GetAccount(ctx, id)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if got.Type != core.AccountCredit {
		t.Errorf("type = %q, want credit", got.Type)
	}
	if got.Balance.Cents != 12050 {
		t.Errorf("balance = %d, want 12050", got.Balance.Cents)
	}
	if got.CreditLimitCents == nil || *got.CreditLimitCents != limit {
		t.Errorf("credit limit = %v, want %d", got.CreditLimitCents, limit)
	}

	if err := repo.Queries().AddToAccountBalance(ctx, id, -2050); err != nil {
		t.Fatalf("AddToAccountBalance: %v", err)
	}
	got, _ = repo.Queries().GetAccount(ctx, id)
	if got.Balance.Cents != 10000 {
		t.Errorf("balance after delta = %d, want 10000", got.Balance.Cents)
	}
}

func TestGetAccountNotFound(t *testing.T) {
	repo := newTestRepo(t)
	_, err := repo.Queries().GetAccount(context.Background(), 999)
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSeededCategoriesAreShared(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	userID := seedUser(t, repo)

	cats, err := repo.Queries().ListCategories(ctx, userID)
	if err != nil {
		t.Fatalf("ListCategories: %v", err)
	}
	if len(cats) == 0 {
		t.Fatal("expected seeded categories")
	}

	var foundChild bool
	for _, c := range cats {
		if !c.Owner.Shared() {
			t.Errorf("seeded category %q should be shared", c.Name)
		}
		if c.Name == "Groceries" && c.ParentID != nil {
			foundChild = true
		}
	}
	if !foundChild {
		t.Error("expected Groceries as a child category")
	}
}

func TestOwnedCategoryVisibility(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	alice := seedUser(t, repo)
	bobID, err := repo.Queries().CreateUser(ctx, "bob", "EUR", 0)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	_, err = repo.Queries().CreateCategory(ctx, core.Category{
		Owner:  core.OwnedCategory(alice),
		Name:   "Hobby",
		Type:   core.CategoryExpense,
		Active: true,
	})
	if err != nil {
		t.Fatalf("CreateCategory: %v", err)
	}

	bobCats, err := repo.Queries().ListCategories(ctx, bobID)
	if err != nil {
		t.Fatalf("ListCategories: %v", err)
	}
	for _, c := range bobCats {
		if c.Name == "Hobby" {
			t.Error("bob should not see alice's category")
		}
	}
}

func TestAccountSignedSum(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	userID := seedUser(t, repo)
	accountID := seedAccount(t, repo, userID, 0)

	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	out := core.TransferOut
	rows := []core.Transaction{
		{UserID: userID, AccountID: accountID, Type: core.TypeIncome, Amount: core.Money{Cents: 100000}, Date: day},
		{UserID: userID, AccountID: accountID, Type: core.TypeExpense, Amount: core.Money{Cents: 15000}, Date: day},
		{UserID: userID, AccountID: accountID, Type: core.TypeExpense, Amount: core.Money{Cents: 5000}, Date: day, Pending: true},
		{UserID: userID, AccountID: accountID, Type: core.TypeTransfer, Amount: core.Money{Cents: 20000}, Date: day, TransferLeg: &out},
	}
	for _, r := range rows {
		if _, err := repo.Queries().InsertTransaction(ctx, r); err != nil {
			t.Fatalf("InsertTransaction: %v", err)
		}
	}

	sum, err := repo.Queries().AccountSignedSum(ctx, accountID)
	if err != nil {
		t.Fatalf("AccountSignedSum: %v", err)
	}
	// 1000.00 - 150.00 - 200.00; the pending expense does not count.
	if sum != 65000 {
		t.Errorf("signed sum = %d, want 65000", sum)
	}
}

func TestInTxRollsBackOnError(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	userID := seedUser(t, repo)
	accountID := seedAccount(t, repo, userID, 100000)

	boom := errors.New("boom")
	err := repo.InTx(ctx, func(q *Queries) error {
		if err := q.AddToAccountBalance(ctx, accountID, -40000); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("InTx err = %v, want boom", err)
	}

	got, err := repo.Queries().GetAccount(ctx, accountID)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if got.Balance.Cents != 100000 {
		t.Errorf("balance = %d, want untouched 100000", got.Balance.Cents)
	}
}

func TestSplitChildrenCascadeOnParentDelete(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	userID := seedUser(t, repo)
	accountID := seedAccount(t, repo, userID, 0)

	day := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	parentID, err := repo.Queries().InsertTransaction(ctx, core.Transaction{
		UserID: userID, AccountID: accountID, Type: core.TypeExpense,
		Amount: core.Money{Cents: 9000}, Date: day, IsSplit: true,
	})
	if err != nil {
		t.Fatalf("insert parent: %v", err)
	}
	for _, cents := range []int64{6000, 3000} {
		_, err := repo.Queries().InsertTransaction(ctx, core.Transaction{
			UserID: userID, AccountID: accountID, Type: core.TypeExpense,
			Amount: core.Money{Cents: cents}, Date: day, ParentTransactionID: &parentID,
		})
		if err != nil {
			t.Fatalf("insert child: %v", err)
		}
	}

	if err := repo.Queries().DeleteTransactionRow(ctx, parentID); err != nil {
		t.Fatalf("DeleteTransactionRow: %v", err)
	}
	children, err := repo.Queries().ListChildren(ctx, parentID)
	if err != nil {
		t.Fatalf("ListChildren: %v", err)
	}
	if len(children) != 0 {
		t.Errorf("children after parent delete = %d, want 0", len(children))
	}
}

func TestBudgetOverlapCount(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	userID := seedUser(t, repo)

	_, err := repo.Queries().InsertBudget(ctx, core.Budget{
		UserID:    userID,
		Name:      "March",
		StartDate: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
		Status:    core.BudgetActive,
	})
	if err != nil {
		t.Fatalf("InsertBudget: %v", err)
	}

	n, err := repo.Queries().CountOverlappingActiveBudgets(ctx, userID,
		time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 4, 15, 0, 0, 0, 0, time.UTC), 0)
	if err != nil {
		t.Fatalf("CountOverlappingActiveBudgets: %v", err)
	}
	if n != 1 {
		t.Errorf("overlap count = %d, want 1", n)
	}

	n, err = repo.Queries().CountOverlappingActiveBudgets(ctx, userID,
		time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 4, 30, 0, 0, 0, 0, time.UTC), 0)
	if err != nil {
		t.Fatalf("CountOverlappingActiveBudgets: %v", err)
	}
	if n != 0 {
		t.Errorf("overlap count = %d, want 0", n)
	}
}

func TestBillRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	userID := seedUser(t, repo)
	accountID := seedAccount(t, repo, userID, 0)

	id, err := repo.Queries().InsertBill(ctx, core.Bill{
		UserID:    userID,
		AccountID: accountID,
		Name:      "Electricity",
		Amount:    core.Money{Cents: 8000},
		Schedule: core.Schedule{
			Frequency:         core.Monthly,
			AnchorDay:         15,
			NextDueDate:       time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC),
			AutoGenerate:      true,
			GenerateDaysAhead: 3,
			Status:            core.ScheduleActive,
		},
		IsVariable:   true,
		ReminderDays: 3,
	})
	if err != nil {
		t.Fatalf("InsertBill: %v", err)
	}

	got, err := repo.Queries().GetBill(ctx, id)
	if err != nil {
		t.Fatalf("GetBill: %v", err)
	}
	if got.Schedule.Frequency != core.Monthly || got.Schedule.AnchorDay != 15 {
		t.Errorf("schedule round trip = %+v", got.Schedule)
	}
	if !got.Schedule.NextDueDate.Equal(time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("next due = %v", got.Schedule.NextDueDate)
	}
	if !got.IsVariable {
		t.Error("is_variable lost in round trip")
	}
}
