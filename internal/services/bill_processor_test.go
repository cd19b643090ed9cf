package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"finbook/internal/core"
)

func electricBill(t *testing.T, proc *BillProcessor, userID, accountID int64, autoPay bool) core.Bill {
	t.Helper()
	b, err := proc.CreateBill(context.Background(), core.Bill{
		UserID:    userID,
		AccountID: accountID,
		Name:      "Electricity",
		Amount:    core.Money{Cents: 8000},
		AutoPay:   autoPay,
		Schedule: core.Schedule{
			Frequency:   core.Monthly,
			AnchorDay:   15,
			NextDueDate: time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC),
		},
		IsVariable:   true,
		ReminderDays: 3,
	})
	if err != nil {
		t.Fatalf("CreateBill: %v", err)
	}
	return b
}

func TestMarkAsPaid(t *testing.T) {
	repo := newTestRepo(t)
	proc := NewBillProcessor(repo, nil)
	ctx := context.Background()

	userID := newUser(t, repo)
	accountID := newAccount(t, repo, userID, 100000)
	bill := electricBill(t, proc, userID, accountID, false)

	paid, err := proc.MarkAsPaid(ctx, userID, bill.ID, core.Money{Cents: 7550},
		time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("MarkAsPaid: %v", err)
	}

	if got := balanceOf(t, repo, accountID); got != 92450 {
		t.Errorf("balance = %d, want 92450", got)
	}
	if paid.PaymentCount != 1 || paid.TotalPaid.Cents != 7550 {
		t.Errorf("history = count %d total %d", paid.PaymentCount, paid.TotalPaid.Cents)
	}
	if paid.LastPaidAmount.Cents != 7550 {
		t.Errorf("last paid = %d, want 7550", paid.LastPaidAmount.Cents)
	}
	if paid.AverageAmount.Cents != 7550 {
		t.Errorf("average = %d, want 7550", paid.AverageAmount.Cents)
	}
	want := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)
	if !paid.Schedule.NextDueDate.Equal(want) {
		t.Errorf("next due = %v, want %v", paid.Schedule.NextDueDate, want)
	}

	// Second variable payment updates the rolling average.
	paid, err = proc.MarkAsPaid(ctx, userID, bill.ID, core.Money{Cents: 8450},
		time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("MarkAsPaid: %v", err)
	}
	if paid.AverageAmount.Cents != 8000 {
		t.Errorf("average after second payment = %d, want 8000", paid.AverageAmount.Cents)
	}
}

func TestAutoPaySweep(t *testing.T) {
	repo := newTestRepo(t)
	proc := NewBillProcessor(repo, nil)
	ctx := context.Background()

	userID := newUser(t, repo)
	funded := newAccount(t, repo, userID, 100000)
	broke := newAccount(t, repo, userID, 100)

	electricBill(t, proc, userID, funded, true)
	underfunded, err := proc.CreateBill(ctx, core.Bill{
		UserID:    userID,
		AccountID: broke,
		Name:      "Internet",
		Amount:    core.Money{Cents: 3000},
		AutoPay:   true,
		Schedule: core.Schedule{
			Frequency:   core.Monthly,
			AnchorDay:   15,
			NextDueDate: time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC),
		},
	})
	if err != nil {
		t.Fatalf("CreateBill: %v", err)
	}

	paid, err := proc.ProcessAutoPay(ctx, time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ProcessAutoPay: %v", err)
	}
	if paid != 1 {
		t.Errorf("paid = %d, want 1 (underfunded bill skipped)", paid)
	}
	if got := balanceOf(t, repo, funded); got != 92000 {
		t.Errorf("funded balance = %d, want 92000", got)
	}
	if got := balanceOf(t, repo, broke); got != 100 {
		t.Errorf("underfunded balance = %d, want untouched 100", got)
	}

	// The skipped bill is still due.
	got, err := repo.Queries().GetBill(ctx, underfunded.ID)
	if err != nil {
		t.Fatalf("GetBill: %v", err)
	}
	if !got.Schedule.NextDueDate.Equal(time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("skipped bill due date = %v, should not advance", got.Schedule.NextDueDate)
	}
}

func TestMissedSweepCountsOncePerDueDate(t *testing.T) {
	repo := newTestRepo(t)
	proc := NewBillProcessor(repo, nil)
	ctx := context.Background()

	userID := newUser(t, repo)
	accountID := newAccount(t, repo, userID, 100000)
	bill := electricBill(t, proc, userID, accountID, false)

	day := time.Date(2026, 9, 20, 0, 0, 0, 0, time.UTC)
	missed, err := proc.SweepMissed(ctx, day)
	if err != nil {
		t.Fatalf("SweepMissed: %v", err)
	}
	if missed != 1 {
		t.Errorf("missed = %d, want 1", missed)
	}

	// A second sweep over the same overdue date is a no-op.
	missed, err = proc.SweepMissed(ctx, day.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("SweepMissed: %v", err)
	}
	if missed != 0 {
		t.Errorf("missed on rerun = %d, want 0", missed)
	}

	got, err := repo.Queries().GetBill(ctx, bill.ID)
	if err != nil {
		t.Fatalf("GetBill: %v", err)
	}
	if got.MissedPayments != 1 {
		t.Errorf("missed payments = %d, want 1", got.MissedPayments)
	}

	// Paying resets the missed counter.
	paid, err := proc.MarkAsPaid(ctx, userID, bill.ID, core.Money{},
		time.Date(2026, 9, 25, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("MarkAsPaid: %v", err)
	}
	if paid.MissedPayments != 0 {
		t.Errorf("missed after payment = %d, want 0", paid.MissedPayments)
	}
}

func TestUpcomingUsesReminderWindow(t *testing.T) {
	repo := newTestRepo(t)
	proc := NewBillProcessor(repo, nil)
	ctx := context.Background()

	userID := newUser(t, repo)
	accountID := newAccount(t, repo, userID, 100000)
	electricBill(t, proc, userID, accountID, false) // due Sep 15, reminder 3 days

	due, err := proc.Upcoming(ctx, time.Date(2026, 9, 12, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Upcoming: %v", err)
	}
	if len(due) != 1 {
		t.Errorf("upcoming at 3 days out = %d bills, want 1", len(due))
	}

	due, err = proc.Upcoming(ctx, time.Date(2026, 9, 11, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Upcoming: %v", err)
	}
	if len(due) != 0 {
		t.Errorf("upcoming at 4 days out = %d bills, want 0", len(due))
	}
}

func TestBillAgainstForeignAccountRejected(t *testing.T) {
	repo := newTestRepo(t)
	proc := NewBillProcessor(repo, nil)
	ctx := context.Background()

	alice := newUser(t, repo)
	aliceAccount := newAccount(t, repo, alice, 50000)
	bob, err := repo.Queries().CreateUser(ctx, "bob", "EUR", 0)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	_, err = proc.CreateBill(ctx, core.Bill{
		UserID:    bob,
		AccountID: aliceAccount,
		Name:      "Rent",
		Amount:    core.Money{Cents: 50000},
		AutoPay:   true,
		Schedule: core.Schedule{
			Frequency:   core.Monthly,
			NextDueDate: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		},
	})
	if !errors.Is(err, core.ErrNotOwner) {
		t.Fatalf("CreateBill err = %v, want ErrNotOwner", err)
	}
	if got := balanceOf(t, repo, aliceAccount); got != 50000 {
		t.Errorf("balance = %d, want untouched 50000", got)
	}
}
