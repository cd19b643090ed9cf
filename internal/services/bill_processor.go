package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"finbook/internal/amqp"
	"finbook/internal/core"
	"finbook/internal/storage"
)

// BillProcessor manages recurring payment obligations: manual payment,
// auto-pay sweeps, missed-payment tracking, and upcoming reminders.
type BillProcessor struct {
	repo       *storage.SQLiteRepository
	amqpClient *amqp.Client
}

func NewBillProcessor(repo *storage.SQLiteRepository, amqpClient *amqp.Client) *BillProcessor {
	return &BillProcessor{
		repo:       repo,
		amqpClient: amqpClient,
	}
}

func (p *BillProcessor) CreateBill(ctx context.Context, b core.Bill) (core.Bill, error) {
	if b.Schedule.Status == "" {
		b.Schedule.Status = core.ScheduleActive
	}
	if b.Schedule.AnchorDay == 0 {
		b.Schedule.AnchorDay = b.Schedule.NextDueDate.Day()
	}
	if err := b.Validate(); err != nil {
		return core.Bill{}, err
	}
	if err := checkAccount(ctx, p.repo.Queries(), b.UserID, b.AccountID); err != nil {
		return core.Bill{}, err
	}
	if err := checkCategory(ctx, p.repo.Queries(), b.UserID, b.CategoryID, core.TypeExpense); err != nil {
		return core.Bill{}, err
	}

	id, err := p.repo.Queries().InsertBill(ctx, b)
	if err != nil {
		return core.Bill{}, err
	}
	b.ID = id

	slog.InfoContext(ctx, "Bill created",
		"bill_id", id,
		"name", b.Name,
		"amount_cents", b.Amount.Cents,
		"next_due", b.Schedule.NextDueDate.Format("2006-01-02"))
	return b, nil
}

// SetStatus applies the schedule state machine to a bill.
func (p *BillProcessor) SetStatus(ctx context.Context, userID, id int64, status core.ScheduleStatus) error {
	b, err := p.repo.Queries().GetBill(ctx, id)
	if err != nil {
		return err
	}
	if b.UserID != userID {
		return core.ErrNotOwner
	}
	if err := b.Schedule.TransitionTo(status); err != nil {
		return err
	}
	return p.repo.Queries().UpdateBillStatus(ctx, id, status)
}

// MarkAsPaid records one payment: it creates the expense transaction, folds
// the payment into the bill's history, and advances the due date by one
// frequency step, all atomically. A zero amount means the bill's nominal
// amount.
func (p *BillProcessor) MarkAsPaid(ctx context.Context, userID, billID int64, amount core.Money, date time.Time) (core.Bill, error) {
	bill, err := p.repo.Queries().GetBill(ctx, billID)
	if err != nil {
		return core.Bill{}, err
	}
	if bill.UserID != userID {
		return core.Bill{}, core.ErrNotOwner
	}
	if bill.Schedule.Status != core.ScheduleActive {
		return core.Bill{}, core.Invalid("status", errors.New("bill is not active"))
	}
	if amount.Cents == 0 {
		amount = bill.Amount
	}
	if err := amount.Validate(); err != nil {
		return core.Bill{}, core.Invalid("amount", err)
	}

	var txID int64
	err = p.repo.InTx(ctx, func(q *storage.Queries) error {
		t := core.Transaction{
			UserID:      userID,
			AccountID:   bill.AccountID,
			CategoryID:  bill.CategoryID,
			Type:        core.TypeExpense,
			Amount:      amount,
			Date:        date,
			Description: bill.Name,
			BillID:      &bill.ID,
		}
		id, _, err := insertWithEffects(ctx, q, t)
		if err != nil {
			return err
		}
		txID = id

		bill.RecordPayment(amount, date)
		bill.Schedule.Advance()
		if bill.Schedule.Ended() {
			bill.Schedule.Status = core.ScheduleCompleted
		}
		return q.UpdateBillAfterPayment(ctx, bill)
	})
	if err != nil {
		return core.Bill{}, err
	}

	slog.InfoContext(ctx, "Bill paid",
		"bill_id", billID,
		"transaction_id", txID,
		"amount_cents", amount.Cents,
		"next_due", bill.Schedule.NextDueDate.Format("2006-01-02"))

	p.publish(ctx, amqp.NewEvent(amqp.EventBillPaid, userID, "bill", billID).
		WithAmount(amount.Cents).WithDetail(bill.Name))
	return bill, nil
}

// ProcessAutoPay pays every due auto-pay bill whose funding account can
// cover it. Credit accounts always cover; asset accounts must hold at least
// the bill amount, otherwise the bill is skipped and left due.
func (p *BillProcessor) ProcessAutoPay(ctx context.Context, today time.Time) (int, error) {
	bills, err := p.repo.Queries().ListActiveBills(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active bills: %w", err)
	}

	paid := 0
	for _, bill := range bills {
		if !bill.AutoPay || bill.Schedule.NextDueDate.After(today) {
			continue
		}

		account, err := p.repo.Queries().GetAccount(ctx, bill.AccountID)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to load bill account",
				"bill_id", bill.ID, "error", err)
			continue
		}
		if !account.Type.IsLiability() && account.Balance.Cents < bill.Amount.Cents {
			slog.WarnContext(ctx, "Skipping auto-pay, insufficient funds",
				"bill_id", bill.ID,
				"account_id", account.ID,
				"balance_cents", account.Balance.Cents,
				"amount_cents", bill.Amount.Cents)
			continue
		}

		if _, err := p.MarkAsPaid(ctx, bill.UserID, bill.ID, bill.Amount, bill.Schedule.NextDueDate); err != nil {
			slog.ErrorContext(ctx, "Auto-pay failed",
				"bill_id", bill.ID, "error", err)
			continue
		}
		paid++
	}

	slog.InfoContext(ctx, "Auto-pay sweep complete",
		"paid", paid,
		"total_checked", len(bills))
	return paid, nil
}

// SweepMissed marks overdue non-auto-pay bills missed, once per due date:
// last_missed_due keeps a repeated sweep from double counting the same miss.
func (p *BillProcessor) SweepMissed(ctx context.Context, today time.Time) (int, error) {
	bills, err := p.repo.Queries().ListActiveBills(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active bills: %w", err)
	}

	missed := 0
	for _, bill := range bills {
		if bill.AutoPay || !bill.Schedule.NextDueDate.Before(today) {
			continue
		}
		if bill.LastMissedDue != nil && bill.LastMissedDue.Equal(bill.Schedule.NextDueDate) {
			continue
		}

		if err := p.repo.Queries().MarkBillMissed(ctx, bill.ID, bill.Schedule.NextDueDate); err != nil {
			slog.ErrorContext(ctx, "Failed to mark bill missed",
				"bill_id", bill.ID, "error", err)
			continue
		}
		missed++

		slog.WarnContext(ctx, "Bill overdue",
			"bill_id", bill.ID,
			"name", bill.Name,
			"due_date", bill.Schedule.NextDueDate.Format("2006-01-02"))
		p.publish(ctx, amqp.NewEvent(amqp.EventBillOverdue, bill.UserID, "bill", bill.ID).
			WithAmount(bill.Amount.Cents).WithDetail(bill.Name))
	}
	return missed, nil
}

// Upcoming returns the active bills due inside each bill's own reminder
// window as of today.
func (p *BillProcessor) Upcoming(ctx context.Context, today time.Time) ([]core.Bill, error) {
	bills, err := p.repo.Queries().ListActiveBills(ctx)
	if err != nil {
		return nil, err
	}
	var due []core.Bill
	for _, bill := range bills {
		cutoff := today.AddDate(0, 0, bill.ReminderDays)
		if !bill.Schedule.NextDueDate.After(cutoff) {
			due = append(due, bill)
		}
	}
	return due, nil
}

func (p *BillProcessor) publish(ctx context.Context, ev *amqp.Event) {
	if p.amqpClient == nil {
		return
	}
	if err := p.amqpClient.PublishEvent(ctx, ev); err != nil {
		slog.ErrorContext(ctx, "Failed to publish event",
			"type", ev.Type, "entity_id", ev.EntityID, "error", err)
	}
}
