package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"finbook/internal/amqp"
	"finbook/internal/core"
	"finbook/internal/storage"
)

// RecurringProcessor turns due recurring templates into concrete
// transactions. Each template is handled in its own database transaction, so
// one broken template never blocks the rest of the batch.
type RecurringProcessor struct {
	repo       *storage.SQLiteRepository
	amqpClient *amqp.Client
}

func NewRecurringProcessor(repo *storage.SQLiteRepository, amqpClient *amqp.Client) *RecurringProcessor {
	return &RecurringProcessor{
		repo:       repo,
		amqpClient: amqpClient,
	}
}

// CreateTemplate validates and stores a recurring template.
func (p *RecurringProcessor) CreateTemplate(ctx context.Context, rt core.RecurringTransaction) (core.RecurringTransaction, error) {
	if rt.Schedule.Status == "" {
		rt.Schedule.Status = core.ScheduleActive
	}
	if rt.Schedule.AnchorDay == 0 {
		rt.Schedule.AnchorDay = rt.Schedule.NextDueDate.Day()
	}
	if err := rt.Validate(); err != nil {
		return core.RecurringTransaction{}, err
	}
	if err := checkAccount(ctx, p.repo.Queries(), rt.UserID, rt.AccountID); err != nil {
		return core.RecurringTransaction{}, err
	}
	if err := checkCategory(ctx, p.repo.Queries(), rt.UserID, rt.CategoryID, rt.Type); err != nil {
		return core.RecurringTransaction{}, err
	}

	id, err := p.repo.Queries().InsertRecurringTransaction(ctx, rt)
	if err != nil {
		return core.RecurringTransaction{}, err
	}
	rt.ID = id

	slog.InfoContext(ctx, "Recurring template created",
		"recurring_id", id,
		"frequency", rt.Schedule.Frequency,
		"next_due", rt.Schedule.NextDueDate.Format("2006-01-02"))
	return rt, nil
}

// SetStatus applies the schedule state machine to a template.
func (p *RecurringProcessor) SetStatus(ctx context.Context, userID, id int64, status core.ScheduleStatus) error {
	rt, err := p.repo.Queries().GetRecurringTransaction(ctx, id)
	if err != nil {
		return err
	}
	if rt.UserID != userID {
		return core.ErrNotOwner
	}
	if err := rt.Schedule.TransitionTo(status); err != nil {
		return err
	}
	return p.repo.Queries().UpdateRecurringStatus(ctx, id, status)
}

// ProcessDueTemplates generates transactions for every template whose due
// date falls inside its look-ahead window as of today. It returns the number
// of transactions generated.
func (p *RecurringProcessor) ProcessDueTemplates(ctx context.Context, today time.Time) (int, error) {
	if p.repo == nil {
		return 0, fmt.Errorf("processor not properly initialized")
	}

	templates, err := p.repo.Queries().ListActiveRecurring(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active templates: %w", err)
	}

	slog.InfoContext(ctx, "Processing recurring templates",
		"total_active", len(templates),
		"processing_date", today.Format("2006-01-02"))

	generated := 0
	for _, rt := range templates {
		if !rt.Schedule.DueForGeneration(today) {
			// A template whose end condition now holds gets closed out.
			if rt.Schedule.Status == core.ScheduleActive && rt.Schedule.Ended() {
				if err := p.repo.Queries().UpdateRecurringStatus(ctx, rt.ID, core.ScheduleCompleted); err != nil {
					slog.ErrorContext(ctx, "Failed to complete ended template",
						"recurring_id", rt.ID, "error", err)
				}
			}
			continue
		}

		txID, err := p.generateOne(ctx, rt)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to generate from recurring template",
				"recurring_id", rt.ID,
				"description", rt.Description,
				"error", err)
			continue
		}

		generated++
		slog.InfoContext(ctx, "Generated transaction from recurring template",
			"recurring_id", rt.ID,
			"transaction_id", txID,
			"amount_cents", rt.Amount.Cents,
			"frequency", rt.Schedule.Frequency)

		if p.amqpClient != nil {
			ev := amqp.NewEvent(amqp.EventRecurringGenerated, rt.UserID, "recurring_transaction", rt.ID).
				WithAmount(rt.Amount.Cents).WithDetail(rt.Description)
			if err := p.amqpClient.PublishEvent(ctx, ev); err != nil {
				slog.ErrorContext(ctx, "Failed to publish generation event",
					"recurring_id", rt.ID, "error", err)
			}
		}
	}

	slog.InfoContext(ctx, "Recurring template processing complete",
		"generated", generated,
		"total_checked", len(templates))
	return generated, nil
}

// generateOne creates the transaction, advances the schedule, and updates
// the template bookkeeping in one atomic unit.
func (p *RecurringProcessor) generateOne(ctx context.Context, rt core.RecurringTransaction) (int64, error) {
	var txID int64
	err := p.repo.InTx(ctx, func(q *storage.Queries) error {
		t := core.Transaction{
			UserID:                 rt.UserID,
			AccountID:              rt.AccountID,
			CategoryID:             rt.CategoryID,
			Type:                   rt.Type,
			Amount:                 rt.Amount,
			Date:                   rt.Schedule.NextDueDate,
			Description:            rt.Description,
			Pending:                rt.GenerateAsPending,
			RecurringTransactionID: &rt.ID,
		}
		id, _, err := insertWithEffects(ctx, q, t)
		if err != nil {
			return err
		}
		txID = id

		rt.Schedule.Advance()
		rt.TotalGenerated = rt.TotalGenerated.Add(rt.Amount)
		now := time.Now()
		rt.LastGeneratedAt = &now
		if rt.Schedule.Ended() {
			rt.Schedule.Status = core.ScheduleCompleted
		}
		return q.UpdateRecurringAfterGeneration(ctx, rt)
	})
	if err != nil {
		return 0, err
	}
	return txID, nil
}
