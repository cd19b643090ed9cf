// Package worker contains the long-running consumers. The audit worker
// drains the ledger queue into the append-only audit_log table so every
// domain event leaves a durable trace.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"finbook/internal/amqp"
	"finbook/internal/storage"
)

type AuditWorker struct {
	repo       *storage.SQLiteRepository
	amqpClient *amqp.Client
}

func NewAuditWorker(repo *storage.SQLiteRepository, amqpClient *amqp.Client) *AuditWorker {
	return &AuditWorker{
		repo:       repo,
		amqpClient: amqpClient,
	}
}

// Run consumes events until ctx is cancelled. A handler error requeues the
// delivery, so transient database trouble does not lose events.
func (w *AuditWorker) Run(ctx context.Context) error {
	if w.repo == nil || w.amqpClient == nil {
		return fmt.Errorf("worker not properly initialized")
	}

	slog.InfoContext(ctx, "Audit worker starting")
	return w.amqpClient.ConsumeEvents(ctx, func(ev *amqp.Event) error {
		return w.HandleEvent(ctx, ev)
	})
}

// HandleEvent appends one event to the audit log.
func (w *AuditWorker) HandleEvent(ctx context.Context, ev *amqp.Event) error {
	entry := ev.AuditEntry()
	if err := w.repo.Queries().InsertAuditLog(ctx, entry); err != nil {
		return fmt.Errorf("record audit entry: %w", err)
	}

	slog.DebugContext(ctx, "Event audited",
		"event_id", ev.ID,
		"type", ev.Type,
		"entity_type", ev.EntityType,
		"entity_id", ev.EntityID)
	return nil
}
