package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"finbook/internal/core"
)

// Event types carried on the ledger exchange. Consumers route on Type.
const (
	EventTransactionCreated = "transaction.created"
	EventTransactionUpdated = "transaction.updated"
	EventTransactionDeleted = "transaction.deleted"
	EventTransferCreated    = "transfer.created"
	EventTransactionSplit   = "transaction.split"
	EventBudgetAlert        = "budget.alert"
	EventBudgetOverspent    = "budget.overspent"
	EventBillPaid           = "bill.paid"
	EventBillOverdue        = "bill.overdue"
	EventGoalCompleted      = "goal.completed"
	EventRecurringGenerated = "recurring.generated"
	EventAccountLowBalance  = "account.low_balance"
)

// Event is a lightweight domain event. It carries the entity reference and
// the headline amount; consumers fetch the full row from the database when
// they need more.
type Event struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	UserID      int64     `json:"user_id"`
	EntityType  string    `json:"entity_type"`
	EntityID    int64     `json:"entity_id"`
	AmountCents int64     `json:"amount_cents,omitempty"`
	Detail      string    `json:"detail,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewEvent builds an event with a fresh ID and the current time.
func NewEvent(eventType string, userID int64, entityType string, entityID int64) *Event {
	return &Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		UserID:     userID,
		EntityType: entityType,
		EntityID:   entityID,
		Timestamp:  time.Now(),
	}
}

// WithAmount attaches the headline amount in cents.
func (e *Event) WithAmount(cents int64) *Event {
	e.AmountCents = cents
	return e
}

// WithDetail attaches a free-form detail string.
func (e *Event) WithDetail(detail string) *Event {
	e.Detail = detail
	return e
}

func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// AuditEntry converts the event into an audit log row.
func (e *Event) AuditEntry() core.AuditEntry {
	userID := e.UserID
	detail := e.Detail
	if e.AmountCents != 0 {
		if detail != "" {
			detail = fmt.Sprintf("%s (%d cents)", detail, e.AmountCents)
		} else {
			detail = fmt.Sprintf("%d cents", e.AmountCents)
		}
	}
	return core.AuditEntry{
		UserID:     &userID,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Action:     e.Type,
		Detail:     detail,
	}
}

func EventFromJSON(data []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}
