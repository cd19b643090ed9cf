package core

import "time"

// AuditEntry is one immutable line in the change history. Entries are
// appended by the ledger worker as domain events arrive and are never
// updated.
type AuditEntry struct {
	ID         int64
	UserID     *int64
	EntityType string
	EntityID   int64
	Action     string
	Detail     string
	CreatedAt  time.Time
}
