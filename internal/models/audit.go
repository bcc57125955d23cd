package models

import (
	"time"

	"github.com/uptrace/bun"
)

// AuditEntry is one immutable record of a ticket transition attempt. Entries
// are only ever inserted; there is no update or delete path anywhere.
type AuditEntry struct {
	bun.BaseModel `bun:"table:audit_entries"`

	ID        int64     `bun:"id,pk,autoincrement"`
	TicketID  string    `bun:"ticket_id,notnull"`
	EventID   string    `bun:"event_id,notnull"`
	Actor     string    `bun:"actor,notnull"`
	ActorRole string    `bun:"actor_role"`
	FromState string    `bun:"from_state"`
	ToState   string    `bun:"to_state"`
	Outcome   string    `bun:"outcome,notnull"`
	Detail    string    `bun:"detail"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}
