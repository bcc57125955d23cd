package models

import (
	"time"

	"github.com/uptrace/bun"

	"ticket-inventory/internal/engine"
)

// Event carries the capacity-relevant subset of an event record. Remaining
// capacity is persisted for fast reads and must always equal total minus the
// number of VALID and USED tickets.
type Event struct {
	bun.BaseModel `bun:"table:events"`

	ID                string             `bun:"id,pk"`
	Name              string             `bun:"name,notnull"`
	CapacityTotal     int                `bun:"capacity_total,notnull"`
	CapacityRemaining int                `bun:"capacity_remaining,notnull"`
	WindowStart       time.Time          `bun:"window_start,notnull"`
	WindowEnd         time.Time          `bun:"window_end,notnull"`
	LifecycleStatus   engine.EventStatus `bun:"lifecycle_status,notnull"`
	CreatedAt         time.Time          `bun:"created_at,notnull"`
	UpdatedAt         time.Time          `bun:"updated_at,notnull"`
}
