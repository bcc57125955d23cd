package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ticket-inventory/internal/engine"
	"ticket-inventory/internal/models"
)

// Ledger holds and mutates remaining capacity for events. Reserve is a single
// conditional UPDATE, so the capacity check and the decrement are one step for
// every concurrent caller. That statement is the serialization point for the
// whole engine; nothing here takes in-process locks.
type Ledger struct {
	DB bun.IDB
}

// New binds a ledger to a database handle or an open transaction.
func New(idb bun.IDB) *Ledger {
	return &Ledger{DB: idb}
}

// Reserve decrements remaining capacity by quantity if at least that much is
// left. Two simultaneous calls for the last unit see exactly one success and
// one engine.ErrInsufficientCapacity.
func (l *Ledger) Reserve(ctx context.Context, eventID string, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("reserve quantity must be positive, got %d", quantity)
	}
	res, err := l.DB.NewUpdate().
		Model((*models.Event)(nil)).
		Set("capacity_remaining = capacity_remaining - ?", quantity).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", eventID).
		Where("capacity_remaining >= ?", quantity).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("reserve capacity for event %s: %w", eventID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		if _, err := l.Snapshot(ctx, eventID); err != nil {
			return err
		}
		return engine.ErrInsufficientCapacity
	}
	return nil
}

// Release gives quantity units back, for cancellations and administrative
// deletions. A release that would push remaining past total means a transition
// was double-released somewhere; that is reported as an invariant violation and
// never clamped away.
func (l *Ledger) Release(ctx context.Context, eventID string, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("release quantity must be positive, got %d", quantity)
	}
	res, err := l.DB.NewUpdate().
		Model((*models.Event)(nil)).
		Set("capacity_remaining = capacity_remaining + ?", quantity).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", eventID).
		Where("capacity_remaining + ? <= capacity_total", quantity).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("release capacity for event %s: %w", eventID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		snap, err := l.Snapshot(ctx, eventID)
		if err != nil {
			return err
		}
		return &engine.InvariantViolationError{
			EventID: eventID,
			Detail: fmt.Sprintf("release of %d would exceed total (remaining %d, total %d)",
				quantity, snap.CapacityRemaining, snap.CapacityTotal),
		}
	}
	return nil
}

// IncreaseTotal raises both total and remaining capacity by delta. Totals only
// ever grow; shrinking below issued tickets is not representable here.
func (l *Ledger) IncreaseTotal(ctx context.Context, eventID string, delta int) error {
	if delta <= 0 {
		return fmt.Errorf("capacity increase must be positive, got %d", delta)
	}
	res, err := l.DB.NewUpdate().
		Model((*models.Event)(nil)).
		Set("capacity_total = capacity_total + ?", delta).
		Set("capacity_remaining = capacity_remaining + ?", delta).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", eventID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("increase capacity for event %s: %w", eventID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return engine.ErrEventNotFound
	}
	return nil
}

// Snapshot reads the current capacity columns for one event.
func (l *Ledger) Snapshot(ctx context.Context, eventID string) (*models.Event, error) {
	var event models.Event
	err := l.DB.NewSelect().
		Model(&event).
		Column("id", "capacity_total", "capacity_remaining").
		Where("id = ?", eventID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, engine.ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load capacity for event %s: %w", eventID, err)
	}
	return &event, nil
}
