package db

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

// DB is the ticket and event record layer. It binds to either a *bun.DB or an
// open bun.Tx, so the coordinator can run the same operations inside one
// transaction with the capacity ledger and the audit log.
type DB struct {
	Bun bun.IDB
}

func New(idb bun.IDB) *DB {
	return &DB{Bun: idb}
}

func (d *DB) GetTicketByID(ctx context.Context, id string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, engine.ErrTicketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load ticket %s: %w", id, err)
	}
	return &ticket, nil
}

// GetTicketByCode resolves a scanned code, matching the opaque admission code
// first and the human-presentable ticket number second.
func (d *DB) GetTicketByCode(ctx context.Context, code string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("admission_code = ?", code).
		WhereOr("ticket_number = ?", code).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, engine.ErrTicketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolve ticket code: %w", err)
	}
	return &ticket, nil
}

func (d *DB) GetEventByID(ctx context.Context, id string) (*models.Event, error) {
	var event models.Event
	err := d.Bun.NewSelect().
		Model(&event).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, engine.ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load event %s: %w", id, err)
	}
	return &event, nil
}

func (d *DB) CreateEvent(ctx context.Context, event *models.Event) error {
	now := time.Now()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = now
	_, err := d.Bun.NewInsert().Model(event).Exec(ctx)
	return err
}

func (d *DB) CreateTicket(ctx context.Context, ticket *models.Ticket) error {
	_, err := d.Bun.NewInsert().Model(ticket).Exec(ctx)
	return err
}

// TransitionState moves a ticket from one state to another with a conditional
// update on the expected current state. It reports false when the row was not
// in that state anymore, so concurrent transitions never both apply.
func (d *DB) TransitionState(ctx context.Context, id string, from, to engine.TicketState) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("state = ?", to).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Where("state = ?", from).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("transition ticket %s to %s: %w", id, to, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// MarkAdmitted performs the VALID -> USED write, stamping who admitted the
// ticket and when in the same conditional update.
func (d *DB) MarkAdmitted(ctx context.Context, id string, at time.Time, by string) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("state = ?", engine.StateUsed).
		Set("admitted_at = ?", at).
		Set("admitted_by = ?", by).
		Set("updated_at = ?", at).
		Where("id = ?", id).
		Where("state = ?", engine.StateValid).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("admit ticket %s: %w", id, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (d *DB) DeleteTicket(ctx context.Context, id string) error {
	_, err := d.Bun.NewDelete().
		Model((*models.Ticket)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

// CountCommitted counts tickets that occupy capacity (VALID or USED).
func (d *DB) CountCommitted(ctx context.Context, eventID string) (int, error) {
	return d.Bun.NewSelect().
		Model((*models.Ticket)(nil)).
		Where("event_id = ?", eventID).
		Where("state IN (?)", bun.In([]engine.TicketState{engine.StateValid, engine.StateUsed})).
		Count(ctx)
}

// ExpireCandidates lists tickets still VALID or CANCELLED whose event window
// has fully elapsed, for the background sweep.
func (d *DB) ExpireCandidates(ctx context.Context, now time.Time, limit int) ([]models.Ticket, error) {
	var tickets []models.Ticket
	q := d.Bun.NewSelect().
		Model(&tickets).
		Where("state IN (?)", bun.In([]engine.TicketState{engine.StateValid, engine.StateCancelled})).
		Where("event_id IN (SELECT id FROM events WHERE window_end < ?)", now).
		Order("issued_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list expiry candidates: %w", err)
	}
	return tickets, nil
}
