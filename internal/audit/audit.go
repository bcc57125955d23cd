package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ticket-inventory/internal/models"
)

// Log is the append-only transition record. There is deliberately no update
// or delete method on this type.
type Log struct {
	Bun bun.IDB
}

func New(idb bun.IDB) *Log {
	return &Log{Bun: idb}
}

func (l *Log) Append(ctx context.Context, entry *models.AuditEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if _, err := l.Bun.NewInsert().Model(entry).Exec(ctx); err != nil {
		return fmt.Errorf("append audit entry for ticket %s: %w", entry.TicketID, err)
	}
	return nil
}

// EntriesForTicket returns the full transition history of one ticket, oldest
// first, so an operator can reconstruct who validated it and when.
func (l *Log) EntriesForTicket(ctx context.Context, ticketID string) ([]models.AuditEntry, error) {
	var entries []models.AuditEntry
	err := l.Bun.NewSelect().
		Model(&entries).
		Where("ticket_id = ?", ticketID).
		Order("created_at ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("load audit entries for ticket %s: %w", ticketID, err)
	}
	return entries, nil
}

func (l *Log) EntriesForEvent(ctx context.Context, eventID string) ([]models.AuditEntry, error) {
	var entries []models.AuditEntry
	err := l.Bun.NewSelect().
		Model(&entries).
		Where("event_id = ?", eventID).
		Order("created_at ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("load audit entries for event %s: %w", eventID, err)
	}
	return entries, nil
}

// AttemptsSince counts transition attempts recorded for a ticket in the given
// window, whatever their outcome. Repeated admission attempts on one code show
// up here.
func (l *Log) AttemptsSince(ctx context.Context, ticketID string, since time.Time) (int, error) {
	return l.Bun.NewSelect().
		Model((*models.AuditEntry)(nil)).
		Where("ticket_id = ?", ticketID).
		Where("created_at >= ?", since).
		Count(ctx)
}
