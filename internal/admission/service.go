package admission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ticket-inventory/internal/engine"
	"ticket-inventory/internal/logger"
	"ticket-inventory/internal/models"
)

type TicketStore interface {
	GetTicketByID(ctx context.Context, id string) (*models.Ticket, error)
	GetTicketByCode(ctx context.Context, code string) (*models.Ticket, error)
	GetEventByID(ctx context.Context, id string) (*models.Event, error)
}

type Coordinator interface {
	MarkAdmitted(ctx context.Context, ticketID string, actor engine.Actor, at time.Time) (*models.Ticket, error)
}

type CodeCache interface {
	GetTicketID(ctx context.Context, code string) (string, error)
	SetTicketID(ctx context.Context, code, ticketID string) error
	Forget(ctx context.Context, code string) error
}

type AuditAppender interface {
	Append(ctx context.Context, entry *models.AuditEntry) error
}

// Service is the door-scanning workflow. Check order is deliberate: ticket
// identity and already-used come before the event window, so a double scan
// always reports the original admission instead of hiding behind an
// event-ended error.
type Service struct {
	Store       TicketStore
	Coordinator Coordinator
	Cache       CodeCache
	Audit       AuditAppender
	Logger      *logger.Logger
	Now         func() time.Time
}

func NewService(store TicketStore, coordinator Coordinator, cache CodeCache, trail AuditAppender, log *logger.Logger) *Service {
	return &Service{
		Store:       store,
		Coordinator: coordinator,
		Cache:       cache,
		Audit:       trail,
		Logger:      log,
		Now:         time.Now,
	}
}

type Result struct {
	Ticket     *models.Ticket
	AdmittedAt time.Time
}

// Admit resolves a scanned code and commits VALID -> USED exactly once.
func (s *Service) Admit(ctx context.Context, code string, actor engine.Actor) (*Result, error) {
	ticket, err := s.resolve(ctx, code)
	if err != nil {
		return nil, err
	}

	switch ticket.State {
	case engine.StateUsed:
		return nil, s.reject(ctx, ticket, actor, &engine.AlreadyAdmittedError{
			AdmittedAt: ticket.AdmittedAt,
			AdmittedBy: ticket.AdmittedBy,
		})
	case engine.StateCancelled, engine.StateExpired:
		return nil, s.reject(ctx, ticket, actor, &engine.NotAdmissibleError{State: ticket.State})
	}

	event, err := s.Store.GetEventByID(ctx, ticket.EventID)
	if err != nil {
		return nil, err
	}
	now := s.Now()
	if event.LifecycleStatus != engine.EventActive {
		return nil, s.reject(ctx, ticket, actor, engine.ErrEventNotActive)
	}
	if now.Before(event.WindowStart) {
		return nil, s.reject(ctx, ticket, actor, engine.ErrEventNotStarted)
	}
	if now.After(event.WindowEnd) {
		return nil, s.reject(ctx, ticket, actor, engine.ErrEventEnded)
	}

	admitted, err := s.Coordinator.MarkAdmitted(ctx, ticket.ID, actor, now)
	if err != nil {
		return nil, err
	}

	if s.Logger != nil {
		s.Logger.LogAdmission(admitted.ID, fmt.Sprintf("admitted by %s", actor.ID))
	}
	return &Result{Ticket: admitted, AdmittedAt: admitted.AdmittedAt}, nil
}

// resolve finds the ticket for a scanned code, consulting the code cache
// first. A stale cache entry pointing at a deleted ticket is forgotten and the
// lookup falls back to the database.
func (s *Service) resolve(ctx context.Context, code string) (*models.Ticket, error) {
	if s.Cache != nil {
		id, err := s.Cache.GetTicketID(ctx, code)
		if err != nil && s.Logger != nil {
			s.Logger.Warn("ADMISSION", fmt.Sprintf("code cache lookup failed: %v", err))
		}
		if id != "" {
			ticket, err := s.Store.GetTicketByID(ctx, id)
			if err == nil {
				return ticket, nil
			}
			if errors.Is(err, engine.ErrTicketNotFound) {
				_ = s.Cache.Forget(ctx, code)
			} else {
				return nil, err
			}
		}
	}

	ticket, err := s.Store.GetTicketByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if s.Cache != nil {
		if err := s.Cache.SetTicketID(ctx, code, ticket.ID); err != nil && s.Logger != nil {
			s.Logger.Warn("ADMISSION", fmt.Sprintf("code cache store failed: %v", err))
		}
	}
	return ticket, nil
}

// reject records the refused attempt on the audit trail so repeated scans of
// one code are visible to operators, then returns the outcome unchanged.
func (s *Service) reject(ctx context.Context, ticket *models.Ticket, actor engine.Actor, outcome error) error {
	if s.Audit != nil {
		entry := &models.AuditEntry{
			TicketID:  ticket.ID,
			EventID:   ticket.EventID,
			Actor:     actor.ID,
			ActorRole: actor.Role,
			FromState: string(ticket.State),
			ToState:   string(engine.StateUsed),
			Outcome:   engine.OutcomeCode(outcome),
			Detail:    outcome.Error(),
		}
		if err := s.Audit.Append(ctx, entry); err != nil && s.Logger != nil {
			s.Logger.Warn("ADMISSION", fmt.Sprintf("audit append failed for ticket %s: %v", ticket.ID, err))
		}
	}
	return outcome
}
