package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"ticket-inventory/internal/admission/qr"
	"ticket-inventory/internal/audit"
	"ticket-inventory/internal/engine"
	"ticket-inventory/internal/inventory/db"
	"ticket-inventory/internal/ledger"
	"ticket-inventory/internal/logger"
	"ticket-inventory/internal/models"
)

type KafkaPublisher interface {
	PublishTicketIssued(ticket models.Ticket) error
	PublishTicketCancelled(ticket models.Ticket) error
	PublishTicketReinstated(ticket models.Ticket) error
	PublishTicketAdmitted(ticket models.Ticket) error
	PublishTicketDeleted(ticket models.Ticket) error
}

// Service is the transaction coordinator: every ticket-state change and its
// capacity adjustment run inside one database transaction together with the
// audit append. Serialization across concurrent requests comes from the
// ledger's conditional update, not from any lock held here.
type Service struct {
	Bun    *bun.DB
	Kafka  KafkaPublisher
	Logger *logger.Logger
	QR     *qr.Generator
}

func NewService(bunDB *bun.DB, kafka KafkaPublisher, log *logger.Logger, qrGen *qr.Generator) *Service {
	return &Service{Bun: bunDB, Kafka: kafka, Logger: log, QR: qrGen}
}

// IssueTicket reserves one capacity unit and creates a VALID ticket with the
// price snapshot, all-or-nothing. On a sold-out event nothing is written.
func (s *Service) IssueTicket(ctx context.Context, eventID string, holder engine.HolderRef, price int64, actor engine.Actor) (*models.Ticket, error) {
	if err := holder.Validate(); err != nil {
		return nil, err
	}
	if price < 0 {
		return nil, fmt.Errorf("price snapshot cannot be negative, got %d", price)
	}

	var ticket *models.Ticket
	err := s.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		tickets := db.New(tx)
		led := ledger.New(tx)
		trail := audit.New(tx)

		if _, err := tickets.GetEventByID(ctx, eventID); err != nil {
			return err
		}
		if err := led.Reserve(ctx, eventID, 1); err != nil {
			return err
		}

		number, err := qr.NewTicketNumber()
		if err != nil {
			return err
		}
		code, err := qr.NewAdmissionCode()
		if err != nil {
			return err
		}

		now := time.Now()
		t := &models.Ticket{
			ID:            uuid.NewString(),
			EventID:       eventID,
			TicketNumber:  number,
			AdmissionCode: code,
			HolderUserID:  holder.UserID,
			GuestName:     holder.GuestName,
			GuestEmail:    holder.GuestEmail,
			GuestPhone:    holder.GuestPhone,
			PriceSnapshot: price,
			State:         engine.StateValid,
			IssuedAt:      now,
			UpdatedAt:     now,
		}
		if s.QR != nil {
			png, err := s.QR.EncodePNG(t.ID, t.EventID, t.AdmissionCode, t.IssuedAt)
			if err != nil {
				return fmt.Errorf("generate QR for ticket %s: %w", t.ID, err)
			}
			t.QRCode = png
		}

		// If this insert fails the transaction rolls back and the
		// reservation above is undone with it.
		if err := tickets.CreateTicket(ctx, t); err != nil {
			return err
		}
		if err := trail.Append(ctx, &models.AuditEntry{
			TicketID:  t.ID,
			EventID:   eventID,
			Actor:     actor.ID,
			ActorRole: actor.Role,
			ToState:   string(engine.StateValid),
			Outcome:   "OK",
			Detail:    "ticket issued",
		}); err != nil {
			return err
		}
		ticket = t
		return nil
	})
	if err != nil {
		return nil, s.classify(err, eventID)
	}

	s.logTicket("ISSUE", ticket.ID, "ticket issued")
	if s.Kafka != nil {
		if err := s.Kafka.PublishTicketIssued(*ticket); err != nil {
			s.warn(fmt.Sprintf("kafka publish error (ticket issued): %v", err))
		}
	}
	return ticket, nil
}

// CancelTicket moves a VALID ticket to CANCELLED and releases its capacity
// unit, both-or-neither. Re-running it on an already-cancelled ticket reports
// an invalid transition and touches nothing.
func (s *Service) CancelTicket(ctx context.Context, ticketID string, actor engine.Actor) (*models.Ticket, error) {
	ticket, err := s.transition(ctx, ticketID, engine.StateCancelled, actor, "ticket cancelled", func(ctx context.Context, led *ledger.Ledger, t *models.Ticket) error {
		return led.Release(ctx, t.EventID, 1)
	})
	if err != nil {
		return nil, err
	}
	s.logTicket("CANCEL", ticket.ID, "ticket cancelled, capacity released")
	if s.Kafka != nil {
		if err := s.Kafka.PublishTicketCancelled(*ticket); err != nil {
			s.warn(fmt.Sprintf("kafka publish error (ticket cancelled): %v", err))
		}
	}
	return ticket, nil
}

// ReinstateTicket is the admin override for a cancelled ticket. It competes
// for capacity exactly like a fresh issue and fails the same way when the
// event has sold out since the cancellation.
func (s *Service) ReinstateTicket(ctx context.Context, ticketID string, actor engine.Actor) (*models.Ticket, error) {
	ticket, err := s.transition(ctx, ticketID, engine.StateValid, actor, "ticket reinstated", func(ctx context.Context, led *ledger.Ledger, t *models.Ticket) error {
		return led.Reserve(ctx, t.EventID, 1)
	})
	if err != nil {
		return nil, err
	}
	s.logTicket("REINSTATE", ticket.ID, "ticket reinstated, capacity re-reserved")
	if s.Kafka != nil {
		if err := s.Kafka.PublishTicketReinstated(*ticket); err != nil {
			s.warn(fmt.Sprintf("kafka publish error (ticket reinstated): %v", err))
		}
	}
	return ticket, nil
}

// DeleteTicket is the administrative correction path. A USED ticket is never
// deleted; a VALID one releases its capacity unit in the same transaction
// before the row goes away.
func (s *Service) DeleteTicket(ctx context.Context, ticketID string, actor engine.Actor) error {
	var deleted models.Ticket
	err := s.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		tickets := db.New(tx)
		led := ledger.New(tx)
		trail := audit.New(tx)

		t, err := tickets.GetTicketByID(ctx, ticketID)
		if err != nil {
			return err
		}
		if t.State == engine.StateUsed {
			return engine.ErrTicketAlreadyUsed
		}
		if t.State == engine.StateValid {
			if err := led.Release(ctx, t.EventID, 1); err != nil {
				return err
			}
		}
		if err := tickets.DeleteTicket(ctx, t.ID); err != nil {
			return err
		}
		if err := trail.Append(ctx, &models.AuditEntry{
			TicketID:  t.ID,
			EventID:   t.EventID,
			Actor:     actor.ID,
			ActorRole: actor.Role,
			FromState: string(t.State),
			Outcome:   "OK",
			Detail:    "ticket deleted by administrative correction",
		}); err != nil {
			return err
		}
		deleted = *t
		return nil
	})
	if err != nil {
		return s.classify(err, "")
	}

	s.logTicket("DELETE", deleted.ID, "ticket deleted")
	if s.Kafka != nil {
		if err := s.Kafka.PublishTicketDeleted(deleted); err != nil {
			s.warn(fmt.Sprintf("kafka publish error (ticket deleted): %v", err))
		}
	}
	return nil
}

// MarkAdmitted commits the VALID -> USED transition for the admission
// validator. No capacity change: the seat stays occupied. A concurrent scan
// losing the conditional update gets the original admission back.
func (s *Service) MarkAdmitted(ctx context.Context, ticketID string, actor engine.Actor, at time.Time) (*models.Ticket, error) {
	var ticket *models.Ticket
	err := s.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		tickets := db.New(tx)
		trail := audit.New(tx)

		t, err := tickets.GetTicketByID(ctx, ticketID)
		if err != nil {
			return err
		}
		if t.State == engine.StateUsed {
			return &engine.AlreadyAdmittedError{AdmittedAt: t.AdmittedAt, AdmittedBy: t.AdmittedBy}
		}
		if t.State != engine.StateValid {
			return &engine.NotAdmissibleError{State: t.State}
		}

		ok, err := tickets.MarkAdmitted(ctx, t.ID, at, actor.ID)
		if err != nil {
			return err
		}
		if !ok {
			// Lost the race to another scanner between read and write.
			current, err := tickets.GetTicketByID(ctx, t.ID)
			if err != nil {
				return err
			}
			if current.State == engine.StateUsed {
				return &engine.AlreadyAdmittedError{AdmittedAt: current.AdmittedAt, AdmittedBy: current.AdmittedBy}
			}
			return &engine.NotAdmissibleError{State: current.State}
		}

		if err := trail.Append(ctx, &models.AuditEntry{
			TicketID:  t.ID,
			EventID:   t.EventID,
			Actor:     actor.ID,
			ActorRole: actor.Role,
			FromState: string(engine.StateValid),
			ToState:   string(engine.StateUsed),
			Outcome:   "OK",
			Detail:    "ticket admitted",
		}); err != nil {
			return err
		}

		t.State = engine.StateUsed
		t.AdmittedAt = at
		t.AdmittedBy = actor.ID
		ticket = t
		return nil
	})
	if err != nil {
		return nil, s.classify(err, "")
	}

	s.logTicket("ADMIT", ticket.ID, "ticket admitted")
	if s.Kafka != nil {
		if err := s.Kafka.PublishTicketAdmitted(*ticket); err != nil {
			s.warn(fmt.Sprintf("kafka publish error (ticket admitted): %v", err))
		}
	}
	return ticket, nil
}

// IncreaseCapacity is the admin edit raising an event's total. Totals never
// shrink below issued tickets; only increases are representable.
func (s *Service) IncreaseCapacity(ctx context.Context, eventID string, delta int, actor engine.Actor) error {
	err := s.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if err := ledger.New(tx).IncreaseTotal(ctx, eventID, delta); err != nil {
			return err
		}
		return audit.New(tx).Append(ctx, &models.AuditEntry{
			TicketID:  "",
			EventID:   eventID,
			Actor:     actor.ID,
			ActorRole: actor.Role,
			Outcome:   "OK",
			Detail:    fmt.Sprintf("capacity increased by %d", delta),
		})
	})
	if err != nil {
		return s.classify(err, eventID)
	}
	return nil
}

type capacityAdjust func(ctx context.Context, led *ledger.Ledger, t *models.Ticket) error

// transition runs one guarded state change plus its capacity adjustment and
// audit append in a single transaction.
func (s *Service) transition(ctx context.Context, ticketID string, to engine.TicketState, actor engine.Actor, detail string, adjust capacityAdjust) (*models.Ticket, error) {
	var ticket *models.Ticket
	err := s.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		tickets := db.New(tx)
		led := ledger.New(tx)
		trail := audit.New(tx)

		t, err := tickets.GetTicketByID(ctx, ticketID)
		if err != nil {
			return err
		}
		if err := engine.ValidateTransition(t.State, to); err != nil {
			return err
		}
		if adjust != nil {
			if err := adjust(ctx, led, t); err != nil {
				return err
			}
		}

		ok, err := tickets.TransitionState(ctx, t.ID, t.State, to)
		if err != nil {
			return err
		}
		if !ok {
			current, err := tickets.GetTicketByID(ctx, t.ID)
			if err != nil {
				return err
			}
			return engine.TransitionConflict(current.State, to)
		}

		if err := trail.Append(ctx, &models.AuditEntry{
			TicketID:  t.ID,
			EventID:   t.EventID,
			Actor:     actor.ID,
			ActorRole: actor.Role,
			FromState: string(t.State),
			ToState:   string(to),
			Outcome:   "OK",
			Detail:    detail,
		}); err != nil {
			return err
		}

		t.State = to
		t.UpdatedAt = time.Now()
		ticket = t
		return nil
	})
	if err != nil {
		return nil, s.classify(err, "")
	}
	return ticket, nil
}

// classify sorts a transaction error into the taxonomy: business outcomes pass
// through untouched, invariant violations are logged loudly, anything left is
// infrastructure and surfaces as retryable UNAVAILABLE.
func (s *Service) classify(err error, eventID string) error {
	if err == nil {
		return nil
	}
	if engine.IsBusinessOutcome(err) {
		return err
	}
	var violation *engine.InvariantViolationError
	if errors.As(err, &violation) {
		s.errorLog(fmt.Sprintf("invariant violation (event %s): %v", violation.EventID, err))
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", engine.ErrUnavailable, err)
	}
	if eventID != "" {
		s.errorLog(fmt.Sprintf("storage failure (event %s): %v", eventID, err))
	} else {
		s.errorLog(fmt.Sprintf("storage failure: %v", err))
	}
	return fmt.Errorf("%w: %v", engine.ErrUnavailable, err)
}

func (s *Service) logTicket(action, ticketID, message string) {
	if s.Logger != nil {
		s.Logger.LogTicket(action, ticketID, message)
	}
}

func (s *Service) warn(message string) {
	if s.Logger != nil {
		s.Logger.Warn("KAFKA", message)
	}
}

func (s *Service) errorLog(message string) {
	if s.Logger != nil {
		s.Logger.Error("INVENTORY", message)
	}
}
