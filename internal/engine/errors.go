package engine

import (
	"errors"
	"fmt"
	"time"
)

// Expected business outcomes. These are normal results of the flows (a sold
// out event, a double-scanned ticket) and are never logged as errors.
var (
	ErrInsufficientCapacity = errors.New("insufficient capacity")
	ErrTicketNotFound       = errors.New("ticket not found")
	ErrEventNotFound        = errors.New("event not found")
	ErrTicketAlreadyUsed    = errors.New("ticket already used")
	ErrEventNotActive       = errors.New("event is not active")
	ErrEventNotStarted      = errors.New("event has not started")
	ErrEventEnded           = errors.New("event has ended")
)

// ErrUnavailable marks infrastructure failures (storage down, timeout). The
// outcome of the attempted operation is unknown and the caller may retry.
var ErrUnavailable = errors.New("storage unavailable")

// InvalidTransitionError reports a state change the lifecycle table forbids,
// carrying both states for diagnostics.
type InvalidTransitionError struct {
	From TicketState
	To   TicketState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid ticket transition %s -> %s", e.From, e.To)
}

// AlreadyAdmittedError is returned when a scanned ticket was admitted before.
// It carries the original admission so the door staff see when and by whom,
// not a generic failure.
type AlreadyAdmittedError struct {
	AdmittedAt time.Time
	AdmittedBy string
}

func (e *AlreadyAdmittedError) Error() string {
	return fmt.Sprintf("ticket already admitted at %s by %s", e.AdmittedAt.Format(time.RFC3339), e.AdmittedBy)
}

func (e *AlreadyAdmittedError) Unwrap() error { return ErrTicketAlreadyUsed }

// NotAdmissibleError is returned when a cancelled or expired ticket is scanned.
type NotAdmissibleError struct {
	State TicketState
}

func (e *NotAdmissibleError) Error() string {
	return fmt.Sprintf("ticket not admissible: state is %s", e.State)
}

// InvariantViolationError signals an internal consistency break (remaining
// capacity going negative or past total). It always aborts the enclosing
// transaction and is always logged; it is never an expected outcome.
type InvariantViolationError struct {
	EventID string
	Detail  string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("capacity invariant violated for event %s: %s", e.EventID, e.Detail)
}

// IsBusinessOutcome reports whether err is an expected business result rather
// than an internal defect or infrastructure failure. Handlers use this to pick
// the response class and to keep expected outcomes out of the error log.
func IsBusinessOutcome(err error) bool {
	switch {
	case errors.Is(err, ErrInsufficientCapacity),
		errors.Is(err, ErrTicketNotFound),
		errors.Is(err, ErrEventNotFound),
		errors.Is(err, ErrTicketAlreadyUsed),
		errors.Is(err, ErrEventNotActive),
		errors.Is(err, ErrEventNotStarted),
		errors.Is(err, ErrEventEnded):
		return true
	}
	var invalid *InvalidTransitionError
	if errors.As(err, &invalid) {
		return true
	}
	var notAdmissible *NotAdmissibleError
	return errors.As(err, &notAdmissible)
}

// OutcomeCode maps err to the short code recorded on audit entries and
// returned to API callers.
func OutcomeCode(err error) string {
	if err == nil {
		return "OK"
	}
	var invalid *InvalidTransitionError
	var notAdmissible *NotAdmissibleError
	var already *AlreadyAdmittedError
	var violation *InvariantViolationError
	switch {
	case errors.As(err, &already):
		return "ALREADY_ADMITTED"
	case errors.As(err, &notAdmissible):
		return "NOT_ADMISSIBLE"
	case errors.As(err, &invalid):
		return "INVALID_TRANSITION"
	case errors.As(err, &violation):
		return "INVARIANT_VIOLATION"
	case errors.Is(err, ErrInsufficientCapacity):
		return "INSUFFICIENT_CAPACITY"
	case errors.Is(err, ErrTicketNotFound):
		return "TICKET_NOT_FOUND"
	case errors.Is(err, ErrEventNotFound):
		return "EVENT_NOT_FOUND"
	case errors.Is(err, ErrTicketAlreadyUsed):
		return "TICKET_ALREADY_USED"
	case errors.Is(err, ErrEventNotActive):
		return "EVENT_NOT_ACTIVE"
	case errors.Is(err, ErrEventNotStarted):
		return "EVENT_NOT_STARTED"
	case errors.Is(err, ErrEventEnded):
		return "EVENT_ENDED"
	case errors.Is(err, ErrUnavailable):
		return "UNAVAILABLE"
	}
	return "INTERNAL"
}
