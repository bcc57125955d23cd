package engine

import "errors"

type TicketState string

const (
	StateValid     TicketState = "VALID"
	StateUsed      TicketState = "USED"
	StateCancelled TicketState = "CANCELLED"
	StateExpired   TicketState = "EXPIRED"
)

type EventStatus string

const (
	EventDraft     EventStatus = "DRAFT"
	EventActive    EventStatus = "ACTIVE"
	EventCancelled EventStatus = "CANCELLED"
	EventCompleted EventStatus = "COMPLETED"
)

// allowedTransitions maps a current state to the states it may move to.
// USED and EXPIRED are terminal.
var allowedTransitions = map[TicketState][]TicketState{
	StateValid:     {StateUsed, StateCancelled, StateExpired},
	StateCancelled: {StateValid, StateExpired},
	StateUsed:      {},
	StateExpired:   {},
}

func CanTransition(from, to TicketState) bool {
	allowed, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns nil if the transition is legal. Attempts to move
// a USED ticket anywhere report ErrTicketAlreadyUsed so callers can surface
// the already-admitted case distinctly.
func ValidateTransition(from, to TicketState) error {
	if CanTransition(from, to) {
		return nil
	}
	if from == StateUsed {
		return ErrTicketAlreadyUsed
	}
	return &InvalidTransitionError{From: from, To: to}
}

// TransitionConflict reports the right outcome after a conditional state
// write found the row already moved by a concurrent transition.
func TransitionConflict(current, to TicketState) error {
	if current == StateUsed {
		return ErrTicketAlreadyUsed
	}
	return &InvalidTransitionError{From: current, To: to}
}

// Actor identifies who asked for an operation. Authentication happens outside
// the engine; the actor is recorded on every audit entry.
type Actor struct {
	ID   string
	Role string
}

// HolderRef is either a registered account reference or an embedded guest
// identity, never both.
type HolderRef struct {
	UserID     string
	GuestName  string
	GuestEmail string
	GuestPhone string
}

func (h HolderRef) IsGuest() bool {
	return h.UserID == ""
}

func (h HolderRef) Validate() error {
	hasGuest := h.GuestName != "" || h.GuestEmail != "" || h.GuestPhone != ""
	if h.UserID != "" && hasGuest {
		return errors.New("holder must be a user reference or a guest identity, not both")
	}
	if h.UserID == "" && !hasGuest {
		return errors.New("holder is required")
	}
	return nil
}
