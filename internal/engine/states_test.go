package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StateValid, StateUsed))
	assert.True(t, CanTransition(StateValid, StateCancelled))
	assert.True(t, CanTransition(StateValid, StateExpired))
	assert.True(t, CanTransition(StateCancelled, StateValid))
	assert.True(t, CanTransition(StateCancelled, StateExpired))

	// USED and EXPIRED are terminal.
	assert.False(t, CanTransition(StateUsed, StateValid))
	assert.False(t, CanTransition(StateUsed, StateCancelled))
	assert.False(t, CanTransition(StateExpired, StateValid))
	assert.False(t, CanTransition(StateExpired, StateUsed))

	assert.False(t, CanTransition(StateValid, StateValid))
	assert.False(t, CanTransition(StateCancelled, StateCancelled))
	assert.False(t, CanTransition(StateCancelled, StateUsed))
}

func TestValidateTransitionFromUsed(t *testing.T) {
	err := ValidateTransition(StateUsed, StateCancelled)
	assert.ErrorIs(t, err, ErrTicketAlreadyUsed)
}

func TestValidateTransitionInvalid(t *testing.T) {
	err := ValidateTransition(StateExpired, StateValid)

	var invalid *InvalidTransitionError
	if assert.ErrorAs(t, err, &invalid) {
		assert.Equal(t, StateExpired, invalid.From)
		assert.Equal(t, StateValid, invalid.To)
	}
}

func TestTransitionConflict(t *testing.T) {
	assert.ErrorIs(t, TransitionConflict(StateUsed, StateCancelled), ErrTicketAlreadyUsed)

	var invalid *InvalidTransitionError
	assert.ErrorAs(t, TransitionConflict(StateCancelled, StateCancelled), &invalid)
}

func TestHolderRefValidate(t *testing.T) {
	assert.NoError(t, HolderRef{UserID: "user-1"}.Validate())
	assert.NoError(t, HolderRef{GuestName: "Ada", GuestEmail: "ada@example.com"}.Validate())

	assert.Error(t, HolderRef{}.Validate())
	assert.Error(t, HolderRef{UserID: "user-1", GuestName: "Ada"}.Validate())
}

func TestIsBusinessOutcome(t *testing.T) {
	assert.True(t, IsBusinessOutcome(ErrInsufficientCapacity))
	assert.True(t, IsBusinessOutcome(ErrTicketNotFound))
	assert.True(t, IsBusinessOutcome(&InvalidTransitionError{From: StateValid, To: StateValid}))
	assert.True(t, IsBusinessOutcome(&NotAdmissibleError{State: StateCancelled}))
	assert.True(t, IsBusinessOutcome(&AlreadyAdmittedError{}))

	assert.False(t, IsBusinessOutcome(ErrUnavailable))
	assert.False(t, IsBusinessOutcome(&InvariantViolationError{EventID: "e1", Detail: "boom"}))
	assert.False(t, IsBusinessOutcome(errors.New("disk on fire")))
}

func TestOutcomeCode(t *testing.T) {
	assert.Equal(t, "OK", OutcomeCode(nil))
	assert.Equal(t, "INSUFFICIENT_CAPACITY", OutcomeCode(ErrInsufficientCapacity))
	assert.Equal(t, "ALREADY_ADMITTED", OutcomeCode(&AlreadyAdmittedError{}))
	assert.Equal(t, "NOT_ADMISSIBLE", OutcomeCode(&NotAdmissibleError{State: StateExpired}))
	assert.Equal(t, "INVALID_TRANSITION", OutcomeCode(&InvalidTransitionError{}))
	assert.Equal(t, "INVARIANT_VIOLATION", OutcomeCode(&InvariantViolationError{}))
	assert.Equal(t, "UNAVAILABLE", OutcomeCode(ErrUnavailable))
	assert.Equal(t, "INTERNAL", OutcomeCode(errors.New("unclassified")))
}
