package services

import "errors"

// Sentinel errors returned by the duel services. Handlers map these to
// distinct HTTP statuses so callers can tell precondition classes apart.
var (
	// Precondition: not found
	ErrMatchNotFound = errors.New("match not found")
	ErrRoundNotFound = errors.New("round not found")

	// Precondition: wrong state
	ErrMatchNotActive  = errors.New("match is not active")
	ErrRoundNotStarted = errors.New("round has not started yet")
	ErrRoundLocked     = errors.New("round is locked: time is up")
	ErrNotQueued       = errors.New("player has no ticket in the queue")
	ErrAlreadyInMatch  = errors.New("player is already in an active match")

	// Authorization
	ErrNotParticipant = errors.New("player is not a participant of this match")

	// Validation
	ErrInvalidRequest = errors.New("invalid request")
)
