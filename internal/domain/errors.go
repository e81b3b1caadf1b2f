package domain

import "errors"

var (
	ErrEventNotFound = errors.New("event not found")
	ErrPrizeNotFound = errors.New("prize not found")
	ErrEntryNotFound = errors.New("entry not found")

	// Draw errors. None of these leave session or persisted state changed.
	ErrNoEligibleEntrants  = errors.New("no eligible entrants")
	ErrEmptyPool           = errors.New("empty pool")
	ErrInsufficientEntries = errors.New("fewer eligible entrants than prizes")
	ErrPrizeLocked         = errors.New("prize is locked")
	ErrInvalidEventState   = errors.New("event is not in the expected state")
	ErrNoPrizes            = errors.New("event has no prizes")
	ErrPrizeAlreadyDrawn   = errors.New("prize already has a winner")
	ErrNoDrawSession       = errors.New("no draw session for event")
	ErrDrawSessionActive   = errors.New("draw session in progress")
	ErrInvalidTransition   = errors.New("invalid draw transition")
	ErrSessionComplete     = errors.New("draw session is complete")

	// Isolated per sink / per call; logged, never propagated to the draw flow.
	ErrSinkWriteFailure     = errors.New("sink write failure")
	ErrNotificationDispatch = errors.New("notification dispatch failure")
	ErrTooManySubscribers   = errors.New("too many subscribers for event")
)
