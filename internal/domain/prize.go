package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Prize struct {
	ID             uuid.UUID
	EventID        uuid.UUID
	Name           string
	Description    string
	Order          int
	WinningEntryID *uuid.UUID
}

func (p Prize) HasWinner() bool {
	return p.WinningEntryID != nil
}

// Award is a prize paired with the entrant drawn for it.
type Award struct {
	PrizeID   uuid.UUID
	PrizeName string
	Order     int
	EntryID   uuid.UUID
	Entrant   Entrant
}

type PrizeRepository interface {
	ListByEvent(ctx context.Context, eventID uuid.UUID) ([]Prize, error)
	// SetWinner records the winning entry. Returns ErrPrizeAlreadyDrawn if the prize already has one.
	SetWinner(ctx context.Context, prizeID, entryID uuid.UUID) error
	// AwardAll records every award and marks the event drawn in one transaction.
	AwardAll(ctx context.Context, eventID uuid.UUID, awards []Award, drawnAt time.Time) error
	// ResetDraw clears every winner of the event and reopens it for entries.
	ResetDraw(ctx context.Context, eventID uuid.UUID) error
}
