package domain

import (
	"bytes"
	"context"
	"time"

	"github.com/google/uuid"
)

type Entrant struct {
	ID        uuid.UUID
	FirstName string
	LastName  string
	Email     string
}

// Entry is one raffle ticket. An entrant's weight in a draw is its entry count.
type Entry struct {
	ID        uuid.UUID
	EventID   uuid.UUID
	EntrantID uuid.UUID
	CreatedAt time.Time
}

type EntryDetail struct {
	Entry
	Entrant Entrant
}

// EntrantTally aggregates an entrant's entries for one event.
// FirstEntryID is the entry recorded as the winning entry if the entrant wins.
type EntrantTally struct {
	Entrant      Entrant
	EntryCount   int
	FirstEntryID uuid.UUID
}

type NewEntrant struct {
	FirstName string
	LastName  string
	Email     string
}

// EntryCursor marks the last entry already delivered to subscribers.
// Entries are ordered by (CreatedAt, ID).
type EntryCursor struct {
	CreatedAt time.Time
	EntryID   uuid.UUID
}

// Precedes reports whether the cursor sorts strictly before e.
func (c EntryCursor) Precedes(e Entry) bool {
	if !c.CreatedAt.Equal(e.CreatedAt) {
		return c.CreatedAt.Before(e.CreatedAt)
	}
	return bytes.Compare(c.EntryID[:], e.ID[:]) < 0
}

// CursorAt returns the cursor positioned on e.
func CursorAt(e Entry) EntryCursor {
	return EntryCursor{CreatedAt: e.CreatedAt, EntryID: e.ID}
}

type EntryRepository interface {
	Create(ctx context.Context, eventID uuid.UUID, entrant NewEntrant, quantity int) ([]EntryDetail, error)
	GetDetail(ctx context.Context, entryID uuid.UUID) (*EntryDetail, error)
	Tally(ctx context.Context, eventID uuid.UUID) ([]EntrantTally, error)
	ListAfter(ctx context.Context, eventID uuid.UUID, cursor EntryCursor, limit int) ([]EntryDetail, error)
	Count(ctx context.Context, eventID uuid.UUID) (int, error)
	// CountThrough counts the event's entries at or before the cursor.
	CountThrough(ctx context.Context, eventID uuid.UUID, cursor EntryCursor) (int, error)
	// Checkpoint returns the cursor of the event's latest committed entry, or the zero
	// cursor when there is none. Timestamps come from the store's clock.
	Checkpoint(ctx context.Context, eventID uuid.UUID) (EntryCursor, error)
}
