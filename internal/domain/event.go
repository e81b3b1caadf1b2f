package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type EventStatus string

const (
	EventStatusOpen  EventStatus = "open"
	EventStatusDrawn EventStatus = "drawn"
)

type Event struct {
	ID        uuid.UUID
	Name      string
	Status    EventStatus
	DrawnAt   *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsOpen reports whether the event still accepts entries and draws.
func (e *Event) IsOpen() bool {
	return e.Status == EventStatusOpen
}

type EventRepository interface {
	GetByID(ctx context.Context, eventID uuid.UUID) (*Event, error)
	MarkDrawn(ctx context.Context, eventID uuid.UUID, drawnAt time.Time) error
}
