package domain

import (
	"time"

	"github.com/google/uuid"
)

type StreamMessageType string

const (
	StreamMessageConnection StreamMessageType = "connection"
	StreamMessageEntry      StreamMessageType = "entry"
)

// StreamMessage is one discrete message pushed to event subscribers.
type StreamMessage struct {
	Type         StreamMessageType `json:"type"`
	Timestamp    time.Time         `json:"timestamp"`
	EventID      uuid.UUID         `json:"eventId"`
	Entry        *StreamEntry      `json:"entry,omitempty"`
	TotalEntries int               `json:"totalEntries,omitempty"`
}

type StreamEntry struct {
	ID        uuid.UUID     `json:"id"`
	Entrant   StreamEntrant `json:"entrant"`
	EventID   uuid.UUID     `json:"eventId"`
	CreatedAt time.Time     `json:"createdAt"`
}

type StreamEntrant struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

func NewConnectionMessage(eventID uuid.UUID, at time.Time) StreamMessage {
	return StreamMessage{Type: StreamMessageConnection, Timestamp: at, EventID: eventID}
}

func NewEntryMessage(entry EntryDetail, totalEntries int, at time.Time) StreamMessage {
	return StreamMessage{
		Type:      StreamMessageEntry,
		Timestamp: at,
		EventID:   entry.EventID,
		Entry: &StreamEntry{
			ID: entry.ID,
			Entrant: StreamEntrant{
				FirstName: entry.Entrant.FirstName,
				LastName:  entry.Entrant.LastName,
				Email:     entry.Entrant.Email,
			},
			EventID:   entry.EventID,
			CreatedAt: entry.CreatedAt,
		},
		TotalEntries: totalEntries,
	}
}

// StreamPublisher fans a message out to every subscriber of an event.
type StreamPublisher interface {
	Publish(eventID uuid.UUID, msg StreamMessage)
}
