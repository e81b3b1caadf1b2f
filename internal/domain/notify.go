package domain

import (
	"context"

	"github.com/google/uuid"
)

type WinnerNotification struct {
	EventID   uuid.UUID
	PrizeID   uuid.UUID
	PrizeName string
	WinnerID  uuid.UUID // winning entry
	Entrant   Entrant
}

// WinnerNotifier delivers a winner notification to an external service (e-mail, webhook).
type WinnerNotifier interface {
	NotifyWinner(ctx context.Context, n WinnerNotification) error
}

// NotificationGuard de-duplicates notifications. Acquire returns true the first
// time a (prize, entry) pair is seen within the guard's window; Release forgets
// the pair so a failed delivery can be attempted again.
type NotificationGuard interface {
	Acquire(ctx context.Context, prizeID, entryID uuid.UUID) (bool, error)
	Release(ctx context.Context, prizeID, entryID uuid.UUID) error
}
