package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pscheid92/luckydraw/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

// NotificationGuard remembers which (prize, entry) pairs were notified within a window.
type NotificationGuard struct {
	rdb    *goredis.Client
	window time.Duration
}

var _ domain.NotificationGuard = (*NotificationGuard)(nil)

func NewNotificationGuard(rdb *goredis.Client, window time.Duration) *NotificationGuard {
	return &NotificationGuard{rdb: rdb, window: window}
}

// Acquire sets the pair's key with NX. It returns false if the key already exists.
func (g *NotificationGuard) Acquire(ctx context.Context, prizeID, entryID uuid.UUID) (bool, error) {
	args := goredis.SetArgs{TTL: g.window, Mode: "NX"}
	_, err := g.rdb.SetArgs(ctx, notifyKey(prizeID, entryID), "1", args).Result()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to acquire notification key: %w", err)
	}
	return true, nil
}

func (g *NotificationGuard) Release(ctx context.Context, prizeID, entryID uuid.UUID) error {
	if err := g.rdb.Del(ctx, notifyKey(prizeID, entryID)).Err(); err != nil {
		return fmt.Errorf("failed to release notification key: %w", err)
	}
	return nil
}

func notifyKey(prizeID, entryID uuid.UUID) string {
	return "notify:" + prizeID.String() + ":" + entryID.String()
}
