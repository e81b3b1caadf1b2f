package notify

import (
	"context"
	"log/slog"

	"github.com/pscheid92/luckydraw/internal/domain"
)

// LogNotifier only logs the winner. Used when no webhook is configured.
type LogNotifier struct{}

var _ domain.WinnerNotifier = LogNotifier{}

func (LogNotifier) NotifyWinner(ctx context.Context, n domain.WinnerNotification) error {
	slog.InfoContext(ctx, "winner notification",
		"event_id", n.EventID,
		"prize_id", n.PrizeID,
		"prize_name", n.PrizeName,
		"entry_id", n.WinnerID,
		"entrant_id", n.Entrant.ID,
	)
	return nil
}
