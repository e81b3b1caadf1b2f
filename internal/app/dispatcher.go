package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pscheid92/luckydraw/internal/adapter/metrics"
	"github.com/pscheid92/luckydraw/internal/domain"
	"github.com/pscheid92/luckydraw/internal/platform/correlation"
	"github.com/pscheid92/luckydraw/internal/platform/retry"
)

var defaultNotifyPolicy = retry.Policy{
	MaxAttempts:      3,
	InitialBackoff:   500 * time.Millisecond,
	RateLimitBackoff: 5 * time.Second,
	MaxBackoff:       10 * time.Second,
}

// Dispatcher delivers winner notifications through a WinnerNotifier with retries and de-duplication.
// Failures are reported as ErrNotificationDispatch and never reach the draw flow.
type Dispatcher struct {
	notifier domain.WinnerNotifier
	guard    domain.NotificationGuard
	metrics  *metrics.DrawMetrics
	policy   retry.Policy
	classify retry.Classify
	timeout  time.Duration

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

type DispatcherOption func(*Dispatcher)

func WithRetryPolicy(p retry.Policy) DispatcherOption {
	return func(d *Dispatcher) { d.policy = p }
}

// WithClassifier decides which notifier errors are retried. By default every error is.
func WithClassifier(c retry.Classify) DispatcherOption {
	return func(d *Dispatcher) { d.classify = c }
}

// NewDispatcher creates a dispatcher. guard may be nil, which disables de-duplication.
// timeout bounds each notifier attempt.
func NewDispatcher(notifier domain.WinnerNotifier, guard domain.NotificationGuard, m *metrics.DrawMetrics, timeout time.Duration, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		notifier: notifier,
		guard:    guard,
		metrics:  m,
		policy:   defaultNotifyPolicy,
		classify: func(error) retry.Action { return retry.Retry },
		timeout:  timeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch sends n in the background. The caller's cancellation does not apply; its correlation ID does.
func (d *Dispatcher) Dispatch(ctx context.Context, n domain.WinnerNotification) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		slog.WarnContext(ctx, "Dropping winner notification after shutdown",
			"event_id", n.EventID.String(),
			"prize_id", n.PrizeID.String(),
		)
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	bg := correlation.Detach(ctx)
	go func() {
		defer d.wg.Done()
		if _, err := d.Notify(bg, n); err != nil {
			slog.WarnContext(bg, "Winner notification failed",
				"event_id", n.EventID.String(),
				"prize_id", n.PrizeID.String(),
				"entry_id", n.WinnerID.String(),
				"error", err,
			)
		}
	}()
}

// Notify sends n and waits for the outcome. It returns false without error when the
// same (prize, entry) pair was already notified within the guard's window.
func (d *Dispatcher) Notify(ctx context.Context, n domain.WinnerNotification) (bool, error) {
	acquired := false
	if d.guard != nil {
		ok, err := d.guard.Acquire(ctx, n.PrizeID, n.WinnerID)
		switch {
		case err != nil:
			slog.WarnContext(ctx, "Notification guard unavailable, sending without de-duplication",
				"prize_id", n.PrizeID.String(),
				"error", err,
			)
		case !ok:
			d.metrics.Notifications.WithLabelValues("duplicate").Inc()
			slog.InfoContext(ctx, "Winner already notified",
				"event_id", n.EventID.String(),
				"prize_id", n.PrizeID.String(),
				"entry_id", n.WinnerID.String(),
			)
			return false, nil
		default:
			acquired = true
		}
	}

	err := retry.DoVoid(ctx, d.policy, d.classify, func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()
		return d.notifier.NotifyWinner(attemptCtx, n)
	})
	if err != nil {
		d.metrics.Notifications.WithLabelValues("failed").Inc()
		if acquired {
			if relErr := d.guard.Release(ctx, n.PrizeID, n.WinnerID); relErr != nil {
				slog.WarnContext(ctx, "Failed to release notification guard", "prize_id", n.PrizeID.String(), "error", relErr)
			}
		}
		return false, fmt.Errorf("%w: %w", domain.ErrNotificationDispatch, err)
	}

	d.metrics.Notifications.WithLabelValues("sent").Inc()
	slog.InfoContext(ctx, "Winner notified",
		"event_id", n.EventID.String(),
		"prize_id", n.PrizeID.String(),
		"entry_id", n.WinnerID.String(),
	)
	return true, nil
}

// Stop rejects new dispatches and waits for in-flight ones until ctx is done.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("notifications still in flight: %w", ctx.Err())
	}
}
