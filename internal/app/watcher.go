package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/luckydraw/internal/adapter/metrics"
	"github.com/pscheid92/luckydraw/internal/domain"
	"github.com/pscheid92/luckydraw/internal/platform/correlation"
)

const (
	watchPageSize = 500
	watchMaxPages = 10
	pollTimeout   = 10 * time.Second
)

// ChangeWatcher delivers new entries of every watched event to the stream publisher.
// Each watched event has one goroutine that owns its cursor, polls on an interval
// and polls immediately when kicked. Entries go out in (createdAt, id) order, each once.
type ChangeWatcher struct {
	entries   domain.EntryRepository
	publisher domain.StreamPublisher
	clock     clockwork.Clock
	interval  time.Duration
	metrics   *metrics.StreamMetrics

	mu      sync.Mutex
	watched map[uuid.UUID]*watchedEvent
	wg      sync.WaitGroup
}

type watchedEvent struct {
	cursor domain.EntryCursor
	kick   chan struct{}
	stop   chan struct{}
}

func NewChangeWatcher(entries domain.EntryRepository, publisher domain.StreamPublisher, clock clockwork.Clock, interval time.Duration, m *metrics.StreamMetrics) *ChangeWatcher {
	return &ChangeWatcher{
		entries:   entries,
		publisher: publisher,
		clock:     clock,
		interval:  interval,
		metrics:   m,
		watched:   make(map[uuid.UUID]*watchedEvent),
	}
}

// Watch starts polling eventID. The poller first anchors its checkpoint on the latest
// entry in the store, so the cursor and entry timestamps share one clock.
// Watching an event twice is a no-op. It never blocks, so it is safe to call from
// the broadcaster goroutine.
func (w *ChangeWatcher) Watch(eventID uuid.UUID) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.watched[eventID]; ok {
		return
	}

	ev := &watchedEvent{
		kick: make(chan struct{}, 1),
		stop: make(chan struct{}),
	}
	w.watched[eventID] = ev
	w.metrics.WatchedEvents.Set(float64(len(w.watched)))

	w.wg.Add(1)
	go w.run(eventID, ev)

	slog.Debug("Watching event for new entries", "event_id", eventID.String())
}

// Unwatch stops polling eventID and drops its checkpoint. It does not wait for an in-flight poll.
func (w *ChangeWatcher) Unwatch(eventID uuid.UUID) {
	w.mu.Lock()
	defer w.mu.Unlock()

	ev, ok := w.watched[eventID]
	if !ok {
		return
	}
	delete(w.watched, eventID)
	close(ev.stop)
	w.metrics.WatchedEvents.Set(float64(len(w.watched)))

	slog.Debug("Stopped watching event", "event_id", eventID.String())
}

// Kick requests an immediate poll of eventID. Unwatched events are ignored and repeated kicks coalesce.
func (w *ChangeWatcher) Kick(eventID uuid.UUID) {
	w.mu.Lock()
	ev, ok := w.watched[eventID]
	w.mu.Unlock()

	if !ok {
		return
	}
	select {
	case ev.kick <- struct{}{}:
	default:
	}
}

func (w *ChangeWatcher) WatchedCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.watched)
}

// Stop unwatches every event and waits for the pollers to exit.
func (w *ChangeWatcher) Stop() {
	w.mu.Lock()
	for id, ev := range w.watched {
		delete(w.watched, id)
		close(ev.stop)
	}
	w.metrics.WatchedEvents.Set(0)
	w.mu.Unlock()

	w.wg.Wait()
}

func (w *ChangeWatcher) run(eventID uuid.UUID, ev *watchedEvent) {
	defer w.wg.Done()

	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()

	anchored := w.anchor(eventID, ev)
	for {
		select {
		case <-ev.stop:
			return
		case <-ticker.Chan():
		case <-ev.kick:
		}
		if !anchored {
			// Entries committed while the store was unreachable count as already seen.
			if anchored = w.anchor(eventID, ev); !anchored {
				continue
			}
		}
		w.poll(eventID, ev)
	}
}

// anchor sets the starting checkpoint from the store. It reports false when the store failed.
func (w *ChangeWatcher) anchor(eventID uuid.UUID, ev *watchedEvent) bool {
	ctx, cancel := context.WithTimeout(correlation.WithID(context.Background(), correlation.NewID()), pollTimeout)
	defer cancel()

	cursor, err := w.entries.Checkpoint(ctx, eventID)
	if err != nil {
		w.metrics.WatcherPolls.WithLabelValues("error").Inc()
		slog.WarnContext(ctx, "Entry checkpoint failed", "event_id", eventID.String(), "error", err)
		return false
	}
	ev.cursor = cursor
	return true
}

func (w *ChangeWatcher) poll(eventID uuid.UUID, ev *watchedEvent) {
	ctx := correlation.WithID(context.Background(), correlation.NewID())
	ctx, cancel := context.WithTimeout(ctx, pollTimeout)
	defer cancel()

	var fresh []domain.EntryDetail
	cursor := ev.cursor
	for range watchMaxPages {
		page, err := w.entries.ListAfter(ctx, eventID, cursor, watchPageSize)
		if err != nil {
			w.metrics.WatcherPolls.WithLabelValues("error").Inc()
			slog.WarnContext(ctx, "Entry poll failed", "event_id", eventID.String(), "error", err)
			return
		}
		fresh = append(fresh, page...)
		if len(page) < watchPageSize {
			break
		}
		cursor = domain.CursorAt(page[len(page)-1].Entry)
	}

	if len(fresh) == 0 {
		w.metrics.WatcherPolls.WithLabelValues("empty").Inc()
		return
	}

	last := domain.CursorAt(fresh[len(fresh)-1].Entry)
	total, err := w.entries.CountThrough(ctx, eventID, last)
	if err != nil {
		w.metrics.WatcherPolls.WithLabelValues("error").Inc()
		slog.WarnContext(ctx, "Entry count failed", "event_id", eventID.String(), "error", err)
		return
	}

	// Unwatched while querying: the event's subscribers are gone or belong to a newer watch.
	select {
	case <-ev.stop:
		return
	default:
	}

	now := w.clock.Now()
	for i, entry := range fresh {
		w.publisher.Publish(eventID, domain.NewEntryMessage(entry, total-(len(fresh)-1-i), now))
	}
	ev.cursor = last

	w.metrics.WatcherPolls.WithLabelValues("delivered").Inc()
	slog.DebugContext(ctx, "Delivered new entries", "event_id", eventID.String(), "count", len(fresh), "total_entries", total)
}
