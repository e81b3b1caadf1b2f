package app

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/pscheid92/luckydraw/internal/adapter/metrics"
	"github.com/pscheid92/luckydraw/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memEntries is an ordered in-memory entry table behind a mockEntryRepo.
// Its timestamps play the database clock; tests may skew them from the watcher's clock.
type memEntries struct {
	mu            sync.Mutex
	entries       []domain.EntryDetail
	listErr       error
	checkpointErr error
	anchored      chan uuid.UUID
}

func (m *memEntries) add(eventID uuid.UUID, at time.Time, first string) domain.EntryDetail {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := domain.EntryDetail{
		Entry:   domain.Entry{ID: uuid.New(), EventID: eventID, EntrantID: uuid.New(), CreatedAt: at},
		Entrant: domain.Entrant{FirstName: first, Email: first + "@example.com"},
	}
	m.entries = append(m.entries, e)
	slices.SortFunc(m.entries, func(a, b domain.EntryDetail) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return bytes.Compare(a.ID[:], b.ID[:])
	})
	return e
}

func (m *memEntries) failListing(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listErr = err
}

func (m *memEntries) failCheckpoint(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpointErr = err
}

func (m *memEntries) repo() *mockEntryRepo {
	return &mockEntryRepo{
		checkpointFn: func(_ context.Context, eventID uuid.UUID) (domain.EntryCursor, error) {
			m.mu.Lock()
			defer m.mu.Unlock()
			if m.checkpointErr != nil {
				return domain.EntryCursor{}, m.checkpointErr
			}
			var c domain.EntryCursor
			for _, e := range m.entries {
				if e.EventID == eventID {
					c = domain.CursorAt(e.Entry)
				}
			}
			select {
			case m.anchored <- eventID:
			default:
			}
			return c, nil
		},
		listAfterFn: func(_ context.Context, eventID uuid.UUID, cursor domain.EntryCursor, limit int) ([]domain.EntryDetail, error) {
			m.mu.Lock()
			defer m.mu.Unlock()
			if m.listErr != nil {
				return nil, m.listErr
			}
			var out []domain.EntryDetail
			for _, e := range m.entries {
				if e.EventID == eventID && cursor.Precedes(e.Entry) && len(out) < limit {
					out = append(out, e)
				}
			}
			return out, nil
		},
		countThroughFn: func(_ context.Context, eventID uuid.UUID, cursor domain.EntryCursor) (int, error) {
			m.mu.Lock()
			defer m.mu.Unlock()
			n := 0
			for _, e := range m.entries {
				if e.EventID == eventID && !cursor.Precedes(e.Entry) {
					n++
				}
			}
			return n, nil
		},
	}
}

type watcherFixture struct {
	watcher   *ChangeWatcher
	clock     *clockwork.FakeClock
	store     *memEntries
	publisher *recordingPublisher
	metrics   *metrics.StreamMetrics
	start     time.Time
}

func newWatcherFixture(t *testing.T) *watcherFixture {
	t.Helper()
	start := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	f := &watcherFixture{
		clock:     clockwork.NewFakeClockAt(start),
		store:     &memEntries{anchored: make(chan uuid.UUID, 16)},
		publisher: newRecordingPublisher(),
		metrics:   metrics.NewStreamMetrics(prometheus.NewRegistry()),
		start:     start,
	}
	f.watcher = NewChangeWatcher(f.store.repo(), f.publisher, f.clock, 3*time.Second, f.metrics)
	t.Cleanup(f.watcher.Stop)
	return f
}

// watch starts watching eventID and waits until the poller has read its checkpoint.
func (f *watcherFixture) watch(t *testing.T, eventID uuid.UUID) {
	t.Helper()
	f.watcher.Watch(eventID)
	f.awaitAnchor(t, eventID)
}

func (f *watcherFixture) awaitAnchor(t *testing.T, eventID uuid.UUID) {
	t.Helper()
	for {
		select {
		case id := <-f.store.anchored:
			if id == eventID {
				return
			}
		case <-time.After(time.Second):
			t.Fatal("checkpoint was not read")
		}
	}
}

func (f *watcherFixture) next(t *testing.T) publishedMessage {
	t.Helper()
	select {
	case m := <-f.publisher.ch:
		return m
	case <-time.After(time.Second):
		t.Fatal("nothing published")
		return publishedMessage{}
	}
}

func (f *watcherFixture) assertQuiet(t *testing.T) {
	t.Helper()
	select {
	case m := <-f.publisher.ch:
		t.Fatalf("unexpected publish: %+v", m.msg)
	case <-time.After(30 * time.Millisecond):
	}
}

func TestWatcher_KickDeliversNewEntriesInOrder(t *testing.T) {
	f := newWatcherFixture(t)
	eventID := uuid.New()

	f.store.add(eventID, f.start.Add(-time.Minute), "before")
	f.watch(t, eventID)

	second := f.store.add(eventID, f.start.Add(2*time.Second), "bob")
	first := f.store.add(eventID, f.start.Add(1*time.Second), "ada")
	f.watcher.Kick(eventID)

	m1 := f.next(t)
	m2 := f.next(t)
	assert.Equal(t, eventID, m1.eventID)
	assert.Equal(t, domain.StreamMessageEntry, m1.msg.Type)
	assert.Equal(t, first.ID, m1.msg.Entry.ID)
	assert.Equal(t, "ada", m1.msg.Entry.Entrant.FirstName)
	assert.Equal(t, 2, m1.msg.TotalEntries, "earlier entries count towards the total but are not replayed")
	assert.Equal(t, second.ID, m2.msg.Entry.ID)
	assert.Equal(t, 3, m2.msg.TotalEntries)

	// Nothing new: the checkpoint moved past both entries.
	f.watcher.Kick(eventID)
	f.assertQuiet(t)

	third := f.store.add(eventID, f.start.Add(3*time.Second), "cy")
	f.watcher.Kick(eventID)
	m3 := f.next(t)
	assert.Equal(t, third.ID, m3.msg.Entry.ID)
	assert.Equal(t, 4, m3.msg.TotalEntries)
}

func TestWatcher_PollsOnInterval(t *testing.T) {
	f := newWatcherFixture(t)
	eventID := uuid.New()
	f.watch(t, eventID)

	require.NoError(t, f.clock.BlockUntilContext(t.Context(), 1))
	entry := f.store.add(eventID, f.start.Add(time.Second), "ada")
	f.clock.Advance(3 * time.Second)

	m := f.next(t)
	assert.Equal(t, entry.ID, m.msg.Entry.ID)
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(f.metrics.WatcherPolls.WithLabelValues("delivered")) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestWatcher_FailedPollKeepsCheckpoint(t *testing.T) {
	f := newWatcherFixture(t)
	eventID := uuid.New()
	f.watch(t, eventID)

	entry := f.store.add(eventID, f.start.Add(time.Second), "ada")
	f.store.failListing(errors.New("connection refused"))
	f.watcher.Kick(eventID)
	f.assertQuiet(t)

	f.store.failListing(nil)
	f.watcher.Kick(eventID)
	assert.Equal(t, entry.ID, f.next(t).msg.Entry.ID)
}

func TestWatcher_DeliversEveryPage(t *testing.T) {
	f := newWatcherFixture(t)
	eventID := uuid.New()
	f.watch(t, eventID)

	n := watchPageSize + 7
	for i := range n {
		f.store.add(eventID, f.start.Add(time.Duration(i+1)*time.Millisecond), "guest")
	}
	f.watcher.Kick(eventID)

	for i := range n {
		m := f.next(t)
		require.Equal(t, i+1, m.msg.TotalEntries)
	}
	f.assertQuiet(t)
}

func TestWatcher_ScopedPerEvent(t *testing.T) {
	f := newWatcherFixture(t)
	watched, other := uuid.New(), uuid.New()
	f.watch(t, watched)

	f.store.add(other, f.start.Add(time.Second), "elsewhere")
	f.watcher.Kick(watched)
	f.watcher.Kick(other)
	f.assertQuiet(t)
}

func TestWatcher_WatchUnwatchLifecycle(t *testing.T) {
	f := newWatcherFixture(t)
	eventID := uuid.New()

	f.watcher.Watch(eventID)
	f.watcher.Watch(eventID)
	assert.Equal(t, 1, f.watcher.WatchedCount())
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.WatchedEvents), 0)

	f.watcher.Unwatch(eventID)
	f.watcher.Unwatch(eventID)
	assert.Equal(t, 0, f.watcher.WatchedCount())

	f.store.add(eventID, f.start.Add(time.Second), "ada")
	f.watcher.Kick(eventID)
	f.assertQuiet(t)
}

func TestWatcher_RewatchStartsFreshCheckpoint(t *testing.T) {
	f := newWatcherFixture(t)
	eventID := uuid.New()

	f.watch(t, eventID)
	f.watcher.Unwatch(eventID)

	f.store.add(eventID, f.start.Add(time.Second), "missed")
	f.clock.Advance(time.Minute)
	f.watch(t, eventID)

	fresh := f.store.add(eventID, f.start.Add(2*time.Minute), "seen")
	f.watcher.Kick(eventID)

	m := f.next(t)
	assert.Equal(t, fresh.ID, m.msg.Entry.ID)
	assert.Equal(t, 2, m.msg.TotalEntries)
	f.assertQuiet(t)
}

func TestWatcher_StopWaitsForPollers(t *testing.T) {
	f := newWatcherFixture(t)
	for range 3 {
		f.watcher.Watch(uuid.New())
	}

	done := make(chan struct{})
	go func() {
		f.watcher.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
	assert.Equal(t, 0, f.watcher.WatchedCount())
}

func TestWatcher_CheckpointFollowsStoreClockWhenItLags(t *testing.T) {
	f := newWatcherFixture(t)
	eventID := uuid.New()

	// The store's clock runs two seconds behind the watcher's.
	f.store.add(eventID, f.start.Add(-3*time.Second), "before")
	f.watch(t, eventID)

	f.clock.Advance(time.Second)
	late := f.store.add(eventID, f.start.Add(-time.Second), "ada")
	f.watcher.Kick(eventID)

	m := f.next(t)
	assert.Equal(t, late.ID, m.msg.Entry.ID)
	assert.Equal(t, 2, m.msg.TotalEntries)
	f.assertQuiet(t)
}

func TestWatcher_CheckpointFollowsStoreClockWhenItLeads(t *testing.T) {
	f := newWatcherFixture(t)
	eventID := uuid.New()

	// The store's clock runs five seconds ahead: existing entries look like they are from the future.
	f.store.add(eventID, f.start.Add(4*time.Second), "before")
	f.store.add(eventID, f.start.Add(5*time.Second), "also-before")
	f.watch(t, eventID)

	fresh := f.store.add(eventID, f.start.Add(6*time.Second), "ada")
	f.watcher.Kick(eventID)

	m := f.next(t)
	assert.Equal(t, fresh.ID, m.msg.Entry.ID, "entries committed before watching are not replayed")
	assert.Equal(t, 3, m.msg.TotalEntries)
	f.assertQuiet(t)
}

func TestWatcher_RetriesCheckpointUntilStoreAnswers(t *testing.T) {
	f := newWatcherFixture(t)
	eventID := uuid.New()

	f.store.failCheckpoint(errors.New("connection refused"))
	f.watcher.Watch(eventID)
	f.store.add(eventID, f.start.Add(time.Second), "while-down")
	f.watcher.Kick(eventID)
	f.assertQuiet(t)

	f.store.failCheckpoint(nil)
	f.watcher.Kick(eventID)
	f.awaitAnchor(t, eventID)
	f.assertQuiet(t)

	fresh := f.store.add(eventID, f.start.Add(2*time.Second), "ada")
	f.watcher.Kick(eventID)
	assert.Equal(t, fresh.ID, f.next(t).msg.Entry.ID)
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(f.metrics.WatcherPolls.WithLabelValues("error")) >= 1
	}, time.Second, 5*time.Millisecond)
}
