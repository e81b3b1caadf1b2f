package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pscheid92/luckydraw/internal/domain"
)

// --- Mock implementations ---

type mockEventRepo struct {
	getByIDFn   func(ctx context.Context, eventID uuid.UUID) (*domain.Event, error)
	markDrawnFn func(ctx context.Context, eventID uuid.UUID, drawnAt time.Time) error
}

func (m *mockEventRepo) GetByID(ctx context.Context, eventID uuid.UUID) (*domain.Event, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, eventID)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockEventRepo) MarkDrawn(ctx context.Context, eventID uuid.UUID, drawnAt time.Time) error {
	if m.markDrawnFn != nil {
		return m.markDrawnFn(ctx, eventID, drawnAt)
	}
	return fmt.Errorf("not implemented")
}

type mockEntryRepo struct {
	createFn       func(ctx context.Context, eventID uuid.UUID, entrant domain.NewEntrant, quantity int) ([]domain.EntryDetail, error)
	getDetailFn    func(ctx context.Context, entryID uuid.UUID) (*domain.EntryDetail, error)
	tallyFn        func(ctx context.Context, eventID uuid.UUID) ([]domain.EntrantTally, error)
	listAfterFn    func(ctx context.Context, eventID uuid.UUID, cursor domain.EntryCursor, limit int) ([]domain.EntryDetail, error)
	countFn        func(ctx context.Context, eventID uuid.UUID) (int, error)
	countThroughFn func(ctx context.Context, eventID uuid.UUID, cursor domain.EntryCursor) (int, error)
	checkpointFn   func(ctx context.Context, eventID uuid.UUID) (domain.EntryCursor, error)
}

func (m *mockEntryRepo) Create(ctx context.Context, eventID uuid.UUID, entrant domain.NewEntrant, quantity int) ([]domain.EntryDetail, error) {
	if m.createFn != nil {
		return m.createFn(ctx, eventID, entrant, quantity)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockEntryRepo) GetDetail(ctx context.Context, entryID uuid.UUID) (*domain.EntryDetail, error) {
	if m.getDetailFn != nil {
		return m.getDetailFn(ctx, entryID)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockEntryRepo) Tally(ctx context.Context, eventID uuid.UUID) ([]domain.EntrantTally, error) {
	if m.tallyFn != nil {
		return m.tallyFn(ctx, eventID)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockEntryRepo) ListAfter(ctx context.Context, eventID uuid.UUID, cursor domain.EntryCursor, limit int) ([]domain.EntryDetail, error) {
	if m.listAfterFn != nil {
		return m.listAfterFn(ctx, eventID, cursor, limit)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockEntryRepo) Count(ctx context.Context, eventID uuid.UUID) (int, error) {
	if m.countFn != nil {
		return m.countFn(ctx, eventID)
	}
	return 0, fmt.Errorf("not implemented")
}

func (m *mockEntryRepo) CountThrough(ctx context.Context, eventID uuid.UUID, cursor domain.EntryCursor) (int, error) {
	if m.countThroughFn != nil {
		return m.countThroughFn(ctx, eventID, cursor)
	}
	return 0, fmt.Errorf("not implemented")
}

func (m *mockEntryRepo) Checkpoint(ctx context.Context, eventID uuid.UUID) (domain.EntryCursor, error) {
	if m.checkpointFn != nil {
		return m.checkpointFn(ctx, eventID)
	}
	return domain.EntryCursor{}, fmt.Errorf("not implemented")
}

type mockPrizeRepo struct {
	listByEventFn func(ctx context.Context, eventID uuid.UUID) ([]domain.Prize, error)
	setWinnerFn   func(ctx context.Context, prizeID, entryID uuid.UUID) error
	awardAllFn    func(ctx context.Context, eventID uuid.UUID, awards []domain.Award, drawnAt time.Time) error
	resetDrawFn   func(ctx context.Context, eventID uuid.UUID) error
}

func (m *mockPrizeRepo) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]domain.Prize, error) {
	if m.listByEventFn != nil {
		return m.listByEventFn(ctx, eventID)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockPrizeRepo) SetWinner(ctx context.Context, prizeID, entryID uuid.UUID) error {
	if m.setWinnerFn != nil {
		return m.setWinnerFn(ctx, prizeID, entryID)
	}
	return fmt.Errorf("not implemented")
}

func (m *mockPrizeRepo) AwardAll(ctx context.Context, eventID uuid.UUID, awards []domain.Award, drawnAt time.Time) error {
	if m.awardAllFn != nil {
		return m.awardAllFn(ctx, eventID, awards, drawnAt)
	}
	return fmt.Errorf("not implemented")
}

func (m *mockPrizeRepo) ResetDraw(ctx context.Context, eventID uuid.UUID) error {
	if m.resetDrawFn != nil {
		return m.resetDrawFn(ctx, eventID)
	}
	return fmt.Errorf("not implemented")
}

// recordingDispatcher records every notification handed to it.
type recordingDispatcher struct {
	mu         sync.Mutex
	dispatched []domain.WinnerNotification
	notifyFn   func(ctx context.Context, n domain.WinnerNotification) (bool, error)
}

func (d *recordingDispatcher) Dispatch(_ context.Context, n domain.WinnerNotification) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dispatched = append(d.dispatched, n)
}

func (d *recordingDispatcher) Notify(ctx context.Context, n domain.WinnerNotification) (bool, error) {
	if d.notifyFn != nil {
		return d.notifyFn(ctx, n)
	}
	return false, fmt.Errorf("not implemented")
}

func (d *recordingDispatcher) all() []domain.WinnerNotification {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]domain.WinnerNotification(nil), d.dispatched...)
}

type recordingKicker struct {
	mu     sync.Mutex
	kicked []uuid.UUID
}

func (k *recordingKicker) Kick(eventID uuid.UUID) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.kicked = append(k.kicked, eventID)
}

type mockNotifier struct {
	mu       sync.Mutex
	calls    int
	notifyFn func(ctx context.Context, n domain.WinnerNotification) error
}

func (m *mockNotifier) NotifyWinner(ctx context.Context, n domain.WinnerNotification) error {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.notifyFn != nil {
		return m.notifyFn(ctx, n)
	}
	return nil
}

func (m *mockNotifier) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockGuard struct {
	acquireFn func(ctx context.Context, prizeID, entryID uuid.UUID) (bool, error)
	releaseFn func(ctx context.Context, prizeID, entryID uuid.UUID) error
}

func (m *mockGuard) Acquire(ctx context.Context, prizeID, entryID uuid.UUID) (bool, error) {
	if m.acquireFn != nil {
		return m.acquireFn(ctx, prizeID, entryID)
	}
	return true, nil
}

func (m *mockGuard) Release(ctx context.Context, prizeID, entryID uuid.UUID) error {
	if m.releaseFn != nil {
		return m.releaseFn(ctx, prizeID, entryID)
	}
	return nil
}

type publishedMessage struct {
	eventID uuid.UUID
	msg     domain.StreamMessage
}

type recordingPublisher struct {
	ch chan publishedMessage
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{ch: make(chan publishedMessage, 1024)}
}

func (p *recordingPublisher) Publish(eventID uuid.UUID, msg domain.StreamMessage) {
	p.ch <- publishedMessage{eventID: eventID, msg: msg}
}

// constSource makes the selector deterministic: 0 picks the first eligible entrant.
type constSource float64

func (c constSource) Float64() float64 { return float64(c) }
