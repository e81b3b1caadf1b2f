package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/luckydraw/internal/adapter/metrics"
	"github.com/pscheid92/luckydraw/internal/domain"
	"github.com/pscheid92/luckydraw/internal/draw"
	"golang.org/x/sync/singleflight"
)

const (
	modeBatch       = "batch"
	modeInteractive = "interactive"

	countTimeout = 5 * time.Second
)

// EntryKicker is told about freshly committed entries so the live feed can pick them up without waiting for a poll.
type EntryKicker interface {
	Kick(eventID uuid.UUID)
}

// WinnerDispatcher sends winner notifications. Dispatch is fire-and-forget; Notify reports the outcome.
type WinnerDispatcher interface {
	Dispatch(ctx context.Context, n domain.WinnerNotification)
	Notify(ctx context.Context, n domain.WinnerNotification) (bool, error)
}

// EventOverview is an event with its prizes in draw order and its current entry count.
type EventOverview struct {
	Event         *domain.Event
	Prizes        []domain.Prize
	TotalEntries  int
	SessionActive bool
}

// AdvanceResult is the prize locked by an advance and whether the session is now complete.
type AdvanceResult struct {
	Award    domain.Award
	Complete bool
	Snapshot draw.Snapshot
}

// Service is the application layer. It is the only component that touches repositories,
// draw sessions and the notification dispatcher together. All work on one event runs
// under that event's lock; different events never contend.
type Service struct {
	events     domain.EventRepository
	entries    domain.EntryRepository
	prizes     domain.PrizeRepository
	dispatcher WinnerDispatcher
	kicker     EntryKicker
	selector   *draw.Selector
	clock      clockwork.Clock
	metrics    *metrics.DrawMetrics

	locks      *eventLocks
	countGroup singleflight.Group

	sessionsMu sync.Mutex
	sessions   map[uuid.UUID]*draw.Session
}

// NewService creates the application service. kicker may be nil.
func NewService(events domain.EventRepository, entries domain.EntryRepository, prizes domain.PrizeRepository, dispatcher WinnerDispatcher, kicker EntryKicker, selector *draw.Selector, clock clockwork.Clock, m *metrics.DrawMetrics) *Service {
	return &Service{
		events:     events,
		entries:    entries,
		prizes:     prizes,
		dispatcher: dispatcher,
		kicker:     kicker,
		selector:   selector,
		clock:      clock,
		metrics:    m,
		locks:      newEventLocks(),
		sessions:   make(map[uuid.UUID]*draw.Session),
	}
}

// GetEvent returns the event overview. Concurrent count queries for one event are collapsed.
func (s *Service) GetEvent(ctx context.Context, eventID uuid.UUID) (*EventOverview, error) {
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}

	prizes, err := s.prizes.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	// The shared query must not die with whichever caller started it.
	total, err, _ := s.countGroup.Do(eventID.String(), func() (any, error) {
		countCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), countTimeout)
		defer cancel()
		return s.entries.Count(countCtx, eventID)
	})
	if err != nil {
		return nil, err
	}

	return &EventOverview{
		Event:         event,
		Prizes:        draw.SortPrizes(prizes),
		TotalEntries:  total.(int),
		SessionActive: s.session(eventID) != nil,
	}, nil
}

// CreateEntries records quantity entries for the entrant (created on first use, matched by e-mail).
// The event must be open and no interactive draw may be running.
func (s *Service) CreateEntries(ctx context.Context, eventID uuid.UUID, entrant domain.NewEntrant, quantity int) ([]domain.EntryDetail, error) {
	if quantity < 1 {
		quantity = 1
	}

	unlock := s.locks.lock(eventID)
	defer unlock()

	if err := s.requireOpen(ctx, eventID); err != nil {
		return nil, err
	}
	if s.session(eventID) != nil {
		return nil, fmt.Errorf("%w: draw session in progress", domain.ErrInvalidEventState)
	}

	created, err := s.entries.Create(ctx, eventID, entrant, quantity)
	if err != nil {
		return nil, fmt.Errorf("failed to create entries: %w", err)
	}

	s.metrics.EntriesCreated.Add(float64(len(created)))
	slog.InfoContext(ctx, "Entries created", "event_id", eventID.String(), "quantity", len(created))

	if s.kicker != nil {
		s.kicker.Kick(eventID)
	}
	return created, nil
}

// BatchDraw draws and persists a winner for every prize of the event in one call.
func (s *Service) BatchDraw(ctx context.Context, eventID uuid.UUID) ([]domain.Award, error) {
	unlock := s.locks.lock(eventID)
	defer unlock()

	start := s.clock.Now()
	awards, err := s.batchDraw(ctx, eventID)
	s.observeDraw(modeBatch, start, err)
	if err != nil {
		slog.WarnContext(ctx, "Batch draw rejected", "event_id", eventID.String(), "error", err)
		return nil, err
	}

	for _, a := range awards {
		slog.InfoContext(ctx, "Prize awarded",
			"event_id", eventID.String(),
			"prize_id", a.PrizeID.String(),
			"stage", draw.StageLocked,
			"entrant_id", a.Entrant.ID.String(),
			"entry_id", a.EntryID.String(),
			"mode", modeBatch,
		)
		s.dispatcher.Dispatch(ctx, notification(eventID, a))
	}
	return awards, nil
}

func (s *Service) batchDraw(ctx context.Context, eventID uuid.UUID) ([]domain.Award, error) {
	if s.session(eventID) != nil {
		return nil, domain.ErrDrawSessionActive
	}
	if err := s.requireOpen(ctx, eventID); err != nil {
		return nil, err
	}

	prizes, err := s.prizes.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	tallies, err := s.entries.Tally(ctx, eventID)
	if err != nil {
		return nil, err
	}

	awards, err := draw.DrawAll(prizes, tallies, s.selector)
	if err != nil {
		return nil, err
	}

	if err := s.prizes.AwardAll(ctx, eventID, awards, s.clock.Now()); err != nil {
		return nil, fmt.Errorf("failed to persist awards: %w", err)
	}
	return awards, nil
}

// StartSession opens the interactive draw for the event, or returns the one already open.
// Prizes awarded by an earlier session of the same draw stay locked and drawing resumes
// at the first prize without a winner.
func (s *Service) StartSession(ctx context.Context, eventID uuid.UUID) (draw.Snapshot, error) {
	unlock := s.locks.lock(eventID)
	defer unlock()

	if sess := s.session(eventID); sess != nil {
		return sess.Snapshot(), nil
	}

	if err := s.requireOpen(ctx, eventID); err != nil {
		return draw.Snapshot{}, err
	}

	prizes, err := s.prizes.ListByEvent(ctx, eventID)
	if err != nil {
		return draw.Snapshot{}, err
	}

	winners, err := s.persistedWinners(ctx, eventID, prizes)
	if err != nil {
		return draw.Snapshot{}, err
	}
	sess, err := draw.ResumeSession(eventID, prizes, winners, s.selector)
	if err != nil {
		return draw.Snapshot{}, err
	}

	s.sessionsMu.Lock()
	s.sessions[eventID] = sess
	s.sessionsMu.Unlock()
	s.metrics.ActiveSessions.Inc()

	slog.InfoContext(ctx, "Draw session started",
		"event_id", eventID.String(),
		"prizes", len(prizes),
		"already_locked", len(winners),
	)
	return sess.Snapshot(), nil
}

// persistedWinners loads the entrant behind every prize that already has a winning entry.
func (s *Service) persistedWinners(ctx context.Context, eventID uuid.UUID, prizes []domain.Prize) (map[uuid.UUID]domain.Entrant, error) {
	winners := make(map[uuid.UUID]domain.Entrant)
	for _, p := range prizes {
		if !p.HasWinner() {
			continue
		}
		detail, err := s.entries.GetDetail(ctx, *p.WinningEntryID)
		if err != nil {
			return nil, fmt.Errorf("failed to load winner of prize %s: %w", p.ID, err)
		}
		if detail.EventID != eventID {
			return nil, fmt.Errorf("%w: winner of prize %s belongs to another event", domain.ErrEntryNotFound, p.ID)
		}
		winners[detail.ID] = detail.Entrant
	}
	return winners, nil
}

// Session returns a snapshot of the event's interactive draw.
func (s *Service) Session(eventID uuid.UUID) (draw.Snapshot, error) {
	unlock := s.locks.lock(eventID)
	defer unlock()

	sess := s.session(eventID)
	if sess == nil {
		return draw.Snapshot{}, domain.ErrNoDrawSession
	}
	return sess.Snapshot(), nil
}

// DrawCurrent selects a winner for the session's current prize and dispatches the winner notification.
func (s *Service) DrawCurrent(ctx context.Context, eventID uuid.UUID) (domain.Award, error) {
	unlock := s.locks.lock(eventID)
	defer unlock()

	sess := s.session(eventID)
	if sess == nil {
		return domain.Award{}, domain.ErrNoDrawSession
	}

	start := s.clock.Now()
	award, err := s.drawCurrent(ctx, sess)
	s.observeDraw(modeInteractive, start, err)
	if err != nil {
		s.logRejected(ctx, sess, "Draw rejected", err)
		return domain.Award{}, err
	}

	s.logRevealed(ctx, eventID, award)
	s.dispatcher.Dispatch(ctx, notification(eventID, award))
	return award, nil
}

func (s *Service) drawCurrent(ctx context.Context, sess *draw.Session) (domain.Award, error) {
	if _, _, err := sess.Current(); err != nil {
		return domain.Award{}, err
	}
	tallies, err := s.entries.Tally(ctx, sess.EventID())
	if err != nil {
		return domain.Award{}, err
	}
	return sess.Draw(tallies)
}

// Redraw discards the revealed winner of prizeID (the current prize when nil) and draws again.
func (s *Service) Redraw(ctx context.Context, eventID uuid.UUID, prizeID *uuid.UUID) (domain.Award, error) {
	unlock := s.locks.lock(eventID)
	defer unlock()

	sess := s.session(eventID)
	if sess == nil {
		return domain.Award{}, domain.ErrNoDrawSession
	}

	target := uuid.Nil
	if prizeID != nil {
		target = *prizeID
	} else {
		current, _, err := sess.Current()
		if err != nil {
			s.logRejected(ctx, sess, "Redraw rejected", err)
			return domain.Award{}, err
		}
		target = current.ID
	}

	start := s.clock.Now()
	award, err := s.redraw(ctx, sess, target)
	s.observeDraw(modeInteractive, start, err)
	if err != nil {
		slog.WarnContext(ctx, "Redraw rejected", "event_id", eventID.String(), "prize_id", target.String(), "error", err)
		return domain.Award{}, err
	}

	s.logRevealed(ctx, eventID, award)
	s.dispatcher.Dispatch(ctx, notification(eventID, award))
	return award, nil
}

func (s *Service) redraw(ctx context.Context, sess *draw.Session, prizeID uuid.UUID) (domain.Award, error) {
	if err := sess.CanRedraw(prizeID); err != nil {
		return domain.Award{}, err
	}

	tallies, err := s.entries.Tally(ctx, sess.EventID())
	if err != nil {
		return domain.Award{}, err
	}
	return sess.Redraw(prizeID, tallies)
}

// Advance locks the revealed winner of the current prize, persists it and moves to the next prize.
// After the last prize the event is marked drawn. Calling it again on a complete session retries
// marking the event drawn.
func (s *Service) Advance(ctx context.Context, eventID uuid.UUID) (AdvanceResult, error) {
	unlock := s.locks.lock(eventID)
	defer unlock()

	sess := s.session(eventID)
	if sess == nil {
		return AdvanceResult{}, domain.ErrNoDrawSession
	}

	if sess.Complete() {
		if err := s.finish(ctx, eventID); err != nil {
			return AdvanceResult{}, err
		}
		return AdvanceResult{}, domain.ErrSessionComplete
	}

	award, err := sess.Revealed()
	if err != nil {
		s.logRejected(ctx, sess, "Advance rejected", err)
		return AdvanceResult{}, err
	}

	if err := s.prizes.SetWinner(ctx, award.PrizeID, award.EntryID); err != nil {
		slog.ErrorContext(ctx, "Failed to persist winner",
			"event_id", eventID.String(),
			"prize_id", award.PrizeID.String(),
			"stage", draw.StageRevealed,
			"error", err,
		)
		return AdvanceResult{}, fmt.Errorf("failed to persist winner: %w", err)
	}

	if _, err := sess.Lock(); err != nil {
		return AdvanceResult{}, err
	}

	slog.InfoContext(ctx, "Prize locked",
		"event_id", eventID.String(),
		"prize_id", award.PrizeID.String(),
		"stage", draw.StageLocked,
		"entrant_id", award.Entrant.ID.String(),
		"entry_id", award.EntryID.String(),
	)

	result := AdvanceResult{Award: award, Complete: sess.Complete(), Snapshot: sess.Snapshot()}
	if result.Complete {
		if err := s.finish(ctx, eventID); err != nil {
			return result, err
		}
	}
	return result, nil
}

// finish marks the event drawn unless that already happened.
func (s *Service) finish(ctx context.Context, eventID uuid.UUID) error {
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return err
	}
	if !event.IsOpen() {
		return nil
	}

	if err := s.events.MarkDrawn(ctx, eventID, s.clock.Now()); err != nil {
		return fmt.Errorf("failed to mark event drawn: %w", err)
	}
	slog.InfoContext(ctx, "Event drawn", "event_id", eventID.String())
	return nil
}

// ResetDraw clears every winner of the event, reopens it for entries and rewinds an open session to its first prize.
func (s *Service) ResetDraw(ctx context.Context, eventID uuid.UUID) error {
	unlock := s.locks.lock(eventID)
	defer unlock()

	if _, err := s.events.GetByID(ctx, eventID); err != nil {
		return err
	}

	if err := s.prizes.ResetDraw(ctx, eventID); err != nil {
		return fmt.Errorf("failed to reset draw: %w", err)
	}

	if sess := s.session(eventID); sess != nil {
		sess.Reset()
	}

	slog.InfoContext(ctx, "Draw reset", "event_id", eventID.String())
	return nil
}

// CloseSession discards the event's interactive draw. Winners already persisted stay.
func (s *Service) CloseSession(ctx context.Context, eventID uuid.UUID) error {
	unlock := s.locks.lock(eventID)
	defer unlock()

	s.sessionsMu.Lock()
	_, ok := s.sessions[eventID]
	delete(s.sessions, eventID)
	s.sessionsMu.Unlock()

	if !ok {
		return domain.ErrNoDrawSession
	}

	s.metrics.ActiveSessions.Dec()
	slog.InfoContext(ctx, "Draw session closed", "event_id", eventID.String())
	return nil
}

// NotifyWinner sends the winner notification for a prize of the event and waits for the outcome.
// It reports false when the same notification was already sent within the de-duplication window.
func (s *Service) NotifyWinner(ctx context.Context, eventID, prizeID, entryID uuid.UUID, prizeName string) (bool, error) {
	prizes, err := s.prizes.ListByEvent(ctx, eventID)
	if err != nil {
		return false, err
	}

	var prize *domain.Prize
	for i := range prizes {
		if prizes[i].ID == prizeID {
			prize = &prizes[i]
			break
		}
	}
	if prize == nil {
		return false, domain.ErrPrizeNotFound
	}

	entry, err := s.entries.GetDetail(ctx, entryID)
	if err != nil {
		return false, err
	}
	if entry.EventID != eventID {
		return false, domain.ErrEntryNotFound
	}

	if prizeName == "" {
		prizeName = prize.Name
	}

	return s.dispatcher.Notify(ctx, domain.WinnerNotification{
		EventID:   eventID,
		PrizeID:   prizeID,
		PrizeName: prizeName,
		WinnerID:  entryID,
		Entrant:   entry.Entrant,
	})
}

func (s *Service) session(eventID uuid.UUID) *draw.Session {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	return s.sessions[eventID]
}

func (s *Service) requireOpen(ctx context.Context, eventID uuid.UUID) error {
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return err
	}
	if !event.IsOpen() {
		return fmt.Errorf("%w: event is %s", domain.ErrInvalidEventState, event.Status)
	}
	return nil
}

func (s *Service) observeDraw(mode string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "rejected"
	}
	s.metrics.Draws.WithLabelValues(mode, result).Inc()
	s.metrics.DrawDuration.WithLabelValues(mode).Observe(s.clock.Since(start).Seconds())
}

func (s *Service) logRevealed(ctx context.Context, eventID uuid.UUID, a domain.Award) {
	slog.InfoContext(ctx, "Prize revealed",
		"event_id", eventID.String(),
		"prize_id", a.PrizeID.String(),
		"stage", draw.StageRevealed,
		"entrant_id", a.Entrant.ID.String(),
		"entry_id", a.EntryID.String(),
	)
}

func (s *Service) logRejected(ctx context.Context, sess *draw.Session, msg string, err error) {
	attrs := []any{"event_id", sess.EventID().String(), "error", err}
	if prize, stage, cerr := sess.Current(); cerr == nil {
		attrs = append(attrs, "prize_id", prize.ID.String(), "stage", stage)
	}
	slog.WarnContext(ctx, msg, attrs...)
}

func notification(eventID uuid.UUID, a domain.Award) domain.WinnerNotification {
	return domain.WinnerNotification{
		EventID:   eventID,
		PrizeID:   a.PrizeID,
		PrizeName: a.PrizeName,
		WinnerID:  a.EntryID,
		Entrant:   a.Entrant,
	}
}
