package draw

import (
	"bytes"
	"cmp"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/pscheid92/luckydraw/internal/domain"
)

// Stage is the per-prize state inside a Session.
type Stage string

const (
	StageReady     Stage = "ready"
	StageDrawing   Stage = "drawing"
	StageRevealed  Stage = "revealed"
	StageLocked    Stage = "locked"
	StageRedrawing Stage = "redrawing"
)

// Session is the interactive draw state machine for one event. Prizes are drawn
// one at a time in ascending order; a revealed prize can be redrawn until it is
// locked, and locking advances to the next prize.
//
// Session is not safe for concurrent use; callers serialize access per event.
// Every method that returns an error leaves the session unchanged.
type Session struct {
	eventID  uuid.UUID
	selector *Selector

	prizes  []domain.Prize
	stages  []Stage
	winners []*domain.EntrantTally
	current int

	locked map[uuid.UUID]struct{} // prize IDs
	won    map[uuid.UUID]struct{} // entrant IDs
}

func NewSession(eventID uuid.UUID, prizes []domain.Prize, selector *Selector) (*Session, error) {
	if len(prizes) == 0 {
		return nil, domain.ErrNoPrizes
	}
	for _, p := range prizes {
		if p.HasWinner() {
			return nil, domain.ErrPrizeAlreadyDrawn
		}
	}

	s := &Session{
		eventID:  eventID,
		selector: selector,
		prizes:   SortPrizes(prizes),
	}
	s.Reset()
	return s, nil
}

// ResumeSession rebuilds the session of an event whose leading prizes were already
// awarded, e.g. after the operator's browser closed mid-draw. Prizes with a winner
// start locked and their entrants cannot win again; drawing continues at the first
// prize without one. winners maps each winning entry ID to the entrant holding it.
func ResumeSession(eventID uuid.UUID, prizes []domain.Prize, winners map[uuid.UUID]domain.Entrant, selector *Selector) (*Session, error) {
	if len(prizes) == 0 {
		return nil, domain.ErrNoPrizes
	}

	s := &Session{
		eventID:  eventID,
		selector: selector,
		prizes:   SortPrizes(prizes),
	}
	s.Reset()

	for i, p := range s.prizes {
		if !p.HasWinner() {
			continue
		}
		entrant, ok := winners[*p.WinningEntryID]
		if !ok {
			return nil, fmt.Errorf("%w: winning entry of prize %s", domain.ErrEntryNotFound, p.ID)
		}
		s.winners[i] = &domain.EntrantTally{Entrant: entrant, EntryCount: 1, FirstEntryID: *p.WinningEntryID}
		s.won[entrant.ID] = struct{}{}
		s.stages[i] = StageLocked
		s.locked[p.ID] = struct{}{}
	}
	s.skipLocked()
	return s, nil
}

// SortPrizes returns a copy of prizes in draw order: ascending Order, then ID.
func SortPrizes(prizes []domain.Prize) []domain.Prize {
	sorted := slices.Clone(prizes)
	slices.SortStableFunc(sorted, func(a, b domain.Prize) int {
		if c := cmp.Compare(a.Order, b.Order); c != 0 {
			return c
		}
		return bytes.Compare(a.ID[:], b.ID[:])
	})
	return sorted
}

func (s *Session) EventID() uuid.UUID {
	return s.eventID
}

func (s *Session) Complete() bool {
	return s.current >= len(s.prizes)
}

// Current returns the prize being drawn and its stage.
func (s *Session) Current() (domain.Prize, Stage, error) {
	if s.Complete() {
		return domain.Prize{}, "", domain.ErrSessionComplete
	}
	return s.prizes[s.current], s.stages[s.current], nil
}

// HasWon reports whether the entrant holds a prize in this session.
func (s *Session) HasWon(entrantID uuid.UUID) bool {
	_, ok := s.won[entrantID]
	return ok
}

// Draw selects a winner for the current prize (ready -> drawing -> revealed).
// tallies must be freshly loaded; entrants that already won are excluded.
func (s *Session) Draw(tallies []domain.EntrantTally) (domain.Award, error) {
	if s.Complete() {
		return domain.Award{}, domain.ErrSessionComplete
	}

	i := s.current
	if s.stages[i] != StageReady {
		return domain.Award{}, domain.ErrInvalidTransition
	}

	s.stages[i] = StageDrawing
	winner, err := s.pick(tallies, s.won)
	if err != nil {
		s.stages[i] = StageReady
		return domain.Award{}, err
	}

	s.reveal(i, winner)
	return s.award(i), nil
}

// Redraw discards the revealed winner of prizeID and draws again against the
// pool that includes the discarded entrant (revealed -> redrawing -> drawing -> revealed).
// A locked prize is rejected before any selection happens.
func (s *Session) Redraw(prizeID uuid.UUID, tallies []domain.EntrantTally) (domain.Award, error) {
	if err := s.CanRedraw(prizeID); err != nil {
		return domain.Award{}, err
	}

	i := s.indexOf(prizeID)
	previous := s.winners[i]
	exclude := make(map[uuid.UUID]struct{}, len(s.won))
	for id := range s.won {
		if id != previous.Entrant.ID {
			exclude[id] = struct{}{}
		}
	}

	s.stages[i] = StageRedrawing
	winner, err := s.pick(tallies, exclude)
	if err != nil {
		s.stages[i] = StageRevealed
		return domain.Award{}, err
	}

	delete(s.won, previous.Entrant.ID)
	s.winners[i] = nil
	s.stages[i] = StageDrawing
	s.reveal(i, winner)
	return s.award(i), nil
}

// CanRedraw reports why prizeID cannot be redrawn right now, or nil if it can.
func (s *Session) CanRedraw(prizeID uuid.UUID) error {
	i := s.indexOf(prizeID)
	if i < 0 {
		return domain.ErrPrizeNotFound
	}
	if _, ok := s.locked[prizeID]; ok {
		return domain.ErrPrizeLocked
	}
	if i != s.current || s.stages[i] != StageRevealed {
		return domain.ErrInvalidTransition
	}
	return nil
}

// Revealed returns the award of the current prize if it is revealed, without
// changing state. Callers persist it before calling Lock.
func (s *Session) Revealed() (domain.Award, error) {
	if s.Complete() {
		return domain.Award{}, domain.ErrSessionComplete
	}
	if s.stages[s.current] != StageRevealed {
		return domain.Award{}, domain.ErrInvalidTransition
	}
	return s.award(s.current), nil
}

// Lock confirms the revealed winner of the current prize and advances to the
// next one. Locking is irreversible short of Reset.
func (s *Session) Lock() (domain.Award, error) {
	award, err := s.Revealed()
	if err != nil {
		return domain.Award{}, err
	}

	i := s.current
	s.stages[i] = StageLocked
	s.locked[s.prizes[i].ID] = struct{}{}
	s.current++
	s.skipLocked()
	return award, nil
}

// skipLocked moves current past prizes that are already locked.
func (s *Session) skipLocked() {
	for s.current < len(s.prizes) && s.stages[s.current] == StageLocked {
		s.current++
	}
}

// Reset discards every winner and lock and returns to the first prize.
func (s *Session) Reset() {
	s.stages = make([]Stage, len(s.prizes))
	for i := range s.stages {
		s.stages[i] = StageReady
	}
	s.winners = make([]*domain.EntrantTally, len(s.prizes))
	s.current = 0
	s.locked = make(map[uuid.UUID]struct{})
	s.won = make(map[uuid.UUID]struct{})
}

// PrizeState is one prize's position in a Snapshot.
type PrizeState struct {
	Prize  domain.Prize
	Stage  Stage
	Winner *domain.Award
}

// Snapshot is a read-only copy of a session.
type Snapshot struct {
	EventID      uuid.UUID
	CurrentIndex int
	Complete     bool
	Prizes       []PrizeState
}

func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		EventID:      s.eventID,
		CurrentIndex: s.current,
		Complete:     s.Complete(),
		Prizes:       make([]PrizeState, len(s.prizes)),
	}
	for i, p := range s.prizes {
		state := PrizeState{Prize: p, Stage: s.stages[i]}
		if s.winners[i] != nil {
			award := s.award(i)
			state.Winner = &award
		}
		snap.Prizes[i] = state
	}
	return snap
}

func (s *Session) pick(tallies []domain.EntrantTally, exclude map[uuid.UUID]struct{}) (domain.EntrantTally, error) {
	pool, err := NewPool(tallies, exclude)
	if err != nil {
		return domain.EntrantTally{}, err
	}
	return s.selector.Select(pool)
}

func (s *Session) reveal(i int, winner domain.EntrantTally) {
	s.winners[i] = &winner
	s.won[winner.Entrant.ID] = struct{}{}
	s.stages[i] = StageRevealed
}

func (s *Session) award(i int) domain.Award {
	return newAward(s.prizes[i], *s.winners[i])
}

func (s *Session) indexOf(prizeID uuid.UUID) int {
	return slices.IndexFunc(s.prizes, func(p domain.Prize) bool { return p.ID == prizeID })
}

func newAward(prize domain.Prize, winner domain.EntrantTally) domain.Award {
	return domain.Award{
		PrizeID:   prize.ID,
		PrizeName: prize.Name,
		Order:     prize.Order,
		EntryID:   winner.FirstEntryID,
		Entrant:   winner.Entrant,
	}
}
