package draw

import (
	"github.com/google/uuid"
	"github.com/pscheid92/luckydraw/internal/domain"
)

// DrawAll awards every prize in one pass using the same weighted selection as
// the interactive session: ascending prize order, pool recomputed before each
// prize, each entrant wins at most once.
func DrawAll(prizes []domain.Prize, tallies []domain.EntrantTally, selector *Selector) ([]domain.Award, error) {
	if len(prizes) == 0 {
		return nil, domain.ErrNoPrizes
	}
	for _, p := range prizes {
		if p.HasWinner() {
			return nil, domain.ErrPrizeAlreadyDrawn
		}
	}

	eligible := 0
	for _, t := range tallies {
		if t.EntryCount > 0 {
			eligible++
		}
	}
	if eligible < len(prizes) {
		return nil, domain.ErrInsufficientEntries
	}

	won := make(map[uuid.UUID]struct{}, len(prizes))
	awards := make([]domain.Award, 0, len(prizes))
	for _, prize := range SortPrizes(prizes) {
		pool, err := NewPool(tallies, won)
		if err != nil {
			return nil, err
		}
		winner, err := selector.Select(pool)
		if err != nil {
			return nil, err
		}
		won[winner.Entrant.ID] = struct{}{}
		awards = append(awards, newAward(prize, winner))
	}
	return awards, nil
}
