package draw

import (
	"github.com/google/uuid"
	"github.com/pscheid92/luckydraw/internal/domain"
)

// Pool is the set of entrants eligible for a single prize draw.
type Pool struct {
	Entrants     []domain.EntrantTally
	TotalEntries int
}

// NewPool filters tallies down to entrants that hold entries and have not won
// yet in the current session. Tally order is preserved; it decides ties in the
// cumulative scan. Must be recomputed before every prize since the set shrinks.
func NewPool(tallies []domain.EntrantTally, won map[uuid.UUID]struct{}) (Pool, error) {
	pool := Pool{Entrants: make([]domain.EntrantTally, 0, len(tallies))}
	for _, t := range tallies {
		if t.EntryCount <= 0 {
			continue
		}
		if _, ok := won[t.Entrant.ID]; ok {
			continue
		}
		pool.Entrants = append(pool.Entrants, t)
		pool.TotalEntries += t.EntryCount
	}

	if len(pool.Entrants) == 0 {
		return Pool{}, domain.ErrNoEligibleEntrants
	}
	return pool, nil
}

// Weight returns the normalized selection weight of the i-th entrant.
func (p Pool) Weight(i int) float64 {
	return float64(p.Entrants[i].EntryCount) / float64(p.TotalEntries)
}

func (p Pool) Contains(entrantID uuid.UUID) bool {
	for _, t := range p.Entrants {
		if t.Entrant.ID == entrantID {
			return true
		}
	}
	return false
}
