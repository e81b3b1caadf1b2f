package draw

import (
	crand "crypto/rand"
	"encoding/binary"
	mrand "math/rand/v2"

	"github.com/pscheid92/luckydraw/internal/domain"
)

// RandomSource yields uniform values in [0, 1).
// A source shared between sessions must be safe for concurrent use.
type RandomSource interface {
	Float64() float64
}

type secureSource struct{}

// SecureSource reads from crypto/rand and falls back to math/rand/v2 if the
// system source fails.
func SecureSource() RandomSource {
	return secureSource{}
}

func (secureSource) Float64() float64 {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return mrand.Float64()
	}
	// 53 random bits -> uniform float64 in [0, 1)
	return float64(binary.BigEndian.Uint64(b[:])>>11) / (1 << 53)
}

// Selector performs entry-weighted selection of one entrant from a pool.
type Selector struct {
	source RandomSource
}

// NewSelector creates a selector. A nil source uses SecureSource.
func NewSelector(source RandomSource) *Selector {
	if source == nil {
		source = SecureSource()
	}
	return &Selector{source: source}
}

// Select draws r in [0, 1) and returns the first entrant whose cumulative
// weight exceeds r. If rounding leaves the cumulative sum below r, the last
// entrant wins.
func (s *Selector) Select(pool Pool) (domain.EntrantTally, error) {
	if len(pool.Entrants) == 0 || pool.TotalEntries <= 0 {
		return domain.EntrantTally{}, domain.ErrEmptyPool
	}

	r := s.source.Float64()
	cumulative := 0.0
	for i, candidate := range pool.Entrants {
		cumulative += pool.Weight(i)
		if cumulative > r {
			return candidate, nil
		}
	}

	return pool.Entrants[len(pool.Entrants)-1], nil
}
