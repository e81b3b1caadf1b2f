package draw

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/pscheid92/luckydraw/internal/domain"
)

// fixedSource always returns the same value.
type fixedSource struct{ v float64 }

func (f fixedSource) Float64() float64 { return f.v }

// sequenceSource returns values in order, repeating the last one.
type sequenceSource struct {
	values []float64
	next   int
}

func (s *sequenceSource) Float64() float64 {
	v := s.values[min(s.next, len(s.values)-1)]
	s.next++
	return v
}

func tally(name string, count int) domain.EntrantTally {
	return domain.EntrantTally{
		Entrant: domain.Entrant{
			ID:        uuid.New(),
			FirstName: name,
			LastName:  "Tester",
			Email:     fmt.Sprintf("%s@example.com", name),
		},
		EntryCount:   count,
		FirstEntryID: uuid.New(),
	}
}

func prize(name string, order int) domain.Prize {
	return domain.Prize{ID: uuid.New(), Name: name, Order: order}
}
