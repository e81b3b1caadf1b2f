package httpserver

import (
	"time"

	"github.com/google/uuid"
	"github.com/pscheid92/luckydraw/internal/app"
	"github.com/pscheid92/luckydraw/internal/domain"
	"github.com/pscheid92/luckydraw/internal/draw"
)

// --- Requests ---

type createEntryRequest struct {
	FirstName string `json:"firstName" validate:"required,max=100"`
	LastName  string `json:"lastName" validate:"required,max=100"`
	Email     string `json:"email" validate:"required,email,max=254"`
	Quantity  int    `json:"quantity" validate:"omitempty,min=1,max=100"`
}

type redrawPrizeRequest struct {
	PrizeID string `json:"prizeId" validate:"omitempty,uuid"`
}

type notifyWinnerRequest struct {
	PrizeID   string `json:"prizeId" validate:"required,uuid"`
	WinnerID  string `json:"winnerId" validate:"required,uuid"`
	PrizeName string `json:"prizeName" validate:"max=200"`
}

// --- Responses ---

type entrantResponse struct {
	ID        uuid.UUID `json:"id"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Email     string    `json:"email"`
}

type entryResponse struct {
	ID        uuid.UUID       `json:"id"`
	EventID   uuid.UUID       `json:"eventId"`
	CreatedAt time.Time       `json:"createdAt"`
	Entrant   entrantResponse `json:"entrant"`
}

type prizeResponse struct {
	ID             uuid.UUID  `json:"id"`
	Name           string     `json:"name"`
	Description    string     `json:"description,omitempty"`
	Order          int        `json:"order"`
	WinningEntryID *uuid.UUID `json:"winningEntryId"`
}

type eventResponse struct {
	ID            uuid.UUID       `json:"id"`
	Name          string          `json:"name"`
	Status        string          `json:"status"`
	DrawnAt       *time.Time      `json:"drawnAt"`
	TotalEntries  int             `json:"totalEntries"`
	SessionActive bool            `json:"sessionActive"`
	Prizes        []prizeResponse `json:"prizes"`
}

type awardResponse struct {
	PrizeID   uuid.UUID       `json:"prizeId"`
	PrizeName string          `json:"prizeName"`
	Order     int             `json:"order"`
	EntryID   uuid.UUID       `json:"entryId"`
	Entrant   entrantResponse `json:"entrant"`
}

type prizeStateResponse struct {
	PrizeID uuid.UUID      `json:"prizeId"`
	Name    string         `json:"name"`
	Order   int            `json:"order"`
	Stage   string         `json:"stage"`
	Winner  *awardResponse `json:"winner"`
}

type sessionResponse struct {
	EventID      uuid.UUID            `json:"eventId"`
	CurrentIndex int                  `json:"currentIndex"`
	Complete     bool                 `json:"complete"`
	Prizes       []prizeStateResponse `json:"prizes"`
}

type advanceResponse struct {
	Award    awardResponse   `json:"award"`
	Complete bool            `json:"complete"`
	Session  sessionResponse `json:"session"`
}

func toEntrantResponse(e domain.Entrant) entrantResponse {
	return entrantResponse{ID: e.ID, FirstName: e.FirstName, LastName: e.LastName, Email: e.Email}
}

func toEntryResponses(entries []domain.EntryDetail) []entryResponse {
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryResponse{
			ID:        e.ID,
			EventID:   e.EventID,
			CreatedAt: e.CreatedAt,
			Entrant:   toEntrantResponse(e.Entrant),
		})
	}
	return out
}

func toEventResponse(o *app.EventOverview) eventResponse {
	prizes := make([]prizeResponse, 0, len(o.Prizes))
	for _, p := range o.Prizes {
		prizes = append(prizes, prizeResponse{
			ID:             p.ID,
			Name:           p.Name,
			Description:    p.Description,
			Order:          p.Order,
			WinningEntryID: p.WinningEntryID,
		})
	}
	return eventResponse{
		ID:            o.Event.ID,
		Name:          o.Event.Name,
		Status:        string(o.Event.Status),
		DrawnAt:       o.Event.DrawnAt,
		TotalEntries:  o.TotalEntries,
		SessionActive: o.SessionActive,
		Prizes:        prizes,
	}
}

func toAwardResponse(a domain.Award) awardResponse {
	return awardResponse{
		PrizeID:   a.PrizeID,
		PrizeName: a.PrizeName,
		Order:     a.Order,
		EntryID:   a.EntryID,
		Entrant:   toEntrantResponse(a.Entrant),
	}
}

func toAwardResponses(awards []domain.Award) []awardResponse {
	out := make([]awardResponse, 0, len(awards))
	for _, a := range awards {
		out = append(out, toAwardResponse(a))
	}
	return out
}

func toSessionResponse(s draw.Snapshot) sessionResponse {
	prizes := make([]prizeStateResponse, 0, len(s.Prizes))
	for _, ps := range s.Prizes {
		r := prizeStateResponse{
			PrizeID: ps.Prize.ID,
			Name:    ps.Prize.Name,
			Order:   ps.Prize.Order,
			Stage:   string(ps.Stage),
		}
		if ps.Winner != nil {
			w := toAwardResponse(*ps.Winner)
			r.Winner = &w
		}
		prizes = append(prizes, r)
	}
	return sessionResponse{
		EventID:      s.EventID,
		CurrentIndex: s.CurrentIndex,
		Complete:     s.Complete,
		Prizes:       prizes,
	}
}
