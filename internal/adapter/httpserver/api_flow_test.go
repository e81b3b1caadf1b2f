package httpserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gavv/httpexpect"
	"github.com/google/uuid"
	"github.com/pscheid92/luckydraw/internal/app"
	"github.com/pscheid92/luckydraw/internal/domain"
	"github.com/pscheid92/luckydraw/internal/draw"
)

// flowService keeps just enough state to drive one operator session end to end.
type flowService struct {
	mockDrawService

	mu      sync.Mutex
	entries int
	session *draw.Snapshot
}

func newFlowService() *flowService {
	f := &flowService{}
	f.getEventFn = func(context.Context, uuid.UUID) (*app.EventOverview, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		o := testOverview()
		o.TotalEntries = f.entries
		o.SessionActive = f.session != nil
		return o, nil
	}
	f.createEntriesFn = func(_ context.Context, eventID uuid.UUID, e domain.NewEntrant, quantity int) ([]domain.EntryDetail, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if quantity == 0 {
			quantity = 1
		}
		out := make([]domain.EntryDetail, 0, quantity)
		for range quantity {
			out = append(out, domain.EntryDetail{
				Entry:   domain.Entry{ID: uuid.New(), EventID: eventID, EntrantID: testEntrantID, CreatedAt: testCreatedAt},
				Entrant: domain.Entrant{ID: testEntrantID, FirstName: e.FirstName, LastName: e.LastName, Email: e.Email},
			})
		}
		f.entries += quantity
		return out, nil
	}
	f.startSessionFn = func(context.Context, uuid.UUID) (draw.Snapshot, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.session != nil {
			return draw.Snapshot{}, domain.ErrDrawSessionActive
		}
		snap := testSnapshot(draw.StageReady)
		f.session = &snap
		return snap, nil
	}
	f.sessionFn = func(uuid.UUID) (draw.Snapshot, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.session == nil {
			return draw.Snapshot{}, domain.ErrNoDrawSession
		}
		return *f.session, nil
	}
	f.drawCurrentFn = func(context.Context, uuid.UUID) (domain.Award, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.session == nil {
			return domain.Award{}, domain.ErrNoDrawSession
		}
		award := testAward()
		f.session.Prizes[0].Stage = draw.StageRevealed
		f.session.Prizes[0].Winner = &award
		return award, nil
	}
	f.advanceFn = func(context.Context, uuid.UUID) (app.AdvanceResult, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.session == nil {
			return app.AdvanceResult{}, domain.ErrNoDrawSession
		}
		ps := &f.session.Prizes[0]
		if ps.Stage != draw.StageRevealed {
			return app.AdvanceResult{}, domain.ErrInvalidTransition
		}
		ps.Stage = draw.StageLocked
		f.session.Complete = true
		return app.AdvanceResult{Award: *ps.Winner, Complete: true, Snapshot: *f.session}, nil
	}
	f.closeSessionFn = func(context.Context, uuid.UUID) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.session == nil {
			return domain.ErrNoDrawSession
		}
		f.session = nil
		return nil
	}
	return f
}

func TestOperatorFlow(t *testing.T) {
	srv := newTestServer(t, newFlowService())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	e := httpexpect.New(t, ts.URL)
	id := testEventID.String()

	entries := e.POST("/events/{id}/entries", id).
		WithJSON(map[string]any{"firstName": "Ada", "lastName": "Lovelace", "email": "ada@example.com", "quantity": 3}).
		Expect().
		Status(http.StatusCreated).
		JSON().Object().Value("entries").Array()
	entries.Length().Equal(3)
	entries.Element(0).Object().Value("entrant").Object().ValueEqual("email", "ada@example.com")

	e.GET("/events/{id}", id).
		Expect().
		Status(http.StatusOK).
		JSON().Object().
		ValueEqual("totalEntries", 3).
		ValueEqual("sessionActive", false)

	e.POST("/events/{id}/session/advance", id).
		Expect().
		Status(http.StatusNotFound).
		JSON().Object().Value("context").Object().ValueEqual("code", "NoDrawSession")

	e.POST("/events/{id}/session", id).
		Expect().
		Status(http.StatusOK).
		JSON().Object().Value("prizes").Array().Element(0).Object().ValueEqual("stage", "ready")

	e.POST("/events/{id}/session", id).
		Expect().
		Status(http.StatusConflict)

	e.POST("/events/{id}/session/advance", id).
		Expect().
		Status(http.StatusConflict).
		JSON().Object().Value("context").Object().ValueEqual("code", "InvalidTransition")

	e.POST("/events/{id}/session/draw", id).
		Expect().
		Status(http.StatusOK).
		JSON().Object().ValueEqual("prizeName", "Bicycle")

	e.GET("/events/{id}/session", id).
		Expect().
		Status(http.StatusOK).
		JSON().Object().Value("prizes").Array().Element(0).Object().
		ValueEqual("stage", "revealed").
		Value("winner").Object().ValueEqual("entryId", testEntryID.String())

	advance := e.POST("/events/{id}/session/advance", id).
		Expect().
		Status(http.StatusOK).
		JSON().Object()
	advance.ValueEqual("complete", true)
	advance.Value("session").Object().ValueEqual("complete", true)

	e.DELETE("/events/{id}/session", id).
		Expect().
		Status(http.StatusNoContent).
		NoContent()

	e.GET("/events/{id}", id).
		Expect().
		Status(http.StatusOK).
		JSON().Object().ValueEqual("sessionActive", false)
}

func TestOperatorFlow_CorrelationHeaderRoundTrip(t *testing.T) {
	srv := newTestServer(t, newFlowService())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	e := httpexpect.New(t, ts.URL)

	e.GET("/events/{id}", testEventID.String()).
		WithHeader(correlationHeader, "req-42").
		Expect().
		Status(http.StatusOK).
		Header(correlationHeader).Equal("req-42")
}
