package httpserver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/luckydraw/internal/adapter/metrics"
	"github.com/pscheid92/luckydraw/internal/app"
	"github.com/pscheid92/luckydraw/internal/broadcast"
	"github.com/pscheid92/luckydraw/internal/domain"
	"github.com/pscheid92/luckydraw/internal/draw"
	"github.com/pscheid92/luckydraw/internal/platform/config"
)

// --- Mock implementations ---

type mockDrawService struct {
	getEventFn      func(ctx context.Context, eventID uuid.UUID) (*app.EventOverview, error)
	createEntriesFn func(ctx context.Context, eventID uuid.UUID, entrant domain.NewEntrant, quantity int) ([]domain.EntryDetail, error)
	batchDrawFn     func(ctx context.Context, eventID uuid.UUID) ([]domain.Award, error)
	startSessionFn  func(ctx context.Context, eventID uuid.UUID) (draw.Snapshot, error)
	sessionFn       func(eventID uuid.UUID) (draw.Snapshot, error)
	drawCurrentFn   func(ctx context.Context, eventID uuid.UUID) (domain.Award, error)
	redrawFn        func(ctx context.Context, eventID uuid.UUID, prizeID *uuid.UUID) (domain.Award, error)
	advanceFn       func(ctx context.Context, eventID uuid.UUID) (app.AdvanceResult, error)
	resetDrawFn     func(ctx context.Context, eventID uuid.UUID) error
	closeSessionFn  func(ctx context.Context, eventID uuid.UUID) error
	notifyWinnerFn  func(ctx context.Context, eventID, prizeID, entryID uuid.UUID, prizeName string) (bool, error)
}

var errNotImplemented = errors.New("not implemented")

func (m *mockDrawService) GetEvent(ctx context.Context, eventID uuid.UUID) (*app.EventOverview, error) {
	if m.getEventFn != nil {
		return m.getEventFn(ctx, eventID)
	}
	return nil, domain.ErrEventNotFound
}

func (m *mockDrawService) CreateEntries(ctx context.Context, eventID uuid.UUID, entrant domain.NewEntrant, quantity int) ([]domain.EntryDetail, error) {
	if m.createEntriesFn != nil {
		return m.createEntriesFn(ctx, eventID, entrant, quantity)
	}
	return nil, errNotImplemented
}

func (m *mockDrawService) BatchDraw(ctx context.Context, eventID uuid.UUID) ([]domain.Award, error) {
	if m.batchDrawFn != nil {
		return m.batchDrawFn(ctx, eventID)
	}
	return nil, errNotImplemented
}

func (m *mockDrawService) StartSession(ctx context.Context, eventID uuid.UUID) (draw.Snapshot, error) {
	if m.startSessionFn != nil {
		return m.startSessionFn(ctx, eventID)
	}
	return draw.Snapshot{}, errNotImplemented
}

func (m *mockDrawService) Session(eventID uuid.UUID) (draw.Snapshot, error) {
	if m.sessionFn != nil {
		return m.sessionFn(eventID)
	}
	return draw.Snapshot{}, domain.ErrNoDrawSession
}

func (m *mockDrawService) DrawCurrent(ctx context.Context, eventID uuid.UUID) (domain.Award, error) {
	if m.drawCurrentFn != nil {
		return m.drawCurrentFn(ctx, eventID)
	}
	return domain.Award{}, errNotImplemented
}

func (m *mockDrawService) Redraw(ctx context.Context, eventID uuid.UUID, prizeID *uuid.UUID) (domain.Award, error) {
	if m.redrawFn != nil {
		return m.redrawFn(ctx, eventID, prizeID)
	}
	return domain.Award{}, errNotImplemented
}

func (m *mockDrawService) Advance(ctx context.Context, eventID uuid.UUID) (app.AdvanceResult, error) {
	if m.advanceFn != nil {
		return m.advanceFn(ctx, eventID)
	}
	return app.AdvanceResult{}, errNotImplemented
}

func (m *mockDrawService) ResetDraw(ctx context.Context, eventID uuid.UUID) error {
	if m.resetDrawFn != nil {
		return m.resetDrawFn(ctx, eventID)
	}
	return nil
}

func (m *mockDrawService) CloseSession(ctx context.Context, eventID uuid.UUID) error {
	if m.closeSessionFn != nil {
		return m.closeSessionFn(ctx, eventID)
	}
	return nil
}

func (m *mockDrawService) NotifyWinner(ctx context.Context, eventID, prizeID, entryID uuid.UUID, prizeName string) (bool, error) {
	if m.notifyWinnerFn != nil {
		return m.notifyWinnerFn(ctx, eventID, prizeID, entryID, prizeName)
	}
	return false, errNotImplemented
}

// --- Fixtures ---

var (
	testEventID   = uuid.MustParse("11111111-1111-4111-8111-111111111111")
	testPrizeID   = uuid.MustParse("22222222-2222-4222-8222-222222222222")
	testEntryID   = uuid.MustParse("33333333-3333-4333-8333-333333333333")
	testEntrantID = uuid.MustParse("44444444-4444-4444-8444-444444444444")
	testCreatedAt = time.Date(2026, 3, 14, 18, 30, 0, 0, time.UTC)
)

func testEntrant() domain.Entrant {
	return domain.Entrant{ID: testEntrantID, FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"}
}

func testAward() domain.Award {
	return domain.Award{
		PrizeID:   testPrizeID,
		PrizeName: "Bicycle",
		Order:     1,
		EntryID:   testEntryID,
		Entrant:   testEntrant(),
	}
}

func testOverview() *app.EventOverview {
	return &app.EventOverview{
		Event: &domain.Event{ID: testEventID, Name: "Spring Raffle", Status: domain.EventStatusOpen},
		Prizes: []domain.Prize{
			{ID: testPrizeID, EventID: testEventID, Name: "Bicycle", Order: 1},
		},
		TotalEntries: 3,
	}
}

func testSnapshot(stage draw.Stage) draw.Snapshot {
	return draw.Snapshot{
		EventID: testEventID,
		Prizes: []draw.PrizeState{
			{Prize: domain.Prize{ID: testPrizeID, EventID: testEventID, Name: "Bicycle", Order: 1}, Stage: stage},
		},
	}
}

// --- Test helpers ---

func newTestBroadcaster(t *testing.T, maxPerEvent int) *broadcast.Broadcaster {
	t.Helper()
	m := metrics.NewStreamMetrics(prometheus.NewRegistry())
	b := broadcast.NewBroadcaster(nil, nil, clockwork.NewRealClock(), m, maxPerEvent)
	t.Cleanup(b.Stop)
	return b
}

func newTestServer(t *testing.T, svc drawService, opts ...func(*Server)) *Server {
	t.Helper()

	e := echo.New()
	e.Validator = newRequestValidator()

	srv := &Server{
		echo:         e,
		config:       &config.Config{Port: "0", DrawRateLimit: 1000, DrawRateBurst: 1000},
		clock:        clockwork.NewRealClock(),
		app:          svc,
		registry:     newTestBroadcaster(t, 10),
		promRegistry: prometheus.NewRegistry(),
	}
	srv.startTime = srv.clock.Now()

	for _, opt := range opts {
		opt(srv)
	}

	srv.upgrader = newUpgrader(srv.config)
	if srv.promRegistry != nil {
		srv.metrics = metrics.NewHTTPMetrics(srv.promRegistry)
	}
	srv.registerRoutes()
	return srv
}

func withHealthChecks(checks ...HealthCheck) func(*Server) {
	return func(s *Server) {
		s.healthChecks = checks
	}
}

func withRegistry(r subscriberRegistry) func(*Server) {
	return func(s *Server) {
		s.registry = r
	}
}

func withClock(clock clockwork.Clock) func(*Server) {
	return func(s *Server) {
		s.clock = clock
		s.startTime = clock.Now()
	}
}

func withAllowedOrigins(origins string) func(*Server) {
	return func(s *Server) {
		s.config.AllowedOrigins = origins
	}
}

func withRateLimit(ratePerSecond float64, burst int) func(*Server) {
	return func(s *Server) {
		s.config.DrawRateLimit = ratePerSecond
		s.config.DrawRateBurst = burst
	}
}

// callHandler wraps a handler with error middleware, matching production behavior
func callHandler(handler echo.HandlerFunc, c echo.Context) error {
	return ErrorHandlingMiddleware()(handler)(c)
}
