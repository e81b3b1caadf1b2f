// Package httpserver exposes the draw engine and the live entry feed over HTTP.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
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

type drawService interface {
	GetEvent(ctx context.Context, eventID uuid.UUID) (*app.EventOverview, error)
	CreateEntries(ctx context.Context, eventID uuid.UUID, entrant domain.NewEntrant, quantity int) ([]domain.EntryDetail, error)
	BatchDraw(ctx context.Context, eventID uuid.UUID) ([]domain.Award, error)
	StartSession(ctx context.Context, eventID uuid.UUID) (draw.Snapshot, error)
	Session(eventID uuid.UUID) (draw.Snapshot, error)
	DrawCurrent(ctx context.Context, eventID uuid.UUID) (domain.Award, error)
	Redraw(ctx context.Context, eventID uuid.UUID, prizeID *uuid.UUID) (domain.Award, error)
	Advance(ctx context.Context, eventID uuid.UUID) (app.AdvanceResult, error)
	ResetDraw(ctx context.Context, eventID uuid.UUID) error
	CloseSession(ctx context.Context, eventID uuid.UUID) error
	NotifyWinner(ctx context.Context, eventID, prizeID, entryID uuid.UUID, prizeName string) (bool, error)
}

type subscriberRegistry interface {
	Register(eventID uuid.UUID, sink broadcast.Sink) (<-chan struct{}, error)
	Unregister(eventID uuid.UUID, sink broadcast.Sink)
}

type Server struct {
	echo   *echo.Echo
	config *config.Config
	clock  clockwork.Clock

	app          drawService
	registry     subscriberRegistry
	upgrader     websocket.Upgrader
	promRegistry *prometheus.Registry
	metrics      *metrics.HTTPMetrics

	healthChecks []HealthCheck
	startTime    time.Time
}

// NewServer builds the echo instance and registers every route. reg may be nil,
// in which case /metrics and request metrics are not served.
func NewServer(cfg *config.Config, app drawService, registry subscriberRegistry, clock clockwork.Clock, reg *prometheus.Registry, healthChecks []HealthCheck) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = newRequestValidator()

	srv := &Server{
		echo:         e,
		config:       cfg,
		clock:        clock,
		app:          app,
		registry:     registry,
		upgrader:     newUpgrader(cfg),
		promRegistry: reg,
		healthChecks: healthChecks,
		startTime:    clock.Now(),
	}
	if reg != nil {
		srv.metrics = metrics.NewHTTPMetrics(reg)
	}

	srv.registerRoutes()
	return srv
}

func newUpgrader(cfg *config.Config) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     newCheckOrigin(cfg.Origins(), cfg.IsDevelopment()),
	}
}

// OnShutdown registers f to run when Shutdown starts. Long-lived stream handlers
// only return once their subscriptions end, so the broadcaster is stopped here.
func (s *Server) OnShutdown(f func()) {
	s.echo.Server.RegisterOnShutdown(f)
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
