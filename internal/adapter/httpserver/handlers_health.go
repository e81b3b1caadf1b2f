package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/luckydraw/internal/platform/version"
	"golang.org/x/sync/errgroup"
)

const (
	startupProbeTimeout   = 2 * time.Second
	readinessProbeTimeout = 5 * time.Second
)

// HealthCheck is a named dependency check run by the startup and readiness probes.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type probeResponse struct {
	Status       string            `json:"status"`
	Checks       map[string]string `json:"checks,omitempty"`
	FailedChecks []string          `json:"failed_checks,omitempty"`
}

func (s *Server) registerHealthRoutes() {
	s.echo.GET("/health/startup", s.handleStartup)
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/version", s.handleVersion)
}

func (s *Server) handleStartup(c echo.Context) error {
	return s.probe(c, startupProbeTimeout)
}

// handleLiveness never touches dependencies; a slow database must not get the pod restarted.
func (s *Server) handleLiveness(c echo.Context) error {
	return sendJSON(c, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": s.clock.Since(s.startTime).Seconds(),
	})
}

func (s *Server) handleReadiness(c echo.Context) error {
	return s.probe(c, readinessProbeTimeout)
}

func (s *Server) probe(c echo.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
	defer cancel()

	resp := runHealthChecks(ctx, s.healthChecks)
	code := http.StatusOK
	if resp.Status != "ready" {
		code = http.StatusServiceUnavailable
	}
	return sendJSON(c, code, resp)
}

// runHealthChecks runs every check concurrently and reports each outcome, so one
// failing dependency does not hide another.
func runHealthChecks(ctx context.Context, checks []HealthCheck) probeResponse {
	var (
		mu      sync.Mutex
		results = make(map[string]string, len(checks))
		failed  []string
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, hc := range checks {
		g.Go(func() error {
			err := hc.Check(gctx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				results[hc.Name] = err.Error()
				failed = append(failed, hc.Name)
				return nil
			}
			results[hc.Name] = "ok"
			return nil
		})
	}
	_ = g.Wait()

	if len(failed) > 0 {
		return probeResponse{Status: "unhealthy", Checks: results, FailedChecks: sortedByDeclaration(checks, failed)}
	}
	return probeResponse{Status: "ready", Checks: results}
}

// sortedByDeclaration orders names the way the checks were registered.
func sortedByDeclaration(checks []HealthCheck, names []string) []string {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	out := make([]string, 0, len(names))
	for _, hc := range checks {
		if _, ok := set[hc.Name]; ok {
			out = append(out, hc.Name)
		}
	}
	return out
}

func (s *Server) handleVersion(c echo.Context) error {
	if err := c.JSON(http.StatusOK, version.Get()); err != nil {
		return fmt.Errorf("failed to write version response: %w", err)
	}
	return nil
}
