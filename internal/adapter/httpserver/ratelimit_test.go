package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/pscheid92/luckydraw/internal/adapter/metrics"
	"github.com/pscheid92/luckydraw/internal/app"
	"github.com/pscheid92/luckydraw/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRemoteAddr = "1.2.3.4:1234"

func limitedRequest(t *testing.T, e *echo.Echo, handler echo.HandlerFunc, remoteAddr string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/test", nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	require.NoError(t, handler(c))
	return rec
}

func TestRateLimiterAllowsRequestsUnderLimit(t *testing.T) {
	e := echo.New()
	mw := newRateLimiter(10, 3, nil) // 10 req/s, burst 3

	handler := mw(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	for range 3 {
		rec := limitedRequest(t, e, handler, testRemoteAddr)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestRateLimiterBlocksExcessiveRequests(t *testing.T) {
	e := echo.New()
	mw := newRateLimiter(0.01, 1, nil) // very low rate, burst 1

	handler := mw(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	rec := limitedRequest(t, e, handler, testRemoteAddr)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = limitedRequest(t, e, handler, testRemoteAddr)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "100", rec.Header().Get("Retry-After"))

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "rate limit exceeded", resp["error"])
	assert.Equal(t, "rate_limited", resp["type"])
}

func TestRateLimiterDifferentIPsAreIndependent(t *testing.T) {
	e := echo.New()
	mw := newRateLimiter(0.01, 1, nil)

	handler := mw(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	assert.Equal(t, http.StatusOK, limitedRequest(t, e, handler, testRemoteAddr).Code)
	// Second IP still has its own burst
	assert.Equal(t, http.StatusOK, limitedRequest(t, e, handler, "5.6.7.8:5678").Code)
	assert.Equal(t, http.StatusTooManyRequests, limitedRequest(t, e, handler, testRemoteAddr).Code)
}

func TestRateLimiterKeysByEvent(t *testing.T) {
	e := echo.New()
	reg := prometheus.NewRegistry()
	m := metrics.NewHTTPMetrics(reg)
	mw := newRateLimiter(0.01, 1, m)

	handler := mw(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	call := func(eventID string) int {
		req := httptest.NewRequest(http.MethodPost, "/events/"+eventID+"/draw", nil)
		req.RemoteAddr = testRemoteAddr
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetPath("/events/:id/draw")
		c.SetParamNames("id")
		c.SetParamValues(eventID)
		require.NoError(t, handler(c))
		return rec.Code
	}

	first, second := uuid.NewString(), uuid.NewString()
	assert.Equal(t, http.StatusOK, call(first))
	assert.Equal(t, http.StatusOK, call(second))
	assert.Equal(t, http.StatusTooManyRequests, call(first))

	assert.InDelta(t, 1, testutil.ToFloat64(m.RateLimited.WithLabelValues("/events/:id/draw")), 0)
}

func TestRateLimiterGuardsDrawRoutesOnly(t *testing.T) {
	draws := 0
	svc := &mockDrawService{
		getEventFn: func(context.Context, uuid.UUID) (*app.EventOverview, error) {
			return testOverview(), nil
		},
		batchDrawFn: func(context.Context, uuid.UUID) ([]domain.Award, error) {
			draws++
			return nil, nil
		},
	}
	srv := newTestServer(t, svc, withRateLimit(0.01, 1))

	assert.Equal(t, http.StatusOK, serve(srv, http.MethodPost, eventPath("/draw"), "").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(srv, http.MethodPost, eventPath("/draw"), "").Code)
	assert.Equal(t, 1, draws)

	// Reads are not limited.
	for range 3 {
		assert.Equal(t, http.StatusOK, serve(srv, http.MethodGet, eventPath(""), "").Code)
	}
}
