package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/luckydraw/internal/broadcast"
)

func (s *Server) registerStreamRoutes() {
	s.echo.GET("/events/:id/stream", s.handleStream)
	s.echo.GET("/events/:id/ws", s.handleWebSocket)
}

// handleStream serves the live entry feed as Server-Sent Events. It blocks until
// the client goes away or the broadcaster drops the subscription.
func (s *Server) handleStream(c echo.Context) error {
	eventID, err := parseEventID(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	if _, err := s.app.GetEvent(ctx, eventID); err != nil {
		return err
	}

	h := c.Response().Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")

	sink := broadcast.NewSSESink(c.Response(), s.clock)
	exited, err := s.registry.Register(eventID, sink)
	if err != nil {
		_ = sink.Close("")
		// Nothing was written yet, so the error can still go out as JSON.
		for _, k := range []string{echo.HeaderContentType, "Cache-Control", "Connection", "X-Accel-Buffering"} {
			h.Del(k)
		}
		return err
	}

	select {
	case <-ctx.Done():
	case <-exited:
	}

	s.registry.Unregister(eventID, sink)
	// No writes to the response after this returns.
	_ = sink.Close("")
	return nil
}

// handleWebSocket serves the same feed over a WebSocket. Client frames are read
// and discarded so pongs and close frames get processed.
func (s *Server) handleWebSocket(c echo.Context) error {
	eventID, err := parseEventID(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	if _, err := s.app.GetEvent(ctx, eventID); err != nil {
		return err
	}

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader already replied with an HTTP error.
		slog.DebugContext(ctx, "WebSocket upgrade failed", "event_id", eventID.String(), "error", err)
		return nil
	}

	sink := broadcast.NewWebSocketSink(conn, s.clock)
	exited, err := s.registry.Register(eventID, sink)
	if err != nil {
		_ = sink.Close(rejectReason(err))
		return nil
	}

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	select {
	case <-readDone:
	case <-exited:
	}

	s.registry.Unregister(eventID, sink)
	_ = sink.Close("")
	<-readDone
	return nil
}

func rejectReason(err error) string {
	if structured := toStructuredError(err); structured.HTTPStatus() != http.StatusInternalServerError {
		return structured.Message
	}
	return "subscription failed"
}

var _ subscriberRegistry = (*broadcast.Broadcaster)(nil)
