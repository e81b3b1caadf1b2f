package httpserver

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// registerSessionRoutes maps the operator's interactive draw actions onto the session.
func (s *Server) registerSessionRoutes(limiter echo.MiddlewareFunc) {
	g := s.echo.Group("/events/:id/session")
	g.GET("", s.handleGetSession)
	g.POST("", s.handleStartSession, limiter)
	g.DELETE("", s.handleCloseSession, limiter)
	g.POST("/draw", s.handleDrawCurrent, limiter)
	g.POST("/redraw", s.handleRedrawPrize, limiter)
	g.POST("/advance", s.handleAdvance, limiter)
	g.POST("/reset", s.handleResetDraw, limiter)
}

func (s *Server) handleStartSession(c echo.Context) error {
	eventID, err := parseEventID(c)
	if err != nil {
		return err
	}

	snap, err := s.app.StartSession(c.Request().Context(), eventID)
	if err != nil {
		return err
	}
	return sendJSON(c, http.StatusOK, toSessionResponse(snap))
}

func (s *Server) handleGetSession(c echo.Context) error {
	eventID, err := parseEventID(c)
	if err != nil {
		return err
	}

	snap, err := s.app.Session(eventID)
	if err != nil {
		return err
	}
	return sendJSON(c, http.StatusOK, toSessionResponse(snap))
}

func (s *Server) handleDrawCurrent(c echo.Context) error {
	eventID, err := parseEventID(c)
	if err != nil {
		return err
	}

	award, err := s.app.DrawCurrent(c.Request().Context(), eventID)
	if err != nil {
		return err
	}
	return sendJSON(c, http.StatusOK, toAwardResponse(award))
}

func (s *Server) handleRedrawPrize(c echo.Context) error {
	eventID, err := parseEventID(c)
	if err != nil {
		return err
	}

	var req redrawPrizeRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	var prizeID *uuid.UUID
	if req.PrizeID != "" {
		id := uuid.MustParse(req.PrizeID)
		prizeID = &id
	}

	award, err := s.app.Redraw(c.Request().Context(), eventID, prizeID)
	if err != nil {
		return err
	}
	return sendJSON(c, http.StatusOK, toAwardResponse(award))
}

func (s *Server) handleAdvance(c echo.Context) error {
	eventID, err := parseEventID(c)
	if err != nil {
		return err
	}

	res, err := s.app.Advance(c.Request().Context(), eventID)
	if err != nil {
		return err
	}
	return sendJSON(c, http.StatusOK, advanceResponse{
		Award:    toAwardResponse(res.Award),
		Complete: res.Complete,
		Session:  toSessionResponse(res.Snapshot),
	})
}

func (s *Server) handleCloseSession(c echo.Context) error {
	eventID, err := parseEventID(c)
	if err != nil {
		return err
	}

	if err := s.app.CloseSession(c.Request().Context(), eventID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func sendJSON(c echo.Context, code int, body any) error {
	if err := c.JSON(code, body); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
