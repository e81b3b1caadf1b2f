package httpserver

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/luckydraw/internal/domain"
	apperrors "github.com/pscheid92/luckydraw/internal/platform/errors"
)

func (s *Server) registerEventRoutes(limiter echo.MiddlewareFunc) {
	s.echo.GET("/events/:id", s.handleGetEvent)
	s.echo.POST("/events/:id/entries", s.handleCreateEntries, limiter)
	s.echo.POST("/events/:id/draw", s.handleBatchDraw, limiter)
	s.echo.POST("/events/:id/redraw", s.handleResetDraw, limiter)
	s.echo.POST("/events/:id/notify-winner", s.handleNotifyWinner, limiter)
}

func parseEventID(c echo.Context) (uuid.UUID, error) {
	raw := c.Param("id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperrors.ValidationError("invalid event ID").WithField("event_id", raw)
	}
	return id, nil
}

// bindAndValidate decodes the JSON body into req and runs its validation tags.
func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return bindError(err)
	}
	return c.Validate(req)
}

func (s *Server) handleGetEvent(c echo.Context) error {
	eventID, err := parseEventID(c)
	if err != nil {
		return err
	}

	overview, err := s.app.GetEvent(c.Request().Context(), eventID)
	if err != nil {
		return err
	}

	if err := c.JSON(http.StatusOK, toEventResponse(overview)); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleCreateEntries(c echo.Context) error {
	eventID, err := parseEventID(c)
	if err != nil {
		return err
	}

	var req createEntryRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	entrant := domain.NewEntrant{FirstName: req.FirstName, LastName: req.LastName, Email: req.Email}
	entries, err := s.app.CreateEntries(c.Request().Context(), eventID, entrant, req.Quantity)
	if err != nil {
		return err
	}

	if err := c.JSON(http.StatusCreated, map[string]any{"entries": toEntryResponses(entries)}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleBatchDraw(c echo.Context) error {
	eventID, err := parseEventID(c)
	if err != nil {
		return err
	}

	awards, err := s.app.BatchDraw(c.Request().Context(), eventID)
	if err != nil {
		return err
	}

	if err := c.JSON(http.StatusOK, map[string]any{"awards": toAwardResponses(awards)}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleResetDraw(c echo.Context) error {
	eventID, err := parseEventID(c)
	if err != nil {
		return err
	}

	if err := s.app.ResetDraw(c.Request().Context(), eventID); err != nil {
		return err
	}

	if err := c.JSON(http.StatusOK, map[string]string{"status": "reset"}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleNotifyWinner(c echo.Context) error {
	eventID, err := parseEventID(c)
	if err != nil {
		return err
	}

	var req notifyWinnerRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	sent, err := s.app.NotifyWinner(c.Request().Context(), eventID,
		uuid.MustParse(req.PrizeID), uuid.MustParse(req.WinnerID), req.PrizeName)
	if err != nil {
		return err
	}

	status := "sent"
	if !sent {
		status = "duplicate"
	}
	if err := c.JSON(http.StatusOK, map[string]string{"status": status}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
