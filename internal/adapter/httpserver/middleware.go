package httpserver

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/luckydraw/internal/domain"
	"github.com/pscheid92/luckydraw/internal/platform/correlation"
	apperrors "github.com/pscheid92/luckydraw/internal/platform/errors"
)

const (
	correlationHeader    = "X-Correlation-ID"
	maxCorrelationHeader = 64
)

// correlationMiddleware reuses the caller's correlation ID when it sends a sane one.
func correlationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Request().Header.Get(correlationHeader)
		if id == "" || len(id) > maxCorrelationHeader {
			id = correlation.NewID()
		}
		c.Response().Header().Set(correlationHeader, id)

		ctx := correlation.WithID(c.Request().Context(), id)
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

func ErrorHandlingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				return err
			}

			return HandleError(c, err)
		}
	}
}

// HandleError logs err and writes it as a JSON error response.
func HandleError(c echo.Context, err error) error {
	if err == nil {
		return nil
	}
	if c.Response().Committed {
		slog.WarnContext(c.Request().Context(), "Error after response was committed",
			"path", c.Request().URL.Path,
			"error", err,
		)
		return nil
	}

	structuredErr := toStructuredError(err)
	logError(c, structuredErr)
	if err := c.JSON(structuredErr.HTTPStatus(), structuredErr.ToResponse()); err != nil {
		return fmt.Errorf("failed to write error response: %w", err)
	}
	return nil
}

// toStructuredError maps domain sentinels onto HTTP-facing error types. The "code"
// field names the draw error so operators can tell the 409s apart.
func toStructuredError(err error) *apperrors.Error {
	var structuredErr *apperrors.Error
	if errors.As(err, &structuredErr) {
		return structuredErr
	}

	for _, m := range domainErrorMappings {
		if errors.Is(err, m.sentinel) {
			return m.build(err).WithField("code", m.code)
		}
	}
	return apperrors.InternalError("internal server error", err)
}

type domainErrorMapping struct {
	sentinel error
	code     string
	build    func(cause error) *apperrors.Error
}

func notFound(msg string) func(error) *apperrors.Error {
	return func(error) *apperrors.Error { return apperrors.NotFoundError(msg) }
}

func conflict(msg string) func(error) *apperrors.Error {
	return func(cause error) *apperrors.Error { return apperrors.ConflictError(msg, cause) }
}

var domainErrorMappings = []domainErrorMapping{
	{domain.ErrEventNotFound, "EventNotFound", notFound("event not found")},
	{domain.ErrPrizeNotFound, "PrizeNotFound", notFound("prize not found")},
	{domain.ErrEntryNotFound, "EntryNotFound", notFound("entry not found")},
	{domain.ErrNoDrawSession, "NoDrawSession", notFound("no draw session for event")},

	{domain.ErrPrizeLocked, "PrizeLocked", conflict("prize is locked")},
	{domain.ErrInvalidEventState, "InvalidEventState", conflict("event is not in the expected state")},
	{domain.ErrNoEligibleEntrants, "NoEligibleEntrants", conflict("no eligible entrants left")},
	{domain.ErrEmptyPool, "EmptyPool", conflict("no entries to draw from")},
	{domain.ErrInsufficientEntries, "InsufficientEntries", conflict("fewer eligible entrants than prizes")},
	{domain.ErrNoPrizes, "NoPrizes", conflict("event has no prizes")},
	{domain.ErrPrizeAlreadyDrawn, "PrizeAlreadyDrawn", conflict("prize already has a winner")},
	{domain.ErrDrawSessionActive, "DrawSessionActive", conflict("a draw session is in progress")},
	{domain.ErrInvalidTransition, "InvalidTransition", conflict("action not allowed in the current draw stage")},
	{domain.ErrSessionComplete, "SessionComplete", conflict("draw session is complete")},

	{domain.ErrNotificationDispatch, "NotificationDispatchFailure", func(cause error) *apperrors.Error {
		return apperrors.ExternalError("failed to deliver winner notification", cause)
	}},
	{domain.ErrTooManySubscribers, "TooManySubscribers", func(cause error) *apperrors.Error {
		return apperrors.UnavailableError("too many subscribers for this event", cause)
	}},
}

func logError(c echo.Context, err *apperrors.Error) {
	attrs := []any{
		"error_type", err.Type,
		"message", err.Message,
		"path", c.Request().URL.Path,
		"method", c.Request().Method,
		"status", err.HTTPStatus(),
	}
	for k, v := range err.Context {
		attrs = append(attrs, k, v)
	}

	ctx := c.Request().Context()
	switch err.Type {
	case apperrors.TypeValidation:
		slog.InfoContext(ctx, "Validation error", attrs...)
	case apperrors.TypeNotFound:
		slog.InfoContext(ctx, "Not found", attrs...)
	case apperrors.TypeConflict:
		slog.WarnContext(ctx, "Conflict", attrs...)
	case apperrors.TypeUnavailable:
		slog.WarnContext(ctx, "Unavailable", attrs...)
	case apperrors.TypeInternal:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.ErrorContext(ctx, "Internal error", attrs...)
	case apperrors.TypeExternal:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.ErrorContext(ctx, "External service error", attrs...)
	default:
		slog.ErrorContext(ctx, "Unknown error type", attrs...)
	}
}

// bindError turns a bind or validation failure into a 400.
func bindError(err error) *apperrors.Error {
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) && httpErr.Code == http.StatusBadRequest {
		return apperrors.ValidationError("malformed request body")
	}
	return apperrors.ValidationError(err.Error())
}
