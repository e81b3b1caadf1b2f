// Package notify delivers winner notifications to external services.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pscheid92/luckydraw/internal/domain"
	"github.com/pscheid92/luckydraw/internal/platform/correlation"
	"github.com/pscheid92/luckydraw/internal/platform/retry"
	"github.com/sony/gobreaker"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	maxErrorBody       = 512
)

// StatusError is returned when the webhook answers with a non-2xx status.
type StatusError struct {
	Code int
	Body string
	// Wait is the delta-seconds Retry-After the endpoint sent, zero when absent.
	Wait time.Duration
}

// RetryAfter lets the retry loop honor the endpoint's own backoff request.
func (e *StatusError) RetryAfter() time.Duration { return e.Wait }

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("webhook returned status %d", e.Code)
	}
	return fmt.Sprintf("webhook returned status %d: %s", e.Code, e.Body)
}

func (e *StatusError) clientError() bool {
	return e.Code >= 400 && e.Code < 500 && e.Code != http.StatusTooManyRequests
}

type webhookPayload struct {
	EventID   uuid.UUID      `json:"eventId"`
	PrizeID   uuid.UUID      `json:"prizeId"`
	PrizeName string         `json:"prizeName"`
	WinnerID  uuid.UUID      `json:"winnerId"`
	Entrant   webhookEntrant `json:"entrant"`
}

type webhookEntrant struct {
	ID        uuid.UUID `json:"id"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Email     string    `json:"email"`
}

// WebhookNotifier POSTs winner notifications as JSON. A circuit breaker stops
// calling the endpoint after repeated server-side failures.
type WebhookNotifier struct {
	url    string
	client *http.Client
	cb     *gobreaker.CircuitBreaker
}

var _ domain.WinnerNotifier = (*WebhookNotifier)(nil)

func NewWebhookNotifier(url string, client *http.Client) *WebhookNotifier {
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "notify-webhook",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			var se *StatusError
			return err == nil || (errors.As(err, &se) && se.clientError())
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state changed", "component", name, "from", from.String(), "to", to.String())
		},
	})

	return &WebhookNotifier{url: url, client: client, cb: cb}
}

func (n *WebhookNotifier) NotifyWinner(ctx context.Context, w domain.WinnerNotification) error {
	body, err := json.Marshal(webhookPayload{
		EventID:   w.EventID,
		PrizeID:   w.PrizeID,
		PrizeName: w.PrizeName,
		WinnerID:  w.WinnerID,
		Entrant: webhookEntrant{
			ID:        w.Entrant.ID,
			FirstName: w.Entrant.FirstName,
			LastName:  w.Entrant.LastName,
			Email:     w.Entrant.Email,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	_, err = n.cb.Execute(func() (interface{}, error) {
		return nil, n.post(ctx, body)
	})
	return err
}

func (n *WebhookNotifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if id, ok := correlation.ID(ctx); ok {
		req.Header.Set("X-Correlation-ID", id)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute webhook request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{
		Code: resp.StatusCode,
		Body: string(bytes.TrimSpace(snippet)),
		Wait: parseRetryAfter(resp.Header.Get("Retry-After")),
	}
}

// parseRetryAfter understands the delta-seconds form only; HTTP dates fall back to the policy default.
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// Classify maps webhook errors to retry actions: client errors are permanent,
// 429 backs off longer and an open breaker is not retried within this dispatch.
func Classify(err error) retry.Action {
	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.Code == http.StatusTooManyRequests:
			return retry.After
		case se.clientError():
			return retry.Stop
		}
		return retry.Retry
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return retry.Stop
	}
	return retry.Retry
}
