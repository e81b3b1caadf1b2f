// Package retry runs an operation with exponential backoff, letting the caller classify which errors are worth retrying.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

// Action is the classifier's verdict on a failed attempt.
type Action int

const (
	Stop  Action = iota // permanent error, abort immediately
	Retry               // transient error, use normal backoff
	After               // rate-limited, wait the server's hint or RateLimitBackoff
)

type Policy struct {
	// MaxAttempts counts the first call. Values below 1 mean a single attempt.
	MaxAttempts    int
	InitialBackoff time.Duration
	// RateLimitBackoff is the wait after an After verdict when the error carries no hint.
	RateLimitBackoff time.Duration
	// MaxBackoff caps every wait, hinted ones included. Zero means uncapped.
	MaxBackoff time.Duration
	OnRetry    func(attempt int, err error, backoff time.Duration)
	// Clock drives the waits between attempts. Nil uses the real clock.
	Clock clockwork.Clock
}

// Hinted is implemented by errors that know how long the remote side wants us to wait,
// typically from a Retry-After header.
type Hinted interface {
	RetryAfter() time.Duration
}

type Classify func(err error) Action
type Operation[T any] func() (T, error)
type VoidOperation func() error

func Do[T any](ctx context.Context, p Policy, classify Classify, op Operation[T]) (T, error) {
	var zero T
	clock := p.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	attempts := max(p.MaxAttempts, 1)
	backoff := p.InitialBackoff

	for attempt := 1; ; attempt++ {
		val, err := op()
		if err == nil {
			return val, nil
		}

		action := classify(err)
		if action == Stop {
			return zero, &PermanentError{Err: err}
		}
		if attempt >= attempts {
			return zero, fmt.Errorf("failed after %d attempts: %w", attempts, err)
		}

		wait := p.nextWait(action, backoff, err)
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, wait)
		}

		select {
		case <-clock.After(wait):
		case <-ctx.Done():
			return zero, fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		}
		if action == Retry {
			backoff *= 2
		}
	}
}

// nextWait picks the delay before the next attempt. Rate-limit waits do not advance
// the exponential schedule.
func (p Policy) nextWait(action Action, backoff time.Duration, err error) time.Duration {
	wait := backoff
	if action == After {
		wait = p.RateLimitBackoff
		var h Hinted
		if errors.As(err, &h) && h.RetryAfter() > 0 {
			wait = h.RetryAfter()
		}
	}
	if p.MaxBackoff > 0 && wait > p.MaxBackoff {
		wait = p.MaxBackoff
	}
	return wait
}

func DoVoid(ctx context.Context, p Policy, classify Classify, op VoidOperation) error {
	_, err := Do(ctx, p, classify, func() (struct{}, error) { return struct{}{}, op() })
	return err
}

// IsPermanent reports whether err was classified as not worth retrying.
func IsPermanent(err error) bool {
	var perm *PermanentError
	return errors.As(err, &perm)
}

type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }
