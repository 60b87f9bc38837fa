// Package retry runs calls to external services under a bounded backoff policy.
package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hyperjump/helpdesk/internal/models"
	"go.uber.org/zap"
)

// DefaultDelays is the wait before each attempt: immediate, then 0.5s, then 1s.
var DefaultDelays = []time.Duration{0, 500 * time.Millisecond, time.Second}

// Policy retries an operation once per entry in Delays, sleeping that long before the attempt.
type Policy struct {
	Delays []time.Duration
	Logger *zap.Logger
}

// NewPolicy returns a policy with the given delays; nil or empty delays use DefaultDelays.
func NewPolicy(delays []time.Duration, logger *zap.Logger) *Policy {
	if len(delays) == 0 {
		delays = DefaultDelays
	}
	return &Policy{Delays: delays, Logger: logger}
}

// Attempts returns the maximum number of calls Do makes.
func (p *Policy) Attempts() int {
	if p == nil || len(p.Delays) == 0 {
		return len(DefaultDelays)
	}
	return len(p.Delays)
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Do returns it unwrapped on first sight.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do calls fn until it succeeds, returns a permanent error, the context ends, or the attempts
// run out. An exhausted retry returns the last error wrapped with models.ErrTransient.
func (p *Policy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	delays := DefaultDelays
	if p != nil && len(p.Delays) > 0 {
		delays = p.Delays
	}
	var lastErr error
	for attempt, delay := range delays {
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("%s: %w", op, ctx.Err())
			case <-timer.C:
			}
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if classified(err) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s: %w", op, ctxErr)
		}
		lastErr = err
		if p != nil && p.Logger != nil {
			p.Logger.Debug("retryable failure",
				zap.String("op", op),
				zap.Int("attempt", attempt+1),
				zap.Int("max_attempts", len(delays)),
				zap.Error(err))
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w: %w", op, len(delays), models.ErrTransient, lastErr)
}

// classified reports errors that already carry a non-transient class; retrying cannot fix them.
func classified(err error) bool {
	return errors.Is(err, models.ErrConfiguration) ||
		errors.Is(err, models.ErrIsolation) ||
		errors.Is(err, models.ErrConsistency) ||
		errors.Is(err, models.ErrContent)
}

// CheckResponse classifies a non-2xx HTTP response. 5xx and 429 are retryable; 404 is a
// configuration error (unknown model or collection); any other status is permanent.
// The caller still owns resp.Body.
func CheckResponse(op string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	err := fmt.Errorf("%s returned %d: %s", op, resp.StatusCode, string(body))
	switch {
	case resp.StatusCode >= 500, resp.StatusCode == http.StatusTooManyRequests:
		return err
	case resp.StatusCode == http.StatusNotFound:
		return Permanent(fmt.Errorf("%w: %w", models.ErrConfiguration, err))
	default:
		return Permanent(err)
	}
}
