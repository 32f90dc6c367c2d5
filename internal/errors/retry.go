package errors

import (
	"context"
	stderrors "errors"
	"math/rand/v2"
	"net"
	"strings"
	"time"
)

// Backoff is an exponential retry policy. The delay before retry n is
// Base*2^n capped at Max, spread by ±Jitter of itself.
type Backoff struct {
	Attempts int
	Base     time.Duration
	Max      time.Duration
	Jitter   float64

	// OnRetry is called before each wait.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// StorageBackoff is used for object storage uploads.
func StorageBackoff() *Backoff {
	return &Backoff{Attempts: 6, Base: 500 * time.Millisecond, Max: 30 * time.Second, Jitter: 0.25}
}

// PublishBackoff is used for event bus publishes. Events are best-effort so
// the budget is small.
func PublishBackoff() *Backoff {
	return &Backoff{Attempts: 3, Base: 50 * time.Millisecond, Max: 500 * time.Millisecond, Jitter: 0.25}
}

func (b *Backoff) delay(retry int) time.Duration {
	d := b.Base << retry
	if d <= 0 || d > b.Max {
		d = b.Max
	}
	if b.Jitter > 0 {
		d += time.Duration(float64(d) * b.Jitter * (2*rand.Float64() - 1))
	}
	return d
}

// Retry runs fn until it succeeds, returns a permanent error, or the
// attempts are used up.
func Retry(ctx context.Context, b *Backoff, fn func(ctx context.Context) error) error {
	_, err := RetryWithResult(ctx, b, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// RetryWithResult is Retry for functions that produce a value.
func RetryWithResult[T any](ctx context.Context, b *Backoff, fn func(ctx context.Context) (T, error)) (T, error) {
	if b == nil {
		b = StorageBackoff()
	}
	attempts := max(b.Attempts, 1)

	var zero T
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if attempt == attempts || !transient(err) {
			return zero, err
		}

		wait := b.delay(attempt - 1)
		if b.OnRetry != nil {
			b.OnRetry(attempt, err, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
}

var transientMarkers = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"i/o timeout",
	"temporary failure",
	"slowdown",
	"service unavailable",
}

// transient reports whether err is worth another attempt. AppErrors decide by
// status; anything else by network timeout or a known transient message.
func transient(err error) bool {
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if _, ok := As(err); ok {
		return IsRetryable(err)
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
