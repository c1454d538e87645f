// Package retry implements a fixed-attempt, fixed-delay retry policy.
// The same policy value is shared by the price oracle and by payment
// backend connection setup, so retry behavior is configured in one place.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Policy retries an operation up to Attempts times, sleeping Delay between
// attempts. It never retries indefinitely: after the last attempt the
// operation's error is surfaced to the caller.
type Policy struct {
	Attempts int
	Delay    time.Duration
}

// Do runs op until it succeeds, the attempts are exhausted, or the context
// is cancelled. The sleep between attempts is interruptible; an in-flight
// op call is not.
func (p Policy) Do(ctx context.Context, name string, op func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 1; i <= attempts; i++ {
		if err = op(ctx); err == nil {
			return nil
		}
		if i == attempts {
			break
		}

		slog.Warn("operation failed, retrying",
			"operation", name, "attempt", i, "of", attempts, "error", err)

		select {
		case <-time.After(p.Delay):
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", name, ctx.Err())
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", name, attempts, err)
}
