// Package retry provides bounded retries with exponential backoff for
// fallible operations against flaky upstreams (AI API, Instagram, media CDNs).
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Do runs op up to maxRetries times, sleeping baseDelay * 2^attempt between
// attempts. The first success wins; after the final failure the last error is
// returned. Every call starts a fresh budget: no jitter, no circuit breaker.
func Do[T any](ctx context.Context, name string, op func(ctx context.Context) (T, error), maxRetries int, baseDelay time.Duration) (T, error) {
	var zero T
	if maxRetries <= 0 {
		maxRetries = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err
		logrus.Warnf("[RETRY] %s attempt %d/%d failed: %v", name, attempt+1, maxRetries, err)

		if attempt < maxRetries-1 {
			delay := baseDelay << attempt
			logrus.Debugf("[RETRY] %s retrying in %s", name, delay)
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	logrus.Errorf("[RETRY] %s: all %d attempts failed, last error: %v", name, maxRetries, lastErr)
	return zero, fmt.Errorf("operation %s failed after %d attempts: %w", name, maxRetries, lastErr)
}
