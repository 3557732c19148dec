// Package ratelimit provides fixed-window counters for throttling sensitive
// operations such as MFA verification attempts.
package ratelimit

import (
	"context"
	"time"
)

// Counter tracks attempt counts per key within a rolling window.
// Implementations must be safe for concurrent use.
type Counter interface {
	// Increment records one attempt for key and returns the count of
	// attempts within the current window, including this one.
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)

	// Reset clears the counter for key.
	Reset(ctx context.Context, key string) error
}
