// Package limiter defines interfaces and implementations for per-member
// write rate limiting.
package limiter

import (
	"context"
	"time"
)

// Limiter counts requests per subject in fixed windows.
type Limiter interface {
	// Allow records one request for subject and reports whether it fits the
	// current window, with the time left until the window resets otherwise.
	Allow(ctx context.Context, subject string) (bool, time.Duration, error)
}
