package ratelimit

import (
	"context"
	"math"
	"time"
)

// Result contains the result of a rate limit check.
type Result struct {
	// Allowed indicates whether the request is allowed.
	Allowed bool

	// Limit is the maximum number of requests allowed in the window.
	Limit int

	// Remaining is the number of requests remaining in the current window.
	Remaining int

	// RetryAfter is how long until the window resets. Zero when allowed.
	RetryAfter time.Duration

	// ResetAt is the time when the rate limit window resets.
	ResetAt time.Time
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds for the Retry-After
// header. A denied result never reports less than one second.
func (r Result) RetryAfterSeconds() int {
	if r.Allowed {
		return 0
	}
	secs := int(math.Ceil(r.RetryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Store holds fixed-window buckets. Hit must be atomic per key.
type Store interface {
	// Hit counts one request for key. If no bucket exists or the bucket's
	// window has elapsed at now, a new window starts at now with count 1.
	// It returns the count after the increment and the window start.
	Hit(ctx context.Context, key string, window time.Duration, now time.Time) (count int64, windowStart time.Time, err error)

	// Reset removes the bucket for key.
	Reset(ctx context.Context, key string) error
}
