package ratelimit

import (
	"errors"
	"net/http"
	"strconv"
)

// MiddlewareOption configures middleware behavior.
type MiddlewareOption func(*middlewareConfig)

type middlewareConfig struct {
	onLimitReached func(w http.ResponseWriter, r *http.Request, result Result)
	skipFunc       func(r *http.Request) bool
}

// WithOnLimitReached sets a custom handler for denied requests. Quota headers
// are already written when it runs.
func WithOnLimitReached(fn func(w http.ResponseWriter, r *http.Request, result Result)) MiddlewareOption {
	return func(c *middlewareConfig) {
		if fn != nil {
			c.onLimitReached = fn
		}
	}
}

// WithSkipFunc sets a function to determine if rate limiting should be skipped.
func WithSkipFunc(fn func(r *http.Request) bool) MiddlewareOption {
	return func(c *middlewareConfig) {
		c.skipFunc = fn
	}
}

// Middleware enforces policy on every request, keyed by keyFunc. A request
// without a key is denied. Store failures follow the policy's FailMode.
func Middleware(limiter *Limiter, policy PolicyID, keyFunc KeyFunc, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	if limiter == nil {
		panic("ratelimit.Middleware: limiter is required")
	}
	if keyFunc == nil {
		panic("ratelimit.Middleware: keyFunc is required")
	}

	config := &middlewareConfig{
		onLimitReached: func(w http.ResponseWriter, r *http.Request, result Result) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		},
	}
	for _, opt := range opts {
		opt(config)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if config.skipFunc != nil && config.skipFunc(r) {
				next.ServeHTTP(w, r)
				return
			}

			result, err := limiter.Check(r.Context(), policy, keyFunc(r))
			if err != nil && errors.Is(err, ErrUnknownPolicy) {
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}

			WriteHeaders(w, result)

			if !result.Allowed {
				config.onLimitReached(w, r, result)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// WriteHeaders sets the quota headers for result, plus Retry-After when the
// request was denied.
func WriteHeaders(w http.ResponseWriter, result Result) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	if !result.ResetAt.IsZero() {
		h.Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
	}
	if !result.Allowed {
		h.Set("Retry-After", strconv.Itoa(result.RetryAfterSeconds()))
	}
}
