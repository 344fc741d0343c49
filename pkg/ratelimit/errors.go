package ratelimit

import "errors"

var (
	ErrKeyRequired      = errors.New("rate limit key is required")
	ErrStoreRequired    = errors.New("rate limit store is required")
	ErrUnknownPolicy    = errors.New("unknown rate limit policy")
	ErrInvalidPolicy    = errors.New("invalid rate limit policy")
	ErrStoreUnavailable = errors.New("rate limit store unavailable")
	ErrInvalidOverrides = errors.New("invalid rate limit overrides")
)
