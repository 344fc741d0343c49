package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
)

// maxKeyLength is the maximum allowed length for a rate limit key
// to prevent excessively long storage keys in backends like Redis.
const maxKeyLength = 64

// KeyFunc extracts a caller key from an HTTP request.
type KeyFunc func(*http.Request) string

// IPKey is the caller key for anonymous endpoints.
func IPKey(ip string) string {
	return ip
}

// UserIPKey is the caller key for authenticated endpoints. Binding the user to
// the address keeps one account from draining a shared address's budget for
// others, and the reverse.
func UserIPKey(userID, ip string) string {
	if userID == "" || ip == "" {
		return ""
	}
	return fitKey(userID + ":" + ip)
}

// Composite combines multiple key extraction functions into a single key.
// Long keys (>64 chars) are hashed to 32 hex chars using SHA256.
func Composite(keyFuncs ...KeyFunc) KeyFunc {
	return func(r *http.Request) string {
		parts := make([]string, 0, len(keyFuncs))
		for _, fn := range keyFuncs {
			if key := fn(r); key != "" {
				parts = append(parts, key)
			}
		}

		if len(parts) == 0 {
			return ""
		}

		return fitKey(strings.Join(parts, ":"))
	}
}

func fitKey(key string) string {
	if len(key) <= maxKeyLength {
		return key
	}
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:16])
}
