package totp

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"net/url"
	"time"
)

const (
	Digits    = 6      // Code length
	Period    = 30     // Step length in seconds (RFC 6238 default)
	Algorithm = "SHA1" // HMAC algorithm (RFC 6238 default)

	// Skew is how many steps either side of now are accepted.
	Skew = 1
)

const modulo = 1_000_000 // 10^Digits

// TimeStep returns the RFC 6238 counter for t: floor(unix / 30).
func TimeStep(t time.Time) int64 {
	return t.Unix() / Period
}

// ValidCodeFormat reports whether code is exactly six ASCII digits.
func ValidCodeFormat(code string) bool {
	if len(code) != Digits {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

// ComputeCode returns the zero-padded code for secret at step.
// An unusable secret yields the empty string.
func ComputeCode(secret *Secret, step int64) string {
	if !secret.valid() {
		return ""
	}
	return fmt.Sprintf("%0*d", Digits, hotp(secret.key, uint64(step)))
}

// ValidateAt checks code against the steps around now. Every candidate is
// compared in constant time; the loop never exits early on a match.
func ValidateAt(code string, secret *Secret, now time.Time) bool {
	_, ok := MatchAt(code, secret, now)
	return ok
}

// MatchAt is ValidateAt that also returns the step the code belongs to, the
// latest one when several steps produce the same code.
func MatchAt(code string, secret *Secret, now time.Time) (int64, bool) {
	if !ValidCodeFormat(code) || !secret.valid() {
		return 0, false
	}

	step := TimeStep(now)
	matched := int64(-1)
	for i := -Skew; i <= Skew; i++ {
		candidate := step + int64(i)
		expected := ComputeCode(secret, candidate)
		if subtle.ConstantTimeCompare([]byte(expected), []byte(code)) == 1 {
			matched = candidate
		}
	}
	return matched, matched >= 0
}

// ProvisioningURI formats the otpauth:// URI consumed by authenticator apps.
func ProvisioningURI(issuer, account string, secret *Secret) (string, error) {
	if !secret.valid() {
		return "", ErrInvalidSecret
	}
	if issuer == "" {
		return "", ErrMissingIssuer
	}
	if account == "" {
		return "", ErrMissingAccountName
	}

	label := url.PathEscape(issuer) + ":" + url.PathEscape(account)

	query := url.Values{}
	query.Set("secret", secret.Base32())
	query.Set("issuer", issuer)
	query.Set("algorithm", Algorithm)
	query.Set("digits", fmt.Sprintf("%d", Digits))
	query.Set("period", fmt.Sprintf("%d", Period))

	return "otpauth://totp/" + label + "?" + query.Encode(), nil
}

// hotp implements RFC 4226 with dynamic truncation.
func hotp(key []byte, counter uint64) uint32 {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)

	mac := hmac.New(sha1.New, key)
	mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	code := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff
	return code % modulo
}
