package twofactor

import (
	"errors"

	"github.com/lessonmart/authcore/pkg/ratelimit"
)

// Reason is the enumerated outcome of a failed operation. It is safe to show
// to the authenticated caller acting on their own account.
type Reason string

const (
	ReasonRateLimited        Reason = "RATE_LIMITED"
	ReasonInvalidInput       Reason = "INVALID_INPUT"
	ReasonPreconditionFailed Reason = "PRECONDITION_FAILED"
	ReasonWrongPassword      Reason = "WRONG_PASSWORD"
	ReasonInvalidCode        Reason = "INVALID_CODE"
	ReasonStorageError       Reason = "STORAGE_ERROR"
)

// Precondition failures.
var (
	ErrAlreadyEnabled  = errors.New("two-factor authentication is already enabled")
	ErrNotEnabled      = errors.New("two-factor authentication is not enabled")
	ErrSetupNotStarted = errors.New("two-factor setup has not been started")
	ErrPasswordNotSet  = errors.New("account has no password")
	ErrSetupExpired    = errors.New("two-factor setup has expired")
)

var (
	ErrRateLimited     = errors.New("too many attempts")
	ErrInvalidInput    = errors.New("invalid input")
	ErrMissingCaller   = errors.New("caller identity is required")
	ErrWrongPassword   = errors.New("wrong password")
	ErrInvalidCode     = errors.New("invalid code")
	ErrCodeReused      = errors.New("code was already used")
	ErrUserNotFound    = errors.New("user not found")
	ErrCorruptState    = errors.New("two-factor state violates its invariants")
	ErrSecretUnusable  = errors.New("stored two-factor secret cannot be used")
	ErrStorageRequired = errors.New("two-factor storage is required")
)

// Error is returned by every Service operation that does not succeed.
type Error struct {
	Reason Reason
	Err    error
	// Quota is set for RATE_LIMITED so the caller can advertise Retry-After.
	Quota *ratelimit.Result
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Reason)
	}
	return string(e.Reason) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ReasonOf extracts the reason from err. Errors that did not come from this
// package are reported as STORAGE_ERROR; nil yields "".
func ReasonOf(err error) Reason {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ReasonStorageError
}

func fail(reason Reason, err error) *Error {
	return &Error{Reason: reason, Err: err}
}

func precondition(err error) *Error {
	return fail(ReasonPreconditionFailed, err)
}

func storageError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return fail(ReasonStorageError, err)
}

func rateLimited(res ratelimit.Result) *Error {
	return &Error{Reason: ReasonRateLimited, Err: ErrRateLimited, Quota: &res}
}
