package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/lessonmart/authcore/pkg/ratelimit"
	"github.com/lessonmart/authcore/pkg/twofactor"
)

// reasonUnauthenticated is produced by the HTTP layer when no identity
// resolves.
const reasonUnauthenticated twofactor.Reason = "UNAUTHENTICATED"

type envelope struct {
	OK         bool             `json:"ok"`
	Data       any              `json:"data,omitempty"`
	Reason     twofactor.Reason `json:"reason,omitempty"`
	RetryAfter int              `json:"retry_after,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{OK: true, Data: data})
}

func writeReason(w http.ResponseWriter, status int, reason twofactor.Reason) {
	writeJSON(w, status, envelope{Reason: reason})
}

func writeRateLimited(w http.ResponseWriter, quota ratelimit.Result) {
	ratelimit.WriteHeaders(w, quota)
	writeJSON(w, http.StatusTooManyRequests, envelope{
		Reason:     twofactor.ReasonRateLimited,
		RetryAfter: quota.RetryAfterSeconds(),
	})
}

// writeError maps a service error onto a status code and envelope.
func writeError(w http.ResponseWriter, err error) {
	var tfErr *twofactor.Error
	if errors.As(err, &tfErr) && tfErr.Reason == twofactor.ReasonRateLimited && tfErr.Quota != nil {
		writeRateLimited(w, *tfErr.Quota)
		return
	}

	reason := twofactor.ReasonOf(err)
	writeReason(w, statusFor(reason, err), reason)
}

func statusFor(reason twofactor.Reason, err error) int {
	switch reason {
	case twofactor.ReasonRateLimited:
		return http.StatusTooManyRequests
	case twofactor.ReasonInvalidInput:
		return http.StatusBadRequest
	case twofactor.ReasonPreconditionFailed:
		switch {
		case errors.Is(err, twofactor.ErrPasswordNotSet):
			return http.StatusForbidden
		case errors.Is(err, twofactor.ErrSetupNotStarted):
			return http.StatusNotFound
		}
		return http.StatusBadRequest
	case twofactor.ReasonWrongPassword, twofactor.ReasonInvalidCode:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
