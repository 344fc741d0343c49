package httpapi

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// Identity is the authenticated user a request acts for.
type Identity struct {
	UserID  uuid.UUID
	Account string // label shown in authenticator apps, usually the email
}

// IdentityFunc resolves the acting user. The host application owns sessions;
// ok is false for anonymous requests.
type IdentityFunc func(r *http.Request) (id Identity, ok bool)

// HeaderIdentity trusts identity headers set by an upstream gateway that has
// already authenticated the request. Never expose a service using it directly
// to clients.
func HeaderIdentity(userHeader, accountHeader string) IdentityFunc {
	return func(r *http.Request) (Identity, bool) {
		raw := strings.TrimSpace(r.Header.Get(userHeader))
		if raw == "" {
			return Identity{}, false
		}
		id, err := uuid.Parse(raw)
		if err != nil || id == uuid.Nil {
			return Identity{}, false
		}
		return Identity{UserID: id, Account: strings.TrimSpace(r.Header.Get(accountHeader))}, true
	}
}
