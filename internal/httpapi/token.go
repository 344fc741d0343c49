package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token audiences. A challenge token proves the password step only and must
// never be accepted where a full session is required.
const (
	AudienceSession   = "authcore"
	AudienceChallenge = "authcore-challenge"
)

const minTokenKeyLength = 32

var ErrTokenKeyTooShort = errors.New("identity token key must be at least 32 bytes")

type identityClaims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// TokenIdentity verifies an HS256 bearer token issued by the host's session
// layer. The subject carries the user id, the email claim the account label.
// now defaults to time.Now.
func TokenIdentity(key []byte, audience string, now func() time.Time) (IdentityFunc, error) {
	if len(key) < minTokenKeyLength {
		return nil, ErrTokenKeyTooShort
	}
	if now == nil {
		now = time.Now
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(now),
	)
	keyFunc := func(*jwt.Token) (any, error) { return key, nil }

	return func(r *http.Request) (Identity, bool) {
		raw, ok := bearer(r)
		if !ok {
			return Identity{}, false
		}
		var claims identityClaims
		if _, err := parser.ParseWithClaims(raw, &claims, keyFunc); err != nil {
			return Identity{}, false
		}
		id, err := uuid.Parse(claims.Subject)
		if err != nil || id == uuid.Nil {
			return Identity{}, false
		}
		return Identity{UserID: id, Account: claims.Email}, true
	}, nil
}

// IssueToken signs a token TokenIdentity accepts. Hosts call it after their
// own authentication step, with AudienceChallenge once the password checks
// out and 2FA is still pending.
func IssueToken(key []byte, audience string, id Identity, issuedAt time.Time, ttl time.Duration) (string, error) {
	if len(key) < minTokenKeyLength {
		return "", ErrTokenKeyTooShort
	}
	claims := identityClaims{
		Email: id.Account,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID.String(),
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign identity token: %w", err)
	}
	return signed, nil
}

func bearer(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
