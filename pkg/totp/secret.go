package totp

import (
	"crypto/rand"
	"encoding/base32"
	"errors"
	"log/slog"
	"strings"
)

const (
	// SecretSize is the generated key length: 160 bits as recommended by RFC 4226.
	SecretSize = 20
	// minSecretSize rejects keys shorter than the RFC 4226 minimum of 128 bits.
	minSecretSize = 16
)

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// Secret is a TOTP shared key held in memory. It redacts itself when printed
// or logged. Call Zero once the key is no longer needed.
type Secret struct {
	key []byte
}

// GenerateSecret returns a new random 160-bit secret.
func GenerateSecret() (*Secret, error) {
	key := make([]byte, SecretSize)
	if _, err := rand.Read(key); err != nil {
		return nil, errors.Join(ErrFailedToGenerateSecret, err)
	}
	return &Secret{key: key}, nil
}

// NewSecret copies raw into a Secret. The caller may clear raw afterwards.
func NewSecret(raw []byte) (*Secret, error) {
	if len(raw) < minSecretSize {
		return nil, ErrInvalidSecret
	}
	key := make([]byte, len(raw))
	copy(key, raw)
	return &Secret{key: key}, nil
}

// ParseSecret decodes a Base32 secret as shown to users during enrollment.
// Spaces, padding and lower case are tolerated.
func ParseSecret(encoded string) (*Secret, error) {
	encoded = strings.ToUpper(strings.ReplaceAll(encoded, " ", ""))
	encoded = strings.TrimRight(encoded, "=")
	if encoded == "" {
		return nil, ErrInvalidSecret
	}
	key, err := b32.DecodeString(encoded)
	if err != nil {
		return nil, errors.Join(ErrInvalidSecret, err)
	}
	if len(key) < minSecretSize {
		return nil, ErrInvalidSecret
	}
	return &Secret{key: key}, nil
}

// Bytes exposes the raw key for sealing. The slice aliases the Secret and
// must not be retained past Zero.
func (s *Secret) Bytes() []byte {
	if s == nil {
		return nil
	}
	return s.key
}

// Base32 returns the unpadded Base32 form used in provisioning URIs.
func (s *Secret) Base32() string {
	if s == nil || len(s.key) == 0 {
		return ""
	}
	return b32.EncodeToString(s.key)
}

// Zero overwrites the key and detaches it. A zeroed Secret validates nothing.
func (s *Secret) Zero() {
	if s == nil {
		return
	}
	for i := range s.key {
		s.key[i] = 0
	}
	s.key = nil
}

func (s *Secret) valid() bool {
	return s != nil && len(s.key) >= minSecretSize
}

func (s *Secret) String() string { return "totp.Secret([redacted])" }

func (s *Secret) GoString() string { return s.String() }

// LogValue keeps the key out of structured logs.
func (s *Secret) LogValue() slog.Value { return slog.StringValue("[redacted]") }
