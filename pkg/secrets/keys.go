package secrets

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// KeySize is the master and derived key size (AES-256).
const KeySize = 32

// PurposeTOTP separates keys used for TOTP secrets from any other use of the
// same master key.
const PurposeTOTP = "authcore-totp-secret-v1"

// GenerateKey creates a new random 32-byte master key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, errors.Join(ErrFailedToGenerateKey, err)
	}
	return key, nil
}

// GenerateEncodedKey returns a new master key as standard base64, the form
// expected in configuration.
func GenerateEncodedKey() (string, error) {
	key, err := GenerateKey()
	if err != nil {
		return "", err
	}
	defer clearBytes(key)
	return base64.StdEncoding.EncodeToString(key), nil
}

// ParseKey decodes a base64 master key and checks its length.
func ParseKey(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, ErrKeyNotSet
	}
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.Join(ErrFailedToParseKey, err)
	}
	if len(key) != KeySize {
		clearBytes(key)
		return nil, ErrInvalidKeyLength
	}
	return key, nil
}

// deriveKey expands the master key into a purpose-bound key.
// The caller owns the returned slice and should clear it when done.
func deriveKey(master []byte, purpose string) ([]byte, error) {
	r := hkdf.New(sha256.New, master, nil, []byte(purpose))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, errors.Join(ErrKeyDerivationFailed, err)
	}
	return key, nil
}

// clearBytes zeroes b in place.
func clearBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
