package twofactor

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Credentials checks the user's primary password.
type Credentials interface {
	// HasPassword reports whether the user has a password on file. Accounts
	// created through OAuth may not.
	HasPassword(ctx context.Context, userID uuid.UUID) (bool, error)

	// VerifyPassword returns nil when password matches, ErrWrongPassword when
	// it does not and ErrPasswordNotSet when there is nothing to compare.
	VerifyPassword(ctx context.Context, userID uuid.UUID, password string) error
}

// PasswordHashLookup loads a bcrypt hash. A user without a password yields a
// nil hash and no error.
type PasswordHashLookup interface {
	PasswordHash(ctx context.Context, userID uuid.UUID) ([]byte, error)
}

// BcryptCredentials implements Credentials over stored bcrypt hashes.
type BcryptCredentials struct {
	lookup PasswordHashLookup
}

// NewBcryptCredentials creates Credentials backed by lookup.
func NewBcryptCredentials(lookup PasswordHashLookup) *BcryptCredentials {
	return &BcryptCredentials{lookup: lookup}
}

// HasPassword implements Credentials.
func (c *BcryptCredentials) HasPassword(ctx context.Context, userID uuid.UUID) (bool, error) {
	hash, err := c.lookup.PasswordHash(ctx, userID)
	if err != nil {
		return false, err
	}
	return len(hash) > 0, nil
}

// VerifyPassword implements Credentials.
func (c *BcryptCredentials) VerifyPassword(ctx context.Context, userID uuid.UUID, password string) error {
	hash, err := c.lookup.PasswordHash(ctx, userID)
	if err != nil {
		return err
	}
	if len(hash) == 0 {
		return ErrPasswordNotSet
	}

	err = bcrypt.CompareHashAndPassword(hash, []byte(password))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return ErrWrongPassword
	default:
		return fmt.Errorf("compare password hash: %w", err)
	}
}
