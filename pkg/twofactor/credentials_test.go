package twofactor_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/lessonmart/authcore/pkg/twofactor"
)

func TestBcryptCredentials(t *testing.T) {
	t.Parallel()

	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret-passphrase"), bcrypt.MinCost)
	require.NoError(t, err)

	withPassword := uuid.New()
	oauthOnly := uuid.New()
	broken := uuid.New()
	missing := uuid.New()

	creds := twofactor.NewBcryptCredentials(hashLookup{
		withPassword: hash,
		oauthOnly:    nil,
		broken:       []byte("fail"),
	})
	ctx := context.Background()

	t.Run("has password", func(t *testing.T) {
		t.Parallel()

		has, err := creds.HasPassword(ctx, withPassword)
		require.NoError(t, err)
		assert.True(t, has)

		has, err = creds.HasPassword(ctx, oauthOnly)
		require.NoError(t, err)
		assert.False(t, has)

		_, err = creds.HasPassword(ctx, broken)
		assert.ErrorIs(t, err, errLookupFailed)

		_, err = creds.HasPassword(ctx, missing)
		assert.ErrorIs(t, err, twofactor.ErrUserNotFound)
	})

	t.Run("verify password", func(t *testing.T) {
		t.Parallel()

		assert.NoError(t, creds.VerifyPassword(ctx, withPassword, "s3cret-passphrase"))
		assert.ErrorIs(t, creds.VerifyPassword(ctx, withPassword, "guess"), twofactor.ErrWrongPassword)
		assert.ErrorIs(t, creds.VerifyPassword(ctx, oauthOnly, "guess"), twofactor.ErrPasswordNotSet)
		assert.ErrorIs(t, creds.VerifyPassword(ctx, broken, "guess"), errLookupFailed)
	})

	t.Run("malformed hash", func(t *testing.T) {
		t.Parallel()

		id := uuid.New()
		c := twofactor.NewBcryptCredentials(hashLookup{id: []byte("not-a-bcrypt-hash")})
		err := c.VerifyPassword(ctx, id, "anything")
		require.Error(t, err)
		assert.NotErrorIs(t, err, twofactor.ErrWrongPassword)
	})
}
