package twofactor

import (
	"context"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
)

// Storage persists two-factor records.
type Storage interface {
	// Get returns a copy of the user's record, or NewState(userID) when the
	// user has none.
	Get(ctx context.Context, userID uuid.UUID) (*State, error)

	// Update runs fn on the user's current record and persists the result.
	// Updates for one user are serialized: no other Update for the same user
	// observes the record between fn's read and the write. When fn returns an
	// error nothing is written and that error is returned unchanged.
	//
	// fn must not call back into anything that needs the same backend: the
	// Postgres implementation holds a pooled connection for its duration.
	Update(ctx context.Context, userID uuid.UUID, fn func(*State) error) error
}

// StorageOption configures the bundled Storage implementations.
type StorageOption func(*storageConfig)

type storageConfig struct {
	clock clock.Clock
}

// WithStorageClock sets the clock that stamps UpdatedAt.
func WithStorageClock(c clock.Clock) StorageOption {
	return func(cfg *storageConfig) {
		if c != nil {
			cfg.clock = c
		}
	}
}

func newStorageConfig(opts []StorageOption) storageConfig {
	cfg := storageConfig{clock: clock.New()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
