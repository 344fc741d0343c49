package twofactor

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
)

// MemoryStorage keeps records in process memory. Records are copied in and
// out so callers never share memory with the store.
type MemoryStorage struct {
	locks *keyLock
	clock clock.Clock

	mu     sync.RWMutex
	states map[uuid.UUID]*State
}

// NewMemoryStorage creates an empty store.
func NewMemoryStorage(opts ...StorageOption) *MemoryStorage {
	cfg := newStorageConfig(opts)
	return &MemoryStorage{
		locks:  newKeyLock(),
		clock:  cfg.clock,
		states: make(map[uuid.UUID]*State),
	}
}

// Get implements Storage.
func (m *MemoryStorage) Get(_ context.Context, userID uuid.UUID) (*State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if st, ok := m.states[userID]; ok {
		return st.Clone(), nil
	}
	return NewState(userID), nil
}

// Update implements Storage.
func (m *MemoryStorage) Update(ctx context.Context, userID uuid.UUID, fn func(*State) error) error {
	unlock := m.locks.lock(userID)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	current, err := m.Get(ctx, userID)
	if err != nil {
		return err
	}
	if err := fn(current); err != nil {
		return err
	}
	current.UpdatedAt = m.clock.Now().UTC()

	m.mu.Lock()
	m.states[userID] = current.Clone()
	m.mu.Unlock()

	return nil
}
