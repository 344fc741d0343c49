package twofactor_test

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/lessonmart/authcore/pkg/twofactor"
)

// MockCredentials is a mock implementation of twofactor.Credentials.
type MockCredentials struct {
	mock.Mock
}

func (m *MockCredentials) HasPassword(ctx context.Context, userID uuid.UUID) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockCredentials) VerifyPassword(ctx context.Context, userID uuid.UUID, password string) error {
	args := m.Called(ctx, userID, password)
	return args.Error(0)
}

// MockStorage is a mock implementation of twofactor.Storage.
type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) Get(ctx context.Context, userID uuid.UUID) (*twofactor.State, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*twofactor.State), args.Error(1)
}

func (m *MockStorage) Update(ctx context.Context, userID uuid.UUID, fn func(*twofactor.State) error) error {
	args := m.Called(ctx, userID, fn)
	return args.Error(0)
}

// hashLookup is a PasswordHashLookup over a map.
type hashLookup map[uuid.UUID][]byte

var errLookupFailed = errors.New("lookup failed")

func (h hashLookup) PasswordHash(_ context.Context, userID uuid.UUID) ([]byte, error) {
	hash, ok := h[userID]
	if !ok {
		return nil, twofactor.ErrUserNotFound
	}
	if string(hash) == "fail" {
		return nil, errLookupFailed
	}
	return hash, nil
}
