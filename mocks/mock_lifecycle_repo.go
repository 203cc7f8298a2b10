package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"materialflow/internal/domain"
	"materialflow/internal/port"
)

// MockLifecycleRepository is a mock implementation of port.LifecycleRepository.
type MockLifecycleRepository struct {
	mock.Mock
}

func (m *MockLifecycleRepository) Append(ctx context.Context, entries ...domain.LifecycleEntry) error {
	args := m.Called(ctx, entries)
	return args.Error(0)
}

func (m *MockLifecycleRepository) ListByDocument(ctx context.Context, documentID string) (domain.LifecycleLog, error) {
	args := m.Called(ctx, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(domain.LifecycleLog), args.Error(1)
}

func (m *MockLifecycleRepository) List(ctx context.Context, filter port.LifecycleFilter, offset, limit int) (domain.LifecycleLog, int, error) {
	args := m.Called(ctx, filter, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).(domain.LifecycleLog), args.Int(1), args.Error(2)
}
