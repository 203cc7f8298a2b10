package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"materialflow/internal/domain"
	"materialflow/internal/port"
)

// MockResultRepository is a mock implementation of port.ResultRepository.
type MockResultRepository struct {
	mock.Mock
}

func (m *MockResultRepository) Save(ctx context.Context, result *domain.Result) error {
	args := m.Called(ctx, result)
	return args.Error(0)
}

func (m *MockResultRepository) GetByDocumentID(ctx context.Context, documentID string) (*domain.Result, error) {
	args := m.Called(ctx, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Result), args.Error(1)
}

func (m *MockResultRepository) List(ctx context.Context, filter port.ResultFilter, offset, limit int) ([]domain.Result, int, error) {
	args := m.Called(ctx, filter, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.Result), args.Int(1), args.Error(2)
}

func (m *MockResultRepository) SaveFeedback(ctx context.Context, fb *domain.Feedback) error {
	args := m.Called(ctx, fb)
	return args.Error(0)
}
