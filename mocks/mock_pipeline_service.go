package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"materialflow/internal/domain"
)

// MockPipelineService is a mock implementation of service.PipelineService.
type MockPipelineService struct {
	mock.Mock
}

func (m *MockPipelineService) Process(ctx context.Context, msg *domain.InboundMessage) ([]domain.Result, error) {
	args := m.Called(ctx, msg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Result), args.Error(1)
}
