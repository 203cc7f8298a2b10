package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"materialflow/internal/domain"
)

// MockInboundSource is a mock implementation of port.InboundSource.
type MockInboundSource struct {
	mock.Mock
}

func (m *MockInboundSource) Fetch(ctx context.Context, max int) ([]domain.InboundMessage, error) {
	args := m.Called(ctx, max)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.InboundMessage), args.Error(1)
}

func (m *MockInboundSource) Ack(ctx context.Context, messageID string) error {
	args := m.Called(ctx, messageID)
	return args.Error(0)
}
