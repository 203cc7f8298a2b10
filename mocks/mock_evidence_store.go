package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"materialflow/internal/port"
)

// MockEvidenceStore is a mock implementation of port.EvidenceStore.
type MockEvidenceStore struct {
	mock.Mock
}

func (m *MockEvidenceStore) Crop(ctx context.Context, req port.CropRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}
