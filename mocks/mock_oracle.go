package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"materialflow/internal/port"
)

// MockExtractionOracle is a mock implementation of port.ExtractionOracle.
type MockExtractionOracle struct {
	mock.Mock
}

func (m *MockExtractionOracle) Generate(ctx context.Context, req port.OracleRequest) (*port.OracleResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*port.OracleResponse), args.Error(1)
}

func (m *MockExtractionOracle) Name() string {
	args := m.Called()
	return args.String(0)
}

// MockUploadingOracle is a mock oracle that also implements port.FileUploader.
type MockUploadingOracle struct {
	MockExtractionOracle
}

func (m *MockUploadingOracle) Upload(ctx context.Context, documentID, mimeType string, content []byte) (*port.FileHandle, error) {
	args := m.Called(ctx, documentID, mimeType, content)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*port.FileHandle), args.Error(1)
}

// MockFieldVerifier is a mock implementation of port.FieldVerifier.
type MockFieldVerifier struct {
	mock.Mock
}

func (m *MockFieldVerifier) VerifyField(ctx context.Context, check port.FieldCheck) (*port.FieldReading, error) {
	args := m.Called(ctx, check)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*port.FieldReading), args.Error(1)
}
