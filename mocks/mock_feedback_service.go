package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"materialflow/internal/domain"
	"materialflow/internal/service"
)

// MockFeedbackService is a mock implementation of service.FeedbackService.
type MockFeedbackService struct {
	mock.Mock
}

func (m *MockFeedbackService) Submit(ctx context.Context, input service.FeedbackInput) (*domain.Feedback, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Feedback), args.Error(1)
}

// MockTokenService is a mock implementation of service.TokenService.
type MockTokenService struct {
	mock.Mock
}

func (m *MockTokenService) Sign(documentID string) (string, error) {
	args := m.Called(documentID)
	return args.String(0), args.Error(1)
}

func (m *MockTokenService) ParseFeedbackToken(tokenString string) (*service.TokenClaims, error) {
	args := m.Called(tokenString)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.TokenClaims), args.Error(1)
}

func (m *MockTokenService) IssueServiceToken(clientID string, ttl time.Duration) (string, error) {
	args := m.Called(clientID, ttl)
	return args.String(0), args.Error(1)
}

func (m *MockTokenService) ValidateServiceToken(tokenString string) (*service.TokenClaims, error) {
	args := m.Called(tokenString)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.TokenClaims), args.Error(1)
}
