package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"materialflow/internal/config"
	"materialflow/internal/domain"
	"materialflow/internal/service"
	"materialflow/mocks"
)

func testTokenConfig() config.FeedbackConfig {
	return config.FeedbackConfig{Secret: "test-secret", Issuer: "materialflow", Expiry: time.Hour}
}

func TestTokenService_FeedbackRoundTrip(t *testing.T) {
	svc := service.NewTokenService(testTokenConfig())

	token, err := svc.Sign("doc-1")
	require.NoError(t, err)

	claims, err := svc.ParseFeedbackToken(token)
	require.NoError(t, err)
	assert.Equal(t, "doc-1", claims.DocumentID)
	assert.Equal(t, "materialflow", claims.Issuer)
}

func TestTokenService_AudiencesDoNotMix(t *testing.T) {
	svc := service.NewTokenService(testTokenConfig())

	apiToken, err := svc.IssueServiceToken("ingest-bot", time.Hour)
	require.NoError(t, err)
	_, err = svc.ParseFeedbackToken(apiToken)
	assert.ErrorIs(t, err, domain.ErrFeedbackTokenInvalid)

	feedbackToken, err := svc.Sign("doc-1")
	require.NoError(t, err)
	_, err = svc.ValidateServiceToken(feedbackToken)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	claims, err := svc.ValidateServiceToken(apiToken)
	require.NoError(t, err)
	assert.Equal(t, "ingest-bot", claims.Subject)
}

func TestTokenService_RejectsForeignSecretAndExpiry(t *testing.T) {
	svc := service.NewTokenService(testTokenConfig())
	other := service.NewTokenService(config.FeedbackConfig{Secret: "other", Issuer: "materialflow"})

	token, err := other.Sign("doc-1")
	require.NoError(t, err)
	_, err = svc.ParseFeedbackToken(token)
	assert.ErrorIs(t, err, domain.ErrFeedbackTokenInvalid)

	expired, err := svc.IssueServiceToken("bot", -time.Minute)
	require.NoError(t, err)
	_, err = svc.ValidateServiceToken(expired)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = svc.ParseFeedbackToken("not-a-jwt")
	assert.ErrorIs(t, err, domain.ErrFeedbackTokenInvalid)
}

func TestFeedbackService_Submit(t *testing.T) {
	tokens := service.NewTokenService(testTokenConfig())
	repo := new(mocks.MockResultRepository)
	svc := service.NewFeedbackService(tokens, repo, zap.NewNop())

	token, err := tokens.Sign("doc-7")
	require.NoError(t, err)

	repo.On("GetByDocumentID", mock.Anything, "doc-7").Return(&domain.Result{DocumentID: "doc-7"}, nil)
	repo.On("SaveFeedback", mock.Anything, mock.MatchedBy(func(fb *domain.Feedback) bool {
		return fb.DocumentID == "doc-7" && fb.Verdict == domain.FeedbackPartial && fb.Comment == "brand is wrong"
	})).Return(nil).Once()

	fb, err := svc.Submit(context.Background(), service.FeedbackInput{
		Token: token, Verdict: domain.FeedbackPartial, Comment: "  brand is wrong ",
	})
	require.NoError(t, err)
	assert.Equal(t, "doc-7", fb.DocumentID)
	repo.AssertExpectations(t)
}

func TestFeedbackService_SubmitErrors(t *testing.T) {
	tokens := service.NewTokenService(testTokenConfig())
	token, err := tokens.Sign("doc-8")
	require.NoError(t, err)

	t.Run("bad token", func(t *testing.T) {
		repo := new(mocks.MockResultRepository)
		svc := service.NewFeedbackService(tokens, repo, zap.NewNop())
		_, err := svc.Submit(context.Background(), service.FeedbackInput{Token: "x", Verdict: domain.FeedbackCorrect})
		assert.ErrorIs(t, err, domain.ErrFeedbackTokenInvalid)
	})

	t.Run("bad verdict", func(t *testing.T) {
		repo := new(mocks.MockResultRepository)
		svc := service.NewFeedbackService(tokens, repo, zap.NewNop())
		_, err := svc.Submit(context.Background(), service.FeedbackInput{Token: token, Verdict: "meh"})
		assert.ErrorIs(t, err, domain.ErrInvalidFeedback)
		repo.AssertNotCalled(t, "SaveFeedback", mock.Anything, mock.Anything)
	})

	t.Run("unknown document", func(t *testing.T) {
		repo := new(mocks.MockResultRepository)
		repo.On("GetByDocumentID", mock.Anything, "doc-8").Return(nil, domain.ErrDocumentNotFound)
		svc := service.NewFeedbackService(tokens, repo, zap.NewNop())
		_, err := svc.Submit(context.Background(), service.FeedbackInput{Token: token, Verdict: domain.FeedbackCorrect})
		assert.True(t, errors.Is(err, domain.ErrDocumentNotFound))
	})
}
