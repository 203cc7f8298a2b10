package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"materialflow/internal/domain"
	"materialflow/internal/port"
)

// FeedbackInput is the DTO for a reviewer verdict submitted through a feedback link.
type FeedbackInput struct {
	Token   string                 `json:"token" binding:"required"`
	Verdict domain.FeedbackVerdict `json:"verdict" binding:"required"`
	Comment string                 `json:"comment"`
}

// FeedbackService records reviewer verdicts on delivered results.
type FeedbackService interface {
	Submit(ctx context.Context, input FeedbackInput) (*domain.Feedback, error)
}

type feedbackService struct {
	tokens  TokenService
	results port.ResultRepository
	logger  *zap.Logger
}

// NewFeedbackService creates a new FeedbackService.
func NewFeedbackService(tokens TokenService, results port.ResultRepository, logger *zap.Logger) FeedbackService {
	return &feedbackService{tokens: tokens, results: results, logger: logger}
}

func (s *feedbackService) Submit(ctx context.Context, input FeedbackInput) (*domain.Feedback, error) {
	claims, err := s.tokens.ParseFeedbackToken(input.Token)
	if err != nil {
		return nil, err
	}
	if !domain.ValidFeedbackVerdicts[input.Verdict] {
		return nil, domain.ErrInvalidFeedback
	}
	if _, err := s.results.GetByDocumentID(ctx, claims.DocumentID); err != nil {
		return nil, err
	}

	fb := &domain.Feedback{
		DocumentID: claims.DocumentID,
		Verdict:    input.Verdict,
		Comment:    strings.TrimSpace(input.Comment),
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.results.SaveFeedback(ctx, fb); err != nil {
		return nil, fmt.Errorf("saving feedback: %w", err)
	}
	s.logger.Info("feedbackService.Submit: feedback recorded",
		zap.String("document_id", fb.DocumentID),
		zap.String("verdict", string(fb.Verdict)),
	)
	return fb, nil
}
