package port

import (
	"context"

	"materialflow/internal/domain"
)

// ResultFilter narrows result listings. Zero fields are ignored.
type ResultFilter struct {
	GroupID string
	Outcome domain.Outcome
	Sender  string
}

// ResultRepository persists terminal document results and reviewer feedback.
type ResultRepository interface {
	Save(ctx context.Context, result *domain.Result) error
	GetByDocumentID(ctx context.Context, documentID string) (*domain.Result, error)
	List(ctx context.Context, filter ResultFilter, offset, limit int) ([]domain.Result, int, error)
	SaveFeedback(ctx context.Context, fb *domain.Feedback) error
}
