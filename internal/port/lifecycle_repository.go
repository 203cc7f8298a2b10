package port

import (
	"context"
	"time"

	"materialflow/internal/domain"
)

// LifecycleSink receives lifecycle entries returned by pipeline stages.
type LifecycleSink interface {
	Append(ctx context.Context, entries ...domain.LifecycleEntry) error
}

// LifecycleFilter narrows lifecycle queries. Zero fields are ignored.
type LifecycleFilter struct {
	DocumentID string
	ToState    domain.DocumentState
	Agent      string
	Since      time.Time
}

// LifecycleRepository persists and queries lifecycle entries.
type LifecycleRepository interface {
	LifecycleSink
	ListByDocument(ctx context.Context, documentID string) (domain.LifecycleLog, error)
	List(ctx context.Context, filter LifecycleFilter, offset, limit int) (domain.LifecycleLog, int, error)
}
