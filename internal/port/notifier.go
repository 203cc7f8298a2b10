package port

import (
	"context"

	"materialflow/internal/domain"
)

// Notifier delivers a composed result to the requester.
type Notifier interface {
	Send(ctx context.Context, n *domain.Notification) error
}
