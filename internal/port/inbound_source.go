package port

import (
	"context"

	"materialflow/internal/domain"
)

// InboundSource yields raw inbound units waiting for intake.
type InboundSource interface {
	Fetch(ctx context.Context, max int) ([]domain.InboundMessage, error)
	// Ack marks a message as handled so it is not fetched again.
	Ack(ctx context.Context, messageID string) error
}
