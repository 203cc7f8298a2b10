package noop

import (
	"context"

	"go.uber.org/zap"

	"materialflow/internal/domain"
	"materialflow/internal/port"
)

type noopNotifier struct {
	logger *zap.Logger
}

// NewNoopNotifier creates a Notifier that only logs what it would send.
func NewNoopNotifier(logger *zap.Logger) port.Notifier {
	return &noopNotifier{logger: logger}
}

func (s *noopNotifier) Send(_ context.Context, n *domain.Notification) error {
	names := make([]string, len(n.Attachments))
	for i, a := range n.Attachments {
		names[i] = a.Name
	}
	s.logger.Info("noop.Send: notification",
		zap.String("document_id", n.DocumentID),
		zap.String("to", n.To),
		zap.String("subject", n.Subject),
		zap.Strings("attachments", names),
	)
	s.logger.Debug("noop.Send: body", zap.String("document_id", n.DocumentID), zap.String("body", n.Body))
	return nil
}
