package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"materialflow/internal/config"
)

// New builds the process logger from config. Format "json" selects the
// production encoder; anything else uses the development console encoder.
func New(cfg *config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parsing log level %q: %w", cfg.Level, err)
	}

	var zc zap.Config
	if cfg.Format == "json" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return logger, nil
}

// Document returns a child logger tagged with a document's identity.
func Document(logger *zap.Logger, documentID, groupID string) *zap.Logger {
	if groupID == "" {
		return logger.With(zap.String("document_id", documentID))
	}
	return logger.With(zap.String("document_id", documentID), zap.String("group_id", groupID))
}
