package oracle

import (
	"fmt"

	"go.uber.org/zap"

	"materialflow/internal/config"
	"materialflow/internal/port"
)

// ProviderFactory is a function that creates an ExtractionOracle from a provider config.
type ProviderFactory func(cfg *config.OracleProviderConfig) (port.ExtractionOracle, error)

// registry of oracle provider factories, populated explicitly via RegisterProvider.
var providers = map[string]ProviderFactory{}

// RegisterProvider registers an oracle provider factory by name.
func RegisterProvider(name string, factory ProviderFactory) {
	providers[name] = factory
}

// NewOracle creates an ExtractionOracle from a provider config using the registered factory.
func NewOracle(cfg *config.OracleProviderConfig) (port.ExtractionOracle, error) {
	factory, ok := providers[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown oracle provider: %s", cfg.Provider)
	}
	return factory(cfg)
}

// Build creates the configured oracle chain. With more than one provider the
// chain is wrapped in a FallbackOracle. The uploader is the first provider
// able to accept uploads, or nil.
func Build(cfg *config.OracleConfig, logger *zap.Logger) (port.ExtractionOracle, port.FileUploader, error) {
	var oracles []port.ExtractionOracle
	var uploader port.FileUploader
	for _, pc := range cfg.Providers() {
		o, err := NewOracle(pc)
		if err != nil {
			return nil, nil, fmt.Errorf("creating %s oracle: %w", pc.Provider, err)
		}
		if u, ok := o.(port.FileUploader); ok && uploader == nil {
			uploader = u
		}
		oracles = append(oracles, o)
		logger.Info("oracle.Build: provider configured",
			zap.String("provider", pc.Provider),
			zap.String("model", pc.DefaultModel),
		)
	}

	switch len(oracles) {
	case 0:
		return nil, nil, fmt.Errorf("no oracle providers configured")
	case 1:
		return oracles[0], uploader, nil
	}
	return NewFallbackOracle(oracles, logger), uploader, nil
}
