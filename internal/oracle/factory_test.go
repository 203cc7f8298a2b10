package oracle_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"materialflow/internal/config"
	"materialflow/internal/oracle"
	"materialflow/internal/port"
	"materialflow/mocks"
)

func TestBuild(t *testing.T) {
	uploading := new(mocks.MockUploadingOracle)
	uploading.On("Name").Return("uploading").Maybe()
	plain := namedOracle("plain")

	oracle.RegisterProvider("test-plain", func(*config.OracleProviderConfig) (port.ExtractionOracle, error) { return plain, nil })
	oracle.RegisterProvider("test-uploading", func(*config.OracleProviderConfig) (port.ExtractionOracle, error) { return uploading, nil })
	oracle.RegisterProvider("test-broken", func(*config.OracleProviderConfig) (port.ExtractionOracle, error) {
		return nil, errors.New("missing key")
	})

	t.Run("single provider", func(t *testing.T) {
		o, u, err := oracle.Build(&config.OracleConfig{Primary: config.OracleProviderConfig{Provider: "test-plain"}}, zap.NewNop())
		require.NoError(t, err)
		assert.Same(t, plain, o)
		assert.Nil(t, u)
	})

	t.Run("chain picks first uploader", func(t *testing.T) {
		o, u, err := oracle.Build(&config.OracleConfig{
			Primary:   config.OracleProviderConfig{Provider: "test-plain"},
			Secondary: config.OracleProviderConfig{Provider: "test-uploading"},
		}, zap.NewNop())
		require.NoError(t, err)
		assert.IsType(t, &oracle.FallbackOracle{}, o)
		assert.Same(t, uploading, u)
	})

	t.Run("errors", func(t *testing.T) {
		_, _, err := oracle.Build(&config.OracleConfig{}, zap.NewNop())
		assert.Error(t, err)

		_, _, err = oracle.Build(&config.OracleConfig{Primary: config.OracleProviderConfig{Provider: "test-broken"}}, zap.NewNop())
		assert.ErrorContains(t, err, "missing key")

		_, err = oracle.NewOracle(&config.OracleProviderConfig{Provider: "nope"})
		assert.ErrorContains(t, err, "unknown oracle provider")
	})
}
