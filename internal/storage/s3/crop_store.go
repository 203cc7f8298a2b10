package s3

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"materialflow/internal/domain"
	"materialflow/internal/port"
)

// CropStore resolves crops written by the rasterizer under
// <prefix><document_id>/<field>.png and caches them in a local directory
// so the field verifier can read them from disk.
type CropStore struct {
	store    *Client
	prefix   string
	cacheDir string
	logger   *zap.Logger
}

// NewCropStore creates a CropStore.
func NewCropStore(store *Client, prefix, cacheDir string, logger *zap.Logger) *CropStore {
	return &CropStore{store: store, prefix: prefix, cacheDir: cacheDir, logger: logger}
}

func (s *CropStore) Crop(ctx context.Context, req port.CropRequest) (string, error) {
	local := filepath.Join(s.cacheDir, req.DocumentID, req.Field+".png")
	if _, err := os.Stat(local); err == nil {
		return local, nil
	}

	key := s.prefix + req.DocumentID + "/" + req.Field + ".png"
	data, err := s.store.Download(ctx, "", key)
	if errors.Is(err, domain.ErrNotFound) {
		return "", domain.ErrNoEvidence
	}
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return "", fmt.Errorf("creating crop cache: %w", err)
	}
	if err := os.WriteFile(local, data, 0o644); err != nil {
		return "", fmt.Errorf("caching crop: %w", err)
	}
	s.logger.Debug("s3.CropStore.Crop: crop cached",
		zap.String("document_id", req.DocumentID),
		zap.String("field", req.Field),
		zap.String("key", key),
	)
	return local, nil
}
