// Package local resolves verification evidence from the local filesystem.
package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"materialflow/internal/domain"
	"materialflow/internal/port"
)

// CropStore reads crops from <dir>/<document_id>/<field>.png. A crop named
// after the page, <field>_p<page>.png, is preferred when present.
type CropStore struct {
	dir string
}

// NewCropStore creates a CropStore rooted at dir.
func NewCropStore(dir string) *CropStore {
	return &CropStore{dir: dir}
}

func (s *CropStore) Crop(_ context.Context, req port.CropRequest) (string, error) {
	base := filepath.Join(s.dir, req.DocumentID)
	candidates := []string{
		filepath.Join(base, fmt.Sprintf("%s_p%d.png", req.Field, req.Location.Page)),
		filepath.Join(base, req.Field+".png"),
	}
	for _, p := range candidates {
		info, err := os.Stat(p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("stat crop: %w", err)
		}
		if info.Size() == 0 {
			return "", domain.ErrNoEvidence
		}
		return p, nil
	}
	return "", domain.ErrNoEvidence
}
