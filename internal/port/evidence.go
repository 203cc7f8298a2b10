package port

import (
	"context"

	"materialflow/internal/domain"
)

// CropRequest identifies a page region by logical key.
type CropRequest struct {
	DocumentID string
	Field      string
	Location   domain.Location
}

// EvidenceStore resolves crop images produced by the external rasterizer.
// It returns a local file path, or domain.ErrNoEvidence when no crop exists.
type EvidenceStore interface {
	Crop(ctx context.Context, req CropRequest) (string, error)
}
