package port

import (
	"context"

	"materialflow/internal/domain"
)

// FileHandle references document content previously uploaded to a provider.
type FileHandle struct {
	Provider string
	URI      string
	MIMEType string
}

// OracleRequest is one schema-constrained generation request.
type OracleRequest struct {
	DocumentID string
	Content    []byte
	MIMEType   string
	// Handle, when set, lets the provider that issued it reference the
	// uploaded content instead of the inline bytes.
	Handle *FileHandle
	Prompt string
	Schema map[string]interface{}
}

// OracleResponse is the raw text the oracle generated.
type OracleResponse struct {
	Text  string
	Model string
}

// ExtractionOracle is an external LLM that returns schema-constrained JSON.
type ExtractionOracle interface {
	Generate(ctx context.Context, req OracleRequest) (*OracleResponse, error)
	Name() string
}

// FileUploader is implemented by oracles that support two-phase calls.
type FileUploader interface {
	Upload(ctx context.Context, documentID, mimeType string, content []byte) (*FileHandle, error)
}

// FieldCheck asks a second pass to read one field from a crop image.
type FieldCheck struct {
	DocumentID string
	Field      string
	Value      domain.Value
	CropPath   string
	Language   string
}

// FieldReading is the second pass reading of one field.
type FieldReading struct {
	Value            domain.Value
	DetailConfidence float64
}

// FieldVerifier re-reads a field from secondary evidence.
type FieldVerifier interface {
	VerifyField(ctx context.Context, check FieldCheck) (*FieldReading, error)
}
