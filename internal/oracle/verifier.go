package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"golang.org/x/time/rate"

	"materialflow/internal/domain"
	"materialflow/internal/port"
)

// CropVerifier is the visual second pass: it shows one crop to the oracle
// and asks it to read a single field. It implements port.FieldVerifier.
type CropVerifier struct {
	oracle  port.ExtractionOracle
	profile *Profile
	limiter *rate.Limiter
}

// NewCropVerifier creates a CropVerifier. The limiter may be shared with the
// extraction adapter; nil means unlimited.
func NewCropVerifier(oracle port.ExtractionOracle, profile *Profile, limiter *rate.Limiter) *CropVerifier {
	if profile == nil {
		profile = DefaultProfile()
	}
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 0)
	}
	return &CropVerifier{oracle: oracle, profile: profile, limiter: limiter}
}

func (v *CropVerifier) VerifyField(ctx context.Context, check port.FieldCheck) (*port.FieldReading, error) {
	img, err := os.ReadFile(check.CropPath)
	if err != nil {
		return nil, fmt.Errorf("reading crop %s: %w", check.CropPath, err)
	}
	if err := v.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := v.oracle.Generate(ctx, port.OracleRequest{
		DocumentID: check.DocumentID,
		Content:    img,
		MIMEType:   http.DetectContentType(img),
		Prompt:     v.profile.BuildVerifyPrompt(check.Field, check.Value),
		Schema:     VerifySchema(check.Field),
	})
	if err != nil {
		return nil, fmt.Errorf("verifying %s: %w", check.Field, err)
	}

	var reading struct {
		Value      domain.Value `json:"value"`
		Confidence *float64     `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(resp.Text), &reading); err != nil {
		return nil, malformed("verification response is not JSON: %v", err)
	}
	if reading.Confidence == nil || *reading.Confidence < 0 || *reading.Confidence > 1 {
		return nil, malformed("verification response has no valid confidence")
	}
	return &port.FieldReading{Value: reading.Value, DetailConfidence: *reading.Confidence}, nil
}
