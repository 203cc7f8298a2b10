// Package verification runs the secondary pass that confirms or corrects
// extracted fields and computes their final confidence.
package verification

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"materialflow/internal/domain"
	"materialflow/internal/port"
	"materialflow/internal/validator"
)

const (
	maxConfidence     = 0.99
	correctionFactor  = 0.8
	noEvidenceFactor  = 0.7
	noEvidenceReason  = "No crop available for verification"
	schemaCheckReason = "Confirmed by schema pass"
)

// Outcome is the verified product with its recomputed confidence.
type Outcome struct {
	Product      domain.Product
	Confidence   float64
	State        domain.DocumentState
	FailedFields []string
}

// Stage verifies products in schema or visual mode.
type Stage struct {
	mode            domain.VerificationMode
	acceptThreshold float64
	evidence        port.EvidenceStore
	verifier        port.FieldVerifier
	logger          *zap.Logger
}

// NewStage creates a verification stage. evidence and verifier are only
// consulted in visual mode.
func NewStage(mode domain.VerificationMode, acceptThreshold float64, evidence port.EvidenceStore, verifier port.FieldVerifier, logger *zap.Logger) *Stage {
	return &Stage{
		mode:            mode,
		acceptThreshold: acceptThreshold,
		evidence:        evidence,
		verifier:        verifier,
		logger:          logger,
	}
}

// Mode returns the configured verification mode.
func (s *Stage) Mode() domain.VerificationMode {
	return s.mode
}

// Verify re-examines every field of product. The input product is not
// modified. Verification always starts from the oracle's confidence and the
// originally extracted value, so re-running it over its own output with the
// same evidence yields the same final confidences.
func (s *Stage) Verify(ctx context.Context, doc *domain.Document, product domain.Product, action domain.Action) (*Outcome, error) {
	out := product.Clone()
	var (
		sum    float64
		n      int
		failed []string
	)

	for i := range out.Fields {
		f := &out.Fields[i]
		if f.Confidence == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var v *fieldResult
		var err error
		if s.mode == domain.VerificationVisual {
			v, err = s.verifyVisual(ctx, doc, f)
		} else {
			v = verifySchema(f)
		}
		if err != nil {
			s.logger.Warn("verification.Verify: field verification failed",
				zap.String("document_id", doc.ID),
				zap.Int("product", product.Index),
				zap.String("field", f.Name),
				zap.Error(err),
			)
			failed = append(failed, f.Name)
			f.Verification = &domain.Verification{
				OriginalValue:     initialValue(f),
				ContextConfidence: *f.Confidence,
				Reason:            err.Error(),
				Failed:            true,
			}
			continue
		}

		if v.MatchesInitial {
			f.Value = initialValue(f)
		} else {
			f.Value = v.Value()
		}
		f.Verification = v.Record()
		sum += v.FinalConfidence
		n++
	}

	if n == 0 && len(failed) > 0 {
		return nil, domain.NewPipelineError(domain.KindVerificationFailed, "verification",
			fmt.Errorf("all %d fields failed verification", len(failed)))
	}

	confidence := product.AverageConfidence
	if n > 0 {
		confidence = round(sum / float64(n))
	}
	out.AverageConfidence = confidence

	state := domain.StateVerifiedWithIssues
	if action == domain.ActionProceed && confidence >= s.acceptThreshold {
		state = domain.StateVerified
	}
	return &Outcome{Product: out, Confidence: confidence, State: state, FailedFields: failed}, nil
}

// fieldResult carries a computed verification plus the corrected value, if any.
type fieldResult struct {
	domain.Verification
	corrected domain.Value
}

func (r *fieldResult) Value() domain.Value { return r.corrected }

func (r *fieldResult) Record() *domain.Verification {
	v := r.Verification
	return &v
}

func verifySchema(f *domain.FieldExtraction) *fieldResult {
	c := *f.Confidence
	return &fieldResult{Verification: domain.Verification{
		Verified:          true,
		MatchesInitial:    true,
		ContextConfidence: c,
		FinalConfidence:   round(math.Min(maxConfidence, c)),
		Reason:            schemaCheckReason,
	}}
}

func (s *Stage) verifyVisual(ctx context.Context, doc *domain.Document, f *domain.FieldExtraction) (*fieldResult, error) {
	c := *f.Confidence
	initial := initialValue(f)

	if f.Location == nil || s.evidence == nil || s.verifier == nil {
		return penalized(c), nil
	}
	cropPath, err := s.evidence.Crop(ctx, port.CropRequest{DocumentID: doc.ID, Field: f.Name, Location: *f.Location})
	if errors.Is(err, domain.ErrNoEvidence) {
		return penalized(c), nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolving crop: %w", err)
	}

	reading, err := s.verifier.VerifyField(ctx, port.FieldCheck{
		DocumentID: doc.ID,
		Field:      f.Name,
		Value:      initial,
		CropPath:   cropPath,
		Language:   doc.Language,
	})
	if err != nil {
		return nil, fmt.Errorf("second pass: %w", err)
	}

	matches := !reading.Value.Present() || reading.Value.Same(initial)
	if !matches && !validator.FieldFormatOK(f.Name, reading.Value) {
		return nil, fmt.Errorf("correction %q for %s breaks its format rule", reading.Value.String(), f.Name)
	}
	factor := 1.0
	res := &fieldResult{Verification: domain.Verification{
		Verified:          true,
		MatchesInitial:    matches,
		CropPath:          cropPath,
		ContextConfidence: c,
		DetailConfidence:  reading.DetailConfidence,
	}}
	if !matches {
		factor = correctionFactor
		res.OriginalValue = initial
		res.corrected = reading.Value
	}
	res.FinalConfidence = round(math.Min(maxConfidence, c*reading.DetailConfidence*factor))
	return res, nil
}

func penalized(c float64) *fieldResult {
	return &fieldResult{Verification: domain.Verification{
		Verified:          false,
		MatchesInitial:    true,
		ContextConfidence: c,
		FinalConfidence:   round(c * noEvidenceFactor),
		Reason:            noEvidenceReason,
	}}
}

// initialValue is the value the oracle produced, even after a correction.
func initialValue(f *domain.FieldExtraction) domain.Value {
	if f.Verification != nil && f.Verification.OriginalValue != nil {
		return f.Verification.OriginalValue
	}
	return f.Value
}

func round(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
