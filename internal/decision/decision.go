// Package decision holds the fallback/retry policy that turns a validation
// result and a confidence score into the next pipeline action.
package decision

import (
	"fmt"
	"strings"

	"materialflow/internal/config"
	"materialflow/internal/domain"
	"materialflow/internal/validator"
)

// DefaultSummary replaces a missing summary when metadata is reduced.
const DefaultSummary = "No summary available"

// Policy carries the thresholds and retry budget of the decision table.
type Policy struct {
	RetryBudget        int
	AcceptThreshold    float64
	FallbackConfidence float64
	RetryEnabled       bool
	RetryWithMVS       bool
}

// DefaultPolicy returns the canonical thresholds: budget 2, accept at 0.9,
// floor and fallback confidence at 0.7.
func DefaultPolicy() Policy {
	return Policy{
		RetryBudget:        2,
		AcceptThreshold:    0.9,
		FallbackConfidence: 0.7,
		RetryEnabled:       true,
	}
}

// PolicyFromConfig builds a policy from pipeline configuration.
func PolicyFromConfig(cfg *config.PipelineConfig) Policy {
	return Policy{
		RetryBudget:        cfg.RetryBudget,
		AcceptThreshold:    cfg.AcceptThreshold,
		FallbackConfidence: cfg.FallbackConfidence,
		RetryEnabled:       cfg.RetryEnabled,
		RetryWithMVS:       cfg.RetryWithMVS,
	}
}

// Input is everything the engine looks at for one product.
type Input struct {
	Metadata        domain.Metadata
	Validation      domain.ValidationResult
	Confidence      float64
	RetryCount      int
	FallbackApplied bool
}

// Decision is the engine's verdict for one product.
type Decision struct {
	Action          domain.Action
	State           domain.DocumentState
	Metadata        domain.Metadata
	Confidence      float64
	FallbackApplied bool
	ErrorKind       domain.ErrorKind
	Reason          string
}

// Engine evaluates the decision table. It is stateless.
type Engine struct {
	policy Policy
}

// NewEngine creates a decision engine for the given policy.
func NewEngine(policy Policy) *Engine {
	return &Engine{policy: policy}
}

// Policy returns the engine's policy.
func (e *Engine) Policy() Policy {
	return e.policy
}

// Decide evaluates the table top to bottom; the first matching row wins.
func (e *Engine) Decide(in Input) Decision {
	p := e.policy
	v := in.Validation
	exhausted := in.RetryCount >= p.RetryBudget
	canRetry := p.RetryEnabled && !exhausted

	d := Decision{
		Metadata:        in.Metadata,
		Confidence:      in.Confidence,
		FallbackApplied: in.FallbackApplied,
	}

	switch {
	case v.IsValid && in.Confidence >= p.AcceptThreshold:
		d.Action, d.State = domain.ActionProceed, domain.StateValidated

	case !v.IsValid && v.HasMVS && (!canRetry || !p.RetryWithMVS):
		d.Action, d.State = domain.ActionFallback, domain.StateFallback
		d.Reason = "Simplified to minimum viable schema: " + strings.Join(v.Errors, "; ")
		if !in.FallbackApplied {
			d.Metadata = reduceToMVS(in.Metadata)
			d.Confidence = p.FallbackConfidence
			d.FallbackApplied = true
		}

	case !v.IsValid && canRetry && (!v.HasMVS || p.RetryWithMVS):
		d.Action, d.State = domain.ActionRetry, domain.StateRetryExtraction
		d.Reason = fmt.Sprintf("Retry %d of %d: %s", in.RetryCount+1, p.RetryBudget, strings.Join(v.Errors, "; "))

	case !v.IsValid:
		d.Action, d.State = domain.ActionFail, domain.StateFailed
		missing := strings.Join(validator.MissingMVS(in.Metadata), ", ")
		if exhausted && p.RetryEnabled {
			d.ErrorKind = domain.KindRetryBudgetExhausted
			d.Reason = fmt.Sprintf("Schema validation failed after %d retries: missing MVS fields: %s", in.RetryCount, missing)
		} else {
			d.ErrorKind = domain.KindValidationFailed
			d.Reason = fmt.Sprintf("Schema validation failed: missing MVS fields: %s", missing)
		}

	case in.Confidence >= p.FallbackConfidence:
		d.Action, d.State = domain.ActionProceedWithIssues, domain.StateVerifiedWithIssues
		d.Reason = fmt.Sprintf("Confidence %.2f below %.2f", in.Confidence, p.AcceptThreshold)

	default:
		d.Action, d.State = domain.ActionFail, domain.StateFailed
		d.ErrorKind = domain.KindValidationFailed
		d.Reason = fmt.Sprintf("Confidence %.2f below minimum %.2f", in.Confidence, p.FallbackConfidence)
	}
	return d
}

// reduceToMVS keeps the minimum viable schema fields. The built-in rules only
// allow fallback when a summary is present; the placeholder covers registries
// whose MVS rule does not require one.
func reduceToMVS(m domain.Metadata) domain.Metadata {
	out := m.Reduce([]string{domain.FieldName, domain.FieldDimensions, domain.FieldBrand, domain.FieldSummary})
	if !out.Summary.Present() {
		out.Summary = domain.TextValue(DefaultSummary)
	}
	return out
}

// ShouldRetryDocument reports whether a whole document goes back to the
// oracle: only when no product is deliverable and at least one product asked
// for a retry.
func ShouldRetryDocument(decisions []Decision) bool {
	retry := false
	for _, d := range decisions {
		if d.Action.Deliverable() {
			return false
		}
		if d.Action == domain.ActionRetry {
			retry = true
		}
	}
	return retry
}
