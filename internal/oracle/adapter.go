// Package oracle wraps the external extraction oracle: it sends document
// content, enforces the response shape and normalizes products.
package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"materialflow/internal/domain"
	"materialflow/internal/lifecycle"
	"materialflow/internal/port"
)

const agent = "oracle"

// Extraction is the normalized outcome of one oracle attempt.
type Extraction struct {
	Products          []domain.Product
	ProcessingSummary json.RawMessage
	LayoutSignature   string
	Model             string
	Legacy            bool
}

// AdapterOptions configures an Adapter.
type AdapterOptions struct {
	Shape          domain.CallShape
	ProductMode    domain.ProductMode
	Profile        *Profile
	CallTimeout    time.Duration
	RatePerMinute  int
	Burst          int
	LegacyFreeText bool
}

// Adapter calls the oracle for one document attempt. It is shared by all
// documents; the rate limiter throttles calls across them.
type Adapter struct {
	oracle   port.ExtractionOracle
	uploader port.FileUploader
	opts     AdapterOptions
	limiter  *rate.Limiter
	now      func() time.Time
	logger   *zap.Logger
}

// NewAdapter creates an Adapter. uploader may be nil, in which case the
// two-phase call shape is unavailable and auto falls back to inline calls.
func NewAdapter(oracle port.ExtractionOracle, uploader port.FileUploader, opts AdapterOptions, logger *zap.Logger) *Adapter {
	if opts.Profile == nil {
		opts.Profile = DefaultProfile()
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 2 * time.Minute
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RatePerMinute > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RatePerMinute)), burst)
	}
	return &Adapter{
		oracle:   oracle,
		uploader: uploader,
		opts:     opts,
		limiter:  limiter,
		now:      time.Now,
		logger:   logger,
	}
}

// WithClock replaces the adapter's time source.
func (a *Adapter) WithClock(now func() time.Time) *Adapter {
	a.now = now
	return a
}

// Limiter returns the adapter's rate limiter so other callers can share it.
func (a *Adapter) Limiter() *rate.Limiter {
	return a.limiter
}

func (a *Adapter) twoPhase() bool {
	return a.opts.Shape != domain.CallShapeInline && a.uploader != nil
}

// Extract runs one extraction attempt. The returned document carries the
// lifecycle entries of the sub-steps that completed, also when an error is
// returned, so a retry can continue from the state the attempt reached.
func (a *Adapter) Extract(ctx context.Context, doc domain.Document) (domain.Document, *Extraction, error) {
	logger := a.logger.With(zap.String("document_id", doc.ID), zap.Int("attempt", doc.RetryCount))
	if a.opts.Shape == domain.CallShapeTwoPhase && a.uploader == nil {
		logger.Warn("oracle.Extract: two-phase requested but no oracle supports uploads, sending inline")
	}

	req := port.OracleRequest{
		DocumentID: doc.ID,
		Content:    doc.Content,
		MIMEType:   doc.ContentType,
		Prompt:     a.opts.Profile.BuildPrompt(&doc, a.opts.ProductMode),
		Schema:     ResponseSchema(),
	}

	if a.twoPhase() {
		handle, err := a.upload(ctx, &doc)
		if err != nil {
			logger.Warn("oracle.Extract: upload failed", zap.Error(err))
			return doc, nil, err
		}
		req.Handle = handle
		doc, err = lifecycle.Advance(doc, domain.StateUploaded, agent,
			fmt.Sprintf("Uploaded to %s as %s", handle.Provider, handle.URI), a.now())
		if err != nil {
			return doc, nil, err
		}
	}

	resp, err := a.generate(ctx, req)
	if err != nil {
		logger.Warn("oracle.Extract: generation failed", zap.Error(err))
		return doc, nil, err
	}

	parsed, err := ParseResponse(resp.Text)
	if err != nil && a.opts.LegacyFreeText {
		logger.Warn("oracle.Extract: trying free-text path", zap.Error(err))
		parsed, err = ParseLegacy(resp.Text)
	}
	if err != nil {
		logger.Warn("oracle.Extract: malformed response", zap.String("model", resp.Model), zap.Error(err))
		return doc, nil, err
	}

	if a.opts.ProductMode == domain.ProductModeSingle && len(parsed.Products) > 1 {
		parsed.Products = parsed.Products[:1]
	}

	out := &Extraction{
		Products:          parsed.Products,
		ProcessingSummary: parsed.ProcessingSummary,
		LayoutSignature:   LayoutSignature(parsed.ProcessingSummary),
		Model:             resp.Model,
		Legacy:            parsed.Legacy,
	}
	notes := fmt.Sprintf("Schema-constrained extraction: %d product(s) extracted with %s", len(out.Products), resp.Model)
	if doc.RetryCount > 0 {
		notes = fmt.Sprintf("Retry %d: %d product(s) extracted with %s", doc.RetryCount, len(out.Products), resp.Model)
	}
	if out.Legacy {
		notes += " (free-text fallback)"
	}
	doc, err = lifecycle.Advance(doc, domain.StateExtracted, agent, notes, a.now())
	if err != nil {
		return doc, nil, err
	}

	logger.Info("oracle.Extract: extraction complete",
		zap.Int("products", len(out.Products)),
		zap.String("model", out.Model),
		zap.String("layout", out.LayoutSignature),
	)
	return doc, out, nil
}

func (a *Adapter) upload(ctx context.Context, doc *domain.Document) (*port.FileHandle, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, unavailable(err)
	}
	callCtx, cancel := context.WithTimeout(ctx, a.opts.CallTimeout)
	defer cancel()

	handle, err := a.uploader.Upload(callCtx, doc.ID, doc.ContentType, doc.Content)
	if err != nil {
		return nil, unavailable(fmt.Errorf("uploading document: %w", err))
	}
	if handle == nil || handle.URI == "" {
		return nil, malformed("upload returned no file URI")
	}
	return handle, nil
}

func (a *Adapter) generate(ctx context.Context, req port.OracleRequest) (*port.OracleResponse, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, unavailable(err)
	}
	callCtx, cancel := context.WithTimeout(ctx, a.opts.CallTimeout)
	defer cancel()

	resp, err := a.oracle.Generate(callCtx, req)
	if err != nil {
		var pe *domain.PipelineError
		if errors.As(err, &pe) {
			return nil, err
		}
		return nil, unavailable(err)
	}
	if resp == nil || resp.Text == "" {
		return nil, malformed("oracle returned an empty response")
	}
	if resp.Model == "" {
		resp.Model = a.oracle.Name()
	}
	return resp, nil
}
