package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"materialflow/internal/compose"
	"materialflow/internal/decision"
	"materialflow/internal/domain"
	"materialflow/internal/intake"
	"materialflow/internal/lifecycle"
	"materialflow/internal/oracle"
	"materialflow/internal/port"
	"materialflow/internal/validator"
	"materialflow/internal/verification"
)

// Extractor runs one extraction attempt for a document.
type Extractor interface {
	Extract(ctx context.Context, doc domain.Document) (domain.Document, *oracle.Extraction, error)
}

// PipelineService runs inbound messages through registration, extraction,
// validation, decision, verification and delivery.
type PipelineService interface {
	Process(ctx context.Context, msg *domain.InboundMessage) ([]domain.Result, error)
}

// PipelineDeps groups the pipeline's collaborators. Results, Notifier and
// Archive may be nil.
type PipelineDeps struct {
	Registrar *intake.Registrar
	Extractor Extractor
	Validator *validator.Engine
	Decider   *decision.Engine
	Verifier  *verification.Stage
	Composer  *compose.Composer
	Lifecycle port.LifecycleSink
	Results   port.ResultRepository
	Notifier  port.Notifier
	Archive   port.ObjectStorage
}

// PipelineOptions holds scheduling and archive settings.
type PipelineOptions struct {
	MaxParallel     int
	DocumentTimeout time.Duration
	ArchiveBucket   string
	ArchivePrefix   string
	Now             func() time.Time
}

type pipelineService struct {
	deps   PipelineDeps
	opts   PipelineOptions
	logger *zap.Logger
}

// NewPipelineService creates a PipelineService.
func NewPipelineService(deps PipelineDeps, opts PipelineOptions, logger *zap.Logger) PipelineService {
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &pipelineService{deps: deps, opts: opts, logger: logger}
}

// candidate is one extracted product with its validation and decision.
type candidate struct {
	product    domain.Product
	validation domain.ValidationResult
	rules      []validator.RuleResult
	decision   decision.Decision
}

// docRun is the mutable state of one document while it moves through the
// pipeline. flushed counts the lifecycle entries already handed to the sink.
type docRun struct {
	doc        domain.Document
	flushed    int
	extraction *oracle.Extraction
	candidates []candidate
	products   []domain.ProductResult
}

// Process registers msg and runs every resulting document. Documents of one
// message run in parallel up to MaxParallel; each document always ends in a
// terminal state. The only error returned is a registration failure.
func (s *pipelineService) Process(ctx context.Context, msg *domain.InboundMessage) ([]domain.Result, error) {
	docs, err := s.deps.Registrar.Register(msg)
	if err != nil {
		s.logger.Warn("pipelineService.Process: registration failed",
			zap.String("sender", msg.Sender),
			zap.Int("attachments", len(msg.Attachments)),
			zap.Error(err),
		)
		s.notifyRejected(ctx, msg, err)
		return nil, err
	}

	results := make([]domain.Result, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.MaxParallel)
	for i := range docs {
		g.Go(func() error {
			results[i] = s.processDocument(gctx, docs[i])
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

func (s *pipelineService) processDocument(ctx context.Context, doc domain.Document) domain.Result {
	if s.opts.DocumentTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.DocumentTimeout)
		defer cancel()
	}
	run := &docRun{doc: doc}
	s.flush(ctx, run)

	for {
		err := guard("oracle", func() error {
			next, ext, err := s.deps.Extractor.Extract(ctx, run.doc)
			run.doc, run.extraction = next, ext
			return err
		})
		s.flush(ctx, run)
		if err != nil {
			if !s.canRetry(ctx, run.doc, err) {
				return s.fail(ctx, run, s.exhausted(run.doc, err))
			}
			if err := s.reenter(ctx, run, "Extraction attempt failed: "+summaryOf(err)); err != nil {
				return s.fail(ctx, run, err)
			}
			continue
		}

		var retry string
		err = guard("decision", func() error {
			var err error
			retry, err = s.decide(run)
			return err
		})
		s.flush(ctx, run)
		if err != nil {
			return s.fail(ctx, run, err)
		}
		if retry == "" {
			break
		}
		if err := s.reenter(ctx, run, retry); err != nil {
			return s.fail(ctx, run, err)
		}
	}

	if run.doc.State == domain.StateValidated {
		err := guard("verification", func() error { return s.verify(ctx, run) })
		s.flush(ctx, run)
		if err != nil {
			return s.fail(ctx, run, err)
		}
	}
	return s.complete(ctx, run)
}

// decide validates and decides every product of the latest extraction. It
// returns a non-empty retry reason when the whole document goes back to the
// oracle, and an error when no product can be delivered.
func (s *pipelineService) decide(run *docRun) (string, error) {
	now := s.opts.Now()
	products := run.extraction.Products
	run.candidates = make([]candidate, len(products))
	decisions := make([]decision.Decision, len(products))
	for i, p := range products {
		meta := p.Metadata()
		v, rules := s.deps.Validator.Run(meta)
		d := s.deps.Decider.Decide(decision.Input{
			Metadata:        meta,
			Validation:      v,
			Confidence:      p.AverageConfidence,
			RetryCount:      run.doc.RetryCount,
			FallbackApplied: run.doc.FallbackApplied,
		})
		run.candidates[i] = candidate{product: p, validation: v, rules: rules, decision: d}
		decisions[i] = d
	}

	if decision.ShouldRetryDocument(decisions) {
		var reason string
		for _, c := range run.candidates {
			if c.decision.Action == domain.ActionRetry {
				reason = c.decision.Reason
				break
			}
		}
		doc, err := lifecycle.Advance(run.doc, domain.StateValidationFailed, "validator", validationNotes(run.candidates), now)
		run.doc = doc
		return reason, err
	}

	var proceed, fallback int
	run.products = run.products[:0]
	for _, c := range run.candidates {
		switch c.decision.Action {
		case domain.ActionProceed, domain.ActionProceedWithIssues:
			proceed++
		case domain.ActionFallback:
			fallback++
			run.doc.FallbackApplied = true
			run.products = append(run.products, fallbackResult(c))
		default:
			run.products = append(run.products, rejectedResult(c))
		}
	}

	var err error
	switch {
	case proceed > 0:
		run.doc, err = lifecycle.Advance(run.doc, domain.StateValidated, "validator",
			fmt.Sprintf("Validated %d of %d product(s)", proceed, len(run.candidates)), now)
	case fallback > 0:
		run.doc, err = lifecycle.Advance(run.doc, domain.StateValidationFailed, "validator", validationNotes(run.candidates), now)
		if err == nil {
			run.doc, err = lifecycle.Advance(run.doc, domain.StateFallback, "decision",
				fmt.Sprintf("Fallback applied to %d product(s): reduced to minimum viable schema", fallback), now)
		}
	default:
		run.doc, err = lifecycle.Advance(run.doc, domain.StateValidationFailed, "validator", validationNotes(run.candidates), now)
		if err == nil {
			first := run.candidates[0].decision
			err = domain.NewPipelineError(first.ErrorKind, "decision", errors.New(rejectReason(first, run.candidates[0].validation)))
		}
	}
	return "", err
}

// verify runs the verification stage on every product that proceeds.
func (s *pipelineService) verify(ctx context.Context, run *docRun) error {
	var verified, accepted, issues int
	var sum float64
	for _, c := range run.candidates {
		if c.decision.Action != domain.ActionProceed && c.decision.Action != domain.ActionProceedWithIssues {
			continue
		}
		out, err := s.deps.Verifier.Verify(ctx, &run.doc, c.product, c.decision.Action)
		if err != nil {
			if ctx.Err() != nil {
				return domain.NewPipelineError(domain.KindOracleUnavailable, "verification", err)
			}
			s.logger.Warn("pipelineService.verify: product failed verification",
				zap.String("document_id", run.doc.ID),
				zap.Int("product", c.product.Index),
				zap.Error(err),
			)
			run.products = append(run.products, domain.ProductResult{
				Index:         c.product.Index,
				Status:        domain.ProductStatusFailed,
				Action:        c.decision.Action,
				Metadata:      c.decision.Metadata,
				Confidence:    c.decision.Confidence,
				Validation:    c.validation,
				FieldStatuses: fieldStatuses(c.rules, c.product.Fields),
				ErrorKind:     domain.KindOf(err),
				Error:         summaryOf(err),
			})
			continue
		}

		status := domain.ProductStatusFlagged
		if out.State == domain.StateVerified {
			status = domain.ProductStatusAccepted
			accepted++
		} else {
			issues++
		}
		verified++
		sum += out.Confidence
		run.products = append(run.products, domain.ProductResult{
			Index:         c.product.Index,
			Status:        status,
			Action:        c.decision.Action,
			Metadata:      out.Product.Metadata(),
			Fields:        out.Product.Fields,
			Confidence:    out.Confidence,
			Validation:    c.validation,
			FieldStatuses: fieldStatuses(c.rules, out.Product.Fields),
		})
	}

	if verified == 0 && !run.doc.FallbackApplied {
		return domain.NewPipelineError(domain.KindVerificationFailed, "verification",
			errors.New("no product passed verification"))
	}

	to := domain.StateVerifiedWithIssues
	if verified > 0 && accepted == verified && len(run.products) == verified {
		to = domain.StateVerified
	}
	mean := 0.0
	if verified > 0 {
		mean = sum / float64(verified)
	}
	doc, err := lifecycle.Advance(run.doc, to, "verification",
		fmt.Sprintf("Verification (%s): %d accepted, %d with issues, confidence %.2f", s.deps.Verifier.Mode(), accepted, issues, mean),
		s.opts.Now())
	run.doc = doc
	return err
}

func (s *pipelineService) complete(ctx context.Context, run *docRun) domain.Result {
	to := domain.StateCompleted
	if run.doc.State == domain.StateFallback {
		to = domain.StateCompletedWithFallback
	}
	delivered := 0
	for _, p := range run.products {
		if p.Status != domain.ProductStatusFailed {
			delivered++
		}
	}
	doc, err := lifecycle.Advance(run.doc, to, "outbound",
		fmt.Sprintf("Result composed: %d of %d product(s) delivered", delivered, len(run.products)), s.opts.Now())
	if err != nil {
		return s.fail(ctx, run, err)
	}
	run.doc = doc
	return s.finish(ctx, run, nil)
}

func (s *pipelineService) fail(ctx context.Context, run *docRun, err error) domain.Result {
	s.logger.Error("pipelineService.fail: document failed",
		zap.String("document_id", run.doc.ID),
		zap.String("state", string(run.doc.State)),
		zap.Int("attempt", run.doc.RetryCount),
		zap.String("error_kind", string(domain.KindOf(err))),
		zap.Error(err),
	)
	run.doc = lifecycle.Fail(run.doc, "pipeline", summaryOf(err), s.opts.Now())
	return s.finish(ctx, run, err)
}

// finish builds the result, archives it, persists it and notifies the
// sender. Persistence and delivery outlive the document's deadline.
func (s *pipelineService) finish(ctx context.Context, run *docRun, runErr error) domain.Result {
	ctx = context.WithoutCancel(ctx)
	s.flush(ctx, run)
	result := s.buildResult(run, runErr)
	logger := s.logger.With(zap.String("document_id", result.DocumentID))

	if s.deps.Archive != nil && s.opts.ArchiveBucket != "" {
		if uri, err := s.archive(ctx, &result); err != nil {
			logger.Warn("pipelineService.finish: archive failed", zap.Error(err))
		} else {
			result.ArchiveURI = uri
		}
	}
	if s.deps.Results != nil {
		if err := s.deps.Results.Save(ctx, &result); err != nil {
			logger.Error("pipelineService.finish: failed to save result", zap.Error(err))
		}
	}
	if err := guard("outbound", func() error { return s.notify(ctx, &result) }); err != nil {
		logger.Error("pipelineService.finish: notification failed", zap.Error(err))
	}

	logger.Info("pipelineService.finish: document finished",
		zap.String("state", string(result.State)),
		zap.String("outcome", string(result.Outcome)),
		zap.Float64("confidence", result.Confidence),
		zap.Int("retries", result.RetryCount),
	)
	return result
}

func (s *pipelineService) buildResult(run *docRun, runErr error) domain.Result {
	doc := run.doc
	products := append([]domain.ProductResult(nil), run.products...)
	slices.SortFunc(products, func(a, b domain.ProductResult) int { return a.Index - b.Index })
	if runErr != nil {
		products = nil
		for _, c := range run.candidates {
			p := rejectedResult(c)
			if c.decision.Action.Deliverable() {
				p.ErrorKind, p.Error = domain.KindOf(runErr), summaryOf(runErr)
			}
			products = append(products, p)
		}
	}

	r := domain.Result{
		DocumentID:      doc.ID,
		GroupID:         doc.GroupID,
		RequestID:       doc.RequestID,
		Sender:          doc.Sender,
		Subject:         doc.Subject,
		FileName:        doc.FileName,
		Language:        doc.Language,
		DocumentType:    doc.DocumentType,
		State:           doc.State,
		RetryCount:      doc.RetryCount,
		FallbackApplied: doc.FallbackApplied,
		Products:        products,
		Lifecycle:       doc.Lifecycle,
		ReceivedAt:      doc.ReceivedAt,
		CompletedAt:     s.opts.Now().UTC(),
	}
	if r.Products == nil {
		r.Products = []domain.ProductResult{}
	}
	if run.extraction != nil {
		r.LayoutSignature = run.extraction.LayoutSignature
		r.Model = run.extraction.Model
		r.ProcessingSummary = run.extraction.ProcessingSummary
	}

	delivered := r.Delivered()
	var sum float64
	for _, p := range delivered {
		sum += p.Confidence
	}
	if len(delivered) > 0 {
		r.Confidence = math.Round(sum/float64(len(delivered))*1e4) / 1e4
	}

	switch {
	case runErr != nil || len(delivered) == 0:
		r.Outcome = domain.OutcomeFailed
	case len(r.Rejected()) > 0:
		r.Outcome = domain.OutcomePartial
	case slices.ContainsFunc(delivered, func(p domain.ProductResult) bool { return p.Status == domain.ProductStatusFlagged }):
		r.Outcome = domain.OutcomeFlagged
	default:
		r.Outcome = domain.OutcomeSuccess
	}
	if runErr != nil {
		r.ErrorKind = domain.KindOf(runErr)
		r.ErrorSummary = summaryOf(runErr)
	}
	return r
}

func (s *pipelineService) archive(ctx context.Context, r *domain.Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling result: %w", err)
	}
	out, err := s.deps.Archive.Upload(ctx, port.UploadInput{
		Bucket:      s.opts.ArchiveBucket,
		Key:         s.opts.ArchivePrefix + r.DocumentID + ".json",
		Body:        bytes.NewReader(data),
		ContentType: "application/json",
		Metadata:    map[string]string{"outcome": string(r.Outcome)},
	})
	if err != nil {
		return "", err
	}
	return out.Location, nil
}

func (s *pipelineService) notify(ctx context.Context, r *domain.Result) error {
	if s.deps.Notifier == nil || s.deps.Composer == nil {
		return nil
	}
	n, err := s.deps.Composer.Compose(r)
	if err != nil {
		return err
	}
	return s.deps.Notifier.Send(ctx, n)
}

// notifyRejected tells the sender that a message produced no document.
func (s *pipelineService) notifyRejected(ctx context.Context, msg *domain.InboundMessage, err error) {
	r := &domain.Result{
		DocumentID:   msg.MessageID,
		Sender:       msg.Sender,
		Subject:      msg.Subject,
		State:        domain.StateFailed,
		Outcome:      domain.OutcomeFailed,
		ErrorKind:    domain.KindOf(err),
		ErrorSummary: summaryOf(err),
		Products:     []domain.ProductResult{},
	}
	if nerr := guard("outbound", func() error { return s.notify(ctx, r) }); nerr != nil {
		s.logger.Error("pipelineService.notifyRejected: notification failed", zap.String("sender", msg.Sender), zap.Error(nerr))
	}
}

// flush hands lifecycle entries not yet emitted to the sink. On failure the
// entries stay pending and are retried with the next flush.
func (s *pipelineService) flush(ctx context.Context, run *docRun) {
	pending := run.doc.Lifecycle.Since(run.flushed)
	if len(pending) == 0 {
		return
	}
	if err := s.deps.Lifecycle.Append(context.WithoutCancel(ctx), pending...); err != nil {
		s.logger.Error("pipelineService.flush: lifecycle sink failed",
			zap.String("document_id", run.doc.ID),
			zap.Int("entries", len(pending)),
			zap.Error(err),
		)
		return
	}
	run.flushed = len(run.doc.Lifecycle)
}

func (s *pipelineService) canRetry(ctx context.Context, doc domain.Document, err error) bool {
	p := s.deps.Decider.Policy()
	return ctx.Err() == nil && domain.KindOf(err).Retryable() && p.RetryEnabled && doc.RetryCount < p.RetryBudget
}

// exhausted reclassifies a retryable failure that ran out of budget.
func (s *pipelineService) exhausted(doc domain.Document, err error) error {
	p := s.deps.Decider.Policy()
	if domain.KindOf(err).Retryable() && p.RetryEnabled && p.RetryBudget > 0 && doc.RetryCount >= p.RetryBudget {
		return domain.NewPipelineError(domain.KindRetryBudgetExhausted, "oracle",
			fmt.Errorf("extraction failed after %d retries: %s", doc.RetryCount, summaryOf(err)))
	}
	return err
}

func (s *pipelineService) reenter(ctx context.Context, run *docRun, notes string) error {
	doc, err := s.deps.Registrar.Reenter(run.doc, notes)
	run.doc = doc
	s.flush(ctx, run)
	return err
}

// guard runs one stage and turns a panic into an UnexpectedInternalError
// carrying the panic message.
func guard(stage string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = domain.NewPipelineError(domain.KindUnexpectedInternalError, stage, fmt.Errorf("panic: %v", r))
		}
	}()
	return fn()
}

// summaryOf is the human readable cause of err without the stage prefix.
func summaryOf(err error) string {
	var pe *domain.PipelineError
	if errors.As(err, &pe) && pe.Err != nil {
		return pe.Err.Error()
	}
	return err.Error()
}

func validationNotes(candidates []candidate) string {
	var errs []string
	for _, c := range candidates {
		if !c.validation.IsValid {
			errs = append(errs, fmt.Sprintf("product %d: %s", c.product.Index, strings.Join(c.validation.Errors, "; ")))
		}
	}
	if len(errs) == 0 {
		return "Confidence below minimum"
	}
	return "Schema validation failed: " + strings.Join(errs, " | ")
}

func rejectReason(d decision.Decision, v domain.ValidationResult) string {
	if d.Action == domain.ActionFail {
		return d.Reason
	}
	if len(v.Errors) > 0 {
		return "Schema validation failed: " + strings.Join(v.Errors, "; ")
	}
	return d.Reason
}

func rejectedResult(c candidate) domain.ProductResult {
	kind := c.decision.ErrorKind
	if kind == "" {
		kind = domain.KindValidationFailed
	}
	return domain.ProductResult{
		Index:         c.product.Index,
		Status:        domain.ProductStatusFailed,
		Action:        c.decision.Action,
		Metadata:      c.decision.Metadata,
		Fields:        c.product.Fields,
		Confidence:    c.decision.Confidence,
		Validation:    c.validation,
		FieldStatuses: fieldStatuses(c.rules, c.product.Fields),
		ErrorKind:     kind,
		Error:         rejectReason(c.decision, c.validation),
	}
}

func fallbackResult(c candidate) domain.ProductResult {
	var fields []domain.FieldExtraction
	for _, f := range c.product.Fields {
		if c.decision.Metadata.Has(f.Name) {
			fields = append(fields, f)
		}
	}
	return domain.ProductResult{
		Index:         c.product.Index,
		Status:        domain.ProductStatusFallback,
		Action:        c.decision.Action,
		Metadata:      c.decision.Metadata,
		Fields:        fields,
		Confidence:    c.decision.Confidence,
		Validation:    c.validation,
		FieldStatuses: fieldStatuses(c.rules, fields),
	}
}

// fieldStatuses derives per-field statuses from the validation rules and the
// field confidences, preferring the verified confidence when there is one.
func fieldStatuses(rules []validator.RuleResult, fields []domain.FieldExtraction) map[string]*domain.FieldStatus {
	confidences := make(map[string]float64, len(fields))
	for _, f := range fields {
		switch {
		case f.Verification != nil && !f.Verification.Failed:
			confidences[f.Name] = f.Verification.FinalConfidence
		case f.Confidence != nil:
			confidences[f.Name] = *f.Confidence
		}
	}
	return validator.ComputeFieldStatuses(rules, confidences)
}
