package service_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"materialflow/internal/compose"
	"materialflow/internal/decision"
	"materialflow/internal/domain"
	"materialflow/internal/intake"
	"materialflow/internal/lifecycle"
	"materialflow/internal/oracle"
	"materialflow/internal/pdf/pdftest"
	"materialflow/internal/port"
	"materialflow/internal/service"
	"materialflow/internal/validator"
	"materialflow/internal/verification"
	"materialflow/mocks"
)

var pipelineNow = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

// scriptedExtractor answers each attempt with the next step of its script.
// The last step repeats once the script is exhausted.
type scriptedExtractor struct {
	mu    sync.Mutex
	steps []func(doc domain.Document) (*oracle.Extraction, error)
	calls int
}

func (e *scriptedExtractor) Extract(_ context.Context, doc domain.Document) (domain.Document, *oracle.Extraction, error) {
	e.mu.Lock()
	step := e.steps[min(e.calls, len(e.steps)-1)]
	e.calls++
	e.mu.Unlock()

	ext, err := step(doc)
	if err != nil {
		return doc, nil, err
	}
	doc, err = lifecycle.Advance(doc, domain.StateExtracted, "oracle", "extracted", pipelineNow)
	return doc, ext, err
}

func (e *scriptedExtractor) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func returns(products ...domain.Product) func(domain.Document) (*oracle.Extraction, error) {
	return func(domain.Document) (*oracle.Extraction, error) {
		return &oracle.Extraction{Products: products, Model: "test-model", LayoutSignature: "table"}, nil
	}
}

func product(index int, confidence float64, values map[string]string) domain.Product {
	p := domain.Product{Index: index, AverageConfidence: confidence}
	for _, name := range domain.MetadataFieldNames() {
		v, ok := values[name]
		if !ok {
			continue
		}
		c := confidence
		p.Fields = append(p.Fields, domain.FieldExtraction{Name: name, Value: domain.TextValue(v), Confidence: &c})
	}
	return p
}

func completeTile() map[string]string {
	return map[string]string{
		domain.FieldName:       "Global Collection Tile",
		domain.FieldBrand:      "Mosa",
		domain.FieldCategory:   "Ceramic tile",
		domain.FieldDimensions: "300x300 mm",
		domain.FieldSummary:    "Unglazed floor tile",
	}
}

type pipelineFixture struct {
	svc       service.PipelineService
	extractor *scriptedExtractor
	sink      *lifecycle.MemorySink
	notifier  *mocks.MockNotifier
}

func newPipelineFixture(t *testing.T, steps ...func(domain.Document) (*oracle.Extraction, error)) *pipelineFixture {
	t.Helper()
	f := &pipelineFixture{
		extractor: &scriptedExtractor{steps: steps},
		sink:      &lifecycle.MemorySink{},
		notifier:  new(mocks.MockNotifier),
	}
	f.notifier.On("Send", mock.Anything, mock.AnythingOfType("*domain.Notification")).Return(nil).Maybe()

	logger := zap.NewNop()
	f.svc = service.NewPipelineService(service.PipelineDeps{
		Registrar: intake.NewRegistrar(domain.ProductModeMulti, logger).WithClock(func() time.Time { return pipelineNow }),
		Extractor: f.extractor,
		Validator: validator.NewEngine(validator.DefaultRegistry()),
		Decider:   decision.NewEngine(decision.DefaultPolicy()),
		Verifier:  verification.NewStage(domain.VerificationSchema, 0.9, nil, nil, logger),
		Composer:  compose.NewComposer("", nil),
		Lifecycle: f.sink,
		Notifier:  f.notifier,
	}, service.PipelineOptions{
		MaxParallel:     2,
		DocumentTimeout: time.Second,
		Now:             func() time.Time { return pipelineNow },
	}, logger)
	return f
}

func inbound(files ...string) *domain.InboundMessage {
	msg := &domain.InboundMessage{
		Source:     "email",
		MessageID:  "msg-1",
		Sender:     "buyer@example.com",
		Subject:    "New datasheet",
		ReceivedAt: pipelineNow,
	}
	for _, name := range files {
		msg.Attachments = append(msg.Attachments, domain.Attachment{
			FileName: name, ContentType: domain.ContentTypePDF, Data: pdftest.Document(1),
		})
	}
	return msg
}

// sent returns the last notification handed to the notifier.
func (f *pipelineFixture) sent(t *testing.T) *domain.Notification {
	t.Helper()
	var n *domain.Notification
	for _, c := range f.notifier.Calls {
		if c.Method == "Send" {
			n = c.Arguments.Get(1).(*domain.Notification)
		}
	}
	require.NotNil(t, n, "no notification sent")
	return n
}

func decodeAttachment(t *testing.T, a domain.NotificationAttachment) map[string]interface{} {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString(a.Data)
	require.NoError(t, err)
	var v map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func states(log domain.LifecycleLog) []domain.DocumentState {
	out := make([]domain.DocumentState, len(log))
	for i, e := range log {
		out[i] = e.ToState
	}
	return out
}

func TestPipeline_Success(t *testing.T) {
	f := newPipelineFixture(t, returns(product(0, 0.95, completeTile())))

	results, err := f.svc.Process(context.Background(), inbound("tile.pdf"))
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	assert.Equal(t, domain.StateCompleted, r.State)
	assert.Equal(t, domain.OutcomeSuccess, r.Outcome)
	assert.InDelta(t, 0.95, r.Confidence, 1e-9)
	assert.Equal(t, "table", r.LayoutSignature)
	require.Len(t, r.Products, 1)
	assert.Equal(t, domain.ProductStatusAccepted, r.Products[0].Status)

	assert.Equal(t, []domain.DocumentState{
		domain.StateInterpreted,
		domain.StateExtracted,
		domain.StateValidated,
		domain.StateVerified,
		domain.StateCompleted,
	}, states(r.Lifecycle))
	assert.Equal(t, r.Lifecycle, f.sink.Entries())

	f.notifier.AssertCalled(t, "Send", mock.Anything, mock.MatchedBy(func(n *domain.Notification) bool {
		return strings.HasPrefix(n.Subject, "✅") && len(n.Attachments) == 1
	}))
}

func TestPipeline_FallbackToMinimumViableSchema(t *testing.T) {
	values := completeTile()
	delete(values, domain.FieldCategory)
	f := newPipelineFixture(t, returns(product(0, 0.8, values)))

	results, err := f.svc.Process(context.Background(), inbound("tile.pdf"))
	require.NoError(t, err)
	r := results[0]

	assert.Equal(t, domain.StateCompletedWithFallback, r.State)
	assert.True(t, r.FallbackApplied)
	assert.Equal(t, 0.7, r.Confidence)
	assert.Equal(t, 1, f.extractor.Calls())
	require.Len(t, r.Products, 1)
	assert.Equal(t, domain.ProductStatusFallback, r.Products[0].Status)
	assert.Equal(t, []string{"name", "brand", "dimensions", "summary"}, r.Products[0].Metadata.PresentFields())
	assert.Equal(t, []domain.DocumentState{
		domain.StateInterpreted,
		domain.StateExtracted,
		domain.StateValidationFailed,
		domain.StateFallback,
		domain.StateCompletedWithFallback,
	}, states(r.Lifecycle))

	statuses := r.Products[0].FieldStatuses
	require.NotNil(t, statuses[domain.FieldCategory])
	assert.Equal(t, domain.FieldStatusInvalid, statuses[domain.FieldCategory].Status)
	assert.Equal(t, domain.FieldStatusValid, statuses[domain.FieldName].Status)

	n := f.sent(t)
	assert.Contains(t, n.Body, "Simplified metadata extracted")
	require.Len(t, n.Attachments, 1)
	assert.Equal(t, "extracted_metadata.json", n.Attachments[0].Name)
	att := decodeAttachment(t, n.Attachments[0])
	assert.Equal(t, "Global Collection Tile", att["name"])
	assert.Equal(t, "Unglazed floor tile", att["summary"])
	assert.NotContains(t, att, "category")
}

func TestPipeline_RetryThenBudgetExhausted(t *testing.T) {
	// No summary and no brand: the minimum viable schema is not met.
	f := newPipelineFixture(t, returns(product(0, 0.9, map[string]string{
		domain.FieldName:       "Tile",
		domain.FieldDimensions: "300x300 mm",
	})))

	results, err := f.svc.Process(context.Background(), inbound("tile.pdf"))
	require.NoError(t, err)
	r := results[0]

	assert.Equal(t, 3, f.extractor.Calls())
	assert.Equal(t, domain.StateFailed, r.State)
	assert.Equal(t, domain.OutcomeFailed, r.Outcome)
	assert.Equal(t, domain.KindRetryBudgetExhausted, r.ErrorKind)
	assert.Equal(t, 2, r.RetryCount)
	assert.Contains(t, r.ErrorSummary, "after 2 retries")
	assert.Contains(t, r.ErrorSummary, "missing MVS fields: brand, summary")

	var retries int
	for _, e := range r.Lifecycle {
		if e.ToState == domain.StateRetryExtraction {
			retries++
		}
	}
	assert.Equal(t, 2, retries)
	assert.Equal(t, domain.StateFailed, r.Lifecycle[len(r.Lifecycle)-1].ToState)
	n := f.sent(t)
	assert.True(t, strings.HasPrefix(n.Subject, "❌"))
	assert.Contains(t, n.Body, "missing MVS fields: brand, summary")
	assert.Empty(t, n.Attachments)
}

func TestPipeline_RetryRecovers(t *testing.T) {
	f := newPipelineFixture(t,
		func(domain.Document) (*oracle.Extraction, error) {
			return nil, domain.NewPipelineError(domain.KindOracleResponseMalformed, "oracle", errors.New("not json"))
		},
		returns(product(0, 0.95, completeTile())),
	)

	results, err := f.svc.Process(context.Background(), inbound("tile.pdf"))
	require.NoError(t, err)
	r := results[0]

	assert.Equal(t, domain.StateCompleted, r.State)
	assert.Equal(t, 1, r.RetryCount)
	assert.Equal(t, []domain.DocumentState{
		domain.StateInterpreted,
		domain.StateRetryExtraction,
		domain.StateExtracted,
		domain.StateValidated,
		domain.StateVerified,
		domain.StateCompleted,
	}, states(r.Lifecycle))
}

func TestPipeline_ExtractionFailureExhaustsBudget(t *testing.T) {
	f := newPipelineFixture(t, func(domain.Document) (*oracle.Extraction, error) {
		return nil, domain.NewPipelineError(domain.KindOracleUnavailable, "oracle", errors.New("503 from provider"))
	})

	results, err := f.svc.Process(context.Background(), inbound("tile.pdf"))
	require.NoError(t, err)
	r := results[0]

	assert.Equal(t, 3, f.extractor.Calls())
	assert.Equal(t, domain.KindRetryBudgetExhausted, r.ErrorKind)
	assert.Equal(t, "extraction failed after 2 retries: 503 from provider", r.ErrorSummary)
}

func TestPipeline_NonRetryableFailsImmediately(t *testing.T) {
	f := newPipelineFixture(t, func(domain.Document) (*oracle.Extraction, error) {
		return nil, domain.NewPipelineError(domain.KindVerificationFailed, "oracle", errors.New("bad crop"))
	})

	results, err := f.svc.Process(context.Background(), inbound("tile.pdf"))
	require.NoError(t, err)

	assert.Equal(t, 1, f.extractor.Calls())
	assert.Equal(t, domain.KindVerificationFailed, results[0].ErrorKind)
	assert.Equal(t, 0, results[0].RetryCount)
}

func TestPipeline_PartialDelivery(t *testing.T) {
	f := newPipelineFixture(t, returns(
		product(0, 0.95, completeTile()),
		product(1, 0.5, completeTile()),
	))

	results, err := f.svc.Process(context.Background(), inbound("catalogue.pdf"))
	require.NoError(t, err)
	r := results[0]

	assert.Equal(t, domain.StateCompleted, r.State)
	assert.Equal(t, domain.OutcomePartial, r.Outcome)
	require.Len(t, r.Products, 2)
	assert.Equal(t, 0, r.Products[0].Index)
	assert.Equal(t, domain.ProductStatusAccepted, r.Products[0].Status)
	assert.Equal(t, domain.ProductStatusFailed, r.Products[1].Status)
	assert.Equal(t, domain.KindValidationFailed, r.Products[1].ErrorKind)
	assert.Contains(t, states(r.Lifecycle), domain.StateVerifiedWithIssues)
	assert.InDelta(t, 0.95, r.Confidence, 1e-9)
}

func TestPipeline_FlaggedBelowAcceptThreshold(t *testing.T) {
	f := newPipelineFixture(t, returns(product(0, 0.8, completeTile())))

	results, err := f.svc.Process(context.Background(), inbound("tile.pdf"))
	require.NoError(t, err)
	r := results[0]

	assert.Equal(t, domain.StateCompleted, r.State)
	assert.Equal(t, domain.OutcomeFlagged, r.Outcome)
	assert.Contains(t, states(r.Lifecycle), domain.StateVerifiedWithIssues)
}

func TestPipeline_PanicBecomesInternalError(t *testing.T) {
	f := newPipelineFixture(t, func(domain.Document) (*oracle.Extraction, error) {
		panic("boom")
	})

	results, err := f.svc.Process(context.Background(), inbound("tile.pdf"))
	require.NoError(t, err)
	r := results[0]

	assert.Equal(t, domain.StateFailed, r.State)
	assert.Equal(t, domain.KindUnexpectedInternalError, r.ErrorKind)
	assert.Equal(t, "panic: boom", r.ErrorSummary)
}

func TestPipeline_DocumentsRunIndependently(t *testing.T) {
	f := newPipelineFixture(t, func(doc domain.Document) (*oracle.Extraction, error) {
		if doc.FileName == "broken.pdf" {
			return nil, domain.NewPipelineError(domain.KindVerificationFailed, "oracle", errors.New("unreadable"))
		}
		return &oracle.Extraction{Products: []domain.Product{product(0, 0.95, completeTile())}}, nil
	})

	results, err := f.svc.Process(context.Background(), inbound("tile.pdf", "broken.pdf"))
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, domain.StateCompleted, results[0].State)
	assert.Equal(t, domain.StateFailed, results[1].State)
	assert.NotEmpty(t, results[0].GroupID)
	assert.Equal(t, results[0].GroupID, results[1].GroupID)
	assert.Len(t, f.sink.Entries().ForDocument(results[0].DocumentID), len(results[0].Lifecycle))
	assert.Len(t, f.sink.Entries().ForDocument(results[1].DocumentID), len(results[1].Lifecycle))
}

func TestPipeline_MissingAttachment(t *testing.T) {
	f := newPipelineFixture(t, returns())
	msg := inbound()
	msg.Attachments = []domain.Attachment{{FileName: "notes.txt", ContentType: "text/plain", Data: []byte("hi")}}

	results, err := f.svc.Process(context.Background(), msg)
	require.Error(t, err)
	assert.Nil(t, results)
	assert.True(t, errors.Is(err, domain.ErrMissingAttachment))
	assert.Equal(t, 0, f.extractor.Calls())
	f.notifier.AssertCalled(t, "Send", mock.Anything, mock.MatchedBy(func(n *domain.Notification) bool {
		return n.To == "buyer@example.com" && strings.Contains(n.Body, "msg-1")
	}))
}

func TestPipeline_ArchivesAndSavesResult(t *testing.T) {
	f := newPipelineFixture(t)
	archive := new(mocks.MockObjectStorage)
	results := new(mocks.MockResultRepository)
	extractor := &scriptedExtractor{steps: []func(domain.Document) (*oracle.Extraction, error){returns(product(0, 0.95, completeTile()))}}

	archive.On("Upload", mock.Anything, mock.MatchedBy(func(in port.UploadInput) bool {
		return in.Bucket == "archive" && strings.HasPrefix(in.Key, "results/") && strings.HasSuffix(in.Key, ".json")
	})).Return(&port.UploadOutput{Location: "s3://archive/results/doc.json"}, nil)
	results.On("Save", mock.Anything, mock.MatchedBy(func(r *domain.Result) bool {
		return r.ArchiveURI == "s3://archive/results/doc.json"
	})).Return(nil)

	logger := zap.NewNop()
	svc := service.NewPipelineService(service.PipelineDeps{
		Registrar: intake.NewRegistrar(domain.ProductModeMulti, logger),
		Extractor: extractor,
		Validator: validator.NewEngine(validator.DefaultRegistry()),
		Decider:   decision.NewEngine(decision.DefaultPolicy()),
		Verifier:  verification.NewStage(domain.VerificationSchema, 0.9, nil, nil, logger),
		Composer:  compose.NewComposer("", nil),
		Lifecycle: f.sink,
		Notifier:  f.notifier,
		Results:   results,
		Archive:   archive,
	}, service.PipelineOptions{ArchiveBucket: "archive", ArchivePrefix: "results/"}, logger)

	out, err := svc.Process(context.Background(), inbound("tile.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "s3://archive/results/doc.json", out[0].ArchiveURI)
	archive.AssertExpectations(t)
	results.AssertExpectations(t)
}

func TestPipeline_NotifierFailureDoesNotFailDocument(t *testing.T) {
	f := newPipelineFixture(t, returns(product(0, 0.95, completeTile())))
	f.notifier.ExpectedCalls = nil
	f.notifier.On("Send", mock.Anything, mock.Anything).Return(errors.New("smtp down"))

	results, err := f.svc.Process(context.Background(), inbound("tile.pdf"))
	require.NoError(t, err)
	assert.Equal(t, domain.StateCompleted, results[0].State)
}

type failingSink struct {
	mu       sync.Mutex
	failures int
	got      domain.LifecycleLog
}

func (s *failingSink) Append(_ context.Context, entries ...domain.LifecycleEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return errors.New("sink unavailable")
	}
	s.got = s.got.Append(entries...)
	return nil
}

func TestPipeline_SinkFailureKeepsEntriesPending(t *testing.T) {
	sink := &failingSink{failures: 1}
	logger := zap.NewNop()
	svc := service.NewPipelineService(service.PipelineDeps{
		Registrar: intake.NewRegistrar(domain.ProductModeMulti, logger),
		Extractor: &scriptedExtractor{steps: []func(domain.Document) (*oracle.Extraction, error){returns(product(0, 0.95, completeTile()))}},
		Validator: validator.NewEngine(validator.DefaultRegistry()),
		Decider:   decision.NewEngine(decision.DefaultPolicy()),
		Verifier:  verification.NewStage(domain.VerificationSchema, 0.9, nil, nil, logger),
		Lifecycle: sink,
	}, service.PipelineOptions{}, logger)

	results, err := svc.Process(context.Background(), inbound("tile.pdf"))
	require.NoError(t, err)
	assert.Equal(t, results[0].Lifecycle, sink.got)
}
