package oracle_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"materialflow/internal/domain"
	"materialflow/internal/oracle"
	"materialflow/internal/pdf/pdftest"
	"materialflow/internal/port"
	"materialflow/mocks"
)

var fixedNow = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

func interpretedDoc() domain.Document {
	return domain.Document{
		ID:          "doc-1",
		FileName:    "tiles.pdf",
		ContentType: domain.ContentTypePDF,
		Content:     pdftest.Document(1),
		Language:    "en",
		State:       domain.StateInterpreted,
	}
}

func newAdapter(o port.ExtractionOracle, u port.FileUploader, opts oracle.AdapterOptions) *oracle.Adapter {
	return oracle.NewAdapter(o, u, opts, zap.NewNop()).WithClock(func() time.Time { return fixedNow })
}

func TestAdapter_Inline(t *testing.T) {
	o := new(mocks.MockExtractionOracle)
	o.On("Generate", mock.Anything, mock.MatchedBy(func(req port.OracleRequest) bool {
		return req.Handle == nil && req.DocumentID == "doc-1" && req.Schema != nil && len(req.Content) > 0
	})).Return(&port.OracleResponse{Text: tileResponse, Model: "gemini-2.0-flash"}, nil)

	a := newAdapter(o, nil, oracle.AdapterOptions{Shape: domain.CallShapeAuto, ProductMode: domain.ProductModeMulti})
	doc, ext, err := a.Extract(context.Background(), interpretedDoc())

	require.NoError(t, err)
	require.NotNil(t, ext)
	assert.Len(t, ext.Products, 1)
	assert.Equal(t, "gemini-2.0-flash", ext.Model)
	assert.Equal(t, "datasheet", ext.LayoutSignature)

	assert.Equal(t, domain.StateExtracted, doc.State)
	require.Len(t, doc.Lifecycle, 1)
	entry := doc.Lifecycle[0]
	assert.Equal(t, domain.StateInterpreted, entry.FromState)
	assert.Equal(t, domain.StateExtracted, entry.ToState)
	assert.Equal(t, "oracle", entry.Agent)
	assert.Equal(t, "Schema-constrained extraction: 1 product(s) extracted with gemini-2.0-flash", entry.Notes)
	assert.Equal(t, fixedNow, entry.Timestamp)
	o.AssertExpectations(t)
}

func TestAdapter_TwoPhase(t *testing.T) {
	o := new(mocks.MockUploadingOracle)
	handle := &port.FileHandle{Provider: "gemini", URI: "https://files/abc", MIMEType: domain.ContentTypePDF}
	o.On("Upload", mock.Anything, "doc-1", domain.ContentTypePDF, mock.Anything).Return(handle, nil)
	o.On("Generate", mock.Anything, mock.MatchedBy(func(req port.OracleRequest) bool {
		return req.Handle != nil && req.Handle.URI == handle.URI
	})).Return(&port.OracleResponse{Text: tileResponse, Model: "gemini-2.0-flash"}, nil)

	a := newAdapter(o, o, oracle.AdapterOptions{Shape: domain.CallShapeAuto})
	doc, _, err := a.Extract(context.Background(), interpretedDoc())

	require.NoError(t, err)
	require.Len(t, doc.Lifecycle, 2)
	assert.Equal(t, domain.StateUploaded, doc.Lifecycle[0].ToState)
	assert.Equal(t, "Uploaded to gemini as https://files/abc", doc.Lifecycle[0].Notes)
	assert.Equal(t, domain.StateUploaded, doc.Lifecycle[1].FromState)
	assert.Equal(t, domain.StateExtracted, doc.Lifecycle[1].ToState)
	o.AssertExpectations(t)
}

func TestAdapter_InlineShapeSkipsUpload(t *testing.T) {
	o := new(mocks.MockUploadingOracle)
	o.On("Generate", mock.Anything, mock.Anything).Return(&port.OracleResponse{Text: tileResponse, Model: "m"}, nil)

	a := newAdapter(o, o, oracle.AdapterOptions{Shape: domain.CallShapeInline})
	doc, _, err := a.Extract(context.Background(), interpretedDoc())

	require.NoError(t, err)
	require.Len(t, doc.Lifecycle, 1)
	o.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAdapter_UploadFailure(t *testing.T) {
	o := new(mocks.MockUploadingOracle)
	o.On("Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("connection reset"))

	a := newAdapter(o, o, oracle.AdapterOptions{Shape: domain.CallShapeTwoPhase})
	doc, ext, err := a.Extract(context.Background(), interpretedDoc())

	require.Error(t, err)
	assert.Nil(t, ext)
	assert.Equal(t, domain.KindOracleUnavailable, domain.KindOf(err))
	assert.Equal(t, domain.StateInterpreted, doc.State)
	assert.Empty(t, doc.Lifecycle)
	o.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestAdapter_MalformedKeepsUploadEntry(t *testing.T) {
	o := new(mocks.MockUploadingOracle)
	o.On("Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&port.FileHandle{Provider: "gemini", URI: "u", MIMEType: domain.ContentTypePDF}, nil)
	o.On("Generate", mock.Anything, mock.Anything).Return(&port.OracleResponse{Text: "I could not read the file", Model: "m"}, nil)

	a := newAdapter(o, o, oracle.AdapterOptions{})
	doc, ext, err := a.Extract(context.Background(), interpretedDoc())

	require.Error(t, err)
	assert.Nil(t, ext)
	assert.Equal(t, domain.KindOracleResponseMalformed, domain.KindOf(err))
	assert.Equal(t, domain.StateUploaded, doc.State)
	require.Len(t, doc.Lifecycle, 1)
}

func TestAdapter_LegacyFreeText(t *testing.T) {
	o := new(mocks.MockExtractionOracle)
	o.On("Generate", mock.Anything, mock.Anything).
		Return(&port.OracleResponse{Text: "Name: Oak Panel\nBrand: Havwoods\nDimensions: 1200x200 mm", Model: "m"}, nil)

	a := newAdapter(o, nil, oracle.AdapterOptions{LegacyFreeText: true})
	doc, ext, err := a.Extract(context.Background(), interpretedDoc())

	require.NoError(t, err)
	assert.True(t, ext.Legacy)
	require.Len(t, ext.Products, 1)
	assert.Contains(t, doc.Lifecycle[0].Notes, "(free-text fallback)")
}

func TestAdapter_EmptyResponse(t *testing.T) {
	o := new(mocks.MockExtractionOracle)
	o.On("Generate", mock.Anything, mock.Anything).Return(&port.OracleResponse{Text: ""}, nil)

	a := newAdapter(o, nil, oracle.AdapterOptions{})
	_, _, err := a.Extract(context.Background(), interpretedDoc())

	assert.Equal(t, domain.KindOracleResponseMalformed, domain.KindOf(err))
}

func TestAdapter_Timeout(t *testing.T) {
	o := new(mocks.MockExtractionOracle)
	o.On("Generate", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, context.DeadlineExceeded)

	a := newAdapter(o, nil, oracle.AdapterOptions{CallTimeout: 20 * time.Millisecond})
	_, _, err := a.Extract(context.Background(), interpretedDoc())

	require.Error(t, err)
	assert.Equal(t, domain.KindOracleUnavailable, domain.KindOf(err))
	assert.Contains(t, err.Error(), "timed out")
}

func TestAdapter_SingleProductMode(t *testing.T) {
	two := `{"products": [{"name": {"value": "A", "confidence": 0.9}}, {"name": {"value": "B", "confidence": 0.9}}], "processing_summary": {}}`
	o := new(mocks.MockExtractionOracle)
	o.On("Generate", mock.Anything, mock.MatchedBy(func(req port.OracleRequest) bool {
		return strings.Contains(req.Prompt, "single product")
	})).Return(&port.OracleResponse{Text: two, Model: "m"}, nil)

	a := newAdapter(o, nil, oracle.AdapterOptions{ProductMode: domain.ProductModeSingle})
	_, ext, err := a.Extract(context.Background(), interpretedDoc())

	require.NoError(t, err)
	require.Len(t, ext.Products, 1)
	assert.Equal(t, "A", ext.Products[0].Metadata().Name.String())
}

func TestAdapter_RetryNotes(t *testing.T) {
	o := new(mocks.MockExtractionOracle)
	o.On("Generate", mock.Anything, mock.MatchedBy(func(req port.OracleRequest) bool {
		return len(req.Prompt) > 0
	})).Return(&port.OracleResponse{Text: tileResponse, Model: "m"}, nil)

	in := interpretedDoc()
	in.State = domain.StateRetryExtraction
	in.RetryCount = 1

	a := newAdapter(o, nil, oracle.AdapterOptions{})
	doc, _, err := a.Extract(context.Background(), in)

	require.NoError(t, err)
	assert.Equal(t, "Retry 1: 1 product(s) extracted with m", doc.Lifecycle[0].Notes)
	assert.Equal(t, domain.StateRetryExtraction, doc.Lifecycle[0].FromState)
}

func TestAdapter_RateLimiter(t *testing.T) {
	a := oracle.NewAdapter(new(mocks.MockExtractionOracle), nil, oracle.AdapterOptions{RatePerMinute: 60, Burst: 2}, zap.NewNop())
	assert.InDelta(t, 1.0, float64(a.Limiter().Limit()), 1e-9)
	assert.Equal(t, 2, a.Limiter().Burst())
}
