package domain_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"materialflow/internal/domain"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to domain.DocumentState
		want     bool
	}{
		{domain.StateReceived, domain.StateInterpreted, true},
		{domain.StateInterpreted, domain.StateUploaded, true},
		{domain.StateUploaded, domain.StateExtracted, true},
		{domain.StateExtracted, domain.StateValidationFailed, true},
		{domain.StateValidationFailed, domain.StateRetryExtraction, true},
		{domain.StateRetryExtraction, domain.StateExtracted, true},
		{domain.StateValidationFailed, domain.StateFallback, true},
		{domain.StateFallback, domain.StateCompletedWithFallback, true},
		{domain.StateVerified, domain.StateCompleted, true},
		{domain.StateExtracted, domain.StateFailed, true},
		{domain.StateReceived, domain.StateExtracted, false},
		{domain.StateValidated, domain.StateRetryExtraction, false},
		{domain.StateCompleted, domain.StateFailed, false},
		{domain.StateFailed, domain.StateRetryExtraction, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s->%s", tt.from, tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, domain.CanTransition(tt.from, tt.to))
		})
	}
}

func TestLifecycleLog_AppendDoesNotMutate(t *testing.T) {
	now := time.Now()
	base := domain.LifecycleLog{{DocumentID: "d1", FromState: domain.StateReceived, ToState: domain.StateInterpreted, Timestamp: now}}

	next := base.Append(domain.LifecycleEntry{DocumentID: "d1", FromState: domain.StateInterpreted, ToState: domain.StateExtracted, Timestamp: now})
	other := base.Append(domain.LifecycleEntry{DocumentID: "d1", FromState: domain.StateInterpreted, ToState: domain.StateFailed, Timestamp: now})

	assert.Len(t, base, 1)
	require.Len(t, next, 2)
	require.Len(t, other, 2)
	assert.Equal(t, domain.StateExtracted, next[1].ToState)
	assert.Equal(t, domain.StateFailed, other[1].ToState)
}

func TestLifecycleLog_ForDocumentNonContiguous(t *testing.T) {
	log := domain.LifecycleLog{
		{DocumentID: "a", ToState: domain.StateInterpreted},
		{DocumentID: "b", ToState: domain.StateInterpreted},
		{DocumentID: "a", ToState: domain.StateExtracted},
	}
	got := log.ForDocument("a")
	require.Len(t, got, 2)
	assert.Equal(t, domain.StateExtracted, got[1].ToState)
	assert.Len(t, log.Since(1), 2)
	assert.Nil(t, log.Since(3))
}

func TestValue_Kinds(t *testing.T) {
	var m domain.Metadata
	require.NoError(t, json.Unmarshal([]byte(`{"name":"Tile","summary":"","keywords":["a","b"],"performance":{"r":"10"},"brand":null}`), &m))

	assert.True(t, m.Has(domain.FieldName))
	assert.False(t, m.Has(domain.FieldSummary))
	assert.False(t, m.Has(domain.FieldBrand))

	arr, ok := m.Keywords.Array()
	require.True(t, ok)
	assert.Len(t, arr, 2)

	obj, ok := m.Performance.Object()
	require.True(t, ok)
	assert.Contains(t, obj, "r")

	_, ok = m.Name.Array()
	assert.False(t, ok)
	assert.Equal(t, "Tile", m.Name.String())
	assert.Equal(t, `["a","b"]`, m.Keywords.String())
}

func TestValue_Same(t *testing.T) {
	assert.True(t, domain.TextValue("Mosa ").Same(domain.TextValue("mosa")))
	assert.False(t, domain.TextValue("Mosa").Same(domain.TextValue("Marazzi")))
}

func TestMetadata_ReduceAndMarshal(t *testing.T) {
	m := domain.Metadata{
		Name:       domain.TextValue("Tile"),
		Brand:      domain.TextValue("Mosa"),
		Category:   domain.TextValue("Ceramic"),
		Dimensions: domain.TextValue("300x300 mm"),
		Summary:    domain.TextValue("Floor tile"),
	}
	reduced := m.Reduce(domain.MVSFields)

	b, err := json.Marshal(reduced)
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Len(t, got, 4)
	assert.NotContains(t, got, "category")
	assert.Equal(t, []string{"name", "brand", "dimensions", "summary"}, reduced.PresentFields())
}

func TestPipelineError_KindAndIs(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", domain.NewPipelineError(domain.KindMissingAttachment, "intake", errors.New("no pdf")))

	assert.Equal(t, domain.KindMissingAttachment, domain.KindOf(err))
	assert.True(t, errors.Is(err, domain.ErrMissingAttachment))
	assert.False(t, errors.Is(err, domain.ErrVerificationFailed))
	assert.Equal(t, domain.KindUnexpectedInternalError, domain.KindOf(errors.New("boom")))
	assert.True(t, domain.KindOracleResponseMalformed.Retryable())
	assert.False(t, domain.KindMissingAttachment.Retryable())
}

func TestBucketFor(t *testing.T) {
	assert.Equal(t, domain.ConfidenceHigh, domain.BucketFor(0.9))
	assert.Equal(t, domain.ConfidenceMedium, domain.BucketFor(0.89))
	assert.Equal(t, domain.ConfidenceMedium, domain.BucketFor(0.7))
	assert.Equal(t, domain.ConfidenceLow, domain.BucketFor(0.69))
}
