package oracle_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"materialflow/internal/domain"
	"materialflow/internal/oracle"
)

const tileResponse = `{
  "products": [{
    "summary": {"value": "Porcelain floor tile", "confidence": 0.8},
    "name": {"value": "Terra Tile", "confidence": 0.95},
    "brand": {"value": "Mosa", "confidence": 0.9},
    "category": {"value": "Ceramic", "confidence": 0.85},
    "dimensions": {"value": "300x300 mm", "confidence": 0.9, "location": {"page": 2, "bbox": [10, 20, 110, 40]}},
    "color": null,
    "supplier_code": {"value": "X-1", "confidence": 0.5}
  }],
  "processing_summary": {"total_products": 1, "language_detected": "en", "notes": "Technical Data sheet"}
}`

func TestParseResponse_Normalizes(t *testing.T) {
	parsed, err := oracle.ParseResponse(tileResponse)
	require.NoError(t, err)
	require.Len(t, parsed.Products, 1)

	p := parsed.Products[0]
	names := make([]string, len(p.Fields))
	for i, f := range p.Fields {
		names[i] = f.Name
	}
	assert.Equal(t, []string{"name", "brand", "category", "dimensions", "summary"}, names)
	assert.Equal(t, 0.88, p.AverageConfidence)

	dims := p.Field(domain.FieldDimensions)
	require.NotNil(t, dims)
	require.NotNil(t, dims.Location)
	assert.Equal(t, 2, dims.Location.Page)
	assert.Equal(t, domain.BoundingBox{10, 20, 110, 40}, dims.Location.BBox)
	assert.False(t, parsed.Legacy)
	assert.Equal(t, "datasheet", oracle.LayoutSignature(parsed.ProcessingSummary))
}

func TestParseResponse_Malformed(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"not json", "Here are the products I found"},
		{"code fence", "```json\n" + tileResponse + "\n```"},
		{"trailing content", tileResponse + ` {"extra": true}`},
		{"missing summary", `{"products": [{"name": {"value": "A", "confidence": 0.9}}]}`},
		{"no products", `{"products": [], "processing_summary": {}}`},
		{"confidence out of range", `{"products": [{"name": {"value": "A", "confidence": 1.5}}], "processing_summary": {}}`},
		{"field without value", `{"products": [{"name": {"confidence": 0.9}}], "processing_summary": {}}`},
		{"bad bbox", `{"products": [{"name": {"value": "A", "location": {"page": 1, "bbox": [1, 2]}}}], "processing_summary": {}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := oracle.ParseResponse(tt.text)
			require.Error(t, err)
			assert.Equal(t, domain.KindOracleResponseMalformed, domain.KindOf(err))
		})
	}
}

func TestParseResponse_MissingConfidenceExcludedFromAverage(t *testing.T) {
	parsed, err := oracle.ParseResponse(`{"products": [{"name": {"value": "A", "confidence": 0.6}, "brand": {"value": "B"}}], "processing_summary": {}}`)
	require.NoError(t, err)

	p := parsed.Products[0]
	require.Len(t, p.Fields, 2)
	assert.Nil(t, p.Fields[1].Confidence)
	assert.Equal(t, 0.6, p.AverageConfidence)
}

func TestParseLegacy(t *testing.T) {
	parsed, err := oracle.ParseLegacy("Name: Oak Panel\nBrand: Havwoods\nDimensions: 1200x200 mm\n")
	require.NoError(t, err)
	require.Len(t, parsed.Products, 1)
	assert.True(t, parsed.Legacy)

	m := parsed.Products[0].Metadata()
	assert.Equal(t, "Oak Panel", m.Name.String())
	assert.Equal(t, "Havwoods", m.Brand.String())
	assert.Equal(t, "1200x200 mm", m.Dimensions.String())
	assert.Equal(t, "Extracted with fallback due to parsing issues", m.Summary.String())
	for _, f := range parsed.Products[0].Fields {
		assert.Nil(t, f.Confidence, f.Name)
	}

	_, err = oracle.ParseLegacy("nothing useful here")
	assert.Equal(t, domain.KindOracleResponseMalformed, domain.KindOf(err))
}

func TestLayoutSignature(t *testing.T) {
	tests := []struct {
		notes string
		want  string
	}{
		{"Specifications on page 2", "datasheet"},
		{"Table of Contents then product pages", "catalogue"},
		{"Laboratory test summary", "technical-report"},
		{"Hero images, tiles in 600x600 mm", "brochure-style"},
		{"| size | color |", "tabular"},
		{"plain", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			b, err := json.Marshal(map[string]string{"notes": tt.notes})
			require.NoError(t, err)
			assert.Equal(t, tt.want, oracle.LayoutSignature(b))
		})
	}
	assert.Equal(t, "unknown", oracle.LayoutSignature(nil))
}
