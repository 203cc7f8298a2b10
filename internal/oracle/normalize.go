package oracle

import (
	"bytes"
	"encoding/json"
	"math"
	"regexp"
	"strings"

	"materialflow/internal/domain"
)

type rawField struct {
	Value      domain.Value `json:"value"`
	Confidence *float64     `json:"confidence"`
	Location   *struct {
		Page int       `json:"page"`
		BBox []float64 `json:"bbox"`
	} `json:"location"`
}

type rawEnvelope struct {
	Products          []map[string]*rawField `json:"products"`
	ProcessingSummary json.RawMessage        `json:"processing_summary"`
}

// Parsed is a normalized oracle response.
type Parsed struct {
	Products          []domain.Product
	ProcessingSummary json.RawMessage
	Legacy            bool
}

// ParseResponse turns oracle text into products. The text must be a JSON
// document satisfying the envelope schema; nothing is guessed or coerced.
func ParseResponse(text string) (*Parsed, error) {
	var doc interface{}
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, malformed("response is not JSON: %v (raw: %s)", err, truncate(text, 200))
	}
	if dec.More() {
		return nil, malformed("response has trailing content after JSON (raw: %s)", truncate(text, 200))
	}
	if err := envelope.Validate(doc); err != nil {
		return nil, malformed("response does not match envelope: %v", err)
	}

	var raw rawEnvelope
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, malformed("decoding envelope: %v", err)
	}
	if len(raw.Products) == 0 {
		return nil, malformed("response contains no products")
	}

	products := make([]domain.Product, 0, len(raw.Products))
	for i, rp := range raw.Products {
		products = append(products, normalizeProduct(i, rp))
	}
	return &Parsed{Products: products, ProcessingSummary: raw.ProcessingSummary}, nil
}

// normalizeProduct orders fields by schema order and drops members that are
// not part of the product schema.
func normalizeProduct(index int, raw map[string]*rawField) domain.Product {
	p := domain.Product{Index: index}
	for _, name := range domain.MetadataFieldNames() {
		rf, ok := raw[name]
		if !ok || rf == nil || !rf.Value.Present() {
			continue
		}
		f := domain.FieldExtraction{Name: name, Value: rf.Value, Confidence: rf.Confidence}
		if rf.Location != nil && rf.Location.Page > 0 {
			loc := &domain.Location{Page: rf.Location.Page}
			copy(loc.BBox[:], rf.Location.BBox)
			f.Location = loc
		}
		p.Fields = append(p.Fields, f)
	}
	p.AverageConfidence = AverageConfidence(p.Fields)
	return p
}

// AverageConfidence is the mean of the confidences present. Fields without a
// confidence are excluded rather than counted as zero.
func AverageConfidence(fields []domain.FieldExtraction) float64 {
	var sum float64
	var n int
	for _, f := range fields {
		if f.Confidence != nil {
			sum += *f.Confidence
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return math.Round(sum/float64(n)*1e4) / 1e4
}

var (
	layoutDimensions = regexp.MustCompile(`\b\d+\s*x\s*\d+\s*mm\b|Ø\d+\s*mm\b`)
	layoutTable      = regexp.MustCompile(`\|\s*\w+\s*\|\s*\w+\s*\|`)
)

// LayoutSignature guesses the document layout from the oracle's processing
// summary notes.
func LayoutSignature(summary json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, summary); err != nil && len(summary) > 0 {
		buf.Write(summary)
	}
	text := buf.String()
	switch {
	case strings.Contains(text, "Technical Data") || strings.Contains(text, "Specifications"):
		return "datasheet"
	case strings.Contains(text, "Table of Contents") || strings.Contains(text, "Index"):
		return "catalogue"
	case strings.Contains(text, "Test Results") || strings.Contains(text, "Laboratory"):
		return "technical-report"
	case layoutDimensions.MatchString(text):
		return "brochure-style"
	case layoutTable.MatchString(text):
		return "tabular"
	}
	return "unknown"
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
