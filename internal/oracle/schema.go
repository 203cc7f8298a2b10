package oracle

import (
	"github.com/santhosh-tekuri/jsonschema/v5"

	"materialflow/internal/domain"
)

// envelopeSchema is what every oracle response must satisfy before it is
// normalized. Products are objects whose members are field objects or null.
const envelopeSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["products", "processing_summary"],
  "properties": {
    "products": {"type": "array", "items": {"$ref": "#/$defs/product"}},
    "processing_summary": {"type": "object"}
  },
  "$defs": {
    "product": {
      "type": "object",
      "additionalProperties": {
        "oneOf": [{"type": "null"}, {"$ref": "#/$defs/field"}]
      }
    },
    "field": {
      "type": "object",
      "required": ["value"],
      "properties": {
        "confidence": {"type": ["number", "null"], "minimum": 0, "maximum": 1},
        "location": {
          "type": ["object", "null"],
          "required": ["page"],
          "properties": {
            "page": {"type": "integer", "minimum": 1},
            "bbox": {"type": "array", "items": {"type": "number"}, "minItems": 4, "maxItems": 4}
          }
        }
      }
    }
  }
}`

var envelope = jsonschema.MustCompileString("envelope.json", envelopeSchema)

var arrayFields = map[string]bool{
	domain.FieldCertifications: true,
	domain.FieldKeywords:       true,
}

// fieldValueSchema is the generation schema of one field's value.
func fieldValueSchema(name string) map[string]interface{} {
	if arrayFields[name] {
		return map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}}
	}
	return map[string]interface{}{"type": "string"}
}

// VerifySchema is the generation schema of a single-field verification reading.
func VerifySchema(field string) map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"value":      fieldValueSchema(field),
			"confidence": map[string]interface{}{"type": "number"},
		},
		"required": []string{"value", "confidence"},
	}
}

// ResponseSchema is the generation schema sent with every extraction request.
// It uses the OpenAPI subset understood by Gemini and Vertex AI.
func ResponseSchema() map[string]interface{} {
	props := make(map[string]interface{})
	for _, name := range domain.MetadataFieldNames() {
		value := fieldValueSchema(name)
		props[name] = map[string]interface{}{
			"type":     "object",
			"nullable": true,
			"properties": map[string]interface{}{
				"value":      value,
				"confidence": map[string]interface{}{"type": "number"},
				"location": map[string]interface{}{
					"type":     "object",
					"nullable": true,
					"properties": map[string]interface{}{
						"page": map[string]interface{}{"type": "integer"},
						"bbox": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "number"}},
					},
				},
			},
			"required": []string{"value", "confidence"},
		}
	}
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"products": map[string]interface{}{
				"type":  "array",
				"items": map[string]interface{}{"type": "object", "properties": props},
			},
			"processing_summary": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"total_products":    map[string]interface{}{"type": "integer"},
					"language_detected": map[string]interface{}{"type": "string"},
					"notes":             map[string]interface{}{"type": "string"},
				},
			},
		},
		"required": []string{"products", "processing_summary"},
	}
}
