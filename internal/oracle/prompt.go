package oracle

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"materialflow/internal/domain"
)

// Profile tunes the extraction prompt. It is loaded from YAML so prompts can
// change without a rebuild.
type Profile struct {
	Prompt          string   `yaml:"prompt"`
	Instructions    []string `yaml:"instructions"`
	VerifyPrompt    string   `yaml:"verify_prompt"`
	Temperature     float32  `yaml:"temperature"`
	MaxOutputTokens int      `yaml:"max_output_tokens"`
}

const defaultPrompt = `You are a materials library extraction assistant. Analyze the supplier document and extract every distinct material product it describes.

For each product return an object whose keys are the schema fields: name, brand, category, dimensions, summary, description, material, color, finish, certifications, performance, keywords.
Each field is an object with "value", "confidence" (0.0 to 1.0, your certainty) and, when you can point at it, "location" with the 1-based "page" and "bbox" [x1, y1, x2, y2].
Omit fields that are not in the document. Never invent values.

Also return "processing_summary" with "total_products", "language_detected" and short "notes" about the document layout.

Return ONLY valid JSON with no markdown formatting, no code fences and no explanation.`

const defaultVerifyPrompt = `The image is a crop of a supplier document showing the "%s" of a material product. The first reading was %s.
Read the value shown in the image. Return ONLY JSON: {"value": <the value as shown>, "confidence": <0.0 to 1.0>}.`

// DefaultProfile returns the built-in extraction profile.
func DefaultProfile() *Profile {
	return &Profile{
		Prompt:          defaultPrompt,
		VerifyPrompt:    defaultVerifyPrompt,
		Temperature:     0.2,
		MaxOutputTokens: 8000,
		Instructions: []string{
			"Dimensions use the form 300x300 mm, or Ø600 mm for round products.",
			"certifications and keywords are arrays of strings; give at least two keywords.",
		},
	}
}

// LoadProfile reads a YAML profile. Empty fields keep their defaults.
func LoadProfile(path string) (*Profile, error) {
	p := DefaultProfile()
	if path == "" {
		return p, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading extraction profile: %w", err)
	}
	var loaded Profile
	if err := yaml.Unmarshal(b, &loaded); err != nil {
		return nil, fmt.Errorf("parsing extraction profile %s: %w", path, err)
	}
	if loaded.Prompt != "" {
		p.Prompt = loaded.Prompt
	}
	if loaded.VerifyPrompt != "" {
		p.VerifyPrompt = loaded.VerifyPrompt
	}
	if loaded.Instructions != nil {
		p.Instructions = loaded.Instructions
	}
	if loaded.Temperature > 0 {
		p.Temperature = loaded.Temperature
	}
	if loaded.MaxOutputTokens > 0 {
		p.MaxOutputTokens = loaded.MaxOutputTokens
	}
	return p, nil
}

// BuildPrompt assembles the extraction prompt for one attempt.
func (p *Profile) BuildPrompt(doc *domain.Document, mode domain.ProductMode) string {
	var b strings.Builder
	b.WriteString(p.Prompt)
	b.WriteString("\n\n")
	for _, in := range p.Instructions {
		b.WriteString("- ")
		b.WriteString(in)
		b.WriteString("\n")
	}
	if mode == domain.ProductModeSingle {
		b.WriteString("- The document describes a single product; return exactly one entry in \"products\".\n")
	}
	if doc.Language != "" && doc.Language != "en" {
		fmt.Fprintf(&b, "- The document is probably written in language %q; return values in the document's language.\n", doc.Language)
	}
	if doc.RetryCount > 0 {
		fmt.Fprintf(&b, "- This is retry %d: a previous extraction missed required fields. Look again for name, brand, category, dimensions and summary.\n", doc.RetryCount)
	}
	fmt.Fprintf(&b, "\nNow analyze the document: %s", doc.FileName)
	return b.String()
}

// BuildVerifyPrompt asks a second pass to read one field from a crop.
func (p *Profile) BuildVerifyPrompt(field string, value domain.Value) string {
	return fmt.Sprintf(p.VerifyPrompt, field, value.String())
}
