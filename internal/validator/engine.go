package validator

import (
	"fmt"
	"strings"

	"materialflow/internal/domain"
)

// Engine runs registered rules against product metadata. It holds no
// mutable state and is safe for concurrent use.
type Engine struct {
	registry *Registry
}

// NewEngine creates a new validation engine.
func NewEngine(registry *Registry) *Engine {
	return &Engine{registry: registry}
}

var defaultEngine = NewEngine(DefaultRegistry())

// Validate checks metadata against the built-in material schema rules.
func Validate(m domain.Metadata) domain.ValidationResult {
	res, _ := defaultEngine.Run(m)
	return res
}

// Validate checks metadata against the engine's rules.
func (e *Engine) Validate(m domain.Metadata) domain.ValidationResult {
	res, _ := e.Run(m)
	return res
}

// Run checks metadata and also returns the individual rule results.
func (e *Engine) Run(m domain.Metadata) (domain.ValidationResult, []RuleResult) {
	res := domain.ValidationResult{
		MissingRequiredFields: []string{},
		FormatErrors:          []string{},
		Errors:                []string{},
		HasMVS:                true,
	}

	var all []RuleResult
	for _, v := range e.registry.All() {
		results := v.Validate(&m)
		all = append(all, results...)
		for _, r := range results {
			if r.Passed {
				continue
			}
			switch v.RuleType() {
			case domain.ValidationRuleRequired:
				res.MissingRequiredFields = append(res.MissingRequiredFields, r.FieldPath)
			case domain.ValidationRuleMVS:
				res.HasMVS = false
			case domain.ValidationRuleFormat:
				if v.Severity() == domain.ValidationSeverityError {
					res.FormatErrors = append(res.FormatErrors, r.FieldPath)
				}
				res.Errors = append(res.Errors, r.Message)
			}
		}
	}

	if len(res.MissingRequiredFields) > 0 {
		missing := fmt.Sprintf("Missing required fields: %s", strings.Join(res.MissingRequiredFields, ", "))
		res.Errors = append([]string{missing}, res.Errors...)
	}
	res.IsValid = len(res.MissingRequiredFields) == 0 && len(res.FormatErrors) == 0
	return res, all
}

// FieldFormatOK reports whether v satisfies the format rules registered for
// field. Absent values, fields outside the schema and fields without a
// format rule pass.
func (e *Engine) FieldFormatOK(field string, v domain.Value) bool {
	if !domain.IsSchemaField(field) {
		return true
	}
	var m domain.Metadata
	m.Set(field, v)
	for _, rule := range e.registry.All() {
		if rule.RuleType() != domain.ValidationRuleFormat {
			continue
		}
		for _, r := range rule.Validate(&m) {
			if r.FieldPath == field && !r.Passed {
				return false
			}
		}
	}
	return true
}

// FieldFormatOK checks one field against the built-in rules.
func FieldFormatOK(field string, v domain.Value) bool {
	return defaultEngine.FieldFormatOK(field, v)
}

// MissingMVS lists the minimum viable schema fields absent from m.
func MissingMVS(m domain.Metadata) []string {
	var out []string
	for _, f := range domain.MVSFields {
		if !m.Has(f) {
			out = append(out, f)
		}
	}
	return out
}
