package validator

import (
	"fmt"
	"regexp"
	"strings"

	"materialflow/internal/domain"
)

var dimensionPattern = regexp.MustCompile(`^\d+x\d+\s*mm$|^Ø\d+\s*mm$`)

// presenceValidator checks that schema fields are present.
type presenceValidator struct {
	ruleKey  string
	ruleName string
	ruleType domain.ValidationRuleType
	fields   []string
}

func (v *presenceValidator) RuleKey() string                     { return v.ruleKey }
func (v *presenceValidator) RuleName() string                    { return v.ruleName }
func (v *presenceValidator) RuleType() domain.ValidationRuleType { return v.ruleType }
func (v *presenceValidator) Severity() domain.ValidationSeverity { return domain.ValidationSeverityError }

func (v *presenceValidator) Validate(m *domain.Metadata) []RuleResult {
	results := make([]RuleResult, 0, len(v.fields))
	for _, f := range v.fields {
		present := m.Has(f)
		msg := fmt.Sprintf("%s: %s is present", v.ruleName, f)
		if !present {
			msg = fmt.Sprintf("%s: %s is missing or empty", v.ruleName, f)
		}
		results = append(results, RuleResult{RuleKey: v.ruleKey, Passed: present, FieldPath: f, Message: msg})
	}
	return results
}

// formatValidator checks the shape of one field when it is present.
type formatValidator struct {
	ruleKey  string
	ruleName string
	field    string
	failMsg  string
	check    func(domain.Value) bool
}

func (v *formatValidator) RuleKey() string                     { return v.ruleKey }
func (v *formatValidator) RuleName() string                    { return v.ruleName }
func (v *formatValidator) RuleType() domain.ValidationRuleType { return domain.ValidationRuleFormat }
func (v *formatValidator) Severity() domain.ValidationSeverity { return domain.ValidationSeverityError }

func (v *formatValidator) Validate(m *domain.Metadata) []RuleResult {
	val, _ := m.Get(v.field)
	// Absent fields are reported by the presence rules, never as format errors.
	if !val.Present() {
		return nil
	}
	if v.check(val) {
		return []RuleResult{{RuleKey: v.ruleKey, Passed: true, FieldPath: v.field,
			Message: fmt.Sprintf("%s: %s matches expected format", v.ruleName, v.field)}}
	}
	return []RuleResult{{RuleKey: v.ruleKey, Passed: false, FieldPath: v.field, Message: v.failMsg}}
}

func checkDimensions(val domain.Value) bool {
	s, ok := val.Text()
	return ok && dimensionPattern.MatchString(s)
}

func checkNonEmptyArray(val domain.Value) bool {
	arr, ok := val.Array()
	return ok && len(arr) > 0
}

func checkPerformance(val domain.Value) bool {
	if obj, ok := val.Object(); ok {
		return len(obj) > 0
	}
	if s, ok := val.Text(); ok {
		return strings.TrimSpace(s) != ""
	}
	return false
}

func checkKeywords(val domain.Value) bool {
	arr, ok := val.Array()
	return ok && len(arr) >= 2
}

// Rule keys.
const (
	RuleRequiredFields = "required.fields"
	RuleMVSFields      = "mvs.fields"
	RuleDimensions     = "format.dimensions"
	RuleCertifications = "format.certifications"
	RulePerformance    = "format.performance"
	RuleKeywords       = "format.keywords"
)

// BuiltinValidators returns the material schema rules.
func BuiltinValidators() []Validator {
	return []Validator{
		&presenceValidator{
			ruleKey: RuleRequiredFields, ruleName: "Required Fields",
			ruleType: domain.ValidationRuleRequired, fields: domain.RequiredFields,
		},
		&presenceValidator{
			ruleKey: RuleMVSFields, ruleName: "Minimum Viable Schema",
			ruleType: domain.ValidationRuleMVS, fields: domain.MVSFields,
		},
		&formatValidator{
			ruleKey: RuleDimensions, ruleName: "Dimension Format", field: domain.FieldDimensions,
			failMsg: "Dimension format is invalid", check: checkDimensions,
		},
		&formatValidator{
			ruleKey: RuleCertifications, ruleName: "Certifications", field: domain.FieldCertifications,
			failMsg: "Certifications must be a non-empty array", check: checkNonEmptyArray,
		},
		&formatValidator{
			ruleKey: RulePerformance, ruleName: "Performance Data", field: domain.FieldPerformance,
			failMsg: "No performance data available", check: checkPerformance,
		},
		&formatValidator{
			ruleKey: RuleKeywords, ruleName: "Keywords", field: domain.FieldKeywords,
			failMsg: "Keywords must be an array with at least 2 items", check: checkKeywords,
		},
	}
}

// DefaultRegistry returns a registry holding the built-in rules.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, v := range BuiltinValidators() {
		r.Register(v)
	}
	return r
}
