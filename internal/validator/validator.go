package validator

import (
	"materialflow/internal/domain"
)

// RuleResult is the outcome of one rule on one field.
type RuleResult struct {
	RuleKey   string
	Passed    bool
	FieldPath string
	Message   string
}

// Validator is the interface for a single built-in validation rule.
type Validator interface {
	Validate(m *domain.Metadata) []RuleResult
	RuleKey() string
	RuleName() string
	RuleType() domain.ValidationRuleType
	Severity() domain.ValidationSeverity
}
