package validator

import (
	"materialflow/internal/domain"
)

// FieldStatus represents the computed validation state for a single field.
type FieldStatus = domain.FieldStatus

// ComputeFieldStatuses derives per-field statuses from rule results and
// confidence scores. Fields with failed rules are invalid; fields without
// rule results fall back to their confidence.
func ComputeFieldStatuses(results []RuleResult, confidenceMap map[string]float64) map[string]*FieldStatus {
	statuses := make(map[string]*FieldStatus)

	for _, r := range results {
		fs, ok := statuses[r.FieldPath]
		if !ok {
			fs = &FieldStatus{Status: domain.FieldStatusValid, Messages: []string{}}
			statuses[r.FieldPath] = fs
		}
		if !r.Passed {
			fs.Status = domain.FieldStatusInvalid
			fs.Messages = append(fs.Messages, r.Message)
		}
	}

	for field, confidence := range confidenceMap {
		fs, exists := statuses[field]
		if !exists {
			fs = &FieldStatus{Status: domain.FieldStatusValid, Messages: []string{}}
			statuses[field] = fs
		}
		if fs.Status == domain.FieldStatusValid && confidence < 0.7 {
			fs.Status = domain.FieldStatusUnsure
		}
	}

	return statuses
}
