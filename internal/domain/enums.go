package domain

// ContentTypePDF is the only attachment type the pipeline accepts.
const ContentTypePDF = "application/pdf"

// DocumentState is a lifecycle state of a document.
type DocumentState string

const (
	StateReceived              DocumentState = "RECEIVED"
	StateInterpreted           DocumentState = "INTERPRETED"
	StateUploaded              DocumentState = "UPLOADED"
	StateExtracted             DocumentState = "EXTRACTED"
	StateValidated             DocumentState = "VALIDATED"
	StateValidationFailed      DocumentState = "VALIDATION_FAILED"
	StateRetryExtraction       DocumentState = "RETRY_EXTRACTION"
	StateFallback              DocumentState = "FALLBACK"
	StateVerified              DocumentState = "VERIFIED"
	StateVerifiedWithIssues    DocumentState = "VERIFIED_WITH_ISSUES"
	StateCompletedWithFallback DocumentState = "COMPLETED_WITH_FALLBACK"
	StateCompleted             DocumentState = "COMPLETED"
	StateFailed                DocumentState = "FAILED"
)

// IsTerminal reports whether no further transition may leave the state.
func (s DocumentState) IsTerminal() bool {
	switch s {
	case StateCompleted, StateCompletedWithFallback, StateFailed:
		return true
	}
	return false
}

// Action is the outcome of the fallback/retry decision engine.
type Action string

const (
	ActionProceed           Action = "PROCEED"
	ActionProceedWithIssues Action = "PROCEED_WITH_ISSUES"
	ActionFallback          Action = "FALLBACK"
	ActionRetry             Action = "RETRY"
	ActionFail              Action = "FAIL"
)

// Deliverable reports whether a product with this action reaches the outbound result.
func (a Action) Deliverable() bool {
	return a == ActionProceed || a == ActionProceedWithIssues || a == ActionFallback
}

// ProductStatus is the per-product outcome carried into the result record.
type ProductStatus string

const (
	ProductStatusAccepted ProductStatus = "accepted"
	ProductStatusFlagged  ProductStatus = "flagged"
	ProductStatusFallback ProductStatus = "fallback"
	ProductStatusFailed   ProductStatus = "failed"
)

// Outcome is the document-level delivery outcome.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomePartial Outcome = "partial"
	OutcomeFlagged Outcome = "flagged"
	OutcomeFailed  Outcome = "failed"
)

// VerificationMode selects the secondary pass run by the verification stage.
type VerificationMode string

const (
	VerificationSchema VerificationMode = "schema"
	VerificationVisual VerificationMode = "visual"
)

// ProductMode selects whether a document yields one or many products.
type ProductMode string

const (
	ProductModeSingle ProductMode = "single"
	ProductModeMulti  ProductMode = "multi"
)

// CallShape selects how the oracle receives document content.
type CallShape string

const (
	CallShapeInline   CallShape = "inline"
	CallShapeTwoPhase CallShape = "two_phase"
	CallShapeAuto     CallShape = "auto"
)

// DocumentType is a guess at the kind of supplier document.
type DocumentType string

const (
	DocumentTypeDatasheet     DocumentType = "Datasheet"
	DocumentTypeCatalogue     DocumentType = "Catalogue"
	DocumentTypeSpecification DocumentType = "Specification"
)

// ConfidenceBucket groups confidence scores for reporting.
type ConfidenceBucket string

const (
	ConfidenceHigh   ConfidenceBucket = "high"
	ConfidenceMedium ConfidenceBucket = "medium"
	ConfidenceLow    ConfidenceBucket = "low"
)

// BucketFor maps a confidence score to its reporting bucket.
func BucketFor(confidence float64) ConfidenceBucket {
	switch {
	case confidence >= 0.9:
		return ConfidenceHigh
	case confidence >= 0.7:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// FieldValidationStatus is the computed status of a single metadata field.
type FieldValidationStatus string

const (
	FieldStatusValid   FieldValidationStatus = "valid"
	FieldStatusInvalid FieldValidationStatus = "invalid"
	FieldStatusUnsure  FieldValidationStatus = "unsure"
)

// ValidationSeverity is the severity of a validation rule.
type ValidationSeverity string

const (
	ValidationSeverityError   ValidationSeverity = "error"
	ValidationSeverityWarning ValidationSeverity = "warning"
)

// ValidationRuleType classifies validation rules.
type ValidationRuleType string

const (
	ValidationRuleRequired ValidationRuleType = "required"
	ValidationRuleMVS      ValidationRuleType = "mvs"
	ValidationRuleFormat   ValidationRuleType = "format"
)

// FeedbackVerdict is a reviewer's response to a delivered result.
type FeedbackVerdict string

const (
	FeedbackCorrect   FeedbackVerdict = "correct"
	FeedbackIncorrect FeedbackVerdict = "incorrect"
	FeedbackPartial   FeedbackVerdict = "partially_correct"
)

// ValidFeedbackVerdicts lists the accepted verdict values.
var ValidFeedbackVerdicts = map[FeedbackVerdict]bool{
	FeedbackCorrect:   true,
	FeedbackIncorrect: true,
	FeedbackPartial:   true,
}
