package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound             = errors.New("resource not found")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrDocumentNotFound     = errors.New("document not found")
	ErrUnsupportedFileType  = errors.New("unsupported file type")
	ErrFileTooLarge         = errors.New("file exceeds maximum allowed size")
	ErrInvalidTransition    = errors.New("invalid state transition")
	ErrFeedbackTokenInvalid = errors.New("feedback token is invalid or expired")
	ErrInvalidFeedback      = errors.New("invalid feedback verdict")
	ErrNoEvidence           = errors.New("no evidence available")

	ErrMissingAttachment       = errors.New("no PDF attachments found")
	ErrOracleResponseMalformed = errors.New("oracle response malformed")
	ErrValidationFailed        = errors.New("schema validation failed")
	ErrRetryBudgetExhausted    = errors.New("retry budget exhausted")
	ErrVerificationFailed      = errors.New("verification failed")
	ErrUnexpectedInternal      = errors.New("unexpected internal error")
)

// ErrorKind classifies pipeline failures.
type ErrorKind string

const (
	KindMissingAttachment       ErrorKind = "MissingAttachment"
	KindOracleResponseMalformed ErrorKind = "OracleResponseMalformed"
	KindOracleUnavailable       ErrorKind = "OracleUnavailable"
	KindValidationFailed        ErrorKind = "ValidationFailed"
	KindRetryBudgetExhausted    ErrorKind = "RetryBudgetExhausted"
	KindVerificationFailed      ErrorKind = "VerificationFailed"
	KindUnexpectedInternalError ErrorKind = "UnexpectedInternalError"
)

// Retryable reports whether a failure of this kind may consume a retry
// instead of failing the document outright.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindOracleResponseMalformed, KindOracleUnavailable, KindValidationFailed:
		return true
	}
	return false
}

var kindSentinels = map[ErrorKind]error{
	KindMissingAttachment:       ErrMissingAttachment,
	KindOracleResponseMalformed: ErrOracleResponseMalformed,
	KindValidationFailed:        ErrValidationFailed,
	KindRetryBudgetExhausted:    ErrRetryBudgetExhausted,
	KindVerificationFailed:      ErrVerificationFailed,
	KindUnexpectedInternalError: ErrUnexpectedInternal,
}

// PipelineError is a classified failure raised by a pipeline stage.
type PipelineError struct {
	Kind  ErrorKind
	Stage string
	Err   error
}

// NewPipelineError wraps err with a kind and the stage that raised it.
func NewPipelineError(kind ErrorKind, stage string, err error) *PipelineError {
	return &PipelineError{Kind: kind, Stage: stage, Err: err}
}

func (e *PipelineError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Stage, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Kind, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel error that corresponds to the kind, so callers can
// use errors.Is(err, domain.ErrMissingAttachment) on classified failures.
func (e *PipelineError) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	return ok && sentinel == target
}

// KindOf returns the kind of the first PipelineError in err's chain, or
// KindUnexpectedInternalError when err is not classified.
func KindOf(err error) ErrorKind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnexpectedInternalError
}
