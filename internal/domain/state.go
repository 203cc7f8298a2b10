package domain

// transitions lists the forward edges of the document state machine.
// FAILED is handled separately: it is reachable from every non-terminal state.
var transitions = map[DocumentState][]DocumentState{
	StateReceived:           {StateInterpreted},
	StateInterpreted:        {StateUploaded, StateExtracted, StateRetryExtraction},
	StateUploaded:           {StateExtracted, StateRetryExtraction},
	StateRetryExtraction:    {StateUploaded, StateExtracted, StateRetryExtraction},
	StateExtracted:          {StateValidated, StateValidationFailed},
	StateValidated:          {StateVerified, StateVerifiedWithIssues},
	StateValidationFailed:   {StateRetryExtraction, StateFallback, StateVerifiedWithIssues},
	StateFallback:           {StateCompletedWithFallback},
	StateVerified:           {StateCompleted},
	StateVerifiedWithIssues: {StateCompleted},
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to DocumentState) bool {
	if from.IsTerminal() {
		return false
	}
	if to == StateFailed {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
