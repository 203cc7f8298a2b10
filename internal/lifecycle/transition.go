package lifecycle

import (
	"fmt"
	"time"

	"materialflow/internal/domain"
)

// Advance moves doc to the next state and appends the matching entry. The
// returned document carries a new log; the argument is left untouched.
func Advance(doc domain.Document, to domain.DocumentState, agent, notes string, at time.Time) (domain.Document, error) {
	if !domain.CanTransition(doc.State, to) {
		return doc, fmt.Errorf("%w: %s -> %s for %s", domain.ErrInvalidTransition, doc.State, to, doc.ID)
	}
	doc.Lifecycle = doc.Lifecycle.Append(Entry(doc.ID, doc.State, to, agent, notes, at))
	doc.State = to
	return doc, nil
}

// Fail moves doc to FAILED from any non-terminal state. A document that is
// already terminal is returned as is.
func Fail(doc domain.Document, agent, notes string, at time.Time) domain.Document {
	if doc.State.IsTerminal() {
		return doc
	}
	doc.Lifecycle = doc.Lifecycle.Append(Entry(doc.ID, doc.State, domain.StateFailed, agent, notes, at))
	doc.State = domain.StateFailed
	return doc
}

// Entry builds a lifecycle entry with a UTC timestamp.
func Entry(documentID string, from, to domain.DocumentState, agent, notes string, at time.Time) domain.LifecycleEntry {
	return domain.LifecycleEntry{
		DocumentID: documentID,
		FromState:  from,
		ToState:    to,
		Timestamp:  at.UTC(),
		Agent:      agent,
		Notes:      notes,
	}
}
