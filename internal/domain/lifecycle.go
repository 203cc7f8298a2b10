package domain

import "time"

// LifecycleEntry is one immutable state transition record.
type LifecycleEntry struct {
	DocumentID string        `json:"document_id" db:"document_id" firestore:"documentId"`
	FromState  DocumentState `json:"from_state" db:"from_state" firestore:"fromState"`
	ToState    DocumentState `json:"to_state" db:"to_state" firestore:"toState"`
	Timestamp  time.Time     `json:"timestamp" db:"created_at" firestore:"timestamp"`
	Agent      string        `json:"agent" db:"agent" firestore:"agent"`
	Notes      string        `json:"notes" db:"notes" firestore:"notes"`
}

// LifecycleLog is an append-only sequence of lifecycle entries.
type LifecycleLog []LifecycleEntry

// Append returns a new log with entries added at the end. The receiver is
// never modified, so earlier holders of the log keep their view.
func (l LifecycleLog) Append(entries ...LifecycleEntry) LifecycleLog {
	out := make(LifecycleLog, 0, len(l)+len(entries))
	out = append(out, l...)
	return append(out, entries...)
}

// ForDocument returns the entries belonging to one document, in log order.
// Entries of a document are not assumed to be contiguous.
func (l LifecycleLog) ForDocument(documentID string) LifecycleLog {
	var out LifecycleLog
	for _, e := range l {
		if e.DocumentID == documentID {
			out = append(out, e)
		}
	}
	return out
}

// Since returns the entries appended after the first n.
func (l LifecycleLog) Since(n int) LifecycleLog {
	if n >= len(l) {
		return nil
	}
	return append(LifecycleLog(nil), l[n:]...)
}
