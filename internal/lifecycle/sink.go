package lifecycle

import (
	"context"
	"errors"
	"sync"

	"materialflow/internal/domain"
	"materialflow/internal/port"
)

// MultiSink fans entries out to several sinks. Every sink is attempted; the
// errors of failing sinks are joined.
type MultiSink struct {
	sinks []port.LifecycleSink
}

// NewMultiSink creates a MultiSink, skipping nil sinks.
func NewMultiSink(sinks ...port.LifecycleSink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

func (m *MultiSink) Append(ctx context.Context, entries ...domain.LifecycleEntry) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Append(ctx, entries...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MemorySink keeps entries in process memory.
type MemorySink struct {
	mu  sync.Mutex
	log domain.LifecycleLog
}

func (m *MemorySink) Append(_ context.Context, entries ...domain.LifecycleEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log = m.log.Append(entries...)
	return nil
}

// Entries returns a snapshot of the stored log.
func (m *MemorySink) Entries() domain.LifecycleLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.log
}
