package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"materialflow/internal/domain"
)

// FileSink persists lifecycle entries as a single JSON array file. Appends
// are serialized within the process and the file is replaced atomically.
type FileSink struct {
	path string
	mu   sync.Mutex
}

// NewFileSink creates a sink writing to path. The file is created on first append.
func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

func (s *FileSink) Append(_ context.Context, entries ...domain.LifecycleEntry) error {
	if len(entries) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.read()
	if err != nil {
		return err
	}
	existing = append(existing, entries...)

	data, err := json.MarshalIndent(existing, "", "  ")
	if err != nil {
		return fmt.Errorf("lifecycle.FileSink: marshaling: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".lifecycle-*.json")
	if err != nil {
		return fmt.Errorf("lifecycle.FileSink: creating temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("lifecycle.FileSink: writing: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("lifecycle.FileSink: closing: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("lifecycle.FileSink: replacing: %w", err)
	}
	return nil
}

// ReadAll returns every persisted entry in append order.
func (s *FileSink) ReadAll() (domain.LifecycleLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

func (s *FileSink) read() (domain.LifecycleLog, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lifecycle.FileSink: reading: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var log domain.LifecycleLog
	if err := json.Unmarshal(data, &log); err != nil {
		return nil, fmt.Errorf("lifecycle.FileSink: decoding: %w", err)
	}
	return log, nil
}
