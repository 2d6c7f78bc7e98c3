// Package artifact persists the generated component to its single on-disk slot.
package artifact

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// DefaultRelPath is the component location inside the app project.
const DefaultRelPath = "src/components/MyApp.jsx"

// Validation describes the build status of the current artifact.
type Validation string

// Validation states.
const (
	Unvalidated Validation = "unvalidated"
	Valid       Validation = "valid"
	Invalid     Validation = "invalid"
)

// Status is the validation state of the artifact slot.
type Status struct {
	Validation Validation
	Diagnostic string
}

// WriteError reports that the artifact slot could not be written.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to write artifact %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Store persists artifact text. Implementations overwrite unconditionally.
type Store interface {
	Persist(ctx context.Context, text string) error
	Path() string
}

// IsEmpty reports whether text means "nothing to persist". Only the exact
// empty string qualifies; whitespace is still content.
func IsEmpty(text string) bool {
	return text == ""
}

// FileStore writes the artifact to a fixed file path.
type FileStore struct {
	path   string
	logger *slog.Logger

	mu     sync.Mutex
	status Status
}

// NewFileStore creates a store for the file at path. The containing
// directory must already exist; Persist never creates it.
func NewFileStore(path string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &FileStore{
		path:   path,
		logger: logger,
		status: Status{Validation: Unvalidated},
	}
}

// Path returns the artifact slot location.
func (s *FileStore) Path() string {
	return s.path
}

// Persist overwrites the slot with text. Empty text is a no-op and leaves
// both the file and the validation status untouched. The write goes through
// a temporary file in the same directory and a rename, so readers such as the
// build tool or the preview watcher never observe a half-written component.
func (s *FileStore) Persist(ctx context.Context, text string) error {
	if IsEmpty(text) {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return &WriteError{Path: s.path, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return &WriteError{Path: s.path, Err: err}
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.WriteString(text); err != nil {
		_ = tmp.Close()
		return &WriteError{Path: s.path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &WriteError{Path: s.path, Err: err}
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return &WriteError{Path: s.path, Err: err}
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return &WriteError{Path: s.path, Err: err}
	}

	s.status = Status{Validation: Unvalidated}
	s.logger.Debug("artifact persisted", slog.String("path", s.path), slog.Int("bytes", len(text)))
	return nil
}

// MarkValid records a successful build of the current artifact.
func (s *FileStore) MarkValid() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = Status{Validation: Valid}
}

// MarkInvalid records a failed build and its diagnostic.
func (s *FileStore) MarkInvalid(diagnostic string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = Status{Validation: Invalid, Diagnostic: diagnostic}
}

// Status returns the validation state of the current artifact.
func (s *FileStore) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Read returns the current artifact content. Used by mirrors and the CLI,
// never by the turn pipeline.
func (s *FileStore) Read() (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return "", fmt.Errorf("failed to read artifact: %w", err)
	}
	return string(data), nil
}
