package conversation

import "sync"

// Session is the state carried from turn to turn: the bound database and
// its schema, whether an artifact has been produced yet, the pending error
// slot and the preview flags. It is passed explicitly to the Machine and
// to the lifecycle manager; nothing about a session lives in globals.
type Session struct {
	mu sync.Mutex

	database string
	schema   string

	firstArtifactGenerated bool
	schemaInjected         bool

	pendingError string
	hasPending   bool

	previewAvailable bool
	previewStarted   bool
}

// NewSession returns an empty session.
func NewSession() *Session {
	return &Session{}
}

// Bind selects database and its schema text. Rebinding keeps the
// first-artifact flag; use ResetArtifact to clear it. The next turn carries
// the schema unless an artifact was already generated.
func (s *Session) Bind(database, schema string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.database = database
	s.schema = schema
	s.schemaInjected = false
}

// Database returns the bound database name.
func (s *Session) Database() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.database
}

// Schema returns the bound schema text.
func (s *Session) Schema() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schema
}

// FirstArtifactGenerated reports whether a turn has produced an artifact.
func (s *Session) FirstArtifactGenerated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.firstArtifactGenerated
}

func (s *Session) markFirstArtifact() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.firstArtifactGenerated = true
}

// MarkArtifactGenerated sets the first-artifact flag, for sessions resumed
// from a stored transcript.
func (s *Session) MarkArtifactGenerated() {
	s.markFirstArtifact()
}

// ResetArtifact clears the first-artifact flag so the next turn carries
// the schema again.
func (s *Session) ResetArtifact() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.firstArtifactGenerated = false
	s.schemaInjected = false
}

// SchemaPending reports whether the next turn must carry the schema: one
// is bound, it has not been sent since binding and no artifact exists yet.
func (s *Session) SchemaPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schema != "" && !s.schemaInjected && !s.firstArtifactGenerated
}

// MarkSchemaInjected records that the bound schema reached the model.
func (s *Session) MarkSchemaInjected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schemaInjected = true
}

func (s *Session) setPendingError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingError = msg
	s.hasPending = true
}

// HasPendingError reports whether an error is waiting to be shown.
func (s *Session) HasPendingError() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasPending
}

// TakePendingError returns the pending error and clears the slot. Every
// pending error is returned exactly once.
func (s *Session) TakePendingError() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.pendingError, s.hasPending
	s.pendingError, s.hasPending = "", false
	return msg, ok
}

// PreviewAvailable reports whether the last build succeeded.
func (s *Session) PreviewAvailable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.previewAvailable
}

func (s *Session) setPreviewAvailable(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.previewAvailable = v
}

// ClaimPreviewStart returns true for the first caller only.
func (s *Session) ClaimPreviewStart() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.previewStarted {
		return false
	}
	s.previewStarted = true
	return true
}

// PreviewStarted reports whether the preview has been started.
func (s *Session) PreviewStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.previewStarted
}
