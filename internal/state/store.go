// Package state persists chat sessions and their transcripts in SQLite so a
// session can be listed, printed or resumed later.
package state

import (
	"context"
	"errors"
	"time"

	"github.com/leapstack-labs/leapapp/internal/conversation"
)

// ErrSessionNotFound is returned when no session matches a lookup.
var ErrSessionNotFound = errors.New("session not found")

// Session is a stored chat session.
type Session struct {
	ID         string    `json:"id" yaml:"id"`
	ProjectDir string    `json:"project_dir" yaml:"project_dir"`
	Database   string    `json:"database" yaml:"database"`
	Model      string    `json:"model" yaml:"model"`
	CreatedAt  time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" yaml:"updated_at"`

	// ArtifactGenerated mirrors the session's first-artifact flag.
	ArtifactGenerated bool `json:"artifact_generated" yaml:"artifact_generated"`
	// Turns is the number of visible turns.
	Turns int `json:"turns" yaml:"turns"`
}

// Store is the session persistence interface.
type Store interface {
	CreateSession(ctx context.Context, projectDir, database, model string) (*Session, error)
	GetSession(ctx context.Context, id string) (*Session, error)
	LatestSession(ctx context.Context, projectDir string) (*Session, error)
	ListSessions(ctx context.Context, limit int) ([]*Session, error)
	SetDatabase(ctx context.Context, id, database string) error
	SetArtifactGenerated(ctx context.Context, id string, generated bool) error
	AppendTurns(ctx context.Context, id string, kind conversation.Kind, turns []conversation.Turn) error
	LoadTranscript(ctx context.Context, id string, kind conversation.Kind) ([]conversation.Turn, error)
	Close() error
}

// Recorder adapts a Store to conversation.Recorder for one session.
type Recorder struct {
	store     Store
	sessionID string
}

// NewRecorder returns a recorder writing to session id.
func NewRecorder(store Store, id string) *Recorder {
	return &Recorder{store: store, sessionID: id}
}

// AppendTurns implements conversation.Recorder.
func (r *Recorder) AppendTurns(ctx context.Context, kind conversation.Kind, turns []conversation.Turn) error {
	return r.store.AppendTurns(ctx, r.sessionID, kind, turns)
}

// SessionID returns the recorded session.
func (r *Recorder) SessionID() string {
	return r.sessionID
}

var _ conversation.Recorder = (*Recorder)(nil)
