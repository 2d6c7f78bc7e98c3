package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/leapstack-labs/leapapp/internal/conversation"
	"github.com/leapstack-labs/leapapp/internal/llm"
	_ "modernc.org/sqlite" // SQLite driver (pure Go)
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore creates a new SQLite state store instance.
func NewSQLiteStore() *SQLiteStore {
	return &SQLiteStore{}
}

// Open opens the database at path and applies pending migrations.
// Use ":memory:" for an in-memory database.
func (s *SQLiteStore) Open(ctx context.Context, path string) error {
	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if path != ":memory:" {
		dsn += "&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// one connection keeps :memory: databases alive and serializes writers
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	s.db = db
	s.path = path

	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		s.db = nil
		return err
	}
	return nil
}

// Path returns the database path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// generateID creates a new UUID.
func generateID() string {
	return uuid.New().String()
}

// --- Session operations ---

// CreateSession starts a new session record.
func (s *SQLiteStore) CreateSession(ctx context.Context, projectDir, database, model string) (*Session, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	now := time.Now().UTC()
	sess := &Session{
		ID:         generateID(),
		ProjectDir: projectDir,
		Database:   database,
		Model:      model,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, project_dir, db_name, model, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.ProjectDir, sess.Database, sess.Model, sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return sess, nil
}

const sessionColumns = `s.id, s.project_dir, s.db_name, s.model, s.created_at, s.updated_at, s.artifact_generated,
	(SELECT COUNT(*) FROM turns t WHERE t.session_id = s.id AND t.kind = 'visible')`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	sess := &Session{}
	err := row.Scan(&sess.ID, &sess.ProjectDir, &sess.Database, &sess.Model,
		&sess.CreatedAt, &sess.UpdatedAt, &sess.ArtifactGenerated, &sess.Turns)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// GetSession retrieves a session by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*Session, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions s WHERE s.id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return sess, nil
}

// LatestSession returns the most recently updated session. A non-empty
// projectDir restricts the lookup to that project.
func (s *SQLiteStore) LatestSession(ctx context.Context, projectDir string) (*Session, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions s
		WHERE ? = '' OR s.project_dir = ?
		ORDER BY s.updated_at DESC, s.created_at DESC LIMIT 1`,
		projectDir, projectDir,
	)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest session: %w", err)
	}
	return sess, nil
}

// ListSessions returns sessions, newest first. A limit <= 0 returns all.
func (s *SQLiteStore) ListSessions(ctx context.Context, limit int) ([]*Session, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions s ORDER BY s.updated_at DESC, s.created_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// SetDatabase records the database bound to a session.
func (s *SQLiteStore) SetDatabase(ctx context.Context, id, database string) error {
	return s.updateSession(ctx, id, `UPDATE sessions SET db_name = ?, updated_at = ? WHERE id = ?`, database)
}

// SetArtifactGenerated records that a session has produced an artifact.
func (s *SQLiteStore) SetArtifactGenerated(ctx context.Context, id string, generated bool) error {
	return s.updateSession(ctx, id, `UPDATE sessions SET artifact_generated = ?, updated_at = ? WHERE id = ?`, generated)
}

func (s *SQLiteStore) updateSession(ctx context.Context, id, query string, value any) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	result, err := s.db.ExecContext(ctx, query, value, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return nil
}

// --- Transcript operations ---

// AppendTurns adds turns to the end of a session transcript.
func (s *SQLiteStore) AppendTurns(ctx context.Context, id string, kind conversation.Kind, turns []conversation.Turn) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	if len(turns) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var next int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM turns WHERE session_id = ? AND kind = ?`,
		id, string(kind),
	).Scan(&next); err != nil {
		return fmt.Errorf("failed to read transcript position: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO turns (session_id, kind, seq, role, content, created_at) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, turn := range turns {
		created := turn.CreatedAt
		if created.IsZero() {
			created = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx, id, string(kind), next+int64(i), string(turn.Role), turn.Content, created); err != nil {
			return fmt.Errorf("failed to insert turn: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET updated_at = ? WHERE id = ?`, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit turns: %w", err)
	}
	return nil
}

// LoadTranscript returns a session transcript in order.
func (s *SQLiteStore) LoadTranscript(ctx context.Context, id string, kind conversation.Kind) ([]conversation.Turn, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content, created_at FROM turns WHERE session_id = ? AND kind = ? ORDER BY seq`,
		id, string(kind),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load transcript: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var turns []conversation.Turn
	for rows.Next() {
		var role string
		var turn conversation.Turn
		if err := rows.Scan(&role, &turn.Content, &turn.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turn.Role = llm.Role(role)
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}

var _ Store = (*SQLiteStore)(nil)
