// Package session owns everything around a conversation that outlives a
// single turn: which database is bound, the editor rules file, the preview
// process and the stored transcript.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/leapapp/internal/conversation"
	"github.com/leapstack-labs/leapapp/internal/llm"
	"github.com/leapstack-labs/leapapp/internal/prompts"
	"github.com/leapstack-labs/leapapp/internal/state"
	"github.com/leapstack-labs/leapapp/internal/warehouse"
)

// DefaultRulesFile is the rules file name inside the project directory.
const DefaultRulesFile = ".cursorrules"

// Status texts shown while a turn runs.
const (
	GeneratingText = "Generating app, please wait..."
	UpdatingText   = "Updating app, please wait..."
)

// Sentinel errors.
var (
	// ErrNoDatabase is returned when a database name is required but empty.
	ErrNoDatabase = errors.New("no database selected")
	// ErrNoSchemaProvider is returned when binding without a warehouse.
	ErrNoSchemaProvider = errors.New("no warehouse configured")
	// ErrNoStore is returned when resuming without a state store.
	ErrNoStore = errors.New("no state store configured")
)

// Preview is the background preview started once per session.
type Preview interface {
	Start(ctx context.Context) error
	Stop()
	URL() string
}

// DatabaseLister lists the databases a session can bind to.
type DatabaseLister interface {
	ListDatabases(ctx context.Context) ([]string, error)
}

// Config wires a Manager.
type Config struct {
	Machine *conversation.Machine

	Schema    warehouse.SchemaProvider
	Databases DatabaseLister

	ProjectDir string
	// RulesFile is relative to ProjectDir. Defaults to DefaultRulesFile.
	RulesFile string
	Rules     *prompts.Rules
	AppName   string

	Preview Preview

	// Store and SessionID persist the binding and the artifact flag. Optional.
	Store     state.Store
	SessionID string

	// Closers are closed by Close, in order.
	Closers []io.Closer

	Logger *slog.Logger
}

// Manager drives one chat session.
type Manager struct {
	machine   *conversation.Machine
	session   *conversation.Session
	schema    warehouse.SchemaProvider
	databases DatabaseLister
	rules     *prompts.Rules
	rulesPath string
	appName   string
	preview   Preview
	store     state.Store
	sessionID string
	closers   []io.Closer
	logger    *slog.Logger
}

// New creates a Manager. Machine is required.
func New(cfg Config) (*Manager, error) {
	if cfg.Machine == nil {
		return nil, fmt.Errorf("conversation machine is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.RulesFile == "" {
		cfg.RulesFile = DefaultRulesFile
	}
	if cfg.Rules == nil {
		rules, err := prompts.NewRules("")
		if err != nil {
			return nil, err
		}
		cfg.Rules = rules
	}
	if cfg.Databases == nil {
		if lister, ok := cfg.Schema.(DatabaseLister); ok {
			cfg.Databases = lister
		}
	}

	return &Manager{
		machine:   cfg.Machine,
		session:   cfg.Machine.Session(),
		schema:    cfg.Schema,
		databases: cfg.Databases,
		rules:     cfg.Rules,
		rulesPath: filepath.Join(cfg.ProjectDir, cfg.RulesFile),
		appName:   cfg.AppName,
		preview:   cfg.Preview,
		store:     cfg.Store,
		sessionID: cfg.SessionID,
		closers:   cfg.Closers,
		logger:    cfg.Logger,
	}, nil
}

// Machine returns the conversation machine.
func (m *Manager) Machine() *conversation.Machine { return m.machine }

// Session returns the session context.
func (m *Manager) Session() *conversation.Session { return m.session }

// SessionID returns the stored session id, or "".
func (m *Manager) SessionID() string { return m.sessionID }

// RulesPath returns where the rules file is written.
func (m *Manager) RulesPath() string { return m.rulesPath }

// Bind selects database and loads its schema. Switching databases keeps
// the first-artifact flag.
func (m *Manager) Bind(ctx context.Context, database string) error {
	database = strings.TrimSpace(database)
	if database == "" {
		return ErrNoDatabase
	}
	if m.schema == nil {
		return ErrNoSchemaProvider
	}

	schema, err := m.schema.SchemaText(ctx, database)
	if err != nil {
		return fmt.Errorf("failed to load schema for %s: %w", database, err)
	}
	m.session.Bind(database, schema)
	m.logger.Info("database bound",
		slog.String("database", database),
		slog.Int("schema_bytes", len(schema)),
	)

	if m.store != nil && m.sessionID != "" {
		if err := m.store.SetDatabase(ctx, m.sessionID, database); err != nil {
			m.logger.Warn("failed to record database", slog.String("error", err.Error()))
		}
	}
	return nil
}

// Databases lists the databases available for binding.
func (m *Manager) Databases(ctx context.Context) ([]string, error) {
	if m.databases == nil {
		return nil, ErrNoSchemaProvider
	}
	return m.databases.ListDatabases(ctx)
}

// StatusText returns the text shown while the next turn runs.
func (m *Manager) StatusText() string {
	if m.session.FirstArtifactGenerated() {
		return UpdatingText
	}
	return GeneratingText
}

// Submit runs one turn. When a schema is bound the rules file is rewritten
// once the machine accepts the turn; a failure to write it is logged and
// does not stop the turn.
func (m *Manager) Submit(ctx context.Context, text string, opts ...conversation.SubmitOption) (*conversation.TurnResult, error) {
	opts = append(opts, conversation.WithTurnStart(m.refreshRules))

	hadArtifact := m.session.FirstArtifactGenerated()
	result, err := m.machine.Submit(ctx, text, opts...)
	if err != nil {
		return nil, err
	}

	if !hadArtifact && m.session.FirstArtifactGenerated() {
		m.recordArtifactFlag(ctx, true)
	}
	return result, nil
}

func (m *Manager) refreshRules() {
	if m.session.Schema() == "" {
		return
	}
	if err := m.WriteRules(); err != nil {
		m.logger.Warn("failed to write rules file", slog.String("error", err.Error()))
	}
}

// WriteRules renders the rules file for the bound database and schema.
func (m *Manager) WriteRules() error {
	content, err := m.rules.String(prompts.RulesData{
		AppName:  m.appName,
		Database: m.session.Database(),
		Schema:   m.session.Schema(),
	})
	if err != nil {
		return err
	}
	if err := os.WriteFile(m.rulesPath, []byte(content), 0o644); err != nil { //nolint:gosec // rules are read by editors
		return fmt.Errorf("failed to write rules file: %w", err)
	}
	m.logger.Debug("rules file written", slog.String("path", m.rulesPath))
	return nil
}

// StartPreview starts the preview in the background the first time it is
// called and reports whether this call started it. Start failures are
// logged only.
func (m *Manager) StartPreview(ctx context.Context) bool {
	if m.preview == nil || !m.session.ClaimPreviewStart() {
		return false
	}
	if err := m.preview.Start(ctx); err != nil {
		m.logger.Error("failed to start preview", slog.String("error", err.Error()))
	}
	return true
}

// PreviewURL returns the preview address, or "" without a preview.
func (m *Manager) PreviewURL() string {
	if m.preview == nil {
		return ""
	}
	return m.preview.URL()
}

// ResetArtifact makes the next turn carry the schema again.
func (m *Manager) ResetArtifact(ctx context.Context) {
	m.session.ResetArtifact()
	m.recordArtifactFlag(ctx, false)
}

// Resume restores a stored session's transcripts and binding. It must be
// called before the first turn.
func (m *Manager) Resume(ctx context.Context, sess *state.Session) error {
	if m.store == nil {
		return ErrNoStore
	}

	visible, err := m.store.LoadTranscript(ctx, sess.ID, conversation.KindVisible)
	if err != nil {
		return err
	}
	internal, err := m.store.LoadTranscript(ctx, sess.ID, conversation.KindInternal)
	if err != nil {
		return err
	}
	// a session with no recorded turns keeps the machine's fresh transcript
	if len(internal) > 0 {
		if err := m.machine.Restore(visible, internal); err != nil {
			return err
		}
	}

	m.sessionID = sess.ID
	if sess.ArtifactGenerated {
		m.session.MarkArtifactGenerated()
	}
	if sess.Database != "" && m.schema != nil {
		if err := m.Bind(ctx, sess.Database); err != nil {
			return err
		}
		if schemaSent(internal, m.session.Schema()) {
			m.session.MarkSchemaInjected()
		}
	}
	m.logger.Info("session resumed",
		slog.String("session", sess.ID),
		slog.Int("visible_turns", len(visible)),
	)
	return nil
}

// Close stops the preview and closes every closer.
func (m *Manager) Close() error {
	if m.preview != nil {
		m.preview.Stop()
	}
	var errs []error
	for _, c := range m.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) recordArtifactFlag(ctx context.Context, generated bool) {
	if m.store == nil || m.sessionID == "" {
		return
	}
	if err := m.store.SetArtifactGenerated(ctx, m.sessionID, generated); err != nil {
		m.logger.Warn("failed to record artifact flag", slog.String("error", err.Error()))
	}
}

// schemaSent reports whether a stored user turn already carried schema.
func schemaSent(internal []conversation.Turn, schema string) bool {
	if schema == "" {
		return false
	}
	for _, t := range internal {
		if t.Role == llm.RoleUser && strings.Contains(t.Content, schema) {
			return true
		}
	}
	return false
}
