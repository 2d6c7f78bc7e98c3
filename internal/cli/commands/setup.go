package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/leapapp/internal/artifact"
	"github.com/leapstack-labs/leapapp/internal/build"
	"github.com/leapstack-labs/leapapp/internal/cli/config"
	"github.com/leapstack-labs/leapapp/internal/cli/output"
	"github.com/leapstack-labs/leapapp/internal/conversation"
	"github.com/leapstack-labs/leapapp/internal/llm"
	"github.com/leapstack-labs/leapapp/internal/preview"
	"github.com/leapstack-labs/leapapp/internal/prompts"
	"github.com/leapstack-labs/leapapp/internal/session"
	"github.com/leapstack-labs/leapapp/internal/state"
	"github.com/leapstack-labs/leapapp/internal/warehouse"
	"github.com/spf13/cobra"
)

// OpenRouter attribution headers.
var openRouterHeaders = map[string]string{
	"HTTP-Referer": "https://motherduck.com/",
	"X-Title":      "MotherDuck Data App Generator",
}

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext from the command's context.
func NewCommandContext(cmd *cobra.Command) *CommandContext {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())
	mode := output.Mode(cfg.OutputFormat)
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Renderer: r,
	}
}

// getConfig returns the current configuration, or the defaults when none
// was loaded.
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}
	return config.Default()
}

// openWarehouse connects to the configured warehouse and wraps it with the
// schema cache.
func openWarehouse(ctx context.Context, cfg *config.Config, logger *slog.Logger) (warehouse.Warehouse, *warehouse.Cached, error) {
	wh, err := warehouse.Open(ctx, cfg.WarehouseSettings(), logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to warehouse: %w", err)
	}
	size := warehouse.DefaultCacheSize
	if cfg.Warehouse != nil && cfg.Warehouse.CacheSize > 0 {
		size = cfg.Warehouse.CacheSize
	}
	cached, err := warehouse.NewCached(wh, size)
	if err != nil {
		_ = wh.Close()
		return nil, nil, err
	}
	return wh, cached, nil
}

// newModelClient creates the language model client.
func newModelClient(cfg *config.Config) (llm.Client, error) {
	m := cfg.Model
	if m == nil {
		m = config.Default().Model
	}
	lc := llm.Config{
		Provider:  m.Provider,
		Model:     m.Name,
		BaseURL:   m.BaseURL,
		APIKey:    cfg.APIKey(),
		MaxTokens: m.MaxTokens,
	}
	if strings.EqualFold(m.Provider, llm.ProviderOpenRouter) || m.Provider == "" {
		lc.Headers = openRouterHeaders
	}
	client, err := llm.New(lc)
	if err != nil {
		return nil, fmt.Errorf("failed to create model client: %w (is %s set?)", err, cfg.APIKeyEnv())
	}
	return client, nil
}

// newValidator creates the build validator for the project.
func newValidator(cfg *config.Config, logger *slog.Logger) build.Validator {
	b := cfg.Build
	if b == nil {
		b = config.Default().Build
	}
	if b.Mode == config.BuildModeESBuild {
		return build.NewESBuildValidator(build.NewBundler(cfg.ProjectDir), logger)
	}
	return build.NewCommandValidator(cfg.ProjectDir, b.Command,
		build.WithTimeout(b.Timeout),
		build.WithLogger(logger),
	)
}

// newPreview creates the preview supervisor, or nil when previews are off.
func newPreview(cfg *config.Config, logger *slog.Logger, processOutput io.Writer) (*preview.Supervisor, error) {
	if !cfg.PreviewEnabled() {
		return nil, nil
	}
	runner, err := newPreviewRunner(cfg, logger, processOutput)
	if err != nil {
		return nil, err
	}
	return preview.NewSupervisor(runner, logger), nil
}

func newPreviewRunner(cfg *config.Config, logger *slog.Logger, processOutput io.Writer) (preview.Runner, error) {
	p := cfg.Preview
	if p.Mode == preview.ModeBuiltin {
		return preview.NewServer(preview.ServerConfig{
			ProjectDir: cfg.ProjectDir,
			Port:       p.Port,
			Logger:     logger,
		}), nil
	}
	return preview.NewCommandRunner(cfg.ProjectDir, p.Command, p.Port,
		preview.WithOutput(processOutput),
		preview.WithCommandLogger(logger),
	)
}

// openStateStore opens the session database, creating its directory.
func openStateStore(ctx context.Context, cfg *config.Config) (*state.SQLiteStore, error) {
	stateDir := filepath.Dir(cfg.StatePath)
	if stateDir != "." && stateDir != "" {
		if err := os.MkdirAll(stateDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}
	store := state.NewSQLiteStore()
	if err := store.Open(ctx, cfg.StatePath); err != nil {
		return nil, err
	}
	return store, nil
}

// findSession resolves a session reference: "latest" picks the most recent
// session of the project, anything else is a session id.
func findSession(ctx context.Context, store state.Store, cfg *config.Config, ref string) (*state.Session, error) {
	if ref == "" || ref == "latest" {
		sess, err := store.LatestSession(ctx, cfg.ProjectDir)
		if errors.Is(err, state.ErrSessionNotFound) {
			return nil, fmt.Errorf("no stored sessions for %s", cfg.ProjectDir)
		}
		return sess, err
	}
	return store.GetSession(ctx, ref)
}

// AppOptions tunes OpenApp.
type AppOptions struct {
	// Resume is a session id or "latest". Empty starts a new session.
	Resume string
	// NoPreview disables the preview regardless of config.
	NoPreview bool
	// PreviewOutput receives the dev server's output. Nil discards it.
	PreviewOutput io.Writer
	// OnTransition observes conversation state changes.
	OnTransition func(from, to conversation.State)
}

// App is a fully wired chat session.
type App struct {
	Manager *session.Manager
	Store   *state.SQLiteStore
	Session *state.Session
}

// Close releases everything the app opened.
func (a *App) Close() error {
	return a.Manager.Close()
}

// OpenApp wires the warehouse, model client, artifact store, build
// validator, preview and session store into a session manager.
func OpenApp(ctx context.Context, cc *CommandContext, opts AppOptions) (app *App, err error) {
	cfg, logger := cc.Cfg, cc.Logger

	if err := cfg.ValidateProjectDir(); err != nil {
		return nil, err
	}

	var closers []io.Closer
	defer func() {
		if err != nil {
			for _, c := range closers {
				_ = c.Close()
			}
		}
	}()

	wh, cached, err := openWarehouse(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	closers = append(closers, wh)

	client, err := newModelClient(cfg)
	if err != nil {
		return nil, err
	}

	systemPrompt, err := prompts.LoadGenerator(cfg.Prompts.Generator)
	if err != nil {
		return nil, err
	}
	rules, err := prompts.NewRules(cfg.Prompts.Rules)
	if err != nil {
		return nil, err
	}

	var mirror artifact.Mirror
	if cfg.Mirror.Enabled() {
		m, err := artifact.NewS3Mirror(artifact.S3Config{
			Endpoint:  cfg.Mirror.Endpoint,
			Region:    cfg.Mirror.Region,
			AccessKey: cfg.Mirror.AccessKey,
			SecretKey: cfg.Mirror.SecretKey,
			Bucket:    cfg.Mirror.Bucket,
			Key:       cfg.Mirror.Key,
			UseSSL:    cfg.Mirror.UseSSL,
		})
		if err != nil {
			return nil, err
		}
		mirror = m
	}

	store, err := openStateStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	closers = append(closers, store)

	var sess *state.Session
	if opts.Resume != "" {
		sess, err = findSession(ctx, store, cfg, opts.Resume)
	} else {
		sess, err = store.CreateSession(ctx, cfg.ProjectDir, "", cfg.Model.Name)
	}
	if err != nil {
		return nil, err
	}

	machine, err := conversation.New(conversation.Config{
		Model:          client,
		Store:          artifact.NewFileStore(cfg.ArtifactPath(), logger),
		Validator:      newValidator(cfg, logger),
		SystemPrompt:   systemPrompt,
		RequestTimeout: cfg.Model.RequestTimeout,
		SummaryTimeout: cfg.Model.SummaryTimeout,
		Mirror:         mirror,
		Recorder:       state.NewRecorder(store, sess.ID),
		OnTransition:   opts.OnTransition,
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}

	var pv session.Preview
	if !opts.NoPreview {
		sup, err := newPreview(cfg, logger, opts.PreviewOutput)
		if err != nil {
			return nil, err
		}
		if sup != nil {
			pv = sup
		}
	}

	manager, err := session.New(session.Config{
		Machine:    machine,
		Schema:     cached,
		Databases:  wh,
		ProjectDir: cfg.ProjectDir,
		Rules:      rules,
		AppName:    prompts.DefaultAppName,
		Preview:    pv,
		Store:      store,
		SessionID:  sess.ID,
		Closers:    closers,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	switch {
	case opts.Resume != "":
		if err := manager.Resume(ctx, sess); err != nil {
			return nil, err
		}
	case cfg.Warehouse.Database != "":
		if err := manager.Bind(ctx, cfg.Warehouse.Database); err != nil {
			return nil, err
		}
	}

	return &App{Manager: manager, Store: store, Session: sess}, nil
}
