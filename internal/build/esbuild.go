package build

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/evanw/esbuild/pkg/api"
)

// DefaultEntryPoint is the app entry relative to the project directory.
const DefaultEntryPoint = "src/main.jsx"

// Bundle is the in-memory output of an esbuild run.
type Bundle struct {
	JS  string
	CSS string
}

// Bundler compiles the app project with esbuild, without touching disk.
type Bundler struct {
	ProjectDir string
	EntryPoint string
	Minify     bool
}

// NewBundler creates a bundler for the project at dir.
func NewBundler(dir string) *Bundler {
	return &Bundler{ProjectDir: dir, EntryPoint: DefaultEntryPoint}
}

func (b *Bundler) options() api.BuildOptions {
	entry := b.EntryPoint
	if entry == "" {
		entry = DefaultEntryPoint
	}
	dir := b.ProjectDir
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	opts := api.BuildOptions{
		EntryPoints:   []string{filepath.Join(dir, entry)},
		Bundle:        true,
		Write:         false,
		Outdir:        "out",
		AbsWorkingDir: dir,

		JSX: api.JSXAutomatic,

		NodePaths: []string{filepath.Join(dir, "node_modules")},
		Alias: map[string]string{
			"@": filepath.Join(dir, "src"),
		},

		Loader: map[string]api.Loader{
			".js":  api.LoaderJSX,
			".jsx": api.LoaderJSX,
			".ts":  api.LoaderTS,
			".tsx": api.LoaderTSX,
			".css": api.LoaderCSS,
			".svg": api.LoaderDataURL,
		},

		Platform:    api.PlatformBrowser,
		Format:      api.FormatESModule,
		Target:      api.ES2020,
		TreeShaking: api.TreeShakingTrue,
		Sourcemap:   api.SourceMapNone,
		Define: map[string]string{
			"process.env.NODE_ENV": `"development"`,
		},
		LogLevel: api.LogLevelSilent,
	}
	if b.Minify {
		opts.MinifyWhitespace = true
		opts.MinifyIdentifiers = true
		opts.MinifySyntax = true
		opts.Define["process.env.NODE_ENV"] = `"production"`
	}
	return opts
}

// Build bundles the project. Compile errors are returned as a *CompileError.
func (b *Bundler) Build() (*Bundle, error) {
	result := api.Build(b.options())
	if len(result.Errors) > 0 {
		return nil, &CompileError{Messages: result.Errors}
	}

	bundle := &Bundle{}
	for _, file := range result.OutputFiles {
		switch filepath.Ext(file.Path) {
		case ".js":
			bundle.JS = string(file.Contents)
		case ".css":
			bundle.CSS = string(file.Contents)
		}
	}
	if bundle.JS == "" {
		return nil, fmt.Errorf("no JavaScript output generated")
	}
	return bundle, nil
}

// CompileError holds the esbuild error messages of a failed bundle.
type CompileError struct {
	Messages []api.Message
}

func (e *CompileError) Error() string {
	var b strings.Builder
	for _, msg := range e.Messages {
		if msg.Location != nil {
			fmt.Fprintf(&b, "%s:%d:%d: %s\n", msg.Location.File, msg.Location.Line, msg.Location.Column, msg.Text)
			continue
		}
		fmt.Fprintf(&b, "%s\n", msg.Text)
	}
	return strings.TrimRight(b.String(), "\n")
}

// ESBuildValidator validates the project by bundling it in-process.
type ESBuildValidator struct {
	bundler *Bundler
	logger  *slog.Logger
	mu      sync.Mutex
}

// NewESBuildValidator creates a validator around bundler.
func NewESBuildValidator(bundler *Bundler, logger *slog.Logger) *ESBuildValidator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ESBuildValidator{bundler: bundler, logger: logger}
}

// Validate bundles the project. esbuild is not cancellable, so ctx is only
// checked before starting.
func (v *ESBuildValidator) Validate(ctx context.Context) Result {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Failure(fmt.Sprintf("build canceled: %v", err))
	}

	if _, err := v.bundler.Build(); err != nil {
		v.logger.Warn("esbuild failed", slog.String("error", err.Error()))
		return Failure(fmt.Sprintf("Error running esbuild: %s", err.Error()))
	}
	v.logger.Debug("esbuild succeeded", slog.String("dir", v.bundler.ProjectDir))
	return Success()
}
