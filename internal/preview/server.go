package preview

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/leapstack-labs/leapapp/internal/build"
	"golang.org/x/sync/errgroup"
)

// DefaultDebounce is how long the watcher waits for writes to settle.
const DefaultDebounce = 100 * time.Millisecond

// ServerConfig holds configuration for the builtin preview server.
type ServerConfig struct {
	ProjectDir string
	Host       string
	// Port 0 picks a free port.
	Port       int
	Title      string
	Bundler    *build.Bundler
	Debounce   time.Duration
	Logger     *slog.Logger
}

// Server bundles the app with esbuild and serves it with live reload.
type Server struct {
	cfg      ServerConfig
	bundler  *build.Bundler
	notifier *Notifier
	logger   *slog.Logger

	mu       sync.RWMutex
	bundle   *build.Bundle
	buildErr error
	version  int
	addr     string
}

// NewServer creates a builtin preview server.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Title == "" {
		cfg.Title = "Data App Preview"
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	bundler := cfg.Bundler
	if bundler == nil {
		bundler = build.NewBundler(cfg.ProjectDir)
	}

	return &Server{
		cfg:      cfg,
		bundler:  bundler,
		notifier: NewNotifier(),
		logger:   cfg.Logger,
		addr:     net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.Port)),
	}
}

// URL returns the address the server listens on.
func (s *Server) URL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return "http://" + s.addr
}

// Notifier returns the live-reload notifier.
func (s *Server) Notifier() *Notifier {
	return s.notifier
}

// Rebuild bundles the project and tells connected browsers to reload. A
// failed bundle is kept and shown in place of the app.
func (s *Server) Rebuild() error {
	bundle, err := s.bundler.Build()

	s.mu.Lock()
	s.version++
	if err != nil {
		s.buildErr = err
	} else {
		s.bundle, s.buildErr = bundle, nil
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("preview build failed", slog.String("error", err.Error()))
		s.notifier.Broadcast(EventError)
		return err
	}
	s.logger.Debug("preview rebuilt")
	s.notifier.Broadcast(EventReload)
	return nil
}

// Handler returns the HTTP routes of the preview.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer, middleware.NoCache)

	r.Get("/", s.handleIndex)
	r.Get("/index.html", s.handleIndex)
	r.Get("/__reload", s.handleSSE)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Group(func(r chi.Router) {
		r.Use(middleware.Compress(5))
		r.Get("/app.js", s.handleAsset("text/javascript; charset=utf-8", func(b *build.Bundle) string { return b.JS }))
		r.Get("/app.css", s.handleAsset("text/css; charset=utf-8", func(b *build.Bundle) string { return b.CSS }))
	})
	return r
}

// Run serves the preview and watches the project sources until ctx is
// cancelled. A failing initial build does not stop the server.
func (s *Server) Run(ctx context.Context) error {
	_ = s.Rebuild()

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port)))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg.Go(func() error {
		return s.watch(egctx)
	})

	eg.Go(func() error {
		s.logger.Info("preview server running", slog.String("url", s.URL()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Debug("shutting down preview server")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

func (s *Server) watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	srcDir := filepath.Join(s.cfg.ProjectDir, "src")
	if err := watchTree(watcher, srcDir); err != nil {
		s.logger.Error("failed to watch sources", slog.String("dir", srcDir), slog.String("error", err.Error()))
	}

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 || !isSource(event.Name) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			name := event.Name
			debounce = time.AfterFunc(s.cfg.Debounce, func() {
				s.logger.Debug("source changed", slog.String("file", filepath.Base(name)))
				_ = s.Rebuild()
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("watcher error", slog.String("error", err.Error()))
		}
	}
}

func isSource(name string) bool {
	switch filepath.Ext(name) {
	case ".js", ".jsx", ".ts", ".tsx", ".css":
		return true
	}
	return false
}

func watchTree(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && (d.Name() == "node_modules" || strings.HasPrefix(d.Name(), ".")) {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	data := pageData{Title: s.cfg.Title, Version: s.version}
	if s.buildErr != nil {
		data.Error = s.buildErr.Error()
	}
	if s.bundle != nil {
		data.HasCSS = s.bundle.CSS != ""
	}
	s.mu.RUnlock()

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleAsset(contentType string, pick func(*build.Bundle) string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.RLock()
		bundle := s.bundle
		s.mu.RUnlock()
		if bundle == nil {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write([]byte(pick(bundle)))
	}
}

func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Connection", "keep-alive")

	ch := s.notifier.Subscribe()
	defer s.notifier.Unsubscribe(ch)

	_, _ = fmt.Fprintf(w, "data: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-ch:
			_, _ = fmt.Fprintf(w, "data: %s\n\n", ev)
			flusher.Flush()
		}
	}
}

type pageData struct {
	Title   string
	Version int
	HasCSS  bool
	Error   string
}

var pageTemplate = template.Must(template.New("page").Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{ .Title }}</title>
{{- if .HasCSS }}
<link rel="stylesheet" href="/app.css?v={{ .Version }}">
{{- end }}
</head>
<body>
<div id="root"></div>
{{- if .Error }}
<pre id="build-error" style="color:#b91c1c;white-space:pre-wrap">{{ .Error }}</pre>
{{- else }}
<script type="module" src="/app.js?v={{ .Version }}"></script>
{{- end }}
<script>
(function() {
  var es = new EventSource('/__reload');
  es.onmessage = function(e) {
    if (e.data === 'reload' || e.data === 'error') {
      window.location.reload();
    }
  };
})();
</script>
</body>
</html>
`))
