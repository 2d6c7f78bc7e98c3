// Package preview runs the live preview of the generated app, either as the
// project's own dev server process or as a builtin esbuild-backed server.
package preview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"sync"
)

// Preview modes.
const (
	ModeCommand = "command"
	ModeBuiltin = "builtin"
)

// Defaults for the dev server process.
const (
	DefaultCommand = "npm run dev"
	DefaultPort    = 5173
)

// ErrAlreadyStarted is returned when a supervisor is started twice.
var ErrAlreadyStarted = errors.New("preview already started")

// Runner serves the preview until ctx is cancelled.
type Runner interface {
	Run(ctx context.Context) error
	URL() string
}

// Supervisor runs a Runner in the background, at most once.
type Supervisor struct {
	runner Runner
	logger *slog.Logger

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
}

// NewSupervisor creates a supervisor for runner.
func NewSupervisor(runner Runner, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Supervisor{runner: runner, logger: logger, done: make(chan struct{})}
}

// Start launches the runner and returns immediately. The runner outlives
// ctx's cancellation and is stopped only by Stop. A second call returns
// ErrAlreadyStarted.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	s.logger.Info("starting preview", slog.String("url", s.runner.URL()))
	go func() {
		defer close(s.done)
		err := s.runner.Run(runCtx)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("preview stopped", slog.String("error", err.Error()))
		} else {
			s.logger.Debug("preview stopped")
		}
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
	}()
	return nil
}

// Started reports whether Start has been called.
func (s *Supervisor) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// URL returns the preview address.
func (s *Supervisor) URL() string {
	return s.runner.URL()
}

// Done is closed when the runner returns.
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

// Err returns the runner's exit error once Done is closed.
func (s *Supervisor) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Stop cancels the runner and waits for it to return. Stop on a supervisor
// that never started is a no-op.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	cancel, started := s.cancel, s.started
	s.mu.Unlock()
	if !started {
		return
	}
	cancel()
	<-s.done
}

// OpenBrowser opens url with the platform's default handler.
func OpenBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
