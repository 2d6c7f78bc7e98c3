package preview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// CommandRunner runs the project's dev server as a child process.
type CommandRunner struct {
	dir    string
	args   []string
	port   int
	env    []string
	output io.Writer
	logger *slog.Logger

	// grace is how long the process gets to exit after an interrupt.
	grace time.Duration
}

// CommandOption configures a CommandRunner.
type CommandOption func(*CommandRunner)

// WithOutput sends the process output to w. It is discarded by default.
func WithOutput(w io.Writer) CommandOption {
	return func(r *CommandRunner) {
		if w != nil {
			r.output = w
		}
	}
}

// WithEnv adds environment variables to the process.
func WithEnv(env ...string) CommandOption {
	return func(r *CommandRunner) { r.env = append(r.env, env...) }
}

// WithCommandLogger sets the logger.
func WithCommandLogger(logger *slog.Logger) CommandOption {
	return func(r *CommandRunner) { r.logger = logger }
}

// NewCommandRunner creates a runner for command in dir. Port is only used
// to report the preview URL.
func NewCommandRunner(dir, command string, port int, opts ...CommandOption) (*CommandRunner, error) {
	if command == "" {
		command = DefaultCommand
	}
	args := strings.Fields(command)
	if port <= 0 {
		port = DefaultPort
	}

	r := &CommandRunner{
		dir:    dir,
		args:   args,
		port:   port,
		output: io.Discard,
		logger: slog.New(slog.DiscardHandler),
		grace:  5 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	if len(r.args) == 0 {
		return nil, fmt.Errorf("empty preview command")
	}
	return r, nil
}

// URL returns the dev server address.
func (r *CommandRunner) URL() string {
	return fmt.Sprintf("http://localhost:%d", r.port)
}

// Run starts the process and waits for it. Cancelling ctx interrupts the
// process, then kills it after a grace period.
func (r *CommandRunner) Run(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, r.args[0], r.args[1:]...) //nolint:gosec // command comes from user config
	cmd.Dir = r.dir
	cmd.Stdout = r.output
	cmd.Stderr = r.output
	cmd.Env = append(os.Environ(), r.env...)
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = r.grace

	r.logger.Debug("running preview command", slog.String("command", strings.Join(r.args, " ")), slog.String("dir", r.dir))
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start preview command: %w", err)
	}

	err := cmd.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("preview command exited with code %d", exitErr.ExitCode())
		}
		return fmt.Errorf("preview command failed: %w", err)
	}
	return nil
}
