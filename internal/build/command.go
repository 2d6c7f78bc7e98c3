package build

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// DefaultCommand is the build command run in the app project.
const DefaultCommand = "npm run build"

// DefaultTimeout bounds a single build invocation.
const DefaultTimeout = 2 * time.Minute

// CommandValidator runs an external build command in the project directory.
type CommandValidator struct {
	dir     string
	args    []string
	timeout time.Duration
	logger  *slog.Logger

	// one build at a time against the artifact slot
	mu sync.Mutex
}

// CommandOption configures a CommandValidator.
type CommandOption func(*CommandValidator)

// WithTimeout sets the per-build timeout. Zero disables it.
func WithTimeout(d time.Duration) CommandOption {
	return func(v *CommandValidator) {
		if d > 0 {
			v.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) CommandOption {
	return func(v *CommandValidator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// NewCommandValidator creates a validator that runs command inside dir.
// The command is split on whitespace; an empty command uses DefaultCommand.
func NewCommandValidator(dir, command string, opts ...CommandOption) *CommandValidator {
	args := strings.Fields(command)
	if len(args) == 0 {
		args = strings.Fields(DefaultCommand)
	}
	v := &CommandValidator{
		dir:     dir,
		args:    args,
		timeout: DefaultTimeout,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Command returns the command line the validator runs.
func (v *CommandValidator) Command() string {
	return strings.Join(v.args, " ")
}

// Validate runs the build once and classifies the outcome.
func (v *CommandValidator) Validate(ctx context.Context) Result {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	// #nosec G204 -- build command comes from the user's own configuration
	cmd := exec.CommandContext(ctx, v.args[0], v.args[1:]...)
	cmd.Dir = v.dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	logger := v.logger.With(
		slog.String("command", v.Command()),
		slog.String("dir", v.dir),
		slog.Duration("duration", time.Since(start)),
	)
	if err == nil {
		logger.Debug("build succeeded")
		return Success()
	}

	diag := v.diagnostic(ctx, err, stderr.String(), stdout.String())
	logger.Warn("build failed", slog.String("error", err.Error()))
	return Failure(diag)
}

func (v *CommandValidator) diagnostic(ctx context.Context, err error, stderr, stdout string) string {
	output := stderr
	if strings.TrimSpace(output) == "" {
		output = stdout
	}

	var exitErr *exec.ExitError
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		output = fmt.Sprintf("build timed out after %s\n%s", v.timeout, output)
	case !errors.As(err, &exitErr):
		// the process never ran (tool missing, bad directory)
		output = err.Error()
	}
	return fmt.Sprintf("Error running %s: %s", v.Command(), output)
}
