package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/leapstack-labs/leapapp/internal/cli/output"
	"github.com/leapstack-labs/leapapp/internal/conversation"
	"github.com/leapstack-labs/leapapp/internal/preview"
	"github.com/leapstack-labs/leapapp/internal/session"
	"github.com/spf13/cobra"
)

const chatPrompt = "leapapp> "

// ChatOptions holds options for the chat command.
type ChatOptions struct {
	Resume    string
	NoPreview bool
}

// NewChatCommand creates the chat command.
func NewChatCommand() *cobra.Command {
	opts := &ChatOptions{}
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Build a data app by chatting with the model",
		Long: `Start an interactive session that turns instructions into a React
component backed by your warehouse.

Every reply that contains a component is written to
src/components/MyApp.jsx and checked with the project build. Build errors
are shown once and fed back to the model on the next turn.

The first message after selecting a database carries its schema. The
preview server starts in the background when the session opens.`,
		Example: `  # Start a session against a MotherDuck database
  leapapp chat --database sample_data

  # Continue the most recent session of this project
  leapapp chat --resume latest`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Resume, "resume", "", "Resume a stored session (session id or \"latest\")")
	cmd.Flags().BoolVar(&opts.NoPreview, "no-preview", false, "Do not start the preview server")

	return cmd
}

func runChat(cmd *cobra.Command, opts *ChatOptions) error {
	ctx := cmd.Context()
	cc := NewCommandContext(cmd)
	cfg, r := cc.Cfg, cc.Renderer

	var previewOut io.Writer
	if cfg.Verbose {
		previewOut = cmd.ErrOrStderr()
	}
	app, err := OpenApp(ctx, cc, AppOptions{
		Resume:        opts.Resume,
		NoPreview:     opts.NoPreview,
		PreviewOutput: previewOut,
		OnTransition: func(from, to conversation.State) {
			cc.Logger.Debug("state", slog.String("from", from.String()), slog.String("to", to.String()))
		},
	})
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	repl := newChatREPL(app.Manager, r, cc.Logger)
	repl.autoOpen = cfg.Preview != nil && cfg.Preview.AutoOpen

	databases, _ := app.Manager.Databases(ctx)
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          chatPrompt,
		HistoryFile:     filepath.Join(filepath.Dir(cfg.StatePath), "chat_history"),
		AutoComplete:    newChatCompleter(databases),
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
		Stdout:          cmd.OutOrStdout(),
		Stderr:          cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize REPL: %w", err)
	}
	defer func() { _ = rl.Close() }()

	repl.welcome(ctx, app.Session.ID, opts.Resume != "")

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if quit := repl.handleLine(ctx, line); quit {
			break
		}
	}
	return nil
}

// chatREPL turns input lines into dot-commands and conversation turns.
type chatREPL struct {
	mgr      *session.Manager
	r        *output.Renderer
	logger   *slog.Logger
	openURL  func(string) error
	autoOpen bool
}

func newChatREPL(mgr *session.Manager, r *output.Renderer, logger *slog.Logger) *chatREPL {
	return &chatREPL{mgr: mgr, r: r, logger: logger, openURL: preview.OpenBrowser}
}

func (c *chatREPL) welcome(ctx context.Context, sessionID string, resumed bool) {
	r := c.r
	r.Header(1, "MotherDuck Data App Generator")
	if resumed {
		r.Muted(fmt.Sprintf("Resumed session %s (%d messages)", sessionID, c.mgr.Machine().Visible().Len()))
	} else {
		r.Muted("Session " + sessionID)
	}

	if c.mgr.StartPreview(ctx) {
		r.Muted("Preview: " + c.mgr.PreviewURL())
		if c.autoOpen {
			c.open()
		}
	}

	if db := c.mgr.Session().Database(); db != "" {
		r.Muted("Database: " + db)
	} else {
		r.Muted("No database selected. Use .use <database> to pick one (.databases lists them).")
	}
	r.Muted("Type .help for commands, .quit to exit")
	r.Println("")
}

// handleLine processes one input line and reports whether to exit.
func (c *chatREPL) handleLine(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if strings.HasPrefix(line, ".") {
		return c.handleDotCommand(ctx, line)
	}
	c.runTurn(ctx, line)
	return false
}

func (c *chatREPL) handleDotCommand(ctx context.Context, line string) bool {
	parts := strings.Fields(line)
	command := strings.ToLower(parts[0])
	r := c.r

	switch command {
	case ".quit", ".exit":
		return true

	case ".help":
		printChatHelp(r.Writer())

	case ".use":
		if len(parts) < 2 {
			r.Error("Usage: .use <database>")
			return false
		}
		if err := c.mgr.Bind(ctx, parts[1]); err != nil {
			r.Error(err.Error())
			return false
		}
		r.Success("Using database " + c.mgr.Session().Database())

	case ".databases":
		dbs, err := c.mgr.Databases(ctx)
		if err != nil {
			r.Error(err.Error())
			return false
		}
		current := c.mgr.Session().Database()
		for _, db := range dbs {
			if db == current {
				r.StatusLine(db, "success", "(selected)")
				continue
			}
			r.StatusLine(db, "pending", "")
		}

	case ".open":
		c.open()

	case ".reset":
		c.mgr.ResetArtifact(ctx)
		r.Success("The next message will include the database schema again")

	case ".status":
		c.printStatus()

	default:
		r.Error(fmt.Sprintf("Unknown command: %s (type .help for commands)", command))
	}
	return false
}

func (c *chatREPL) open() {
	url := c.mgr.PreviewURL()
	if url == "" {
		c.r.Warning("Preview is disabled")
		return
	}
	if !c.mgr.Session().PreviewAvailable() {
		c.r.Warning("No app has been generated yet")
	}
	if err := c.openURL(url); err != nil {
		c.r.Error(err.Error())
		return
	}
	c.r.Muted("Opened " + url)
}

func (c *chatREPL) printStatus() {
	s := c.mgr.Session()
	db := s.Database()
	if db == "" {
		db = "(none)"
	}
	c.r.Println(output.FormatKeyValue("Session", c.mgr.SessionID()))
	c.r.Println(output.FormatKeyValue("Database", db))
	c.r.Println(output.FormatKeyValue("App generated", fmt.Sprintf("%t", s.FirstArtifactGenerated())))
	c.r.Println(output.FormatKeyValue("Messages", fmt.Sprintf("%d", c.mgr.Machine().Visible().Len())))
	if url := c.mgr.PreviewURL(); url != "" {
		c.r.Println(output.FormatKeyValue("Preview", url))
	}
}

// runTurn submits text and prints the summary and any pending error.
func (c *chatREPL) runTurn(ctx context.Context, text string) {
	r := c.r
	spinner := r.NewSpinner(c.mgr.StatusText())
	spinner.Start()

	streamed := false
	result, err := c.mgr.Submit(ctx, text, conversation.WithSummaryChunks(func(chunk string) {
		if !streamed {
			spinner.Stop()
			streamed = true
		}
		r.Printf("%s", chunk)
	}))
	spinner.Stop()

	if err != nil {
		var commErr *conversation.CommunicationError
		switch {
		case errors.As(err, &commErr):
			c.logger.Warn("model call failed", slog.String("error", commErr.Err.Error()))
			r.Error(commErr.UserMessage())
		case errors.Is(err, conversation.ErrTurnInFlight):
			r.Warning("Please wait for the current reply to finish")
		default:
			r.Error(err.Error())
		}
		return
	}

	switch {
	case result.Outcome == conversation.OutcomeWriteFailed:
		// the pending error below carries the same text
	case !streamed:
		r.Println(result.Summary)
	case result.SummaryDegraded:
		r.Println("")
		r.Println(result.Summary)
	default:
		r.Println("")
	}

	if msg, ok := c.mgr.Session().TakePendingError(); ok {
		r.Error(msg)
	}
	if result.Outcome == conversation.OutcomeCommitted && result.PreviewAvailable {
		if url := c.mgr.PreviewURL(); url != "" {
			r.Success(fmt.Sprintf("App ready at %s. Type .open to view it in the browser", url))
		}
	}
	r.Println("")
}

func printChatHelp(w io.Writer) {
	help := `
Commands:
  .use <database>  Select the database whose schema the model sees
  .databases       List available databases
  .open            Open the app preview in a browser
  .reset           Send the schema again with the next message
  .status          Show session details
  .help            Show this help message
  .quit / .exit    Leave the session

Anything else is sent to the model as an instruction for the app.
`
	_, _ = fmt.Fprintln(w, help)
}

// newChatCompleter completes dot-commands and database names.
func newChatCompleter(databases []string) *readline.PrefixCompleter {
	dbItems := make([]readline.PrefixCompleterInterface, 0, len(databases))
	for _, db := range databases {
		dbItems = append(dbItems, readline.PcItem(db))
	}
	return readline.NewPrefixCompleter(
		readline.PcItem(".use", dbItems...),
		readline.PcItem(".databases"),
		readline.PcItem(".open"),
		readline.PcItem(".reset"),
		readline.PcItem(".status"),
		readline.PcItem(".help"),
		readline.PcItem(".quit"),
		readline.PcItem(".exit"),
	)
}
