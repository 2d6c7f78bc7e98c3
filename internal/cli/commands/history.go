package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/leapstack-labs/leapapp/internal/cli/output"
	"github.com/leapstack-labs/leapapp/internal/conversation"
	"github.com/leapstack-labs/leapapp/internal/llm"
	"github.com/leapstack-labs/leapapp/internal/state"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

// HistoryOptions holds options for the history command.
type HistoryOptions struct {
	List     bool
	Limit    int
	Internal bool
}

// HistoryOutput is the structured output for one session.
type HistoryOutput struct {
	Session  *state.Session `json:"session" yaml:"session"`
	Kind     string         `json:"kind" yaml:"kind"`
	Messages []HistoryTurn  `json:"messages" yaml:"messages"`
}

// HistoryTurn is one stored message.
type HistoryTurn struct {
	Role      string    `json:"role" yaml:"role"`
	Content   string    `json:"content" yaml:"content"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand() *cobra.Command {
	opts := &HistoryOptions{}
	cmd := &cobra.Command{
		Use:   "history [session-id|latest]",
		Short: "Show stored chat sessions",
		Long: `Print the conversation of a stored session, or list sessions with --list.

Without an argument the most recent session of the current project is shown.
--internal prints the model-facing transcript, including the system prompt,
injected schemas and build-error corrections.`,
		Example: `  leapapp history --list
  leapapp history latest
  leapapp history 4f0c... -o yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref := "latest"
			if len(args) > 0 {
				ref = args[0]
			}
			return runHistory(cmd, ref, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.List, "list", false, "List sessions instead of printing one")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "Maximum number of sessions to list (0 for all)")
	cmd.Flags().BoolVar(&opts.Internal, "internal", false, "Print the model-facing transcript")

	return cmd
}

func runHistory(cmd *cobra.Command, ref string, opts *HistoryOptions) error {
	ctx := cmd.Context()
	cc := NewCommandContext(cmd)

	store, err := openStateStore(ctx, cc.Cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if opts.List {
		sessions, err := store.ListSessions(ctx, opts.Limit)
		if err != nil {
			return err
		}
		return renderSessionList(cc.Renderer, sessions)
	}

	sess, err := findSession(ctx, store, cc.Cfg, ref)
	if err != nil {
		return err
	}
	kind := conversation.KindVisible
	if opts.Internal {
		kind = conversation.KindInternal
	}
	return renderHistory(ctx, cc.Renderer, store, sess, kind)
}

func renderSessionList(r *output.Renderer, sessions []*state.Session) error {
	if sessions == nil {
		sessions = []*state.Session{}
	}
	if ok, err := r.Structured(sessions); ok {
		return err
	}
	if len(sessions) == 0 {
		r.Muted("No stored sessions")
		return nil
	}

	r.Header(1, fmt.Sprintf("Sessions (%d)", len(sessions)))
	rows := lo.Map(sessions, func(s *state.Session, _ int) []string {
		db := s.Database
		if db == "" {
			db = "-"
		}
		return []string{
			s.ID,
			s.UpdatedAt.Local().Format("2006-01-02 15:04"),
			db,
			fmt.Sprintf("%d", s.Turns),
			s.ProjectDir,
		}
	})
	r.Table([]string{"ID", "Updated", "Database", "Messages", "Project"}, rows)
	return nil
}

func renderHistory(ctx context.Context, r *output.Renderer, store state.Store, sess *state.Session, kind conversation.Kind) error {
	turns, err := store.LoadTranscript(ctx, sess.ID, kind)
	if err != nil {
		return err
	}

	out := HistoryOutput{
		Session: sess,
		Kind:    string(kind),
		Messages: lo.Map(turns, func(t conversation.Turn, _ int) HistoryTurn {
			return HistoryTurn{Role: string(t.Role), Content: t.Content, CreatedAt: t.CreatedAt}
		}),
	}
	if ok, err := r.Structured(out); ok {
		return err
	}

	r.Header(1, "Session "+sess.ID)
	if sess.Database != "" {
		r.Println(output.FormatKeyValue("Database", sess.Database))
	}
	r.Println(output.FormatKeyValue("Model", sess.Model))
	r.Println(output.FormatKeyValue("Started", sess.CreatedAt.Local().Format(time.RFC1123)))
	r.Println("")

	if len(turns) == 0 {
		r.Muted("No messages")
		return nil
	}

	styles := r.Styles()
	markdown := r.EffectiveMode() == output.ModeMarkdown
	for _, t := range turns {
		label := roleLabel(t.Role)
		switch {
		case markdown:
			r.Println(output.FormatHeader(3, label))
			r.Println("")
			if t.Role == llm.RoleAssistant && strings.Contains(t.Content, "<component>") {
				r.Println(output.FormatCodeBlock("", t.Content))
			} else {
				r.Println(t.Content)
			}
		default:
			style := styles.Bold
			if t.Role == llm.RoleUser {
				style = styles.Prompt
			}
			r.Println(style.Render(label + ":"))
			r.Println(t.Content)
		}
		r.Println("")
	}
	return nil
}

func roleLabel(role llm.Role) string {
	switch role {
	case llm.RoleUser:
		return "You"
	case llm.RoleAssistant:
		return "Assistant"
	case llm.RoleSystem:
		return "System"
	default:
		return string(role)
	}
}
