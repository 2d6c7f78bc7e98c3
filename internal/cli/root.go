// Package cli provides the command-line interface for leapapp.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/leapstack-labs/leapapp/internal/cli/commands"
	"github.com/leapstack-labs/leapapp/internal/cli/config"
	"github.com/leapstack-labs/leapapp/internal/llm"
	"github.com/leapstack-labs/leapapp/internal/preview"
	"github.com/leapstack-labs/leapapp/internal/warehouse"
	"github.com/spf13/cobra"
)

var cfgFile string

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "leapapp",
		Short: "leapapp - conversational data app generator",
		Long: `leapapp turns a chat into a working data app.

Describe the app you want; the assistant writes a React component against
your MotherDuck or Postgres data, the component is built to check it
compiles, and a live preview refreshes as the conversation goes on.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Skip config loading for help and completion commands
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}
			// init runs before a config file exists
			if cmd.Name() == "init" {
				return nil
			}

			cfg, err := config.LoadConfig(cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}

			logger := newLogger(cmd.ErrOrStderr(), cfg.Verbose)
			ctx := context.WithValue(cmd.Context(), config.LoggerKey(), logger)
			cmd.SetContext(ctx)

			if cfg.Verbose {
				if configFile := config.GetConfigFileUsed(); configFile != "" {
					logger.Debug("using config file", "path", configFile)
				}
			}

			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
Built with Go for MotherDuck and Postgres
`)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: ./leapapp.yaml)")
	flags.String("project-dir", "", "Path to the app project")
	flags.String("state", "", "Path to the session database")
	flags.String("database", "", "Database to select at startup")
	flags.String("dsn", "", "Warehouse connection string")
	flags.String("warehouse", "", "Warehouse type (duckdb|motherduck|postgres)")
	flags.String("provider", "", "Model provider (openrouter|openai|anthropic|dryrun)")
	flags.String("model", "", "Model name")
	flags.String("base-url", "", "Model API base URL")
	flags.String("build-mode", "", "How generated components are validated (command|esbuild)")
	flags.String("preview-mode", "", "How the app is previewed (command|builtin|off)")
	flags.Int("port", 0, "Preview port")
	flags.Bool("open", false, "Open the preview in a browser")
	flags.BoolP("verbose", "v", false, "Verbose output")
	flags.StringP("output", "o", "", "Output format (auto|text|markdown|json|yaml)")

	_ = rootCmd.RegisterFlagCompletionFunc("output", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"auto", "text", "markdown", "json", "yaml"}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("warehouse", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return warehouse.ListTypes(), cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("provider", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{llm.ProviderOpenRouter, llm.ProviderOpenAI, llm.ProviderAnthropic, llm.ProviderDryRun}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("build-mode", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{config.BuildModeCommand, config.BuildModeESBuild}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("preview-mode", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{preview.ModeCommand, preview.ModeBuiltin, "off"}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(commands.NewVersionCommand(Version))
	rootCmd.AddCommand(commands.NewChatCommand())
	rootCmd.AddCommand(commands.NewServeCommand())
	rootCmd.AddCommand(commands.NewDatabasesCommand())
	rootCmd.AddCommand(commands.NewSchemaCommand())
	rootCmd.AddCommand(commands.NewRulesCommand())
	rootCmd.AddCommand(commands.NewHistoryCommand())
	rootCmd.AddCommand(commands.NewInitCommand())
	rootCmd.AddCommand(commands.NewDoctorCommand())
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// NewCompletionCommand creates the completion command.
func NewCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for leapapp.

To load completions:

Bash:
  $ source <(leapapp completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ leapapp completion bash > /etc/bash_completion.d/leapapp
  # macOS:
  $ leapapp completion bash > $(brew --prefix)/etc/bash_completion.d/leapapp

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. Execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # To load completions for each session, execute once:
  $ leapapp completion zsh > "${fpath[1]}/_leapapp"

  # You will need to start a new shell for this setup to take effect.

Fish:
  $ leapapp completion fish | source

  # To load completions for each session, execute once:
  $ leapapp completion fish > ~/.config/fish/completions/leapapp.fish

PowerShell:
  PS> leapapp completion powershell | Out-String | Invoke-Expression

  # To load completions for every new session, run:
  PS> leapapp completion powershell > leapapp.ps1
  # and source this file from your PowerShell profile.
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}
	return cmd
}
