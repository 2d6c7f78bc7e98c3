package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/leapapp/internal/prompts"
	"github.com/leapstack-labs/leapapp/internal/session"
	"github.com/spf13/cobra"
)

// RulesOptions holds options for the rules command.
type RulesOptions struct {
	Stdout bool
}

// NewRulesCommand creates the rules command.
func NewRulesCommand() *cobra.Command {
	opts := &RulesOptions{}
	cmd := &cobra.Command{
		Use:   "rules [database]",
		Short: "Write the editor rules file for a database",
		Long: `Write .cursorrules into the app project so AI-assisted editors know the
app's conventions and the schema of the selected database.

Chat sessions rewrite this file on every message once a database is
selected; this command produces it without starting a session.`,
		Example: `  leapapp rules sample_data
  leapapp rules sample_data --stdout`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRules(cmd, args, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Stdout, "stdout", false, "Print the rules instead of writing the file")

	return cmd
}

func runRules(cmd *cobra.Command, args []string, opts *RulesOptions) error {
	ctx := cmd.Context()
	cc := NewCommandContext(cmd)
	cfg, r := cc.Cfg, cc.Renderer

	database := cfg.Warehouse.Database
	if len(args) > 0 {
		database = args[0]
	}
	if strings.TrimSpace(database) == "" {
		return fmt.Errorf("no database given (pass one or set warehouse.database)")
	}

	rules, err := prompts.NewRules(cfg.Prompts.Rules)
	if err != nil {
		return err
	}

	wh, _, err := openWarehouse(ctx, cfg, cc.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = wh.Close() }()

	schema, err := wh.SchemaText(ctx, database)
	if err != nil {
		return fmt.Errorf("failed to load schema for %s: %w", database, err)
	}

	data := prompts.RulesData{AppName: prompts.DefaultAppName, Database: database, Schema: schema}
	if opts.Stdout {
		return rules.Render(r.Writer(), data)
	}

	if err := cfg.ValidateProjectDir(); err != nil {
		return err
	}
	content, err := rules.String(data)
	if err != nil {
		return err
	}
	path := filepath.Join(cfg.ProjectDir, session.DefaultRulesFile)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil { //nolint:gosec // rules are read by editors
		return fmt.Errorf("failed to write rules file: %w", err)
	}

	r.StatusLine(path, "success", database)
	return nil
}
