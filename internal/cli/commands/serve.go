package commands

import (
	"context"
	"errors"

	"github.com/leapstack-labs/leapapp/internal/preview"
	"github.com/spf13/cobra"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the app preview without a chat session",
		Long: `Serve the generated app for preview.

In "command" mode the project's dev server (npm run dev) is started and its
output is shown. In "builtin" mode leapapp bundles the project with esbuild,
serves it directly and reloads the page whenever a source file changes.`,
		Example: `  # Run the project's dev server
  leapapp serve

  # Use the builtin server on another port and open a browser
  leapapp serve --preview-mode builtin --port 8080 --open`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cc := NewCommandContext(cmd)
	cfg, r := cc.Cfg, cc.Renderer

	if err := cfg.ValidateProjectDir(); err != nil {
		return err
	}
	if !cfg.PreviewEnabled() {
		return errors.New("preview is disabled (preview.mode: off)")
	}

	runner, err := newPreviewRunner(cfg, cc.Logger, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	r.Success("Serving " + cfg.ProjectDir + " at " + runner.URL())
	r.Muted("Press Ctrl+C to stop")
	if cfg.Preview.AutoOpen {
		if err := preview.OpenBrowser(runner.URL()); err != nil {
			r.Warning(err.Error())
		}
	}

	err = runner.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
