package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/leapapp/internal/cli/config"
	"github.com/leapstack-labs/leapapp/internal/cli/output"
	"github.com/spf13/cobra"
)

const appTemplate = "app"

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Create a new data app project",
		Long: `Create the files a chat session works on.

This creates:
  - leapapp.yaml configuration file
  - .env.example listing the API keys and tokens to set
  - my-app/ a Vite + React project with a placeholder MyApp component
    and a MotherDuck connection hook

Run 'npm install' inside my-app/ before the first chat session.`,
		Example: `  # Initialize in the current directory
  leapapp init

  # Initialize in a new directory
  leapapp init sales-dashboard

  # Overwrite existing files
  leapapp init --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			cfg := getConfig()
			mode := output.Mode(cfg.OutputFormat)
			r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)

			return runInit(r, dir, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing files")

	return cmd
}

func runInit(r *output.Renderer, dir string, force bool) error {
	// Create directory if specified and doesn't exist
	if dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	// Check if config already exists
	configPath := filepath.Join(dir, config.DefaultConfigName)
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("%s already exists. Use --force to overwrite", config.DefaultConfigName)
	}

	written, err := copyTemplate(appTemplate, dir, force)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}

	groups := groupTemplateFiles(written, config.DefaultProjectDir)
	r.Header(2, "Configuration")
	for _, f := range groups["config"] {
		r.StatusLine(f, "success", "")
	}
	r.Println("")
	r.Header(2, "App")
	for _, f := range groups["app"] {
		r.StatusLine(f, "success", "")
	}

	r.Println("")
	r.Success("Data app project initialized!")
	r.Println("")
	r.Println("Next steps:")
	step := 1
	if dir != "." {
		r.Printf("  %d. cd %s\n", step, dir)
		step++
	}
	r.Printf("  %d. Copy .env.example to .env and fill in your keys\n", step)
	r.Printf("  %d. cd %s && npm install\n", step+1, config.DefaultProjectDir)
	r.Printf("  %d. leapapp chat --database <name>\n", step+2)

	return nil
}
