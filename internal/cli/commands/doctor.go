package commands

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/leapstack-labs/leapapp/internal/cli/config"
	"github.com/leapstack-labs/leapapp/internal/cli/output"
	"github.com/leapstack-labs/leapapp/internal/llm"
	"github.com/leapstack-labs/leapapp/internal/preview"
	"github.com/spf13/cobra"
)

// DoctorOptions holds options for the doctor command.
type DoctorOptions struct {
	SkipWarehouse bool
}

// Check statuses.
const (
	statusPass  = "pass"
	statusWarn  = "warn"
	statusError = "error"
)

// HealthCheck represents a single check result.
type HealthCheck struct {
	ID     string `json:"id" yaml:"id"`
	Name   string `json:"name" yaml:"name"`
	Group  string `json:"group" yaml:"group"`
	Status string `json:"status" yaml:"status"`
	Detail string `json:"detail,omitempty" yaml:"detail,omitempty"`
	Hint   string `json:"hint,omitempty" yaml:"hint,omitempty"`
}

// DoctorOutput is the structured output for the doctor command.
type DoctorOutput struct {
	ConfigFile string        `json:"config_file" yaml:"config_file"`
	ProjectDir string        `json:"project_dir" yaml:"project_dir"`
	Checks     []HealthCheck `json:"checks" yaml:"checks"`
	Errors     int           `json:"errors" yaml:"errors"`
	Warnings   int           `json:"warnings" yaml:"warnings"`
}

// NewDoctorCommand creates the doctor command.
func NewDoctorCommand() *cobra.Command {
	opts := &DoctorOptions{}
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that everything a chat session needs is in place",
		Long: `Check the environment before starting a chat session:

- Environment: model API key, build and preview tools on PATH
- Project: app directory, component directory, package.json, node_modules
- Warehouse: connection and visible databases
- State: the session database can be opened

Output adapts to environment:
  - Terminal: Styled output with colors
  - Piped/Scripted: Markdown format
  - JSON/YAML: Machine-readable format`,
		Example: `  leapapp doctor
  leapapp doctor --skip-warehouse -o json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.SkipWarehouse, "skip-warehouse", false, "Do not connect to the warehouse")

	return cmd
}

func runDoctor(cmd *cobra.Command, opts *DoctorOptions) error {
	ctx := cmd.Context()
	cc := NewCommandContext(cmd)

	checks := environmentChecks(cc.Cfg, exec.LookPath)
	checks = append(checks, projectChecks(cc.Cfg)...)
	if !opts.SkipWarehouse {
		checks = append(checks, warehouseCheck(ctx, cc))
	}
	checks = append(checks, stateCheck(ctx, cc.Cfg))

	out := buildDoctorOutput(cc.Cfg, checks)
	if ok, err := cc.Renderer.Structured(out); ok {
		return err
	}
	if cc.Renderer.EffectiveMode() == output.ModeMarkdown {
		renderDoctorMarkdown(cc.Renderer, out)
	} else {
		renderDoctorText(cc.Renderer, out)
	}
	if out.Errors > 0 {
		return fmt.Errorf("%d check(s) failed", out.Errors)
	}
	return nil
}

// lookPathFunc resolves executables; exec.LookPath outside tests.
type lookPathFunc func(file string) (string, error)

func environmentChecks(cfg *config.Config, lookPath lookPathFunc) []HealthCheck {
	var checks []HealthCheck

	keyCheck := HealthCheck{ID: "E01", Name: "Model API key", Group: "environment", Status: statusPass}
	provider := llm.ProviderOpenRouter
	if cfg.Model != nil && cfg.Model.Provider != "" {
		provider = strings.ToLower(cfg.Model.Provider)
	}
	switch {
	case provider == llm.ProviderDryRun:
		keyCheck.Detail = "dry run provider needs no key"
	case cfg.APIKey() == "":
		keyCheck.Status = statusError
		keyCheck.Detail = cfg.APIKeyEnv() + " is not set"
		keyCheck.Hint = "Set " + cfg.APIKeyEnv() + " in the environment or in .env"
	default:
		keyCheck.Detail = cfg.APIKeyEnv() + " is set"
	}
	checks = append(checks, keyCheck)

	if cfg.Build != nil && cfg.Build.Mode != config.BuildModeESBuild {
		checks = append(checks, toolCheck("E02", "Build command", cfg.Build.Command, lookPath))
	}
	if cfg.Preview != nil && cfg.Preview.Mode == preview.ModeCommand {
		checks = append(checks, toolCheck("E03", "Preview command", cfg.Preview.Command, lookPath))
	}

	if cfg.Warehouse != nil && strings.HasPrefix(cfg.Warehouse.DSN, "md:") &&
		!strings.Contains(cfg.Warehouse.DSN, "motherduck_token=") {
		tokenCheck := HealthCheck{ID: "E04", Name: "MotherDuck token", Group: "environment", Status: statusPass, Detail: "motherduck_token is set"}
		if os.Getenv("motherduck_token") == "" && os.Getenv("MOTHERDUCK_TOKEN") == "" {
			tokenCheck.Status = statusWarn
			tokenCheck.Detail = "motherduck_token is not set"
			tokenCheck.Hint = "MotherDuck will ask for interactive login without a token"
		}
		checks = append(checks, tokenCheck)
	}

	return checks
}

func toolCheck(id, name, command string, lookPath lookPathFunc) HealthCheck {
	check := HealthCheck{ID: id, Name: name, Group: "environment", Status: statusPass}
	fields := strings.Fields(command)
	if len(fields) == 0 {
		check.Status = statusError
		check.Detail = "no command configured"
		return check
	}
	path, err := lookPath(fields[0])
	if err != nil {
		check.Status = statusError
		check.Detail = fields[0] + " not found on PATH"
		check.Hint = "Install Node.js, or set build.mode: esbuild and preview.mode: builtin"
		return check
	}
	check.Detail = command + " (" + path + ")"
	return check
}

func projectChecks(cfg *config.Config) []HealthCheck {
	dirCheck := HealthCheck{ID: "P01", Name: "Project directory", Group: "project", Status: statusPass, Detail: cfg.ProjectDir}
	if err := cfg.ValidateProjectDir(); err != nil {
		dirCheck.Status = statusError
		dirCheck.Detail = strings.SplitN(err.Error(), "\n", 2)[0]
		dirCheck.Hint = "Run 'leapapp init' or set project_dir"
		// nothing else in the project can be checked
		return []HealthCheck{dirCheck}
	}

	checks := []HealthCheck{dirCheck}

	pkg := HealthCheck{ID: "P02", Name: "package.json", Group: "project", Status: statusPass}
	if _, err := os.Stat(filepath.Join(cfg.ProjectDir, "package.json")); err != nil {
		pkg.Status = statusWarn
		pkg.Detail = "missing"
		pkg.Hint = "The build and dev server commands expect an npm project"
	}
	checks = append(checks, pkg)

	modules := HealthCheck{ID: "P03", Name: "Dependencies installed", Group: "project", Status: statusPass}
	if _, err := os.Stat(filepath.Join(cfg.ProjectDir, "node_modules")); err != nil {
		modules.Status = statusWarn
		modules.Detail = "node_modules is missing"
		modules.Hint = "Run 'npm install' in " + cfg.ProjectDir
	}
	checks = append(checks, modules)

	return checks
}

func warehouseCheck(ctx context.Context, cc *CommandContext) HealthCheck {
	check := HealthCheck{ID: "W01", Name: "Warehouse connection", Group: "warehouse", Status: statusPass}
	wh, _, err := openWarehouse(ctx, cc.Cfg, cc.Logger)
	if err != nil {
		check.Status = statusError
		check.Detail = err.Error()
		return check
	}
	defer func() { _ = wh.Close() }()

	dbs, err := wh.ListDatabases(ctx)
	if err != nil {
		check.Status = statusError
		check.Detail = err.Error()
		return check
	}
	check.Detail = fmt.Sprintf("%s, %d database(s)", wh.DialectName(), len(dbs))

	if want := cc.Cfg.Warehouse.Database; want != "" {
		found := false
		for _, db := range dbs {
			if db == want {
				found = true
				break
			}
		}
		if !found {
			check.Status = statusWarn
			check.Hint = "Configured database " + want + " is not visible"
		}
	}
	return check
}

func stateCheck(ctx context.Context, cfg *config.Config) HealthCheck {
	check := HealthCheck{ID: "S01", Name: "Session store", Group: "state", Status: statusPass, Detail: cfg.StatePath}
	store, err := openStateStore(ctx, cfg)
	if err != nil {
		check.Status = statusWarn
		check.Detail = err.Error()
		check.Hint = "Sessions will not be saved"
		return check
	}
	_ = store.Close()
	return check
}

func buildDoctorOutput(cfg *config.Config, checks []HealthCheck) *DoctorOutput {
	groupOrder := map[string]int{"environment": 0, "project": 1, "warehouse": 2, "state": 3}
	sort.SliceStable(checks, func(i, j int) bool {
		if checks[i].Group != checks[j].Group {
			return groupOrder[checks[i].Group] < groupOrder[checks[j].Group]
		}
		return checks[i].ID < checks[j].ID
	})

	out := &DoctorOutput{
		ConfigFile: config.GetConfigFileUsed(),
		ProjectDir: cfg.ProjectDir,
		Checks:     checks,
	}
	for _, c := range checks {
		switch c.Status {
		case statusError:
			out.Errors++
		case statusWarn:
			out.Warnings++
		}
	}
	return out
}

func renderDoctorText(r *output.Renderer, out *DoctorOutput) {
	styles := r.Styles()

	r.Println("")
	r.Println(styles.Header1.Render("leapapp Environment Check"))
	r.Println(styles.Muted.Render(strings.Repeat("=", 55)))
	if out.ConfigFile != "" {
		r.Println(styles.Muted.Render("   Config: " + out.ConfigFile))
	}
	r.Println("")

	currentGroup := ""
	titleCaser := cases.Title(language.English)
	for _, check := range out.Checks {
		if check.Group != currentGroup {
			currentGroup = check.Group
			r.Println(styles.Bold.Render("   " + titleCaser.String(currentGroup)))
			r.Println(styles.Muted.Render("   " + strings.Repeat("-", 40)))
		}

		icon := styles.StatusSuccess.String()
		switch check.Status {
		case statusWarn:
			icon = styles.Warning.Render("!")
		case statusError:
			icon = styles.StatusFailed.String()
		}

		line := fmt.Sprintf("%s %s", icon, check.Name)
		if check.Detail != "" {
			line += styles.Muted.Render(": " + check.Detail)
		}
		r.Println("   " + line)
		if check.Hint != "" {
			r.Println(styles.Muted.Render("       - " + check.Hint))
		}
	}
	r.Println("")

	r.Println(styles.Muted.Render(strings.Repeat("=", 55)))
	summary := styles.Success.Render("All checks passed")
	switch {
	case out.Errors > 0:
		summary = styles.Error.Render(fmt.Sprintf("%d error(s), %d warning(s)", out.Errors, out.Warnings))
	case out.Warnings > 0:
		summary = styles.Warning.Render(fmt.Sprintf("%d warning(s)", out.Warnings))
	}
	r.Println("   " + summary)
	r.Println("")
}

func renderDoctorMarkdown(r *output.Renderer, out *DoctorOutput) {
	r.Println("# leapapp Environment Check")
	r.Println("")
	if out.ConfigFile != "" {
		r.Println(output.FormatKeyValue("Config", out.ConfigFile))
	}
	r.Println(output.FormatKeyValue("Project", out.ProjectDir))
	r.Println("")

	currentGroup := ""
	titleCaser := cases.Title(language.English)
	for _, check := range out.Checks {
		if check.Group != currentGroup {
			currentGroup = check.Group
			r.Println("## " + titleCaser.String(currentGroup))
			r.Println("")
		}

		r.Printf("- **[%s]** %s", strings.ToUpper(check.Status), check.Name)
		if check.Detail != "" {
			r.Printf(": %s", check.Detail)
		}
		r.Println("")
		if check.Hint != "" {
			r.Printf("  - %s\n", check.Hint)
		}
	}
	r.Println("")
	r.Printf("**%d error(s), %d warning(s)**\n", out.Errors, out.Warnings)
}
