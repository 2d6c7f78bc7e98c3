package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/leapapp/internal/artifact"
	"github.com/leapstack-labs/leapapp/internal/llm"
	"github.com/leapstack-labs/leapapp/internal/preview"
	"github.com/leapstack-labs/leapapp/internal/warehouse"
)

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.ProjectDir == "" {
		return fmt.Errorf("project_dir is required")
	}

	if w := c.Warehouse; w != nil && w.Type != "" && !warehouse.IsRegistered(strings.ToLower(w.Type)) {
		return fmt.Errorf("unknown warehouse type %q (available: %s)", w.Type, strings.Join(warehouse.ListTypes(), ", "))
	}

	if m := c.Model; m != nil {
		switch strings.ToLower(m.Provider) {
		case "", llm.ProviderOpenRouter, llm.ProviderOpenAI, llm.ProviderAnthropic, llm.ProviderDryRun:
		default:
			return fmt.Errorf("unknown model provider %q", m.Provider)
		}
		if m.RequestTimeout < 0 || m.SummaryTimeout < 0 {
			return fmt.Errorf("model timeouts must not be negative")
		}
	}

	if b := c.Build; b != nil {
		switch b.Mode {
		case "", BuildModeCommand, BuildModeESBuild:
		default:
			return fmt.Errorf("unknown build mode %q (expected %s or %s)", b.Mode, BuildModeCommand, BuildModeESBuild)
		}
	}

	if p := c.Preview; p != nil {
		switch p.Mode {
		case "", preview.ModeCommand, preview.ModeBuiltin, "off":
		default:
			return fmt.Errorf("unknown preview mode %q (expected %s, %s or off)", p.Mode, preview.ModeCommand, preview.ModeBuiltin)
		}
		if p.Port < 0 || p.Port > 65535 {
			return fmt.Errorf("preview port %d out of range", p.Port)
		}
	}

	return nil
}

// ValidateProjectDir checks that the app project exists and has the
// component directory.
func (c *Config) ValidateProjectDir() error {
	if _, err := os.Stat(c.ProjectDir); os.IsNotExist(err) {
		return fmt.Errorf("project directory does not exist: %s\nHint: run 'leapapp init' or use --project-dir to specify a different path", c.ProjectDir)
	}
	componentDir := filepath.Dir(c.ArtifactPath())
	if _, err := os.Stat(componentDir); os.IsNotExist(err) {
		return fmt.Errorf("component directory does not exist: %s", componentDir)
	}
	return nil
}

// ArtifactPath returns the generated component's path.
func (c *Config) ArtifactPath() string {
	return filepath.Join(c.ProjectDir, artifact.DefaultRelPath)
}

// APIKeyEnv returns the environment variable holding the model API key.
func (c *Config) APIKeyEnv() string {
	if c.Model == nil || c.Model.APIKeyEnv == "" {
		return DefaultAPIKeyEnv
	}
	if strings.EqualFold(c.Model.Provider, llm.ProviderAnthropic) && c.Model.APIKeyEnv == DefaultAPIKeyEnv {
		return "ANTHROPIC_API_KEY"
	}
	if strings.EqualFold(c.Model.Provider, llm.ProviderOpenAI) && c.Model.APIKeyEnv == DefaultAPIKeyEnv {
		return "OPENAI_API_KEY"
	}
	return c.Model.APIKeyEnv
}

// APIKey returns the model API key from the environment.
func (c *Config) APIKey() string {
	return os.Getenv(c.APIKeyEnv())
}

// PreviewEnabled reports whether chat sessions start a preview.
func (c *Config) PreviewEnabled() bool {
	return c.Preview != nil && c.Preview.Mode != "off"
}
