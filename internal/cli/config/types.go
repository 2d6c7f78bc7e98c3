// Package config provides configuration management for the leapapp CLI.
//
// Values are layered from defaults, a leapapp.yaml file, LEAPAPP_ environment
// variables and explicitly set command-line flags, in increasing priority.
package config

import (
	"time"

	"github.com/leapstack-labs/leapapp/internal/build"
	"github.com/leapstack-labs/leapapp/internal/conversation"
	"github.com/leapstack-labs/leapapp/internal/llm"
	"github.com/leapstack-labs/leapapp/internal/preview"
	"github.com/leapstack-labs/leapapp/internal/warehouse"
)

// Config holds all CLI configuration options.
type Config struct {
	ProjectDir   string           `koanf:"project_dir"`
	StatePath    string           `koanf:"state_path"`
	Verbose      bool             `koanf:"verbose"`
	OutputFormat string           `koanf:"output"`
	Warehouse    *WarehouseConfig `koanf:"warehouse"`
	Model        *ModelConfig     `koanf:"model"`
	Build        *BuildConfig     `koanf:"build"`
	Preview      *PreviewConfig   `koanf:"preview"`
	Mirror       *MirrorConfig    `koanf:"mirror"`
	Prompts      *PromptsConfig   `koanf:"prompts"`
}

// WarehouseConfig selects the database the schema is read from.
type WarehouseConfig struct {
	Type      string            `koanf:"type"`
	DSN       string            `koanf:"dsn"`
	Database  string            `koanf:"database"`
	Host      string            `koanf:"host"`
	Port      int               `koanf:"port"`
	User      string            `koanf:"user"`
	Password  string            `koanf:"password"`
	Options   map[string]string `koanf:"options"`
	Params    map[string]any    `koanf:"params"`
	CacheSize int               `koanf:"cache_size"`
}

// ModelConfig configures the language model client.
type ModelConfig struct {
	Provider       string        `koanf:"provider"`
	Name           string        `koanf:"name"`
	BaseURL        string        `koanf:"base_url"`
	APIKeyEnv      string        `koanf:"api_key_env"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
	SummaryTimeout time.Duration `koanf:"summary_timeout"`
	MaxTokens      int64         `koanf:"max_tokens"`
}

// BuildConfig selects how generated components are validated.
type BuildConfig struct {
	Mode    string        `koanf:"mode"`
	Command string        `koanf:"command"`
	Timeout time.Duration `koanf:"timeout"`
}

// PreviewConfig configures the preview started with a chat session.
type PreviewConfig struct {
	Mode     string `koanf:"mode"`
	Command  string `koanf:"command"`
	Port     int    `koanf:"port"`
	AutoOpen bool   `koanf:"auto_open"`
}

// MirrorConfig configures the optional object-store copy of valid artifacts.
type MirrorConfig struct {
	Endpoint  string `koanf:"endpoint"`
	Region    string `koanf:"region"`
	Bucket    string `koanf:"bucket"`
	Key       string `koanf:"key"`
	AccessKey string `koanf:"access_key"`
	SecretKey string `koanf:"secret_key"`
	UseSSL    bool   `koanf:"use_ssl"`
}

// Enabled reports whether a mirror endpoint is configured.
func (m *MirrorConfig) Enabled() bool {
	return m != nil && m.Endpoint != ""
}

// PromptsConfig points at prompt overrides. Empty paths use the embedded prompts.
type PromptsConfig struct {
	Generator string `koanf:"generator"`
	Rules     string `koanf:"rules"`
}

// Build modes.
const (
	BuildModeCommand = "command"
	BuildModeESBuild = "esbuild"
)

// Default configuration values.
const (
	DefaultProjectDir = "my-app"
	DefaultStateFile  = ".leapapp/state.db"
	DefaultOutput     = "auto" // Auto-detect: TTY=text, non-TTY=markdown
	DefaultAPIKeyEnv  = "OPENROUTER_API_KEY"
	DefaultBuildMode  = BuildModeCommand
	DefaultConfigName = "leapapp.yaml"
)

// defaultValues returns the lowest-priority configuration layer.
func defaultValues() map[string]any {
	return map[string]any{
		"project_dir":           DefaultProjectDir,
		"state_path":            DefaultStateFile,
		"verbose":               false,
		"output":                DefaultOutput,
		"warehouse.type":        "duckdb",
		"warehouse.dsn":         warehouse.MotherDuckDSN,
		"warehouse.cache_size":  warehouse.DefaultCacheSize,
		"model.provider":        llm.ProviderOpenRouter,
		"model.name":            llm.DefaultModel,
		"model.api_key_env":     DefaultAPIKeyEnv,
		"model.request_timeout": conversation.DefaultRequestTimeout.String(),
		"model.summary_timeout": conversation.DefaultSummaryTimeout.String(),
		"model.max_tokens":      llm.DefaultMaxTokens,
		"build.mode":            DefaultBuildMode,
		"build.command":         build.DefaultCommand,
		"build.timeout":         build.DefaultTimeout.String(),
		"preview.mode":          preview.ModeCommand,
		"preview.command":       preview.DefaultCommand,
		"preview.port":          preview.DefaultPort,
		"preview.auto_open":     false,
	}
}

// Default returns the configuration used when nothing is loaded.
func Default() *Config {
	return &Config{
		ProjectDir:   DefaultProjectDir,
		StatePath:    DefaultStateFile,
		OutputFormat: DefaultOutput,
		Warehouse: &WarehouseConfig{
			Type:      "duckdb",
			DSN:       warehouse.MotherDuckDSN,
			CacheSize: warehouse.DefaultCacheSize,
		},
		Model: &ModelConfig{
			Provider:       llm.ProviderOpenRouter,
			Name:           llm.DefaultModel,
			APIKeyEnv:      DefaultAPIKeyEnv,
			RequestTimeout: conversation.DefaultRequestTimeout,
			SummaryTimeout: conversation.DefaultSummaryTimeout,
			MaxTokens:      llm.DefaultMaxTokens,
		},
		Build: &BuildConfig{
			Mode:    DefaultBuildMode,
			Command: build.DefaultCommand,
			Timeout: build.DefaultTimeout,
		},
		Preview: &PreviewConfig{
			Mode:    preview.ModeCommand,
			Command: preview.DefaultCommand,
			Port:    preview.DefaultPort,
		},
		Prompts: &PromptsConfig{},
	}
}

// WarehouseSettings converts the warehouse section for warehouse.Open.
func (c *Config) WarehouseSettings() warehouse.Config {
	w := c.Warehouse
	if w == nil {
		w = Default().Warehouse
	}
	return warehouse.Config{
		Type:     w.Type,
		DSN:      w.DSN,
		Host:     w.Host,
		Port:     w.Port,
		Database: w.Database,
		Username: w.User,
		Password: w.Password,
		Options:  w.Options,
		Params:   w.Params,
	}
}
