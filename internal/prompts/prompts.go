// Package prompts holds the bundled generator prompt and the rules file
// template. Both can be replaced by files named in the configuration.
package prompts

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"
	"text/template"
)

// DefaultAppName is used in the rules header when none is configured.
const DefaultAppName = "MotherDuck"

//go:embed generator.md
var defaultGenerator string

//go:embed rules.md.tmpl
var defaultRules string

// Generator returns the bundled system prompt.
func Generator() string {
	return defaultGenerator
}

// LoadGenerator returns the prompt stored at path, or the bundled prompt
// when path is empty.
func LoadGenerator(path string) (string, error) {
	if path == "" {
		return defaultGenerator, nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // path comes from user config
	if err != nil {
		return "", fmt.Errorf("failed to read generator prompt: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("generator prompt %s is empty", path)
	}
	return text, nil
}

// RulesData is the input of the rules template.
type RulesData struct {
	AppName  string
	Database string
	Schema   string
}

// Rules renders the editor rules file.
type Rules struct {
	tmpl *template.Template
}

// NewRules parses the template at path, or the bundled one when path is empty.
func NewRules(path string) (*Rules, error) {
	src := defaultRules
	name := "rules"
	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // path comes from user config
		if err != nil {
			return nil, fmt.Errorf("failed to read rules template: %w", err)
		}
		src, name = string(data), path
	}

	tmpl, err := template.New(name).Option("missingkey=error").Parse(src)
	if err != nil {
		return nil, fmt.Errorf("failed to parse rules template: %w", err)
	}
	return &Rules{tmpl: tmpl}, nil
}

// Render writes the rules for data to w.
func (r *Rules) Render(w io.Writer, data RulesData) error {
	if data.AppName == "" {
		data.AppName = DefaultAppName
	}
	if err := r.tmpl.Execute(w, data); err != nil {
		return fmt.Errorf("failed to render rules: %w", err)
	}
	return nil
}

// String renders the rules to a string.
func (r *Rules) String(data RulesData) (string, error) {
	var b strings.Builder
	if err := r.Render(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}
