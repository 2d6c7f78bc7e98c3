package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewInitCommand(t *testing.T) {
	tests := []struct {
		name      string
		setupDir  func(t *testing.T, dir string) // setup before running
		args      []string
		wantErr   bool
		wantFiles []string
	}{
		{
			name:    "init empty directory",
			args:    []string{},
			wantErr: false,
			wantFiles: []string{
				"leapapp.yaml",
				".gitignore",
				".env.example",
				"my-app/package.json",
				"my-app/index.html",
				"my-app/src/main.jsx",
				"my-app/src/components/MyApp.jsx",
				"my-app/src/components/useMDConnection.js",
				"my-app/src/components/ui/card.jsx",
				"my-app/src/components/ui/table.jsx",
				"my-app/src/lib/utils.js",
				"my-app/src/index.css",
				"my-app/vite.config.js",
				"my-app/tailwind.config.js",
				"my-app/postcss.config.js",
			},
		},
		{
			name:      "init into subdirectory",
			args:      []string{"dashboard"},
			wantErr:   false,
			wantFiles: []string{"dashboard/leapapp.yaml", "dashboard/my-app/src/components/MyApp.jsx"},
		},
		{
			name: "init existing config without force",
			setupDir: func(_ *testing.T, dir string) {
				_ = os.WriteFile(filepath.Join(dir, "leapapp.yaml"), []byte("existing"), 0600)
			},
			args:    []string{},
			wantErr: true,
		},
		{
			name: "init existing config with force",
			setupDir: func(_ *testing.T, dir string) {
				_ = os.WriteFile(filepath.Join(dir, "leapapp.yaml"), []byte("existing"), 0600)
			},
			args:      []string{"--force"},
			wantErr:   false,
			wantFiles: []string{"leapapp.yaml", "my-app/package.json"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			oldWd, _ := os.Getwd()
			require.NoError(t, os.Chdir(tmpDir))
			defer func() { _ = os.Chdir(oldWd) }()

			if tt.setupDir != nil {
				tt.setupDir(t, tmpDir)
			}

			cmd := NewInitCommand()
			buf := new(bytes.Buffer)
			cmd.SetOut(buf)
			cmd.SetErr(buf)
			cmd.SetArgs(tt.args)

			err := cmd.Execute()
			if tt.wantErr {
				assert.ErrorContains(t, err, "already exists")
				return
			}
			require.NoError(t, err)

			for _, f := range tt.wantFiles {
				_, err := os.Stat(filepath.Join(tmpDir, filepath.FromSlash(f)))
				assert.NoError(t, err, "expected file %q to exist", f)
			}
		})
	}
}

func TestInitCommandMetadata(t *testing.T) {
	cmd := NewInitCommand()

	assert.Equal(t, "init [directory]", cmd.Use)
	assert.NotEmpty(t, cmd.Short, "Short should not be empty")
	assert.NotNil(t, cmd.Flags().Lookup("force"), "--force flag should exist")
}

func TestInitCreatesValidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	oldWd, _ := os.Getwd()
	require.NoError(t, os.Chdir(tmpDir))
	defer func() { _ = os.Chdir(oldWd) }()

	cmd := NewInitCommand()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(new(bytes.Buffer))

	require.NoError(t, cmd.Execute())

	content, err := os.ReadFile("leapapp.yaml")
	require.NoError(t, err, "failed to read leapapp.yaml")

	expectedContents := []string{
		"project_dir: my-app",
		"type: duckdb",
		"provider: openrouter",
		"api_key_env: OPENROUTER_API_KEY",
		"command: npm run build",
	}
	for _, expected := range expectedContents {
		assert.Contains(t, string(content), expected, "config should contain %q", expected)
	}

	assert.Contains(t, out.String(), "Next steps")
	assert.Contains(t, out.String(), "npm install")
}

func TestInitKeepsExistingAppFiles(t *testing.T) {
	tmpDir := t.TempDir()
	component := filepath.Join(tmpDir, "my-app", "src", "components", "MyApp.jsx")
	require.NoError(t, os.MkdirAll(filepath.Dir(component), 0750))
	require.NoError(t, os.WriteFile(component, []byte("// mine"), 0600))

	written, err := copyTemplate(appTemplate, tmpDir, false)
	require.NoError(t, err)
	assert.NotContains(t, written, "my-app/src/components/MyApp.jsx")

	content, err := os.ReadFile(component)
	require.NoError(t, err)
	assert.Equal(t, "// mine", string(content))
}

func TestListTemplateFiles(t *testing.T) {
	files, err := listTemplateFiles(appTemplate)
	require.NoError(t, err)

	assert.Contains(t, files, ".gitignore")
	assert.Contains(t, files, ".env.example")
	assert.Contains(t, files, "leapapp.yaml")
	assert.Contains(t, files, "my-app/src/components/MyApp.jsx")
	assert.NotContains(t, files, "gitignore")
}

func TestGroupTemplateFiles(t *testing.T) {
	groups := groupTemplateFiles([]string{
		"leapapp.yaml",
		".gitignore",
		"my-app/package.json",
		"my-app/src/main.jsx",
	}, "my-app")

	cfg := groups["config"]
	sort.Strings(cfg)
	assert.Equal(t, []string{".gitignore", "leapapp.yaml"}, cfg)
	assert.Equal(t, []string{"my-app/package.json", "my-app/src/main.jsx"}, groups["app"])
}

func TestRenameSpecialFiles(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"gitignore", ".gitignore"},
		{"env.example", ".env.example"},
		{"my-app/gitignore", "my-app/.gitignore"},
		{"leapapp.yaml", "leapapp.yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, renameSpecialFiles(tt.in))
		})
	}
}
