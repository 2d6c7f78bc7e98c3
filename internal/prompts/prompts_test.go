package prompts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerator(t *testing.T) {
	p := Generator()
	assert.Contains(t, p, "<thinking>")
	assert.Contains(t, p, "<component>")

	got, err := LoadGenerator("")
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestLoadGenerator_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prompt.md")
	require.NoError(t, os.WriteFile(path, []byte("  custom prompt\n"), 0o600))

	got, err := LoadGenerator(path)
	require.NoError(t, err)
	assert.Equal(t, "custom prompt", got)

	empty := filepath.Join(dir, "empty.md")
	require.NoError(t, os.WriteFile(empty, []byte("\n"), 0o600))
	_, err = LoadGenerator(empty)
	assert.ErrorContains(t, err, "is empty")

	_, err = LoadGenerator(filepath.Join(dir, "missing.md"))
	assert.ErrorContains(t, err, "failed to read generator prompt")
}

func TestRules_Default(t *testing.T) {
	r, err := NewRules("")
	require.NoError(t, err)

	out, err := r.String(RulesData{Database: "sales", Schema: "CREATE TABLE t(a INT);"})
	require.NoError(t, err)
	assert.Contains(t, out, "### Rules for the MotherDuck data app")
	assert.Contains(t, out, "sales.main.my_table")
	assert.Contains(t, out, "#### Database\nsales")
	assert.Contains(t, out, "#### Database Schema\nCREATE TABLE t(a INT);")
}

func TestRules_CustomTemplate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.tmpl")
	require.NoError(t, os.WriteFile(path, []byte("{{ .AppName }}|{{ .Database }}|{{ .Schema }}"), 0o600))

	r, err := NewRules(path)
	require.NoError(t, err)
	out, err := r.String(RulesData{AppName: "Shop", Database: "db", Schema: "s"})
	require.NoError(t, err)
	assert.Equal(t, "Shop|db|s", out)
}

func TestRules_BadTemplate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.tmpl")
	require.NoError(t, os.WriteFile(path, []byte("{{ .Schema "), 0o600))

	_, err := NewRules(path)
	assert.ErrorContains(t, err, "failed to parse rules template")
}
