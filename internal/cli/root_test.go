package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRootCmd_Subcommands(t *testing.T) {
	root := NewRootCmd()

	want := []string{"version", "chat", "serve", "databases", "schema", "rules", "history", "init", "doctor", "completion"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
}

func TestNewRootCmd_PersistentFlags(t *testing.T) {
	root := NewRootCmd()

	flags := []string{
		"config", "project-dir", "state", "database", "dsn", "warehouse",
		"provider", "model", "base-url", "build-mode", "preview-mode",
		"port", "open", "verbose", "output",
	}
	for _, name := range flags {
		assert.NotNil(t, root.PersistentFlags().Lookup(name), "flag %q should exist", name)
	}
	assert.Equal(t, "v", root.PersistentFlags().Lookup("verbose").Shorthand)
	assert.Equal(t, "o", root.PersistentFlags().Lookup("output").Shorthand)
}

func TestCompletionCommand(t *testing.T) {
	root := NewRootCmd()
	out := new(bytes.Buffer)
	root.SetOut(out)
	root.SetErr(new(bytes.Buffer))
	root.SetArgs([]string{"completion", "bash"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "leapapp")

	root.SetArgs([]string{"completion", "tcsh"})
	assert.Error(t, root.Execute())
}
