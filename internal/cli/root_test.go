package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	t.Run("version flag", func(t *testing.T) {
		cmd := GetRootCmd()
		cmd.SetArgs([]string{"--version"})

		output := &bytes.Buffer{}
		cmd.SetOut(output)

		err := cmd.Execute()
		require.NoError(t, err)

		assert.Contains(t, output.String(), "parley version")
		assert.Contains(t, output.String(), GetVersion())
	})

	t.Run("help flag", func(t *testing.T) {
		cmd := GetRootCmd()
		cmd.SetArgs([]string{"--help"})

		output := &bytes.Buffer{}
		cmd.SetOut(output)

		err := cmd.Execute()
		require.NoError(t, err)

		helpText := output.String()
		assert.Contains(t, helpText, "Parley")
		assert.Contains(t, helpText, "parallel")
	})

	t.Run("global flags", func(t *testing.T) {
		cmd := GetRootCmd()

		configFlag := cmd.PersistentFlags().Lookup("config")
		require.NotNil(t, configFlag)
		assert.Equal(t, "", configFlag.DefValue)

		logLevelFlag := cmd.PersistentFlags().Lookup("log-level")
		require.NotNil(t, logLevelFlag)
	})

	t.Run("subcommands registered", func(t *testing.T) {
		cmd := GetRootCmd()
		names := []string{}
		for _, sub := range cmd.Commands() {
			names = append(names, sub.Name())
		}
		assert.Contains(t, names, "run")
		assert.Contains(t, names, "tools")
		assert.Contains(t, names, "history")
	})
}

func TestGetVersion(t *testing.T) {
	version := GetVersion()
	assert.NotEmpty(t, version)
	assert.True(t, strings.HasPrefix(version, "0."))
}
