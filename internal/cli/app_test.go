package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/parley/internal/config"
	"github.com/harun/parley/internal/prompts"
	"github.com/harun/parley/pkg/mcpbridge"
)

func TestBuildTransport(t *testing.T) {
	t.Run("stdio", func(t *testing.T) {
		tr := buildTransport(config.AgentConfig{
			Name: "SlackAgent",
			Server: config.ServerConfig{
				Transport: "stdio",
				Command:   "npx",
				Args:      []string{"-y", "slack-mcp"},
				Env:       map[string]string{"SLACK_TOKEN": "x"},
			},
		})

		stdio, ok := tr.(*mcpbridge.StdioTransport)
		require.True(t, ok)
		assert.Equal(t, "npx", stdio.Command)
		assert.Equal(t, []string{"-y", "slack-mcp"}, stdio.Args)
		assert.Equal(t, "parley", stdio.ClientName)
	})

	t.Run("websocket", func(t *testing.T) {
		tr := buildTransport(config.AgentConfig{
			Name: "JiraAgent",
			Server: config.ServerConfig{
				Transport: "websocket",
				URL:       "wss://jira.example.com/mcp",
			},
		})

		ws, ok := tr.(*mcpbridge.WSTransport)
		require.True(t, ok)
		assert.Equal(t, "wss://jira.example.com/mcp", ws.URL)
	})
}

func TestInstructionsFor(t *testing.T) {
	assert.Equal(t, prompts.SlackInstructions, instructionsFor(prompts.SlackAgentName))
	assert.Equal(t, prompts.JiraInstructions, instructionsFor(prompts.JiraAgentName))

	custom := instructionsFor("WikiAgent")
	assert.Contains(t, custom, "WikiAgent")
	assert.Contains(t, custom, "specialist agent")
}

func TestNewApp_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parley.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"llm": {"provider": "openai"}}`), 0644))

	_, err := newApp(path, "")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}
