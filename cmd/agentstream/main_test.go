package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/camrenhall/luceron-ai-communications-agent/config"
	"github.com/camrenhall/luceron-ai-communications-agent/features/workflow/cache"
	"github.com/camrenhall/luceron-ai-communications-agent/runtime/engine"
	"github.com/camrenhall/luceron-ai-communications-agent/runtime/workflow/inmem"
)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() { rootCmd.SetArgs(nil); rootCmd.SetOut(nil) })
	require.NoError(t, rootCmd.Execute())
	require.Equal(t, "agentstream version dev\n", out.String())
}

func TestOriginAllower(t *testing.T) {
	require.Nil(t, originAllower(nil))
	allow := originAllower([]string{"https://app.example.com"})
	require.True(t, allow("https://app.example.com"))
	require.False(t, allow("https://evil.example.com"))
	require.False(t, allow(""))
}

func TestNewStoreMemory(t *testing.T) {
	cfg := config.Defaults().Store
	store, closers, pingers, err := newStore(t.Context(), cfg)
	require.NoError(t, err)
	require.Empty(t, closers)
	require.Empty(t, pingers)
	require.IsType(t, &cache.Store{}, store)

	cfg.Cache.Enabled = false
	store, _, _, err = newStore(t.Context(), cfg)
	require.NoError(t, err)
	require.IsType(t, &inmem.Store{}, store)
}

func TestNewEngine(t *testing.T) {
	dir := t.TempDir()
	prompt := filepath.Join(dir, "prompt.md")
	require.NoError(t, os.WriteFile(prompt, []byte("You are the communications agent."), 0o600))

	cfg := config.Defaults().Agent
	cfg.SystemPromptFile = prompt
	_, _, err := newEngine(cfg)
	require.ErrorContains(t, err, "API key is not configured")

	cfg.AnthropicAPIKey = "sk-ant"
	eng, agentType, err := newEngine(cfg)
	require.NoError(t, err)
	require.IsType(t, &engine.Loop{}, eng)
	require.Equal(t, "CommunicationsAgent", agentType)

	cfg.SystemPromptFile = filepath.Join(dir, "missing.md")
	_, _, err = newEngine(cfg)
	require.ErrorContains(t, err, "prompt file not found")
}
