package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"

	"github.com/memohai/askbot/internal/classify"
	"github.com/memohai/askbot/internal/config"
	"github.com/memohai/askbot/internal/dispatch"
)

// writeConfig writes a config with every provider disabled so nothing
// leaves the machine.
func writeConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	memoryPath := filepath.Join(dir, "memory.json")
	body := `
[memory]
path = "` + filepath.ToSlash(memoryPath) + `"
history_cap = 2

[providers.claude]
enabled = false
[providers.gpt]
enabled = false
[providers.gemini]
enabled = false
[providers.ollama]
enabled = false
`
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path, memoryPath
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "askbot dev"))
}

func TestAskAndHistory(t *testing.T) {
	cfgPath, memoryPath := writeConfig(t)

	out, err := run(t, "--config", cfgPath, "ask", "--user", "discord:1", "first")
	require.NoError(t, err)
	assert.Equal(t, dispatch.NoProvidersText+"\n", out)

	for _, prompt := range []string{"second", "third"} {
		_, err = run(t, "--config", cfgPath, "ask", "--user", "discord:1", prompt)
		require.NoError(t, err)
	}
	_, err = os.Stat(memoryPath)
	require.NoError(t, err)

	out, err = run(t, "--config", cfgPath, "history", "discord:1")
	require.NoError(t, err)
	assert.Equal(t, "1. second\n2. third\n", out)

	out, err = run(t, "--config", cfgPath, "history")
	require.NoError(t, err)
	assert.Equal(t, "discord:1\t2\n", out)

	out, err = run(t, "--config", cfgPath, "history", "clear", "discord:1")
	require.NoError(t, err)
	assert.Contains(t, out, "cleared")

	out, err = run(t, "--config", cfgPath, "history", "discord:1")
	require.NoError(t, err)
	assert.Equal(t, "no history for discord:1\n", out)
}

func TestAskRejectsBlankPrompt(t *testing.T) {
	cfgPath, _ := writeConfig(t)
	_, err := run(t, "--config", cfgPath, "ask", "   ")
	require.Error(t, err)
}

func TestAskFailsOnCorruptHistory(t *testing.T) {
	cfgPath, memoryPath := writeConfig(t)
	require.NoError(t, os.WriteFile(memoryPath, []byte("{not json"), 0o644))

	_, err := run(t, "--config", cfgPath, "ask", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open history")
}

func TestBuildProvidersRoutes(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)

	set := buildProviders(nil, cfg.Providers)
	require.NotNil(t, set.primary())
	routes := set.routes()
	assert.Equal(t, "GPT", routes[classify.Coding].Name())
	assert.Equal(t, "Gemini", routes[classify.Reasoning].Name())
	assert.Equal(t, "Ollama", routes[classify.Memory].Name())

	names := []string{}
	for _, p := range set.all() {
		names = append(names, p.Name())
	}
	assert.Equal(t, []string{"Claude", "GPT", "Gemini", "Ollama"}, names)

	cfg.Providers.Claude.Enabled = false
	cfg.Providers.Gemini.Enabled = false
	set = buildProviders(nil, cfg.Providers)
	assert.Nil(t, set.primary())
	_, ok := set.routes()[classify.Reasoning]
	assert.False(t, ok)
}

func TestBuildRegistry(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)

	_, err = buildRegistry(nil, cfg)
	require.Error(t, err)

	cfg.Discord.BotToken = "discord-token"
	cfg.Telegram.Enabled = true
	cfg.Telegram.BotToken = "telegram-token"
	registry, err := buildRegistry(nil, cfg)
	require.NoError(t, err)
	assert.Equal(t, 2, registry.Len())
}

func TestServeGraphIsComplete(t *testing.T) {
	cfgPath, _ := writeConfig(t)
	require.NoError(t, fx.ValidateApp(serveOptions(cfgPath)))
}
