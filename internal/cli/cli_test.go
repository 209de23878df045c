package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flynn-ai/tripwise/internal/config"
	"github.com/flynn-ai/tripwise/internal/errors"
	"github.com/flynn-ai/tripwise/pkg/protocol"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	t.Setenv("TRIPWISE_PROVIDER", "")
	t.Setenv("TRIPWISE_MODEL", "")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body+"\n[paths]\ndata_dir = \""+filepath.ToSlash(dir)+"\"\n"), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestToolsCommand(t *testing.T) {
	path := writeConfig(t, "[llm]\nprovider = \"ollama\"")

	out, err := execute(t, "--config", path, "tools")
	require.NoError(t, err)
	for _, name := range []string{
		"convert_currency", "search_attractions", "search_transportation",
		"get_current_weather", "get_weather_forecast", "save_itinerary_to_file",
	} {
		assert.Contains(t, out, name)
	}

	out, err = execute(t, "--config", path, "tools", "--json")
	require.NoError(t, err)
	var defs []protocol.ToolDefinition
	require.NoError(t, json.Unmarshal([]byte(out), &defs))
	assert.Len(t, defs, 15)
}

func TestConfigCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	out, err := execute(t, "--config", path, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "wrote "+path)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default().Agent.MaxToolRounds, cfg.Agent.MaxToolRounds)

	_, err = execute(t, "--config", path, "config", "init")
	require.Error(t, err)
	assert.Equal(t, errors.CategoryUser, errors.GetCategory(err))

	_, err = execute(t, "--config", path, "config", "init", "--force")
	require.NoError(t, err)
}

func TestConfigShowRedacts(t *testing.T) {
	path := writeConfig(t, "[llm]\nprovider = \"groq\"\n[llm.api_keys]\ngroq = \"gsk_secretvalue42\"")

	out, err := execute(t, "--config", path, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "provider:        groq")
	assert.NotContains(t, out, "secretvalue")
	assert.Contains(t, out, "gsk_…42")
}

func TestRuntime(t *testing.T) {
	path := writeConfig(t, "[llm]\nprovider = \"ollama\"\n[session]\nbackend = \"sqlite\"\npath = \""+
		filepath.ToSlash(filepath.Join(t.TempDir(), "s.db"))+"\"")
	cfg, err := config.Load(path)
	require.NoError(t, err)

	rt, err := NewRuntime(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "ollama", rt.Model.Provider())
	assert.Equal(t, cfg.Session.Path, rt.DBPath())
	assert.Len(t, rt.Agent.Status().Tools, 15)
	require.NoError(t, rt.Close())
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "(not set)", redact(""))
	assert.Equal(t, "****", redact("short"))
}
