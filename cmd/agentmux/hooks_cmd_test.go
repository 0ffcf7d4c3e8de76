package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readSettings(t *testing.T, dir string) map[string]json.RawMessage {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, "settings.json"))
	require.NoError(t, err)
	var settings map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &settings))
	return settings
}

func TestInstallHooksFreshSettings(t *testing.T) {
	dir := t.TempDir()

	installed, err := installHooks(dir)
	require.NoError(t, err)
	assert.True(t, installed)

	settings := readSettings(t, dir)
	var hooks map[string][]hookMatcher
	require.NoError(t, json.Unmarshal(settings["hooks"], &hooks))

	require.Contains(t, hooks, "Stop")
	require.Contains(t, hooks, "Notification")
	assert.Equal(t, hookCommand, hooks["Stop"][0].Hooks[0].Command)
	assert.Equal(t, "permission_prompt|elicitation_dialog", hooks["Notification"][0].Matcher)
	assert.True(t, hooks["Stop"][0].Hooks[0].Async)
}

func TestInstallHooksIdempotent(t *testing.T) {
	dir := t.TempDir()

	installed, err := installHooks(dir)
	require.NoError(t, err)
	require.True(t, installed)

	installed, err = installHooks(dir)
	require.NoError(t, err)
	assert.False(t, installed)

	settings := readSettings(t, dir)
	var hooks map[string][]hookMatcher
	require.NoError(t, json.Unmarshal(settings["hooks"], &hooks))
	require.Len(t, hooks["Stop"], 1)
	assert.Len(t, hooks["Stop"][0].Hooks, 1)
}

func TestInstallHooksPreservesUserSettings(t *testing.T) {
	dir := t.TempDir()
	existing := `{
  "model": "opus",
  "hooks": {
    "Stop": [{"hooks": [{"type": "command", "command": "my-own-hook"}]}]
  }
}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "settings.json"), []byte(existing), 0o644))

	installed, err := installHooks(dir)
	require.NoError(t, err)
	require.True(t, installed)

	settings := readSettings(t, dir)
	assert.JSONEq(t, `"opus"`, string(settings["model"]))

	var hooks map[string][]hookMatcher
	require.NoError(t, json.Unmarshal(settings["hooks"], &hooks))

	var commands []string
	for _, m := range hooks["Stop"] {
		for _, h := range m.Hooks {
			commands = append(commands, h.Command)
		}
	}
	assert.Contains(t, commands, "my-own-hook")
	assert.Contains(t, commands, hookCommand)
}

func TestInstallHooksMalformedSettings(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "settings.json"), []byte("{broken"), 0o644))

	_, err := installHooks(dir)
	assert.Error(t, err)
}

func TestMapEventToKind(t *testing.T) {
	assert.Equal(t, "stop", mapEventToKind("Stop", ""))
	assert.Equal(t, "permission_prompt", mapEventToKind("Notification", "Claude needs permission"))
	assert.Equal(t, "notification", mapEventToKind("Notification", ""))
	assert.Equal(t, "", mapEventToKind("SessionStart", ""))
}
