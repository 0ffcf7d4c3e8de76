package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// hookCommand is the marker command identifying agentmux entries inside the
// agent CLI's settings.json.
const hookCommand = "agentmux hook-handler"

type hookEntry struct {
	Type    string `json:"type"`
	Command string `json:"command"`
	Async   bool   `json:"async,omitempty"`
}

type hookMatcher struct {
	Matcher string      `json:"matcher,omitempty"`
	Hooks   []hookEntry `json:"hooks"`
}

// hookEventConfigs lists the agent events subscribed to and their matcher
// patterns.
var hookEventConfigs = []struct {
	Event   string
	Matcher string
}{
	{Event: "Stop"},
	{Event: "Notification", Matcher: "permission_prompt|elicitation_dialog"},
}

func handleHooks(args []string) {
	if len(args) < 1 || args[0] != "install" {
		fmt.Fprintln(os.Stderr, "usage: agentmux hooks install")
		os.Exit(1)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		fatal(err)
	}
	installed, err := installHooks(filepath.Join(home, ".claude"))
	if err != nil {
		fatal(err)
	}
	if installed {
		fmt.Println("Installed agentmux hooks.")
	} else {
		fmt.Println("agentmux hooks already installed.")
	}
}

// installHooks merges agentmux hook entries into the agent CLI's
// settings.json. Read-preserve-modify-write: every other setting and any
// user-defined hooks survive untouched. Returns true when entries were newly
// added.
func installHooks(agentConfigDir string) (bool, error) {
	settingsPath := filepath.Join(agentConfigDir, "settings.json")

	var rawSettings map[string]json.RawMessage
	data, err := os.ReadFile(settingsPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return false, fmt.Errorf("read settings.json: %w", err)
		}
		rawSettings = make(map[string]json.RawMessage)
	} else if err := json.Unmarshal(data, &rawSettings); err != nil {
		return false, fmt.Errorf("parse settings.json: %w", err)
	}

	var existingHooks map[string]json.RawMessage
	if raw, ok := rawSettings["hooks"]; ok {
		if err := json.Unmarshal(raw, &existingHooks); err != nil {
			existingHooks = make(map[string]json.RawMessage)
		}
	} else {
		existingHooks = make(map[string]json.RawMessage)
	}

	if hooksAlreadyInstalled(existingHooks) {
		return false, nil
	}

	for _, cfg := range hookEventConfigs {
		existingHooks[cfg.Event] = mergeHookEvent(existingHooks[cfg.Event], cfg.Matcher)
	}

	hooksRaw, err := json.Marshal(existingHooks)
	if err != nil {
		return false, fmt.Errorf("marshal hooks: %w", err)
	}
	rawSettings["hooks"] = hooksRaw

	out, err := json.MarshalIndent(rawSettings, "", "  ")
	if err != nil {
		return false, fmt.Errorf("marshal settings: %w", err)
	}
	if err := os.MkdirAll(agentConfigDir, 0o755); err != nil {
		return false, err
	}
	if err := atomicWrite(settingsPath, out); err != nil {
		return false, fmt.Errorf("write settings.json: %w", err)
	}
	return true, nil
}

func hooksAlreadyInstalled(hooks map[string]json.RawMessage) bool {
	for _, cfg := range hookEventConfigs {
		raw, ok := hooks[cfg.Event]
		if !ok {
			return false
		}
		var matchers []hookMatcher
		if err := json.Unmarshal(raw, &matchers); err != nil {
			return false
		}
		found := false
		for _, m := range matchers {
			for _, h := range m.Hooks {
				if h.Command == hookCommand {
					found = true
				}
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// mergeHookEvent appends the agentmux entry to an event's matcher list,
// preserving existing entries and skipping if already present.
func mergeHookEvent(raw json.RawMessage, matcher string) json.RawMessage {
	var matchers []hookMatcher
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &matchers); err != nil {
			matchers = nil
		}
	}
	for _, m := range matchers {
		for _, h := range m.Hooks {
			if h.Command == hookCommand {
				out, _ := json.Marshal(matchers)
				return out
			}
		}
	}
	matchers = append(matchers, hookMatcher{
		Matcher: matcher,
		Hooks: []hookEntry{{
			Type:    "command",
			Command: hookCommand,
			Async:   true,
		}},
	})
	out, _ := json.Marshal(matchers)
	return out
}

func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
