package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/twistedxcom/agentmux/internal/config"
	"github.com/twistedxcom/agentmux/internal/session"
)

// hookPayload is the JSON the agent CLI pipes to hook commands on stdin.
// Unknown fields are ignored.
type hookPayload struct {
	HookEventName string `json:"hook_event_name"`
	Message       string `json:"message,omitempty"`
	Title         string `json:"title,omitempty"`
}

// mapEventToKind translates an agent hook event into an agentmux event kind.
// An empty kind means the event carries no state we track.
func mapEventToKind(event, message string) string {
	switch event {
	case "Stop":
		return "stop"
	case "Notification":
		if message != "" {
			return "permission_prompt"
		}
		return "notification"
	default:
		return ""
	}
}

// runHookHandler processes one agent hook invocation: decode stdin, map the
// event, drop an event file for the watcher. Exits 0 unconditionally — a
// hook failure must never block the agent.
func runHookHandler() {
	sessionID := os.Getenv("AGENTMUX_SESSION_ID")
	if sessionID == "" {
		// This agent run is not managed by agentmux.
		return
	}

	data, err := io.ReadAll(os.Stdin)
	if err != nil || len(data) == 0 {
		return
	}
	var payload hookPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return
	}

	kind := mapEventToKind(payload.HookEventName, payload.Message)
	if kind == "" {
		return
	}

	cfgDir, err := config.Dir()
	if err != nil {
		return
	}
	hooksDir := session.HooksDir(cfgDir)
	if err := os.MkdirAll(hooksDir, 0o755); err != nil {
		return
	}

	out, err := json.Marshal(struct {
		Kind    string `json:"kind"`
		Message string `json:"message,omitempty"`
	}{Kind: kind, Message: payload.Message})
	if err != nil {
		return
	}
	_ = atomicWrite(session.HookFilePath(hooksDir, sessionID), out)
}
