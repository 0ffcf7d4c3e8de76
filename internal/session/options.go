package session

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultAgentCommand is the agent CLI launched inside new sessions.
const DefaultAgentCommand = "claude"

// LaunchOptions holds the agent launch configuration for a session.
// Immutable once the session is launched.
type LaunchOptions struct {
	// Command overrides the agent executable (default: claude)
	Command string `json:"command,omitempty"`

	// Model selects the agent model (--model)
	Model string `json:"model,omitempty"`

	// PermissionMode sets --permission-mode (e.g. "plan", "acceptEdits")
	PermissionMode string `json:"permission_mode,omitempty"`

	// SkipPermissions adds --dangerously-skip-permissions
	SkipPermissions bool `json:"skip_permissions,omitempty"`

	// SessionMode: "new" (default), "continue" (-c), or "resume" (-r)
	SessionMode string `json:"session_mode,omitempty"`

	// ResumeSessionID is the session ID for --resume (SessionMode="resume")
	ResumeSessionID string `json:"resume_session_id,omitempty"`

	// MaxTurns caps the agent's turn budget (--max-turns)
	MaxTurns int `json:"max_turns,omitempty"`

	// AllowedTools / DisallowedTools populate the tool allow/deny lists
	AllowedTools    []string `json:"allowed_tools,omitempty"`
	DisallowedTools []string `json:"disallowed_tools,omitempty"`

	// ExtraArgs are appended verbatim after all generated flags
	ExtraArgs []string `json:"extra_args,omitempty"`
}

// ToArgs returns the command-line arguments for these options.
func (o LaunchOptions) ToArgs() []string {
	var args []string

	switch o.SessionMode {
	case "continue":
		args = append(args, "-c")
	case "resume":
		if o.ResumeSessionID != "" {
			args = append(args, "--resume", o.ResumeSessionID)
		}
	}
	// "new" or empty = default behavior, no flag

	if o.Model != "" {
		args = append(args, "--model", o.Model)
	}
	if o.SkipPermissions {
		args = append(args, "--dangerously-skip-permissions")
	} else if o.PermissionMode != "" {
		args = append(args, "--permission-mode", o.PermissionMode)
	}
	if o.MaxTurns > 0 {
		args = append(args, "--max-turns", strconv.Itoa(o.MaxTurns))
	}
	if len(o.AllowedTools) > 0 {
		args = append(args, "--allowedTools", strings.Join(o.AllowedTools, ","))
	}
	if len(o.DisallowedTools) > 0 {
		args = append(args, "--disallowedTools", strings.Join(o.DisallowedTools, ","))
	}
	args = append(args, o.ExtraArgs...)

	return args
}

// BuildCommand assembles the full launch command line sent to the session.
// Arguments containing shell metacharacters are single-quoted.
func (o LaunchOptions) BuildCommand() string {
	base := o.Command
	if base == "" {
		base = DefaultAgentCommand
	}
	parts := []string{base}
	for _, a := range o.ToArgs() {
		parts = append(parts, shellQuote(a))
	}
	return strings.Join(parts, " ")
}

// shellQuote single-quotes an argument when it contains characters the shell
// would interpret.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\"'`$&|;<>()*?#~") {
		return s
	}
	return fmt.Sprintf("'%s'", strings.ReplaceAll(s, "'", `'"'"'`))
}
