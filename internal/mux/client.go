// Package mux is the batched-command protocol layer over tmux. High-level
// session operations translate into one or more tmux sub-commands joined by
// the ";" separator token so they execute in a single process spawn: spawn
// overhead dominates latency at session-creation time.
package mux

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/twistedxcom/agentmux/internal/logging"
	"github.com/twistedxcom/agentmux/internal/procrun"
)

var muxLog = logging.ForComponent(logging.CompMux)

// DefaultBinary is the multiplexer control executable.
const DefaultBinary = "tmux"

// batchSeparator joins sub-commands into one invocation. It is passed as a
// bare argv token, not shell syntax.
const batchSeparator = ";"

// Client issues batched tmux commands through a procrun.Runner.
// One Client is shared process-wide; it holds no per-session state.
type Client struct {
	runner procrun.Runner
	bin    string
	env    []string // fully resolved environment for spawned control processes
	sf     singleflight.Group
}

// NewClient creates a Client using the given runner and tmux binary path.
// If bin is empty, DefaultBinary is used.
func NewClient(runner procrun.Runner, bin string) *Client {
	if bin == "" {
		bin = DefaultBinary
	}
	return &Client{runner: runner, bin: bin}
}

// SetEnvironment sets the resolved environment used for control-process
// spawns. GUI-launched parents do not inherit an interactive shell's
// environment, so the composition root resolves one and passes it here.
func (c *Client) SetEnvironment(env []string) { c.env = env }

// Binary returns the configured multiplexer executable path.
func (c *Client) Binary() string { return c.bin }

// exact prefixes a target with the exact-match sigil. tmux otherwise matches
// session names by prefix, which is ambiguous once names share a directory
// component. Only valid for sessions that existed before this invocation:
// a name created earlier in the same batch cannot be resolved this way.
func exact(name string) string { return "=" + name }

func (c *Client) run(ctx context.Context, args []string) (procrun.Result, error) {
	return c.runner.Run(ctx, procrun.Spec{Path: c.bin, Args: args, Env: c.env})
}

// sessionOptions returns the per-session option sub-commands applied both at
// creation and on reattach. All are best-effort (-q): older tmux versions
// reject options they do not know yet still execute the rest of the batch.
//
//   - allow-rename/allow-passthrough: let the inner agent set the pane title
//     via escape sequences (the title is our only state signal)
//   - alternate-screen off: history accumulates in the primary buffer so
//     scrollback capture sees it
//   - mouse off: the embedding surface owns scroll; stay a well-behaved
//     co-tenant next to other attached clients
func sessionOptions(target string) [][]string {
	return [][]string{
		{"set-option", "-t", target, "-q", "allow-rename", "on"},
		{"set-option", "-t", target, "-q", "allow-passthrough", "all"},
		{"set-option", "-t", target, "-q", "alternate-screen", "off"},
		{"set-option", "-t", target, "-q", "mouse", "off"},
		{"set-option", "-t", target, "-q", "history-limit", "50000"},
	}
}

// serverOptions returns server-level one-time option sub-commands. They are
// folded into creation/reattach batches instead of a separate server-lifetime
// call because the tmux server may not exist yet at application startup.
func serverOptions() [][]string {
	return [][]string{
		{"set-option", "-s", "-q", "extended-keys", "on"},
		{"set-option", "-s", "-q", "extended-keys-format", "csi-u"},
		{"set-option", "-g", "-q", "window-size", "latest"},
	}
}

// joinBatch flattens sub-commands with the separator token between them.
func joinBatch(cmds [][]string) []string {
	var args []string
	for i, cmd := range cmds {
		if i > 0 {
			args = append(args, batchSeparator)
		}
		args = append(args, cmd...)
	}
	return args
}

// CreateAndLaunch creates a detached session named name in dir, applies
// session and server options, and sends command — all in one process spawn.
//
// The batch is best-effort as a whole: option sub-commands may fail on older
// tmux versions while session creation itself succeeded. A non-zero exit is
// therefore re-checked with SessionExists; if the session is there, the
// failure is demoted to a log line.
func (c *Client) CreateAndLaunch(ctx context.Context, name, dir, command string) error {
	cmds := [][]string{
		{"new-session", "-d", "-s", name, "-c", dir},
	}
	// No exact() here: the session is being created within this same batch
	// and tmux cannot resolve an exact-match target for it yet.
	cmds = append(cmds, sessionOptions(name)...)
	cmds = append(cmds, serverOptions()...)
	// Unset TMUX in the session environment so the launched agent does not
	// believe it is already running nested inside a multiplexer.
	cmds = append(cmds, []string{"set-environment", "-t", name, "-r", "TMUX"})
	if command != "" {
		cmds = append(cmds, []string{"send-keys", "-t", name, command, "Enter"})
	}

	_, err := c.run(ctx, joinBatch(cmds))
	if err == nil {
		return nil
	}

	if c.SessionExists(ctx, name) {
		muxLog.Warn("create_batch_soft_failure",
			slog.String("session", name),
			slog.String("error", err.Error()))
		return nil
	}
	return fmt.Errorf("creating session %s: %w", name, err)
}

// ConfigureExisting re-applies session and server options to a session that
// already exists (used on reattach). Best-effort: never returns an error.
func (c *Client) ConfigureExisting(ctx context.Context, name string) {
	cmds := sessionOptions(exact(name))
	cmds = append(cmds, serverOptions()...)

	if _, err := c.run(ctx, joinBatch(cmds)); err != nil {
		muxLog.Debug("configure_existing_failed",
			slog.String("session", name),
			slog.String("error", err.Error()))
	}
}

// RenameSession renames a session and reports success. Renaming a session to
// its current name is a no-op success without any process spawn. A false
// return means the external rename did not happen; the caller must keep its
// cached old name.
func (c *Client) RenameSession(ctx context.Context, oldName, newName string) bool {
	if oldName == newName {
		return true
	}
	if _, err := c.run(ctx, []string{"rename-session", "-t", exact(oldName), newName}); err != nil {
		muxLog.Warn("rename_failed",
			slog.String("from", oldName),
			slog.String("to", newName),
			slog.String("error", err.Error()))
		return false
	}
	return true
}

// KillSession terminates a session. Failure propagates: killing is the one
// mutation the caller must know did not happen.
func (c *Client) KillSession(ctx context.Context, name string) error {
	if _, err := c.run(ctx, []string{"kill-session", "-t", exact(name)}); err != nil {
		return fmt.Errorf("killing session %s: %w", name, err)
	}
	return nil
}

// SessionExists reports whether the named session exists. Never returns an
// error: any failure reads as "does not exist".
func (c *Client) SessionExists(ctx context.Context, name string) bool {
	_, err := c.run(ctx, []string{"has-session", "-t", exact(name)})
	return err == nil
}

// ListSessions returns the names of all agentmux-owned sessions. Query
// failures yield an empty list, never an error: at startup the tmux server
// frequently does not exist yet.
func (c *Client) ListSessions(ctx context.Context) []string {
	res, err := c.run(ctx, []string{"list-sessions", "-F", "#{session_name}"})
	if err != nil {
		return nil
	}
	var names []string
	for _, line := range strings.Split(strings.TrimSpace(res.Stdout), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, SessionPrefix) {
			names = append(names, line)
		}
	}
	return names
}

// GetTitle returns the active pane's title. Concurrent polls for the same
// session collapse into one subprocess via singleflight.
func (c *Client) GetTitle(ctx context.Context, name string) (string, bool) {
	v, err, _ := c.sf.Do("title:"+name, func() (any, error) {
		res, err := c.run(ctx, []string{"display-message", "-p", "-t", exact(name), "#{pane_title}"})
		if err != nil {
			return "", err
		}
		return strings.TrimRight(res.Stdout, "\n"), nil
	})
	if err != nil {
		return "", false
	}
	return v.(string), true
}

// GetActivePanePath returns the working directory of the session's active
// pane, used to resolve the directory of sessions discovered externally.
func (c *Client) GetActivePanePath(ctx context.Context, name string) (string, bool) {
	res, err := c.run(ctx, []string{"display-message", "-p", "-t", exact(name), "#{pane_current_path}"})
	if err != nil {
		return "", false
	}
	path := strings.TrimSpace(res.Stdout)
	return path, path != ""
}

// GetWindowSize returns the session's window size in character cells.
func (c *Client) GetWindowSize(ctx context.Context, name string) (cols, rows int, ok bool) {
	res, err := c.run(ctx, []string{"display-message", "-p", "-t", exact(name), "#{window_width}\t#{window_height}"})
	if err != nil {
		return 0, 0, false
	}
	parts := strings.Split(strings.TrimSpace(res.Stdout), "\t")
	if len(parts) != 2 {
		return 0, 0, false
	}
	cols, errC := strconv.Atoi(parts[0])
	rows, errR := strconv.Atoi(parts[1])
	if errC != nil || errR != nil || cols <= 0 || rows <= 0 {
		return 0, 0, false
	}
	return cols, rows, true
}

// CaptureScrollback captures up to lines of pane history. The range runs from
// -lines through the end of the visible viewport, not just the scrollback:
// a session with empty history still yields its current screen content.
// Trailing blank padding lines are stripped. Returns ok=false when the
// capture failed or produced nothing.
func (c *Client) CaptureScrollback(ctx context.Context, name string, lines int) (string, bool) {
	if lines <= 0 {
		lines = 2000
	}
	res, err := c.run(ctx, []string{
		"capture-pane", "-p", "-t", exact(name),
		"-S", fmt.Sprintf("-%d", lines),
	})
	if err != nil {
		return "", false
	}
	content := trimTrailingBlankLines(res.Stdout)
	if content == "" {
		return "", false
	}
	return content, true
}

// trimTrailingBlankLines removes blank padding at the end of captured
// content while preserving interior blank lines.
func trimTrailingBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	end := len(lines)
	for end > 0 && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	return strings.Join(lines[:end], "\n")
}
