package session

import (
	"context"
	"log/slog"
	"os/exec"
	"runtime"

	"github.com/twistedxcom/agentmux/internal/logging"
	"github.com/twistedxcom/agentmux/internal/procrun"
)

// Notifier delivers user-facing notifications about session events.
type Notifier interface {
	Notify(ctx context.Context, title, body string)
}

// DesktopNotifier sends native desktop notifications: osascript on macOS,
// notify-send on Linux. Missing tools degrade to a log line.
type DesktopNotifier struct {
	runner procrun.Runner
	log    *slog.Logger
}

// NewDesktopNotifier creates a notifier using the given process runner.
func NewDesktopNotifier(runner procrun.Runner) *DesktopNotifier {
	return &DesktopNotifier{
		runner: runner,
		log:    logging.ForComponent(logging.CompSession),
	}
}

// Notify sends one notification. Best-effort: delivery failures are logged,
// never surfaced, a missed toast must not break session handling.
func (n *DesktopNotifier) Notify(ctx context.Context, title, body string) {
	spec, ok := n.notifySpec(title, body)
	if !ok {
		n.log.Debug("no notification tool available", "title", title)
		return
	}
	if _, err := n.runner.Run(ctx, spec); err != nil {
		n.log.Warn("notification delivery failed", "title", title, "error", err)
	}
}

func (n *DesktopNotifier) notifySpec(title, body string) (procrun.Spec, bool) {
	switch runtime.GOOS {
	case "darwin":
		if path, err := exec.LookPath("osascript"); err == nil {
			script := "display notification " + appleScriptQuote(body) +
				" with title " + appleScriptQuote(title)
			return procrun.Spec{Path: path, Args: []string{"-e", script}}, true
		}
	default:
		if path, err := exec.LookPath("notify-send"); err == nil {
			return procrun.Spec{Path: path, Args: []string{title, body}}, true
		}
	}
	return procrun.Spec{}, false
}

func appleScriptQuote(s string) string {
	out := make([]byte, 0, len(s)+2)
	out = append(out, '"')
	for i := 0; i < len(s); i++ {
		if s[i] == '"' || s[i] == '\\' {
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(append(out, '"'))
}

// NullNotifier discards all notifications. Used when notifications are
// disabled in config.
type NullNotifier struct{}

func (NullNotifier) Notify(context.Context, string, string) {}
