// Package ptyattach owns one pseudo-terminal-backed attach process per
// visible session and keeps its kernel-reported window size in sync with the
// render surface's character grid.
package ptyattach

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/twistedxcom/agentmux/internal/logging"
)

var ptyLog = logging.ForComponent(logging.CompPTY)

// State is the attachment lifecycle state.
type State int

const (
	StateIdle State = iota
	StateAttaching
	StateAttached
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAttaching:
		return "attaching"
	case StateAttached:
		return "attached"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Surface is the render target for session bytes. It is whatever draws
// glyphs; this package only streams to it.
type Surface interface {
	// Feed delivers raw terminal bytes for rendering. Must not block the
	// producer for long.
	Feed(p []byte)
	// Size returns the surface's current character grid.
	Size() (cols, rows int)
	// ScrollToBottom re-pins the viewport to the live output.
	ScrollToBottom()
}

// sgrReset clears any color/attribute state so captured history cannot bleed
// into live output that follows it.
const sgrReset = "\x1b[0m"

// redrawSettleDelay is how long to wait after a resize before re-pinning the
// surface to the bottom, giving tmux time to finish its redraw.
const redrawSettleDelay = 150 * time.Millisecond

// handle abstracts the PTY file so size reconciliation is testable.
type handle interface {
	io.ReadWriteCloser
	getSize() (cols, rows int, err error)
	setSize(cols, rows int) error
}

// startFunc spawns the attach child on a PTY. Replaced in tests.
type startFunc func(cmd *exec.Cmd) (handle, error)

// Attachment streams one tmux attach-session child to a Surface.
//
// Attachment is deferred: it is never started on surface creation, because
// attaching before the hosting window reaches final size makes tmux see an
// intermediate geometry, redraw, then resize again — a visible jump. The
// caller triggers Start explicitly once layout has settled.
type Attachment struct {
	sessionName string
	bin         string
	surface     Surface

	start    startFunc
	schedule func(d time.Duration, f func())

	mu    sync.Mutex
	state State
	ptmx  handle
	cmd   *exec.Cmd
	done  chan struct{}
}

// New creates an idle attachment for the named session. bin is the
// multiplexer executable path.
func New(sessionName, bin string, surface Surface) *Attachment {
	return &Attachment{
		sessionName: sessionName,
		bin:         bin,
		surface:     surface,
		start:       startWithPTY,
		schedule:    func(d time.Duration, f func()) { time.AfterFunc(d, f) },
		done:        make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (a *Attachment) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Done is closed when the attach process has terminated.
func (a *Attachment) Done() <-chan struct{} { return a.done }

// PreloadScrollback feeds captured session history into the surface before
// the live attach starts. Line-feed-only endings are converted to CRLF for
// correct rendering, and attributes are reset afterwards.
func (a *Attachment) PreloadScrollback(content string) {
	if content == "" {
		return
	}
	normalized := strings.ReplaceAll(content, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\n", "\r\n")
	a.surface.Feed([]byte(normalized + "\r\n" + sgrReset))
}

// Start launches the attach child on a PTY and begins streaming output to
// the surface. Failure to locate the executable or spawn the process is fed
// inline to the surface — the only user-visible error path here — and also
// returned.
func (a *Attachment) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.state != StateIdle {
		state := a.state
		a.mu.Unlock()
		return fmt.Errorf("attachment for %s already %s", a.sessionName, state)
	}
	a.state = StateAttaching
	a.mu.Unlock()

	binPath, err := exec.LookPath(a.bin)
	if err != nil {
		a.failInline(fmt.Sprintf("%s not found in PATH", a.bin))
		return fmt.Errorf("locating %s: %w", a.bin, err)
	}

	cmd := exec.CommandContext(ctx, binPath, "attach-session", "-t", "="+a.sessionName)
	ptmx, err := a.start(cmd)
	if err != nil {
		a.failInline(fmt.Sprintf("failed to attach to %s: %v", a.sessionName, err))
		return fmt.Errorf("starting attach pty: %w", err)
	}

	a.mu.Lock()
	a.ptmx = ptmx
	a.cmd = cmd
	a.state = StateAttached
	a.mu.Unlock()

	ptyLog.Debug("attached", slog.String("session", a.sessionName))

	go a.readLoop(ptmx)
	return nil
}

func (a *Attachment) readLoop(ptmx handle) {
	buf := make([]byte, 32*1024)
	for {
		n, err := ptmx.Read(buf)
		if n > 0 {
			a.surface.Feed(buf[:n])
		}
		if err != nil {
			break
		}
	}

	a.mu.Lock()
	a.state = StateTerminated
	cmd := a.cmd
	a.mu.Unlock()

	if cmd != nil {
		_ = cmd.Wait()
	}
	close(a.done)
	ptyLog.Debug("attach_terminated", slog.String("session", a.sessionName))
}

// Write forwards user input bytes to the attach child.
func (a *Attachment) Write(p []byte) (int, error) {
	a.mu.Lock()
	ptmx := a.ptmx
	state := a.state
	a.mu.Unlock()

	if state != StateAttached || ptmx == nil {
		return 0, fmt.Errorf("attachment for %s is %s", a.sessionName, state)
	}
	return ptmx.Write(p)
}

// ReconcileSize detects drift between the PTY's kernel-reported size and the
// surface's grid and corrects it. Returns true when a correction was issued.
//
// Some PTY layers suppress the resize signal to the child when the new size
// equals one they already delivered, so a real change is applied in two
// steps: rows bumped by one first, then the true target on the next tick.
// This guarantees the child observes a change.
func (a *Attachment) ReconcileSize() (bool, error) {
	a.mu.Lock()
	ptmx := a.ptmx
	state := a.state
	a.mu.Unlock()

	if state != StateAttached || ptmx == nil {
		return false, nil
	}

	wantCols, wantRows := a.surface.Size()
	if wantCols <= 0 || wantRows <= 0 {
		return false, nil
	}

	curCols, curRows, err := ptmx.getSize()
	if err != nil {
		return false, fmt.Errorf("querying pty size: %w", err)
	}
	if curCols == wantCols && curRows == wantRows {
		return false, nil
	}

	ptyLog.Debug("size_drift",
		slog.String("session", a.sessionName),
		slog.Int("have_cols", curCols), slog.Int("have_rows", curRows),
		slog.Int("want_cols", wantCols), slog.Int("want_rows", wantRows))

	if err := ptmx.setSize(wantCols, wantRows+1); err != nil {
		return false, fmt.Errorf("bump resize: %w", err)
	}
	a.schedule(0, func() {
		if err := ptmx.setSize(wantCols, wantRows); err != nil {
			ptyLog.Warn("restore_resize_failed",
				slog.String("session", a.sessionName),
				slog.String("error", err.Error()))
		}
	})
	a.schedule(redrawSettleDelay, func() {
		a.surface.ScrollToBottom()
	})
	return true, nil
}

// Close tears the attachment down: the PTY is closed and the child released.
// Callers must close the attachment before issuing a kill for the same
// session, so no dangling writer survives the session.
func (a *Attachment) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == StateTerminated {
		return nil
	}
	a.state = StateTerminated
	if a.ptmx != nil {
		_ = a.ptmx.Close()
		a.ptmx = nil
	}
	if a.cmd != nil && a.cmd.Process != nil {
		_ = a.cmd.Process.Kill()
	}
	return nil
}

// failInline reports a fatal attach error on the surface itself rather than
// failing silently.
func (a *Attachment) failInline(msg string) {
	a.mu.Lock()
	a.state = StateTerminated
	a.mu.Unlock()
	a.surface.Feed([]byte("\r\n\x1b[31m[agentmux] " + msg + "\x1b[0m\r\n"))
	close(a.done)
}
