package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/twistedxcom/agentmux/internal/procrun"
	"github.com/twistedxcom/agentmux/internal/ptyattach"
	"github.com/twistedxcom/agentmux/internal/session"
)

func handleAdd(a *app, args []string) error {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	task := fs.String("t", "", "task label for the session")
	model := fs.String("m", "", "agent model")
	command := fs.String("command", "", "agent executable (default: claude)")
	permMode := fs.String("permission-mode", "", "agent permission mode")
	skipPerms := fs.Bool("skip-permissions", false, "launch with permission checks disabled")
	resume := fs.String("resume", "", "resume an agent session by its ID")
	cont := fs.Bool("continue", false, "continue the most recent agent session")
	if err := fs.Parse(normalizeArgs(fs, args)); err != nil {
		return err
	}

	dir := fs.Arg(0)
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("resolving working directory: %w", err)
		}
		dir = wd
	}
	abs, err := absDir(dir)
	if err != nil {
		return err
	}

	opts := session.LaunchOptions{
		Command:         *command,
		Model:           *model,
		PermissionMode:  *permMode,
		SkipPermissions: *skipPerms,
	}
	switch {
	case *resume != "":
		opts.SessionMode = "resume"
		opts.ResumeSessionID = *resume
	case *cont:
		opts.SessionMode = "continue"
	}

	sess, err := a.manager.Create(context.Background(), abs, *task, opts)
	if err != nil {
		return err
	}
	fmt.Printf("Created session %s (%s)\n", sess.Suffix(), sess.MultiplexerName)
	return nil
}

func handleList(a *app, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	asJSON := fs.Bool("json", false, "output JSON")
	if err := fs.Parse(normalizeArgs(fs, args)); err != nil {
		return err
	}

	sessions := a.resync(context.Background())
	if *asJSON {
		return printSessionsJSON(sessions)
	}
	printSessionTable(sessions, a.manager.LastActiveID())
	return nil
}

// resync reconciles the persisted records against the live external session
// list: stale records are dropped, unrecorded live sessions adopted.
func (a *app) resync(ctx context.Context) []*session.Session {
	coord := session.NewCoordinator(a.mux, noopHost{})
	kept := coord.Reattach(ctx, a.manager.List(), "")
	a.manager.Adopt(kept)
	return kept
}

// noopHost is the window host for plain CLI invocations: there are no
// embedded windows to position and no PTYs to hold open, reconciliation is
// all that is wanted.
type noopHost struct{}

func (noopHost) PositionWindow(*session.Session) error { return nil }
func (noopHost) AttachSession(*session.Session) error  { return nil }
func (noopHost) FocusSession(*session.Session)         {}

func handleRename(a *app, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: agentmux rename <id> <task>")
	}
	sess, err := resolveSession(a, args[0])
	if err != nil {
		return err
	}
	if err := a.manager.Rename(context.Background(), sess.ID, args[1]); err != nil {
		return err
	}
	fmt.Printf("Renamed %s to %q (%s)\n", sess.Suffix(), args[1], sess.MultiplexerName)
	return nil
}

func handleKill(a *app, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: agentmux kill <id>")
	}
	sess, err := resolveSession(a, args[0])
	if err != nil {
		return err
	}
	if err := a.manager.Kill(context.Background(), sess.ID); err != nil {
		return err
	}
	fmt.Printf("Killed session %s\n", sess.Suffix())
	return nil
}

// resolveSession finds a session by ID, suffix, or external name, falling
// back to fuzzy task matching.
func resolveSession(a *app, key string) (*session.Session, error) {
	if sess, ok := a.manager.BySuffix(key); ok {
		return sess, nil
	}
	if matches := a.manager.FindByTask(key); len(matches) > 0 {
		return matches[0], nil
	}
	return nil, fmt.Errorf("no session matches %q", key)
}

// terminalSurface renders session bytes straight to the controlling
// terminal.
type terminalSurface struct {
	out io.Writer
}

func (t *terminalSurface) Feed(p []byte) { _, _ = t.out.Write(p) }

func (t *terminalSurface) Size() (cols, rows int) {
	cols, rows, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 80, 24
	}
	return cols, rows
}

// ScrollToBottom is a no-op: a raw terminal is already pinned to live
// output.
func (t *terminalSurface) ScrollToBottom() {}

func handleAttach(a *app, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: agentmux attach <id>")
	}
	sess, err := resolveSession(a, args[0])
	if err != nil {
		return err
	}
	ctx := context.Background()
	if !a.mux.SessionExists(ctx, sess.MultiplexerName) {
		return fmt.Errorf("session %s is not running", sess.Suffix())
	}

	oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
	if err != nil {
		return fmt.Errorf("entering raw mode: %w", err)
	}
	defer term.Restore(int(os.Stdin.Fd()), oldState)

	surface := &terminalSurface{out: os.Stdout}
	att := ptyattach.New(sess.MultiplexerName, a.mux.Binary(), surface)

	if history, ok := a.mux.CaptureScrollback(ctx, sess.MultiplexerName, a.cfg.Tmux.GetScrollbackLines()); ok {
		att.PreloadScrollback(history)
	}
	if err := att.Start(ctx); err != nil {
		return err
	}
	defer att.Close()
	a.manager.SetLastActive(sess.ID)

	stopTracking := a.watchSession(ctx, sess)
	defer stopTracking()

	// Track terminal resizes for the lifetime of the attachment.
	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	defer signal.Stop(winch)
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-att.Done():
				return
			case <-winch:
			case <-ticker.C:
			}
			_, _ = att.ReconcileSize()
		}
	}()

	// Forward keystrokes until the attach child exits.
	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := os.Stdin.Read(buf)
			if n > 0 {
				if _, werr := att.Write(buf[:n]); werr != nil {
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	<-att.Done()
	return nil
}

// watchSession runs the title poller and hook watcher for one attached
// session. Returns a stop function.
func (a *app) watchSession(ctx context.Context, sess *session.Session) func() {
	var notifier session.Notifier = session.NullNotifier{}
	if a.cfg.Notifications.GetEnabled() {
		notifier = session.NewDesktopNotifier(procrun.NewExecRunner())
	}

	tracker := session.NewTracker(sess, a.mux, a.mux, a.cfg.Polling.GetSpawnRatePerSec())
	tracker.OnRename(func(_, _ string) {
		a.manager.NoteRename(sess.ID, tracker.LastWorkingTask())
	})
	tracker.Start(ctx, time.Duration(a.cfg.Polling.GetTitleIntervalMS())*time.Millisecond)

	watcher, err := session.NewHookWatcher(session.HooksDir(a.cfgDir), func(ev session.HookEvent) {
		if ev.SessionID != sess.ID {
			return
		}
		switch ev.Kind {
		case "stop":
			if a.cfg.Notifications.GetOnComplete() {
				task := tracker.LastWorkingTask()
				if task == "" {
					task = "Session " + sess.Suffix()
				}
				notifier.Notify(ctx, "Agent finished", task)
			}
		case "permission_prompt", "notification":
			tracker.SetNeedsAttention()
			if a.cfg.Notifications.GetOnAttention() {
				notifier.Notify(ctx, "Agent needs attention", ev.Message)
			}
		}
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: hook watcher unavailable: %v\n", err)
		return tracker.Stop
	}
	if err := watcher.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: hook watcher unavailable: %v\n", err)
		return tracker.Stop
	}
	return func() {
		watcher.Stop()
		tracker.Stop()
	}
}

func absDir(dir string) (string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return "", fmt.Errorf("working directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", dir)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	return abs, nil
}
