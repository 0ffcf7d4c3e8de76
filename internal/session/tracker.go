package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/twistedxcom/agentmux/internal/logging"
)

// AgentState classifies what the agent inside a session is doing, derived
// from the session title the agent CLI publishes via its terminal-title hook.
type AgentState int

const (
	// StateUnknown: the title carried no recognized state marker. Common
	// right after launch, before the agent first sets a title.
	StateUnknown AgentState = iota
	// StateIdle: the agent is waiting for input.
	StateIdle
	// StateWorking: the agent is actively processing.
	StateWorking
)

func (s AgentState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWorking:
		return "working"
	default:
		return "unknown"
	}
}

// Spinner glyphs the agent CLI cycles through while working: the braille
// pattern block. Any first rune in this range means working, so new spinner
// frames added upstream keep parsing without a code change here.
const (
	brailleLow  = '⠀'
	brailleHigh = '⣿'
)

// readyMarkers are the glyphs the agent CLI prefixes its title with when
// idle and ready for input.
var readyMarkers = map[rune]bool{
	'✳': true,
	'✻': true,
	'✽': true,
	'✶': true,
	'✢': true,
}

// ParseTitle extracts the agent state and task text from a session title.
// Unrecognized titles keep the full string as the task: a title with no
// marker still names what the session is about.
func ParseTitle(title string) (AgentState, string) {
	if title == "" {
		return StateUnknown, ""
	}
	runes := []rune(title)
	first := runes[0]
	rest := strings.TrimSpace(string(runes[1:]))

	switch {
	case first >= brailleLow && first <= brailleHigh:
		return StateWorking, rest
	case readyMarkers[first]:
		return StateIdle, rest
	default:
		return StateUnknown, strings.TrimSpace(title)
	}
}

// attentionFrames are the icon shown when a session has latched attention.
const attentionIcon = "●"

// idleIcon marks a session waiting for input with nothing pending.
const idleIcon = "○"

// workingFrames cycle while a session is working.
var workingFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// TitleSource answers title queries for a named external session.
type TitleSource interface {
	GetTitle(ctx context.Context, name string) (string, bool)
}

// Renamer applies external session renames.
type Renamer interface {
	RenameSession(ctx context.Context, oldName, newName string) bool
}

// Snapshot is a point-in-time view of a tracked session's derived state.
type Snapshot struct {
	State          AgentState
	Task           string
	NeedsAttention bool
	Icon           string
}

// Tracker polls a session's title and derives agent state, task text, and
// the attention latch. One Tracker per session.
type Tracker struct {
	sess    *Session
	titles  TitleSource
	renamer Renamer
	limiter *rate.Limiter
	log     *slog.Logger

	mu              sync.Mutex
	state           AgentState
	task            string
	lastWorkingTask string
	needsAttention  bool
	frame           int
	onRename        func(oldName, newName string)
	onStateChange   func(from, to AgentState, task string)

	cancel context.CancelFunc
	done   chan struct{}
}

// NewTracker creates a tracker for sess. Title queries are rate-limited to
// perSecond; zero or negative disables the limit.
func NewTracker(sess *Session, titles TitleSource, renamer Renamer, perSecond float64) *Tracker {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	return &Tracker{
		sess:    sess,
		titles:  titles,
		renamer: renamer,
		limiter: rate.NewLimiter(limit, 1),
		log:     logging.ForComponent(logging.CompState),
		state:   StateUnknown,
	}
}

// OnRename registers a callback fired after a successful external rename.
// Must be set before Start.
func (t *Tracker) OnRename(fn func(oldName, newName string)) { t.onRename = fn }

// OnStateChange registers a callback fired on every state transition.
// Must be set before Start.
func (t *Tracker) OnStateChange(fn func(from, to AgentState, task string)) { t.onStateChange = fn }

// Start begins the poll loop. The loop stops when Stop is called or the
// parent context is cancelled.
func (t *Tracker) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})

	go func() {
		defer close(t.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.Poll(ctx)
			}
		}
	}()
}

// Stop halts the poll loop and waits for it to exit.
func (t *Tracker) Stop() {
	if t.cancel == nil {
		return
	}
	t.cancel()
	<-t.done
	t.cancel = nil
}

// Poll performs one title query and state update. Exposed so callers can
// force a refresh outside the ticker cadence.
func (t *Tracker) Poll(ctx context.Context) {
	if !t.limiter.Allow() {
		return
	}
	title, ok := t.titles.GetTitle(ctx, t.sess.MultiplexerName)
	if !ok {
		// Query failed: the session may be mid-restart. Keep the last
		// known state rather than flapping to unknown.
		return
	}
	t.apply(ctx, title)
}

func (t *Tracker) apply(ctx context.Context, title string) {
	state, task := ParseTitle(title)

	t.mu.Lock()
	prev := t.state
	t.state = state
	t.task = task

	var renameFrom, renameTo string
	if state == StateWorking {
		// A working transition proves the user saw (or caused) the latest
		// activity, so any latched attention is stale.
		t.needsAttention = false
		t.frame = (t.frame + 1) % len(workingFrames)

		if task != "" && task != t.lastWorkingTask {
			t.lastWorkingTask = task
			newName := t.sess.NameForTask(task)
			if newName != t.sess.MultiplexerName {
				renameFrom, renameTo = t.sess.MultiplexerName, newName
			}
		}
	}
	stateChanged := state != prev
	onRename := t.onRename
	onStateChange := t.onStateChange
	t.mu.Unlock()

	if renameTo != "" && t.renamer != nil {
		if t.renamer.RenameSession(ctx, renameFrom, renameTo) {
			t.sess.MultiplexerName = renameTo
			t.log.Info("renamed session for task",
				"session_id", t.sess.ID, "from", renameFrom, "to", renameTo)
			if onRename != nil {
				onRename(renameFrom, renameTo)
			}
		} else {
			t.log.Warn("session rename failed, keeping previous name",
				"session_id", t.sess.ID, "target", renameTo)
		}
	}

	if stateChanged {
		t.log.Debug("agent state changed",
			"session_id", t.sess.ID, "from", prev.String(), "to", state.String(), "task", task)
		if onStateChange != nil {
			onStateChange(prev, state, task)
		}
	}
}

// SetNeedsAttention latches the attention flag. It stays set through idle
// and unknown polls; only a working transition clears it.
func (t *Tracker) SetNeedsAttention() {
	t.mu.Lock()
	t.needsAttention = true
	t.mu.Unlock()
}

// LastWorkingTask returns the most recent non-empty task text observed in
// the working state. Used for completion notifications, where the current
// (idle) title no longer names what just finished.
func (t *Tracker) LastWorkingTask() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastWorkingTask
}

// Snapshot returns the current derived state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	icon := idleIcon
	switch {
	case t.needsAttention:
		icon = attentionIcon
	case t.state == StateWorking:
		icon = workingFrames[t.frame]
	}
	return Snapshot{
		State:          t.state,
		Task:           t.task,
		NeedsAttention: t.needsAttention,
		Icon:           icon,
	}
}
