package session

import (
	"context"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/twistedxcom/agentmux/internal/logging"
	"github.com/twistedxcom/agentmux/internal/mux"
)

// ReattachLister is the multiplexer surface the coordinator needs to
// discover and prepare external sessions.
type ReattachLister interface {
	ListSessions(ctx context.Context) []string
	ConfigureExisting(ctx context.Context, name string)
	GetActivePanePath(ctx context.Context, name string) (string, bool)
}

// WindowHost receives the reattached sessions. Positioning and attaching are
// split so all windows reach their final geometry before any PTY connects:
// a PTY attached to a half-positioned window captures the wrong size and
// triggers a resize storm on every remaining move.
type WindowHost interface {
	PositionWindow(sess *Session) error
	AttachSession(sess *Session) error
	FocusSession(sess *Session)
}

// Coordinator reconciles the persisted session list against the live
// external sessions at startup and hands survivors to the window host.
type Coordinator struct {
	mux  ReattachLister
	host WindowHost
	log  *slog.Logger
}

// NewCoordinator creates a startup reattachment coordinator.
func NewCoordinator(m ReattachLister, host WindowHost) *Coordinator {
	return &Coordinator{
		mux:  m,
		host: host,
		log:  logging.ForComponent(logging.CompReattach),
	}
}

// Reattach reconciles persisted sessions with the external session list and
// attaches the survivors. Returns the reconciled session list in display
// order: persisted sessions first (original order), then sessions discovered
// externally with no persisted record.
//
// Reconciliation sorts every session into one of three sets:
//   - persisted and alive: reattach
//   - persisted but gone: drop from the store
//   - alive but not persisted: adopt with a synthesized record
func (c *Coordinator) Reattach(ctx context.Context, persisted []*Session, lastActiveID string) []*Session {
	external := c.mux.ListSessions(ctx)
	alive := make(map[string]bool, len(external))
	for _, name := range external {
		alive[name] = true
	}

	var kept []*Session
	claimed := make(map[string]bool)
	for _, sess := range persisted {
		if !alive[sess.MultiplexerName] {
			c.log.Info("dropping stale session record",
				"session_id", sess.ID, "name", sess.MultiplexerName)
			continue
		}
		sess.SetRunning(true)
		claimed[sess.MultiplexerName] = true
		kept = append(kept, sess)
	}

	for _, name := range external {
		if claimed[name] {
			continue
		}
		sess := c.adopt(ctx, name)
		c.log.Info("adopted unrecorded session", "session_id", sess.ID, "name", name)
		kept = append(kept, sess)
	}

	// Re-apply session options to every survivor. The tmux server may have
	// restarted since these options were last set, and applying them is
	// idempotent. Failures are tolerated per session.
	var g errgroup.Group
	for _, sess := range kept {
		sess := sess
		g.Go(func() error {
			c.mux.ConfigureExisting(ctx, sess.MultiplexerName)
			return nil
		})
	}
	g.Wait()

	// Phase 1: position every window before any PTY attaches.
	for _, sess := range kept {
		if err := c.host.PositionWindow(sess); err != nil {
			c.log.Warn("window positioning failed",
				"session_id", sess.ID, "error", err)
		}
	}

	// Phase 2: attach PTYs.
	for _, sess := range kept {
		if err := c.host.AttachSession(sess); err != nil {
			c.log.Warn("reattach failed",
				"session_id", sess.ID, "name", sess.MultiplexerName, "error", err)
		}
	}

	if lastActiveID != "" {
		for _, sess := range kept {
			if sess.ID == lastActiveID {
				c.host.FocusSession(sess)
				break
			}
		}
	}

	c.log.Info("reattachment complete",
		"persisted", len(persisted), "external", len(external), "kept", len(kept))
	return kept
}

// adopt synthesizes a record for an external session that has no persisted
// counterpart. The external name is kept as-is even when it lacks the
// identifier suffix: renaming a session we did not create would be rude.
func (c *Coordinator) adopt(ctx context.Context, name string) *Session {
	dir, ok := c.mux.GetActivePanePath(ctx, name)
	if !ok || dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = home
		} else {
			dir = "/"
		}
	}

	sess := New(dir, "", LaunchOptions{})
	sess.MultiplexerName = name
	sess.SetRunning(true)
	return sess
}

// HasExternalName reports whether any live external session carries the
// suffix of the given identifier. Used by callers to detect duplicates
// before adopting.
func HasExternalName(names []string, id string) (string, bool) {
	name := mux.FindBySuffix(names, id)
	return name, name != ""
}
