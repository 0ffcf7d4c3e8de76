// Package session holds the in-process mirror of externally-owned tmux
// sessions: records, persistence, title-state tracking, and the startup
// reattachment pass. The tmux server owns the real state (buffer, process
// tree); everything here is an eventually-consistent cache re-synced on
// every reattach.
package session

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/twistedxcom/agentmux/internal/mux"
)

// Session represents one long-lived agent run hosted in a tmux session.
type Session struct {
	ID               string        `json:"id"`
	WorkingDirectory string        `json:"working_directory"`
	TaskLabel        string        `json:"task_label,omitempty"`
	Options          LaunchOptions `json:"options"`

	// MultiplexerName is the external tmux session name. Mutable: renamed as
	// the task label changes, but it always retains the ID-derived suffix so
	// suffix lookups survive arbitrary renames.
	MultiplexerName string `json:"multiplexer_name"`

	CreatedAt time.Time `json:"created_at"`

	mu sync.Mutex

	// isRunning is transient: true once the external session is confirmed
	// created, false after termination. Never persisted — it is re-derived
	// at load time, stale values cannot be trusted.
	isRunning bool
}

// New creates a Session for a fresh agent run in dir.
func New(dir, task string, opts LaunchOptions) *Session {
	id := uuid.NewString()
	return &Session{
		ID:               id,
		WorkingDirectory: dir,
		TaskLabel:        task,
		Options:          opts,
		MultiplexerName:  mux.SessionName(filepath.Base(dir), task, id),
		CreatedAt:        time.Now(),
	}
}

// IsRunning reports whether the external session is believed alive.
func (s *Session) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// SetRunning updates the transient liveness flag.
func (s *Session) SetRunning(running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isRunning = running
}

// Suffix returns the stable identifier-derived name suffix.
func (s *Session) Suffix() string {
	return mux.Suffix(s.ID)
}

// NameForTask derives the external name this session would have under the
// given task label. The suffix component never changes.
func (s *Session) NameForTask(task string) string {
	return mux.SessionName(filepath.Base(s.WorkingDirectory), task, s.ID)
}

// CheckNameInvariant verifies the external name still carries the identifier
// suffix. A violation is programmer error, not runtime drift: no external
// actor can produce it through this package's API.
func (s *Session) CheckNameInvariant() error {
	if !mux.NameMatchesID(s.MultiplexerName, s.ID) {
		return fmt.Errorf("session %s lost its identifier suffix in name %q", s.ID, s.MultiplexerName)
	}
	return nil
}
