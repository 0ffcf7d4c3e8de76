package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sahilm/fuzzy"

	"github.com/twistedxcom/agentmux/internal/logging"
	"github.com/twistedxcom/agentmux/internal/mux"
)

// Multiplexer is the external session surface the manager drives.
// *mux.Client satisfies it.
type Multiplexer interface {
	CreateAndLaunch(ctx context.Context, name, dir, command string) error
	ConfigureExisting(ctx context.Context, name string)
	RenameSession(ctx context.Context, oldName, newName string) bool
	KillSession(ctx context.Context, name string) error
	SessionExists(ctx context.Context, name string) bool
	ListSessions(ctx context.Context) []string
	GetTitle(ctx context.Context, name string) (string, bool)
	GetActivePanePath(ctx context.Context, name string) (string, bool)
}

var _ Multiplexer = (*mux.Client)(nil)

// Manager owns the session list: creation, rename, teardown, lookup, and
// persistence. Every mutation is written through to the store.
type Manager struct {
	mux   Multiplexer
	store *Store
	log   *slog.Logger

	mu           sync.Mutex
	sessions     []*Session
	lastActiveID string

	// locks serializes operations per session so a rename cannot interleave
	// with a kill of the same session. Operations on different sessions
	// proceed concurrently.
	locks sync.Map // session ID -> *sync.Mutex
}

// NewManager creates a manager backed by the given multiplexer and store.
func NewManager(m Multiplexer, store *Store) *Manager {
	return &Manager{
		mux:   m,
		store: store,
		log:   logging.ForComponent(logging.CompSession),
	}
}

// Load populates the manager from the store. Call once at startup, before
// reattachment.
func (m *Manager) Load() error {
	data, err := m.store.Load()
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.sessions = data.Sessions
	m.lastActiveID = data.LastActiveID
	m.mu.Unlock()
	return nil
}

func (m *Manager) sessionLock(id string) *sync.Mutex {
	l, _ := m.locks.LoadOrStore(id, &sync.Mutex{})
	return l.(*sync.Mutex)
}

// Create launches a new agent session in dir and registers it. The external
// session is created and the agent command sent in a single batched
// invocation. A hard launch failure rolls back: any partially created
// external session is killed and nothing is persisted.
func (m *Manager) Create(ctx context.Context, dir, task string, opts LaunchOptions) (*Session, error) {
	sess := New(dir, task, opts)

	lock := m.sessionLock(sess.ID)
	lock.Lock()
	defer lock.Unlock()

	// The env prefix lets hook handlers running inside the session report
	// back against the right record.
	command := "AGENTMUX_SESSION_ID=" + sess.ID + " " + opts.BuildCommand()
	if err := m.mux.CreateAndLaunch(ctx, sess.MultiplexerName, dir, command); err != nil {
		// Launch failed outright. A partial session may still exist if the
		// batch died between sub-commands; remove it so retries start clean.
		if m.mux.SessionExists(ctx, sess.MultiplexerName) {
			if killErr := m.mux.KillSession(ctx, sess.MultiplexerName); killErr != nil {
				m.log.Warn("rollback kill failed",
					"name", sess.MultiplexerName, "error", killErr)
			}
		}
		return nil, fmt.Errorf("launching session in %s: %w", dir, err)
	}
	sess.SetRunning(true)

	m.mu.Lock()
	m.sessions = append(m.sessions, sess)
	m.lastActiveID = sess.ID
	m.mu.Unlock()

	if err := m.persist(); err != nil {
		m.log.Error("persisting new session failed", "session_id", sess.ID, "error", err)
	}

	m.log.Info("session created",
		"session_id", sess.ID, "name", sess.MultiplexerName, "dir", dir, "task", task)
	return sess, nil
}

// Rename changes a session's task label and renames the external session to
// match. Fail-closed: if the external rename does not succeed, the record
// keeps its previous label and name.
func (m *Manager) Rename(ctx context.Context, id, task string) error {
	sess, ok := m.ByID(id)
	if !ok {
		return fmt.Errorf("no session with id %s", id)
	}

	lock := m.sessionLock(sess.ID)
	lock.Lock()
	defer lock.Unlock()

	newName := sess.NameForTask(task)
	if !m.mux.RenameSession(ctx, sess.MultiplexerName, newName) {
		return fmt.Errorf("renaming session %s to %q", sess.MultiplexerName, newName)
	}

	sess.TaskLabel = task
	sess.MultiplexerName = newName
	if err := sess.CheckNameInvariant(); err != nil {
		return err
	}

	if err := m.persist(); err != nil {
		m.log.Error("persisting rename failed", "session_id", id, "error", err)
	}
	m.log.Info("session renamed", "session_id", id, "name", newName, "task", task)
	return nil
}

// Kill tears down a session: the caller must detach any PTY first, then this
// kills the external session and removes the record. Killing an already-dead
// session still removes the record.
func (m *Manager) Kill(ctx context.Context, id string) error {
	sess, ok := m.ByID(id)
	if !ok {
		return fmt.Errorf("no session with id %s", id)
	}

	lock := m.sessionLock(sess.ID)
	lock.Lock()
	defer lock.Unlock()

	if m.mux.SessionExists(ctx, sess.MultiplexerName) {
		if err := m.mux.KillSession(ctx, sess.MultiplexerName); err != nil {
			return fmt.Errorf("killing session %s: %w", sess.MultiplexerName, err)
		}
	}
	sess.SetRunning(false)

	m.mu.Lock()
	for i, s := range m.sessions {
		if s.ID == id {
			m.sessions = append(m.sessions[:i], m.sessions[i+1:]...)
			break
		}
	}
	if m.lastActiveID == id {
		m.lastActiveID = ""
	}
	m.mu.Unlock()
	m.locks.Delete(id)

	if err := m.persist(); err != nil {
		m.log.Error("persisting kill failed", "session_id", id, "error", err)
	}
	m.log.Info("session killed", "session_id", id, "name", sess.MultiplexerName)
	return nil
}

// Adopt registers sessions produced by startup reattachment, replacing the
// loaded list.
func (m *Manager) Adopt(sessions []*Session) {
	m.mu.Lock()
	m.sessions = sessions
	m.mu.Unlock()
	if err := m.persist(); err != nil {
		m.log.Error("persisting reattached sessions failed", "error", err)
	}
}

// List returns a snapshot of the current sessions in display order.
func (m *Manager) List() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, len(m.sessions))
	copy(out, m.sessions)
	return out
}

// ByID looks up a session by its identifier.
func (m *Manager) ByID(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.ID == id {
			return s, true
		}
	}
	return nil, false
}

// BySuffix looks up a session by identifier prefix or name suffix. Accepts
// the 8-character suffix or any unambiguous prefix of the full identifier.
func (m *Manager) BySuffix(key string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.ID == key || s.Suffix() == key || s.MultiplexerName == key {
			return s, true
		}
	}
	return nil, false
}

// FindByTask fuzzy-matches task labels and returns sessions ranked by match
// quality. An empty query returns nothing.
func (m *Manager) FindByTask(query string) []*Session {
	if query == "" {
		return nil
	}
	m.mu.Lock()
	sessions := make([]*Session, len(m.sessions))
	copy(sessions, m.sessions)
	m.mu.Unlock()

	labels := make([]string, len(sessions))
	for i, s := range sessions {
		labels[i] = s.TaskLabel
	}
	matches := fuzzy.Find(query, labels)
	out := make([]*Session, 0, len(matches))
	for _, match := range matches {
		out = append(out, sessions[match.Index])
	}
	return out
}

// SetLastActive records which session currently has focus.
func (m *Manager) SetLastActive(id string) {
	m.mu.Lock()
	m.lastActiveID = id
	m.mu.Unlock()
	if err := m.persist(); err != nil {
		m.log.Error("persisting last-active failed", "session_id", id, "error", err)
	}
}

// LastActiveID returns the focused session's identifier, or "".
func (m *Manager) LastActiveID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastActiveID
}

// NoteRename records an externally-driven rename (from the state tracker)
// and persists it. The tracker already applied the external rename.
func (m *Manager) NoteRename(id, task string) {
	if sess, ok := m.ByID(id); ok {
		sess.TaskLabel = task
	}
	if err := m.persist(); err != nil {
		m.log.Error("persisting tracker rename failed", "session_id", id, "error", err)
	}
}

func (m *Manager) persist() error {
	m.mu.Lock()
	data := &StoreData{
		Sessions:     append([]*Session(nil), m.sessions...),
		LastActiveID: m.lastActiveID,
	}
	m.mu.Unlock()
	return m.store.Save(data)
}
