package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMux is an in-memory Multiplexer tracking live session names.
type fakeMux struct {
	live         map[string]bool
	createErr    error
	renameOK     bool
	killErr      error
	killed       []string
	created      []string
	partialOnErr bool
	title        string
	titleOK      bool
}

func newFakeMux() *fakeMux {
	return &fakeMux{live: make(map[string]bool), renameOK: true}
}

func (f *fakeMux) CreateAndLaunch(_ context.Context, name, dir, command string) error {
	if f.createErr != nil {
		if f.partialOnErr {
			f.live[name] = true
		}
		return f.createErr
	}
	f.live[name] = true
	f.created = append(f.created, name)
	return nil
}

func (f *fakeMux) ConfigureExisting(context.Context, string) {}

func (f *fakeMux) RenameSession(_ context.Context, oldName, newName string) bool {
	if !f.renameOK {
		return false
	}
	delete(f.live, oldName)
	f.live[newName] = true
	return true
}

func (f *fakeMux) KillSession(_ context.Context, name string) error {
	f.killed = append(f.killed, name)
	if f.killErr != nil {
		return f.killErr
	}
	delete(f.live, name)
	return nil
}

func (f *fakeMux) SessionExists(_ context.Context, name string) bool { return f.live[name] }

func (f *fakeMux) ListSessions(context.Context) []string {
	var names []string
	for n := range f.live {
		names = append(names, n)
	}
	return names
}

func (f *fakeMux) GetTitle(context.Context, string) (string, bool) { return f.title, f.titleOK }

func (f *fakeMux) GetActivePanePath(context.Context, string) (string, bool) { return "", false }

func managerFixture(t *testing.T) (*Manager, *fakeMux, *Store) {
	t.Helper()
	store := NewStore(filepath.Join(t.TempDir(), "sessions.json"))
	fm := newFakeMux()
	m := NewManager(fm, store)
	require.NoError(t, m.Load())
	return m, fm, store
}

func TestManagerCreate(t *testing.T) {
	m, fm, store := managerFixture(t)

	sess, err := m.Create(context.Background(), "/tmp/proj", "fix auth", LaunchOptions{Model: "opus"})
	require.NoError(t, err)
	assert.True(t, sess.IsRunning())
	assert.True(t, fm.live[sess.MultiplexerName])
	assert.Equal(t, sess.ID, m.LastActiveID())

	data, err := store.Load()
	require.NoError(t, err)
	require.Len(t, data.Sessions, 1)
	assert.Equal(t, sess.ID, data.Sessions[0].ID)
}

func TestManagerCreateRollsBackPartialSession(t *testing.T) {
	m, fm, store := managerFixture(t)
	fm.createErr = errors.New("exit status 1")
	fm.partialOnErr = true

	_, err := m.Create(context.Background(), "/tmp/proj", "doomed", LaunchOptions{})
	require.Error(t, err)
	assert.Len(t, fm.killed, 1, "partial session should be rolled back")
	assert.Empty(t, m.List())

	data, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, data.Sessions)
}

func TestManagerCreateHardFailureNoRollbackNeeded(t *testing.T) {
	m, fm, _ := managerFixture(t)
	fm.createErr = errors.New("tmux: command not found")

	_, err := m.Create(context.Background(), "/tmp/proj", "doomed", LaunchOptions{})
	require.Error(t, err)
	assert.Empty(t, fm.killed, "nothing to roll back when no session exists")
}

func TestManagerRename(t *testing.T) {
	m, fm, _ := managerFixture(t)
	sess, err := m.Create(context.Background(), "/tmp/proj", "old task", LaunchOptions{})
	require.NoError(t, err)
	oldName := sess.MultiplexerName

	require.NoError(t, m.Rename(context.Background(), sess.ID, "new task"))
	assert.Equal(t, "new task", sess.TaskLabel)
	assert.NotEqual(t, oldName, sess.MultiplexerName)
	assert.Contains(t, sess.MultiplexerName, sess.Suffix())
	assert.True(t, fm.live[sess.MultiplexerName])
	assert.False(t, fm.live[oldName])
}

func TestManagerRenameFailClosed(t *testing.T) {
	m, fm, _ := managerFixture(t)
	sess, err := m.Create(context.Background(), "/tmp/proj", "old task", LaunchOptions{})
	require.NoError(t, err)
	fm.renameOK = false

	err = m.Rename(context.Background(), sess.ID, "new task")
	require.Error(t, err)
	assert.Equal(t, "old task", sess.TaskLabel)
}

func TestManagerKill(t *testing.T) {
	m, fm, store := managerFixture(t)
	sess, err := m.Create(context.Background(), "/tmp/proj", "task", LaunchOptions{})
	require.NoError(t, err)

	require.NoError(t, m.Kill(context.Background(), sess.ID))
	assert.False(t, sess.IsRunning())
	assert.False(t, fm.live[sess.MultiplexerName])
	assert.Empty(t, m.List())
	assert.Empty(t, m.LastActiveID())

	data, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, data.Sessions)
}

func TestManagerKillAlreadyDeadSession(t *testing.T) {
	m, fm, _ := managerFixture(t)
	sess, err := m.Create(context.Background(), "/tmp/proj", "task", LaunchOptions{})
	require.NoError(t, err)
	delete(fm.live, sess.MultiplexerName)

	require.NoError(t, m.Kill(context.Background(), sess.ID))
	assert.Empty(t, fm.killed, "no kill issued for an already-dead session")
	assert.Empty(t, m.List())
}

func TestManagerKillPropagatesError(t *testing.T) {
	m, fm, _ := managerFixture(t)
	sess, err := m.Create(context.Background(), "/tmp/proj", "task", LaunchOptions{})
	require.NoError(t, err)
	fm.killErr = errors.New("server exited")

	assert.Error(t, m.Kill(context.Background(), sess.ID))
	assert.Len(t, m.List(), 1, "record kept when the external kill fails")
}

func TestManagerBySuffix(t *testing.T) {
	m, _, _ := managerFixture(t)
	sess, err := m.Create(context.Background(), "/tmp/proj", "task", LaunchOptions{})
	require.NoError(t, err)

	got, ok := m.BySuffix(sess.Suffix())
	require.True(t, ok)
	assert.Equal(t, sess.ID, got.ID)

	_, ok = m.BySuffix("nope1234")
	assert.False(t, ok)
}

func TestManagerFindByTask(t *testing.T) {
	m, _, _ := managerFixture(t)
	ctx := context.Background()
	auth, err := m.Create(ctx, "/tmp/a", "refactor auth middleware", LaunchOptions{})
	require.NoError(t, err)
	_, err = m.Create(ctx, "/tmp/b", "write release notes", LaunchOptions{})
	require.NoError(t, err)

	found := m.FindByTask("auth")
	require.NotEmpty(t, found)
	assert.Equal(t, auth.ID, found[0].ID)

	assert.Empty(t, m.FindByTask(""))
}

// Full lifecycle: launch, working title drives a rename, idle leaves the
// attention latch alone, teardown removes everything.
func TestSessionLifecycle(t *testing.T) {
	m, fm, store := managerFixture(t)
	ctx := context.Background()

	sess, err := m.Create(ctx, "/home/dev/proj", "", LaunchOptions{Command: "claude"})
	require.NoError(t, err)
	require.True(t, sess.IsRunning())
	require.True(t, fm.live[sess.MultiplexerName])

	tracker := NewTracker(sess, fm, fm, 0)
	tracker.OnRename(func(_, _ string) {
		m.NoteRename(sess.ID, tracker.LastWorkingTask())
	})

	fm.title, fm.titleOK = "⠂ Building", true
	tracker.Poll(ctx)
	assert.Equal(t, StateWorking, tracker.Snapshot().State)
	assert.Contains(t, sess.MultiplexerName, "Building")
	assert.Contains(t, sess.MultiplexerName, sess.Suffix())
	assert.True(t, fm.live[sess.MultiplexerName], "external rename followed")
	assert.Equal(t, "Building", sess.TaskLabel)

	fm.title = "✳ Claude Code"
	tracker.Poll(ctx)
	assert.Equal(t, StateIdle, tracker.Snapshot().State)
	assert.False(t, tracker.Snapshot().NeedsAttention)

	require.NoError(t, m.Kill(ctx, sess.ID))
	assert.False(t, fm.live[sess.MultiplexerName])

	data, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, data.Sessions)
}

func TestManagerLoadRestoresFromStore(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(filepath.Join(dir, "sessions.json"))
	sess := New("/tmp/proj", "task", LaunchOptions{})
	require.NoError(t, store.Save(&StoreData{
		Sessions:     []*Session{sess},
		LastActiveID: sess.ID,
	}))

	m := NewManager(newFakeMux(), store)
	require.NoError(t, m.Load())
	assert.Len(t, m.List(), 1)
	assert.Equal(t, sess.ID, m.LastActiveID())
}
