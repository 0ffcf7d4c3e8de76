package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTitle(t *testing.T) {
	tests := []struct {
		name  string
		title string
		state AgentState
		task  string
	}{
		{"ready marker with task", "✳ Claude Code", StateIdle, "Claude Code"},
		{"spinner with task", "⠂ Refactoring auth", StateWorking, "Refactoring auth"},
		{"alternate ready markers", "✻ done", StateIdle, "done"},
		{"bare word", "hello", StateUnknown, "hello"},
		{"empty", "", StateUnknown, ""},
		{"spinner only", "⠧", StateWorking, ""},
		{"ready marker only", "✽", StateIdle, ""},
		{"whitespace around task", "✶   trailing  ", StateIdle, "trailing"},
		{"marker not first rune", "x ✳ task", StateUnknown, "x ✳ task"},
		{"high braille frame", "⣿ compiling", StateWorking, "compiling"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state, task := ParseTitle(tt.title)
			assert.Equal(t, tt.state, state)
			assert.Equal(t, tt.task, task)
		})
	}
}

type fakeTitleSource struct {
	title string
	ok    bool
}

func (f *fakeTitleSource) GetTitle(context.Context, string) (string, bool) {
	return f.title, f.ok
}

type fakeRenamer struct {
	calls  [][2]string
	result bool
}

func (f *fakeRenamer) RenameSession(_ context.Context, oldName, newName string) bool {
	f.calls = append(f.calls, [2]string{oldName, newName})
	return f.result
}

func trackerFixture(t *testing.T) (*Tracker, *fakeTitleSource, *fakeRenamer) {
	t.Helper()
	sess := New("/tmp/proj", "initial", LaunchOptions{})
	titles := &fakeTitleSource{}
	renamer := &fakeRenamer{result: true}
	tr := NewTracker(sess, titles, renamer, 0)
	return tr, titles, renamer
}

func TestTrackerAttentionLatch(t *testing.T) {
	tr, titles, _ := trackerFixture(t)
	ctx := context.Background()

	tr.SetNeedsAttention()
	assert.True(t, tr.Snapshot().NeedsAttention)

	// Idle and unknown polls do not clear the latch.
	titles.title, titles.ok = "✳ waiting", true
	tr.Poll(ctx)
	assert.True(t, tr.Snapshot().NeedsAttention)

	titles.title = "some plain title"
	tr.Poll(ctx)
	assert.True(t, tr.Snapshot().NeedsAttention)

	// A working transition clears it.
	titles.title = "⠂ busy again"
	tr.Poll(ctx)
	assert.False(t, tr.Snapshot().NeedsAttention)
}

func TestTrackerFailedQueryRetainsState(t *testing.T) {
	tr, titles, _ := trackerFixture(t)
	ctx := context.Background()

	titles.title, titles.ok = "⠂ working on it", true
	tr.Poll(ctx)
	require.Equal(t, StateWorking, tr.Snapshot().State)

	titles.ok = false
	tr.Poll(ctx)
	assert.Equal(t, StateWorking, tr.Snapshot().State)
	assert.Equal(t, "working on it", tr.Snapshot().Task)
}

func TestTrackerRenameOnNewWorkingTask(t *testing.T) {
	tr, titles, renamer := trackerFixture(t)
	ctx := context.Background()

	titles.title, titles.ok = "⠂ fix the bug", true
	tr.Poll(ctx)
	require.Len(t, renamer.calls, 1)
	assert.Contains(t, renamer.calls[0][1], "fix-the-bug")
	assert.Contains(t, renamer.calls[0][1], tr.sess.Suffix())

	// Same task on later polls: no further renames.
	tr.Poll(ctx)
	tr.Poll(ctx)
	assert.Len(t, renamer.calls, 1)

	// Different task triggers one more.
	titles.title = "⠇ write the tests"
	tr.Poll(ctx)
	require.Len(t, renamer.calls, 2)
	assert.Contains(t, renamer.calls[1][1], "write-the-tests")
}

func TestTrackerNoRenameWhenIdle(t *testing.T) {
	tr, titles, renamer := trackerFixture(t)
	ctx := context.Background()

	titles.title, titles.ok = "✳ fix the bug", true
	tr.Poll(ctx)
	assert.Empty(t, renamer.calls)
}

func TestTrackerFailedRenameKeepsName(t *testing.T) {
	tr, titles, renamer := trackerFixture(t)
	renamer.result = false
	ctx := context.Background()

	before := tr.sess.MultiplexerName
	titles.title, titles.ok = "⠂ fix the bug", true
	tr.Poll(ctx)
	assert.Equal(t, before, tr.sess.MultiplexerName)
}

func TestTrackerLastWorkingTaskSurvivesIdle(t *testing.T) {
	tr, titles, _ := trackerFixture(t)
	ctx := context.Background()

	titles.title, titles.ok = "⠂ deploy staging", true
	tr.Poll(ctx)
	titles.title = "✳ Claude Code"
	tr.Poll(ctx)

	assert.Equal(t, StateIdle, tr.Snapshot().State)
	assert.Equal(t, "deploy staging", tr.LastWorkingTask())
}

func TestTrackerStateChangeCallback(t *testing.T) {
	tr, titles, _ := trackerFixture(t)
	ctx := context.Background()

	var transitions []AgentState
	tr.OnStateChange(func(_, to AgentState, _ string) {
		transitions = append(transitions, to)
	})

	titles.ok = true
	for _, title := range []string{"⠂ a", "⠇ a", "✳ a", "plain"} {
		titles.title = title
		tr.Poll(ctx)
	}
	assert.Equal(t, []AgentState{StateWorking, StateIdle, StateUnknown}, transitions)
}

func TestTrackerSnapshotIcons(t *testing.T) {
	tr, titles, _ := trackerFixture(t)
	ctx := context.Background()

	assert.Equal(t, idleIcon, tr.Snapshot().Icon)

	titles.title, titles.ok = "⠂ busy", true
	tr.Poll(ctx)
	assert.Contains(t, workingFrames, tr.Snapshot().Icon)

	tr.SetNeedsAttention()
	assert.Equal(t, attentionIcon, tr.Snapshot().Icon)
}
