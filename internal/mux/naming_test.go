package mux

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeComponent(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "myproject", "myproject"},
		{"spaces", "fix auth bug", "fix-auth-bug"},
		{"target syntax chars", "a.b:c/d", "a-b-c-d"},
		{"leading hyphen stripped", "-rf everything", "rf-everything"},
		{"leading dot", ".hidden", "hidden"},
		{"collapses runs", "a    b", "a-b"},
		{"unicode dropped", "büild ✳ now", "b-ild-now"},
		{"empty", "", ""},
		{"only reserved", "...", ""},
		{"caps length", strings.Repeat("x", 50), strings.Repeat("x", 24)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeComponent(tt.input))
		})
	}
}

func TestSuffixStableAcrossRenames(t *testing.T) {
	id := "7c9e6679-7425-40de-944b-e07fc1f90ae7"
	suffix := Suffix(id)
	assert.Equal(t, "7c9e6679", suffix)

	// Any sequence of task-label renames keeps the suffix resolvable.
	tasks := []string{"", "Building", "Refactoring auth", "done.for/now"}
	for _, task := range tasks {
		name := SessionName("myproj", task, id)
		assert.True(t, strings.HasSuffix(name, "-"+suffix), "name %q must end with suffix", name)
		assert.True(t, NameMatchesID(name, id))
	}
}

func TestSessionNameShape(t *testing.T) {
	id := "abcdef12-3456-7890-abcd-ef1234567890"

	name := SessionName("my project", "fix: the bug", id)
	assert.Equal(t, "agentmux_my-project-fix-the-bug-abcdef12", name)

	// Empty components collapse to a placeholder body.
	assert.Equal(t, "agentmux_session-abcdef12", SessionName("", "", id))

	// Long labels are capped but the suffix survives untouched.
	long := SessionName("proj", strings.Repeat("task", 30), id)
	assert.True(t, strings.HasSuffix(long, "-abcdef12"))
	assert.LessOrEqual(t, len(long), len(SessionPrefix)+2*maxComponentLen+10)
}

func TestFindBySuffix(t *testing.T) {
	id := "11112222-3333-4444-5555-666677778888"
	names := []string{
		"agentmux_other-99990000",
		"agentmux_proj-renamed-entirely-11112222",
	}
	assert.Equal(t, names[1], FindBySuffix(names, id))
	assert.Equal(t, "", FindBySuffix(names, "ffffffff-0000-0000-0000-000000000000"))
}
