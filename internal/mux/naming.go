package mux

import (
	"regexp"
	"strings"
)

// SessionPrefix marks sessions owned by agentmux. ListSessions filters on it
// so foreign tmux sessions are never touched.
const SessionPrefix = "agentmux_"

// maxComponentLen caps each free-text name component. The identifier suffix
// is appended after capping so it is never truncated away.
const maxComponentLen = 24

// reservedChars matches characters with meaning in tmux target syntax
// (space, dot, colon, slash) plus anything else unsafe in a session name.
var reservedChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// SanitizeComponent converts free text into a safe session-name component.
// Reserved target-syntax characters become hyphens, runs collapse, and
// leading hyphens are stripped so the name can never parse as a flag.
func SanitizeComponent(s string) string {
	s = reservedChars.ReplaceAllString(s, "-")
	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	s = strings.Trim(s, "-")
	if len(s) > maxComponentLen {
		s = strings.Trim(s[:maxComponentLen], "-")
	}
	return s
}

// Suffix derives the stable name suffix from a session identifier.
// It survives every rename, so lookups by identifier keep working after
// arbitrary task-label changes.
func Suffix(id string) string {
	compact := strings.ReplaceAll(id, "-", "")
	if len(compact) > 8 {
		compact = compact[:8]
	}
	return strings.ToLower(compact)
}

// SessionName builds the external session name from the working directory's
// base name, a task label, and the identifier-derived suffix. The suffix is
// appended last so substring search by suffix always resolves the session.
func SessionName(dirBase, task, id string) string {
	parts := make([]string, 0, 2)
	if c := SanitizeComponent(dirBase); c != "" {
		parts = append(parts, c)
	}
	if c := SanitizeComponent(task); c != "" {
		parts = append(parts, c)
	}
	body := strings.Join(parts, "-")
	if body == "" {
		body = "session"
	}
	return SessionPrefix + body + "-" + Suffix(id)
}

// NameMatchesID reports whether a session name carries the suffix derived
// from the given identifier.
func NameMatchesID(name, id string) bool {
	return strings.Contains(name, Suffix(id))
}

// FindBySuffix returns the first name whose identifier suffix matches id,
// or "" if none does.
func FindBySuffix(names []string, id string) string {
	suffix := Suffix(id)
	for _, n := range names {
		if strings.Contains(n, suffix) {
			return n
		}
	}
	return ""
}
