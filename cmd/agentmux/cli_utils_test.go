package main

import (
	"flag"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.String("t", "", "")
	fs.Bool("json", false, "")
	return fs
}

func TestNormalizeArgsMovesTrailingFlags(t *testing.T) {
	fs := newTestFlagSet()
	got := normalizeArgs(fs, []string{"/some/path", "-t", "my task", "--json"})
	assert.Equal(t, []string{"-t", "my task", "--json", "/some/path"}, got)
}

func TestNormalizeArgsBoolFlagTakesNoValue(t *testing.T) {
	fs := newTestFlagSet()
	got := normalizeArgs(fs, []string{"--json", "positional"})
	assert.Equal(t, []string{"--json", "positional"}, got)
}

func TestNormalizeArgsEqualsForm(t *testing.T) {
	fs := newTestFlagSet()
	got := normalizeArgs(fs, []string{"pos", "-t=value"})
	assert.Equal(t, []string{"-t=value", "pos"}, got)
}

func TestNormalizeArgsDoubleDashStopsParsing(t *testing.T) {
	fs := newTestFlagSet()
	got := normalizeArgs(fs, []string{"--json", "--", "-t", "literal"})
	assert.Equal(t, []string{"--json", "-t", "literal"}, got)
}

func TestPad(t *testing.T) {
	assert.Equal(t, "ab   ", pad("ab", 5))
	assert.Equal(t, "abcd…", pad("abcdefgh", 5))
	// Wide runes count double.
	assert.Equal(t, "日本  ", pad("日本", 6))
}
