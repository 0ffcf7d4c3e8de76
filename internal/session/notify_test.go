package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppleScriptQuote(t *testing.T) {
	assert.Equal(t, `"plain"`, appleScriptQuote("plain"))
	assert.Equal(t, `"say \"hi\""`, appleScriptQuote(`say "hi"`))
	assert.Equal(t, `"a\\b"`, appleScriptQuote(`a\b`))
	assert.Equal(t, `""`, appleScriptQuote(""))
}

func TestNullNotifier(t *testing.T) {
	// Must be safe to call with anything.
	NullNotifier{}.Notify(context.Background(), "title", "body")
}
