package redact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedactSensitiveFieldAndSecretPattern(t *testing.T) {
	p := New(true)
	input := map[string]any{
		"api_key": "super-secret-value",
		"note":    "my key is sk-abcdefghijklmnopqrstuvwx",
		"safe":    "hello",
	}

	out := p.Redact(input).(map[string]any)
	assert.Contains(t, out["api_key"], "[REDACTED]")
	assert.Contains(t, out["note"], "[REDACTED]")
	assert.Equal(t, "hello", out["safe"])
}

func TestRedactIdempotent(t *testing.T) {
	p := New(true)
	input := map[string]any{"password": "hunter2"}
	once := p.Redact(input)
	twice := p.Redact(once)
	assert.Equal(t, once, twice)
}

func TestRestoreIsLeftInverseWhenHashingEnabled(t *testing.T) {
	p := New(true)
	input := map[string]any{"token": "abc123", "safe": "x"}

	redacted := p.Redact(input)
	restored := p.Restore(redacted)

	require.Equal(t, input, restored)
}
