package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProviderErrorsAreRetriableByDefault(t *testing.T) {
	err := New(Provider, "agent", "provider unavailable")
	require.True(t, err.Retriable())
}

func TestStorageErrorsAreNotRetriableUnlessMarkedTransient(t *testing.T) {
	err := New(Storage, "state", "write failed")
	require.False(t, err.Retriable())

	err.WithTransient(true)
	require.True(t, err.Retriable())
}

func TestProviderErrorCanBeMarkedNonTransient(t *testing.T) {
	err := New(Provider, "agent", "authentication rejected")
	err.WithTransient(false)
	require.False(t, err.Retriable())
}

func TestWrapPreservesProviderDefaultTransience(t *testing.T) {
	err := Wrap(Provider, "agent", "stream failed", errors.New("eof"))
	require.True(t, err.Retriable())
	require.True(t, Is(err, Provider))
}

func TestValidationErrorsAreNeverRetriable(t *testing.T) {
	err := New(Validation, "tool", "bad input")
	require.False(t, err.Retriable())
}
