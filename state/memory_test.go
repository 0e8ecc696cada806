package state

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/substrate/component"
)

func TestMemoryStoreGetSetDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	key := Key{Scope: component.Global(), Name: "k1"}

	_, found, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.Set(ctx, key, map[string]any{"n": 1.0}))
	v, found, err := s.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, map[string]any{"n": 1.0}, v)

	existed, err := s.Delete(ctx, key)
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = s.Delete(ctx, key)
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestMemoryStoreListKeysPrefix(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	scope := component.Session("s1")
	require.NoError(t, s.Set(ctx, Key{Scope: scope, Name: "workflow:1:step:a"}, 1))
	require.NoError(t, s.Set(ctx, Key{Scope: scope, Name: "workflow:1:step:b"}, 2))
	require.NoError(t, s.Set(ctx, Key{Scope: scope, Name: "other"}, 3))

	keys, err := s.ListKeys(ctx, scope, "workflow:1:step:")
	require.NoError(t, err)
	assert.Equal(t, []string{"workflow:1:step:a", "workflow:1:step:b"}, keys)
}

func TestMemoryStoreMigrationOrdering(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.ApplyMigration(ctx, 1, nil))
	// Re-applying the same version is idempotent against its own marker.
	require.NoError(t, s.ApplyMigration(ctx, 1, nil))

	err := s.ApplyMigration(ctx, 3, nil)
	assert.ErrorIs(t, err, ErrMigrationOutOfOrder)

	require.NoError(t, s.ApplyMigration(ctx, 2, nil))
}
