package component

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveIDDeterministic(t *testing.T) {
	a1 := DeriveID("web-search")
	a2 := DeriveID("web-search")
	assert.Equal(t, a1, a2)

	b := DeriveID("file-read")
	assert.NotEqual(t, a1, b)
}

func TestVersionCompatibility(t *testing.T) {
	v1 := Version{Major: 1, Minor: 2, Patch: 0}
	v2 := Version{Major: 1, Minor: 9, Patch: 3}
	v3 := Version{Major: 2, Minor: 0, Patch: 0}

	assert.True(t, v1.CompatibleWith(v2))
	assert.False(t, v1.CompatibleWith(v3))
}

func TestMetadataTouchInvariant(t *testing.T) {
	created := time.Now()
	m := NewMetadata("agent.researcher", "researches things", Version{1, 0, 0}, created)
	require.Equal(t, m.CreatedAt, m.UpdatedAt)

	later := created.Add(time.Minute)
	touched := m.Touch(later)
	assert.True(t, !touched.UpdatedAt.Before(touched.CreatedAt))

	assert.Panics(t, func() {
		m.Touch(created.Add(-time.Minute))
	})
}
