package artifact

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentmesh/substrate/errs"
)

func TestPutDedupsIdenticalContent(t *testing.T) {
	s := New()
	now := time.Now()
	content := []byte("same bytes")

	id1, v1, err := s.Put("sess-1", "a", "text", content, Metadata{Name: "a"}, now)
	require.NoError(t, err)
	require.Equal(t, 1, v1)

	id2, v2, err := s.Put("sess-1", "b", "text", content, Metadata{Name: "b"}, now)
	require.NoError(t, err)
	require.Equal(t, 1, v2)

	require.Equal(t, id1.ContentHash, id2.ContentHash)
	require.NotEqual(t, id1, id2, "distinct Put calls must get distinct artifact ids")
	require.Len(t, s.payloads, 1)

	got1, art1, err := s.Get(id1)
	require.NoError(t, err)
	got2, art2, err := s.Get(id2)
	require.NoError(t, err)
	require.Equal(t, content, got1)
	require.Equal(t, content, got2)
	require.Equal(t, "a", art1.Metadata.Name)
	require.Equal(t, "b", art2.Metadata.Name)

	require.ElementsMatch(t, []ID{id1, id2}, s.IDsForHash(id1.ContentHash))
}

func TestPutVersionsLinearlyPerName(t *testing.T) {
	s := New()
	now := time.Now()

	_, v1, err := s.Put("sess-1", "report", "text", []byte("v1"), Metadata{}, now)
	require.NoError(t, err)
	_, v2, err := s.Put("sess-1", "report", "text", []byte("v2"), Metadata{}, now)
	require.NoError(t, err)

	require.Equal(t, 1, v1)
	require.Equal(t, 2, v2)

	versions := s.Versions("sess-1", "report")
	require.Len(t, versions, 2)
	require.Equal(t, 0, versions[0].ParentVersion)
	require.Equal(t, 1, versions[1].ParentVersion)

	latest, ok := s.Latest("sess-1", "report")
	require.True(t, ok)
	require.Equal(t, 2, latest.Version)
}

func TestQuotaRejectsOverLimit(t *testing.T) {
	s := New()
	s.SetQuota("sess-1", Quota{MaxTotalBytes: 10})
	now := time.Now()

	_, _, err := s.Put("sess-1", "a", "text", []byte("12345"), Metadata{}, now)
	require.NoError(t, err)

	_, _, err = s.Put("sess-1", "b", "text", []byte("1234567890"), Metadata{}, now)
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.ResourceLimit))
}

func TestCleanupOrphansRemovesUnreferencedPayload(t *testing.T) {
	s := New()
	now := time.Now()
	content := []byte("orphan me")

	_, _, err := s.Put("sess-1", "a", "text", content, Metadata{}, now)
	require.NoError(t, err)
	require.NoError(t, s.Delete("sess-1", "a", 1))

	removed := s.CleanupOrphans()
	require.Equal(t, 1, removed)
}
