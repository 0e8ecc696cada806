package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentmesh/substrate/errs"
)

func TestTransitionLegalEdges(t *testing.T) {
	now := time.Now()
	s := New(Metadata{Name: "t"}, nil, now)
	require.Equal(t, StatusActive, s.Status())

	require.NoError(t, s.Transition(StatusSuspended, now))
	require.Equal(t, StatusSuspended, s.Status())

	require.NoError(t, s.Transition(StatusActive, now))
	require.NoError(t, s.Transition(StatusCompleted, now))
	require.Equal(t, StatusCompleted, s.Status())
}

func TestTransitionRejectsFromTerminalState(t *testing.T) {
	now := time.Now()
	s := New(Metadata{}, nil, now)
	require.NoError(t, s.Transition(StatusFailed, now))

	err := s.Transition(StatusActive, now)
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.InvalidStateTransition))
}

func TestOperationCountMonotonic(t *testing.T) {
	now := time.Now()
	s := New(Metadata{}, nil, now)
	s.RecordOperation(now)
	s.RecordOperation(now)
	s.RecordOperation(now)
	require.Equal(t, int64(3), s.Counts().OperationCount)
}

func TestAttachArtifactKeepsCountInSync(t *testing.T) {
	now := time.Now()
	s := New(Metadata{}, nil, now)
	s.AttachArtifact("a1", now)
	s.AttachArtifact("a2", now)
	require.Equal(t, int64(2), s.Counts().ArtifactCount)
	require.Equal(t, []string{"a1", "a2"}, s.ArtifactIDs())
}

func TestSnapshotRoundTrip(t *testing.T) {
	now := time.Now()
	s := New(Metadata{Name: "roundtrip"}, map[string]any{"k": "v"}, now)
	s.StateSet("foo", "bar", now)
	s.AttachArtifact("a1", now)

	snap := s.ToSnapshot()
	restored := FromSnapshot(snap)

	require.Equal(t, s.ID(), restored.ID())
	require.Equal(t, s.Status(), restored.Status())
	v, ok := restored.StateGet("foo")
	require.True(t, ok)
	require.Equal(t, "bar", v)
	require.Equal(t, []string{"a1"}, restored.ArtifactIDs())
}
