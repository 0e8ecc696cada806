package tool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentmesh/substrate/env"
)

func TestPathSandboxRejectsTraversal(t *testing.T) {
	s := NewPathSandbox("/var/jail")
	_, err := s.Check("../../etc/passwd")
	require.Error(t, err)
}

func TestPathSandboxRejectsReservedDeviceName(t *testing.T) {
	s := NewPathSandbox("/var/jail")
	_, err := s.Check("CON.txt")
	require.Error(t, err)
}

func TestPathSandboxAllowsWithinJail(t *testing.T) {
	s := NewPathSandbox("/var/jail")
	resolved, err := s.Check("reports/output.json")
	require.NoError(t, err)
	require.Contains(t, resolved, "/var/jail")
}

func TestNewPathSandboxFromEnvUsesOverrideOverDefault(t *testing.T) {
	r := env.New()
	r.SetOverride(JailDirVariable, "/srv/job-42")

	s, err := NewPathSandboxFromEnv(r, "/var/jail")
	require.NoError(t, err)
	require.Equal(t, "/srv/job-42", s.JailDir)
}

func TestNewPathSandboxFromEnvFallsBackToDefault(t *testing.T) {
	r := env.New().WithMode(env.Isolated, "")

	s, err := NewPathSandboxFromEnv(r, "/var/jail")
	require.NoError(t, err)
	require.Equal(t, "/var/jail", s.JailDir)
}

func TestNetworkSandboxRejectsUnlistedHost(t *testing.T) {
	s := NewNetworkSandbox([]string{"api.example.com"}, 10, time.Minute)
	err := s.Allow("evil.example.com", time.Now())
	require.Error(t, err)
}

func TestNetworkSandboxEnforcesSlidingWindow(t *testing.T) {
	s := NewNetworkSandbox([]string{"api.example.com"}, 2, time.Minute)
	now := time.Now()
	require.NoError(t, s.Allow("api.example.com", now))
	require.NoError(t, s.Allow("api.example.com", now.Add(time.Second)))
	require.Error(t, s.Allow("api.example.com", now.Add(2*time.Second)))

	require.NoError(t, s.Allow("api.example.com", now.Add(2*time.Minute)))
}

func TestResourceTrackerEnforcesConcurrencyAndMemory(t *testing.T) {
	tr := NewResourceTracker(ResourceLimits{MaxMemoryBytes: 100, MaxConcurrentOps: 1})
	g1, err := tr.Acquire(80, 0)
	require.NoError(t, err)

	_, err = tr.Acquire(10, 0)
	require.Error(t, err)

	g1.Release()
	g2, err := tr.Acquire(10, 0)
	require.NoError(t, err)
	g2.Release()
}
