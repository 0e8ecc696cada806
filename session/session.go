// Package session implements the session lifecycle FSM and per-session
// metadata described in spec §4.E: a bounded unit collecting state, artifacts,
// and conversation, addressed by a durable uuid.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentmesh/substrate/errs"
)

// Status is one of the session FSM's states.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// terminal reports whether a status accepts no further transitions.
func (s Status) terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// legalTransitions enumerates the FSM edges from spec §4.E: Active <-> Suspended,
// and either non-terminal state can move to Completed or Failed. Terminal
// states reject every transition, including to themselves.
var legalTransitions = map[Status]map[Status]bool{
	StatusActive: {
		StatusSuspended: true,
		StatusCompleted: true,
		StatusFailed:    true,
	},
	StatusSuspended: {
		StatusActive:    true,
		StatusCompleted: true,
		StatusFailed:    true,
	},
}

// Metadata is the caller-supplied, mutable description of a session.
type Metadata struct {
	Name        string
	Description string
	CreatedBy   string
	Tags        []string
	Parent      string // parent session id, if this session was forked
}

// Counts tracks monotonic per-session activity counters.
type Counts struct {
	OperationCount int64
	ArtifactCount  int64
}

// Session is the durable, lifecycle-bounded conversational container. All
// mutation goes through Session's methods, which hold sess.mu for the
// duration of the state transition or counter increment.
type Session struct {
	mu sync.RWMutex

	id       string
	status   Status
	metadata Metadata
	config   map[string]any
	state    map[string]any
	counts   Counts

	artifactIDs []string

	createdAt time.Time
	updatedAt time.Time
}

// New creates a new session in the Active state with a fresh id.
func New(metadata Metadata, config map[string]any, now time.Time) *Session {
	return &Session{
		id:        uuid.NewString(),
		status:    StatusActive,
		metadata:  metadata,
		config:    config,
		state:     make(map[string]any),
		createdAt: now,
		updatedAt: now,
	}
}

func (s *Session) ID() string { return s.id }

// Status returns the session's current lifecycle state.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Metadata returns a copy of the session's descriptive metadata.
func (s *Session) Metadata() Metadata {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.metadata
}

// Counts returns the session's current monotonic counters.
func (s *Session) Counts() Counts {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counts
}

// ArtifactIDs returns a copy of the session's known artifact ids.
func (s *Session) ArtifactIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.artifactIDs))
	copy(out, s.artifactIDs)
	return out
}

// Transition moves the session to target status, enforcing the FSM's legal
// edges. Terminal states, and illegal edges from non-terminal states, return
// an errs.Kind == InvalidStateTransition error naming from/to.
func (s *Session) Transition(target Status, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.terminal() || !legalTransitions[s.status][target] {
		return errs.InvalidTransition("session", string(s.status), string(target))
	}
	s.status = target
	s.updatedAt = now
	return nil
}

// RecordOperation strictly increments the session's operation counter. Valid
// in any non-terminal state; callers are expected to have already rejected
// terminal-session operations via Transition/Status checks upstream.
func (s *Session) RecordOperation(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts.OperationCount++
	s.updatedAt = now
}

// AttachArtifact records a newly written artifact id against the session,
// keeping ArtifactCount == len(artifactIDs).
func (s *Session) AttachArtifact(artifactID string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifactIDs = append(s.artifactIDs, artifactID)
	s.counts.ArtifactCount = int64(len(s.artifactIDs))
	s.updatedAt = now
}

// StateGet/StateSet expose the session's own ephemeral key/value state
// (distinct from the content-addressed artifact store).
func (s *Session) StateGet(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.state[key]
	return v, ok
}

func (s *Session) StateSet(key string, value any, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state[key] = value
	s.updatedAt = now
}

// Snapshot is the serializable representation of a Session, used for
// persistence and versioned backup/restore.
type Snapshot struct {
	Version     int
	ID          string
	Status      Status
	Metadata    Metadata
	Config      map[string]any
	State       map[string]any
	Counts      Counts
	ArtifactIDs []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CurrentSnapshotVersion is the version written by ToSnapshot. FromSnapshot
// upgrades older versions for which upgraders are registered.
const CurrentSnapshotVersion = 1

// ToSnapshot captures the session's current state for persistence.
func (s *Session) ToSnapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state := make(map[string]any, len(s.state))
	for k, v := range s.state {
		state[k] = v
	}
	config := make(map[string]any, len(s.config))
	for k, v := range s.config {
		config[k] = v
	}
	artifactIDs := make([]string, len(s.artifactIDs))
	copy(artifactIDs, s.artifactIDs)
	return Snapshot{
		Version:     CurrentSnapshotVersion,
		ID:          s.id,
		Status:      s.status,
		Metadata:    s.metadata,
		Config:      config,
		State:       state,
		Counts:      s.counts,
		ArtifactIDs: artifactIDs,
		CreatedAt:   s.createdAt,
		UpdatedAt:   s.updatedAt,
	}
}

// upgrader upgrades a snapshot from one version to the next.
type upgrader func(Snapshot) Snapshot

// upgraders maps a snapshot version to the function that upgrades it to
// version+1. Registered here as each snapshot format changes; empty until
// CurrentSnapshotVersion advances past 1.
var upgraders = map[int]upgrader{}

// FromSnapshot reconstructs a Session from a (possibly older) Snapshot,
// applying registered upgraders in sequence while its version is below
// CurrentSnapshotVersion. If no upgrader is registered for a version, the
// snapshot is used at that version; a snapshot newer than
// CurrentSnapshotVersion is accepted unchanged, not rejected.
func FromSnapshot(snap Snapshot) *Session {
	for snap.Version < CurrentSnapshotVersion {
		up, ok := upgraders[snap.Version]
		if !ok {
			break
		}
		snap = up(snap)
		snap.Version++
	}
	return &Session{
		id:          snap.ID,
		status:      snap.Status,
		metadata:    snap.Metadata,
		config:      snap.Config,
		state:       snap.State,
		counts:      snap.Counts,
		artifactIDs: snap.ArtifactIDs,
		createdAt:   snap.CreatedAt,
		updatedAt:   snap.UpdatedAt,
	}
}
