// Package artifact implements the content-addressed artifact store described
// in spec §4.E: payloads are stored once per SHA-256 content hash, multiple
// artifact ids may reference the same payload (dedup), and named artifacts
// version linearly per (session_id, name).
package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentmesh/substrate/errs"
)

// ID identifies one artifact. UID is independently generated per Put call,
// so two artifacts whose bytes happen to be identical (same ContentHash,
// same SessionID) still get distinct ids and distinct metadata records;
// ContentHash is only the key used for payload dedup, not for identity.
type ID struct {
	UID         string
	ContentHash string
	SessionID   string
}

// Metadata is the caller-supplied description stored per artifact id.
type Metadata struct {
	Name     string
	MimeType string
	Tags     []string
	Extra    map[string]any
}

// Artifact is one versioned, named artifact within a session.
type Artifact struct {
	ID            ID
	Type          string
	Metadata      Metadata
	SizeBytes     int64
	Version       int
	ParentVersion int // 0 for the first version of a name
	CreatedAt     time.Time
}

// Quota bounds a session's total artifact storage.
type Quota struct {
	MaxTotalBytes int64
	MaxCount      int64
}

// Stats tracks a session's current storage usage against its Quota.
type Stats struct {
	TotalSizeBytes int64
	ArtifactCount  int64
	LastUpdated    time.Time
}

func hashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Store is a content-addressed, per-session artifact store with linear
// versioning and quota enforcement. It is safe for concurrent use.
type Store struct {
	mu sync.RWMutex

	payloads map[string][]byte     // content_hash -> bytes, deduped
	refs     map[string]int         // content_hash -> referencing artifact id count
	byID     map[ID]Artifact        // artifact id -> record at that id
	byHash   map[string][]ID        // content_hash -> every distinct artifact id sharing it
	versions map[string][]Artifact // "session_id/name" -> versions, oldest first
	stats    map[string]Stats      // session_id -> usage
	quotas   map[string]Quota      // session_id -> configured quota, if any
}

func New() *Store {
	return &Store{
		payloads: make(map[string][]byte),
		refs:     make(map[string]int),
		byID:     make(map[ID]Artifact),
		byHash:   make(map[string][]ID),
		versions: make(map[string][]Artifact),
		stats:    make(map[string]Stats),
		quotas:   make(map[string]Quota),
	}
}

// SetQuota configures (or replaces) the quota enforced for sessionID.
func (s *Store) SetQuota(sessionID string, q Quota) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotas[sessionID] = q
}

func versionKey(sessionID, name string) string { return sessionID + "/" + name }

// Put stores content under a new version of (sessionID, name). Identical
// bytes written under a different name, or a different session, dedup onto
// the same underlying payload. Returns the artifact id and version number.
func (s *Store) Put(sessionID, name, artifactType string, content []byte, meta Metadata, now time.Time) (ID, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := s.stats[sessionID]
	if quota, ok := s.quotas[sessionID]; ok {
		if quota.MaxCount > 0 && stats.ArtifactCount+1 > quota.MaxCount {
			return ID{}, 0, errs.ResourceLimitExceeded("artifact.store", "artifact_count", quota.MaxCount, stats.ArtifactCount+1)
		}
		if quota.MaxTotalBytes > 0 && stats.TotalSizeBytes+int64(len(content)) > quota.MaxTotalBytes {
			return ID{}, 0, errs.ResourceLimitExceeded("artifact.store", "total_size_bytes", quota.MaxTotalBytes, stats.TotalSizeBytes+int64(len(content)))
		}
	}

	hash := hashContent(content)
	if _, exists := s.payloads[hash]; !exists {
		s.payloads[hash] = append([]byte(nil), content...)
	}

	id := ID{UID: uuid.NewString(), ContentHash: hash, SessionID: sessionID}
	key := versionKey(sessionID, name)
	prior := s.versions[key]
	parentVersion := 0
	if len(prior) > 0 {
		parentVersion = prior[len(prior)-1].Version
	}

	art := Artifact{
		ID:            id,
		Type:          artifactType,
		Metadata:      meta,
		SizeBytes:     int64(len(content)),
		Version:       parentVersion + 1,
		ParentVersion: parentVersion,
		CreatedAt:     now,
	}

	s.refs[hash]++
	s.byID[id] = art
	s.byHash[hash] = append(s.byHash[hash], id)
	s.versions[key] = append(prior, art)

	stats.ArtifactCount++
	stats.TotalSizeBytes += int64(len(content))
	stats.LastUpdated = now
	s.stats[sessionID] = stats

	return id, art.Version, nil
}

// Get retrieves the content and artifact record for id.
func (s *Store) Get(id ID) ([]byte, Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	art, ok := s.byID[id]
	if !ok {
		return nil, Artifact{}, errs.New(errs.NotFound, "artifact.store", "artifact not found")
	}
	content, ok := s.payloads[id.ContentHash]
	if !ok {
		return nil, Artifact{}, errs.New(errs.Integrity, "artifact.store", "payload missing for referenced content hash")
	}
	return append([]byte(nil), content...), art, nil
}

// IDsForHash returns every distinct artifact id whose content hashes to
// hash, the dedup lookup side index backing payload sharing.
func (s *Store) IDsForHash(hash string) []ID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byHash[hash]
	out := make([]ID, len(ids))
	copy(out, ids)
	return out
}

// Versions returns every version of (sessionID, name), oldest first.
func (s *Store) Versions(sessionID, name string) []Artifact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	versions := s.versions[versionKey(sessionID, name)]
	out := make([]Artifact, len(versions))
	copy(out, versions)
	return out
}

// Latest returns the most recent version of (sessionID, name).
func (s *Store) Latest(sessionID, name string) (Artifact, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	versions := s.versions[versionKey(sessionID, name)]
	if len(versions) == 0 {
		return Artifact{}, false
	}
	return versions[len(versions)-1], true
}

// StatsFor returns the current usage snapshot for a session.
func (s *Store) StatsFor(sessionID string) Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats[sessionID]
}

// Delete removes one artifact id's record. The underlying payload is kept
// until CleanupOrphans runs, so concurrent readers of other ids referencing
// the same content are unaffected.
func (s *Store) Delete(sessionID, name string, version int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := versionKey(sessionID, name)
	versions := s.versions[key]
	idx := -1
	for i, a := range versions {
		if a.Version == version {
			idx = i
			break
		}
	}
	if idx == -1 {
		return errs.New(errs.NotFound, "artifact.store", "artifact version not found")
	}
	art := versions[idx]
	s.versions[key] = append(versions[:idx], versions[idx+1:]...)
	delete(s.byID, art.ID)
	s.refs[art.ID.ContentHash]--

	hashIDs := s.byHash[art.ID.ContentHash]
	for i, id := range hashIDs {
		if id == art.ID {
			s.byHash[art.ID.ContentHash] = append(hashIDs[:i], hashIDs[i+1:]...)
			break
		}
	}

	stats := s.stats[sessionID]
	stats.ArtifactCount--
	stats.TotalSizeBytes -= art.SizeBytes
	s.stats[sessionID] = stats
	return nil
}

// CleanupOrphans deletes any stored payload whose content hash is no longer
// referenced by a live artifact id, returning the number of payloads removed.
func (s *Store) CleanupOrphans() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for hash, count := range s.refs {
		if count <= 0 {
			delete(s.payloads, hash)
			delete(s.refs, hash)
			removed++
		}
	}
	return removed
}
