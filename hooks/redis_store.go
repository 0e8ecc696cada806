package hooks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBreakerStore persists BreakerSnapshots in Redis, the shared
// persistence envelope that lets independent dispatcher replicas agree on
// one breaker state per hook id rather than each tracking failures in
// isolation.
type RedisBreakerStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisBreakerStore constructs a store whose keys are prefixed and whose
// entries expire after ttl (0 disables expiry).
func NewRedisBreakerStore(client *redis.Client, prefix string, ttl time.Duration) *RedisBreakerStore {
	return &RedisBreakerStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisBreakerStore) key(hookID string) string {
	return s.prefix + hookID
}

// Save persists snap under hookID.
func (s *RedisBreakerStore) Save(ctx context.Context, hookID string, snap BreakerSnapshot) error {
	encoded, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(hookID), encoded, s.ttl).Err()
}

// Load fetches the last persisted snapshot for hookID, reporting false if
// none exists yet.
func (s *RedisBreakerStore) Load(ctx context.Context, hookID string) (BreakerSnapshot, bool, error) {
	raw, err := s.client.Get(ctx, s.key(hookID)).Bytes()
	if err == redis.Nil {
		return BreakerSnapshot{}, false, nil
	}
	if err != nil {
		return BreakerSnapshot{}, false, err
	}
	var snap BreakerSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return BreakerSnapshot{}, false, err
	}
	return snap, true, nil
}

// Sync loads hookID's breaker from store into the registry (if a snapshot
// exists) and returns the (possibly freshly restored) breaker. Callers save
// the breaker's state back to the store after recording an outcome via
// PersistTo.
func (r *BreakerRegistry) Sync(ctx context.Context, store *RedisBreakerStore, hookID string) (*CircuitBreaker, error) {
	b := r.For(hookID)
	snap, found, err := store.Load(ctx, hookID)
	if err != nil {
		return b, err
	}
	if found {
		b.Restore(snap)
	}
	return b, nil
}

// PersistTo saves hookID's current breaker state to store, making the
// outcome of the most recent call visible to other replicas.
func (r *BreakerRegistry) PersistTo(ctx context.Context, store *RedisBreakerStore, hookID string) error {
	return store.Save(ctx, hookID, r.For(hookID).Snapshot())
}
