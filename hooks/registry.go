package hooks

import (
	"sort"
	"sync"
)

// DispatchPattern selects how a Point's registered hooks are run.
type DispatchPattern int

const (
	Sequential DispatchPattern = iota
	Parallel
	Voting
	FirstMatch
)

// Aggregator combines Parallel branch results into one.
type Aggregator int

const (
	FirstSuccess Aggregator = iota
	AllOrCancel
	JoinModify
)

// TieBreaker resolves a Voting tie between equally frequent result kinds.
type TieBreaker int

const (
	TieFirstResult TieBreaker = iota
	TiePreferContinue
	TiePreferAction
	TieByPriority
)

// PointConfig configures dispatch behavior for one Point.
type PointConfig struct {
	Pattern    DispatchPattern
	Aggregator Aggregator // used when Pattern == Parallel
	Threshold  float64    // used when Pattern == Voting; fraction of agreeing results to win
	TieBreaker TieBreaker // used when Pattern == Voting
	// PostNotify, when true and Pattern == Sequential, still runs every hook
	// after the one that decided the point, so later hooks observe the
	// execution even though they didn't decide it. Their results are
	// discarded, and the decided result is not passed to them.
	PostNotify bool
}

// DefaultPointConfig is Sequential with no post-notify.
var DefaultPointConfig = PointConfig{Pattern: Sequential}

// Registry holds hooks grouped by Point. Registration is serialized under a
// lock; dispatch takes the same lock only to fetch the current
// copy-on-write snapshot slice, then iterates it without holding the lock.
// Snapshot reads are therefore not lock-free.
type Registry struct {
	mu      sync.Mutex
	hooks   map[Point][]Hook
	configs map[Point]PointConfig
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		hooks:   make(map[Point][]Hook),
		configs: make(map[Point]PointConfig),
	}
}

// Configure sets the dispatch pattern for a point. Points without an
// explicit Configure call use DefaultPointConfig.
func (r *Registry) Configure(point Point, cfg PointConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[point] = cfg
}

// ConfigFor returns the configured PointConfig for point, or the default.
func (r *Registry) ConfigFor(point Point) PointConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cfg, ok := r.configs[point]; ok {
		return cfg
	}
	return DefaultPointConfig
}

// Register adds a hook, replacing the point's hook slice with a new one
// sorted by priority (ascending: lower priority values run first) so
// registration never mutates a slice being iterated by an in-flight Dispatch.
func (r *Registry) Register(h Hook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	old := r.hooks[h.Point]
	next := make([]Hook, len(old), len(old)+1)
	copy(next, old)
	next = append(next, h)
	sort.SliceStable(next, func(i, j int) bool { return next[i].Priority < next[j].Priority })
	r.hooks[h.Point] = next
}

// Unregister removes the hook with the given id from point.
func (r *Registry) Unregister(point Point, hookID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	old := r.hooks[point]
	next := make([]Hook, 0, len(old))
	for _, h := range old {
		if h.ID != hookID {
			next = append(next, h)
		}
	}
	r.hooks[point] = next
}

// Snapshot returns the current hook slice for point. The returned slice must
// not be mutated by callers; Register/Unregister always allocate a fresh
// slice rather than mutating the one in place.
func (r *Registry) Snapshot(point Point) []Hook {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hooks[point]
}
