package tool

import (
	"sync"
	"time"

	"github.com/agentmesh/substrate/errs"
)

// ResourceLimits bounds a tool's resource consumption per spec §4.H.
type ResourceLimits struct {
	MaxMemoryBytes     int64
	MaxCPUTimeMs       int64
	MaxFileSizeBytes   int64
	MaxTotalOperations int64
	MaxConcurrentOps   int
	OperationTimeout   time.Duration
}

// ResourceTracker enforces ResourceLimits across concurrent tool
// invocations. Acquire returns a Guard whose Release must be called
// (typically via defer) to free the reservation; releasing the same Guard
// twice is a no-op.
type ResourceTracker struct {
	limits ResourceLimits

	mu              sync.Mutex
	usedMemoryBytes int64
	usedCPUTimeMs   int64
	totalOps        int64
	concurrentOps   int
}

func NewResourceTracker(limits ResourceLimits) *ResourceTracker {
	return &ResourceTracker{limits: limits}
}

// Guard represents one admitted operation's reservation.
type Guard struct {
	tracker     *ResourceTracker
	memoryBytes int64
	released    bool
	mu          sync.Mutex
}

// Acquire admits one operation if it would not exceed any configured limit,
// reserving memoryBytes and incrementing the concurrency/operation counters.
func (t *ResourceTracker) Acquire(memoryBytes, fileSizeBytes int64) (*Guard, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.limits.MaxFileSizeBytes > 0 && fileSizeBytes > t.limits.MaxFileSizeBytes {
		return nil, errs.ResourceLimitExceeded("tool.resource", "file_size_bytes", t.limits.MaxFileSizeBytes, fileSizeBytes)
	}
	if t.limits.MaxMemoryBytes > 0 && t.usedMemoryBytes+memoryBytes > t.limits.MaxMemoryBytes {
		return nil, errs.ResourceLimitExceeded("tool.resource", "memory_bytes", t.limits.MaxMemoryBytes, t.usedMemoryBytes+memoryBytes)
	}
	if t.limits.MaxConcurrentOps > 0 && t.concurrentOps+1 > t.limits.MaxConcurrentOps {
		return nil, errs.ResourceLimitExceeded("tool.resource", "concurrent_operations", int64(t.limits.MaxConcurrentOps), int64(t.concurrentOps+1))
	}
	if t.limits.MaxTotalOperations > 0 && t.totalOps+1 > t.limits.MaxTotalOperations {
		return nil, errs.ResourceLimitExceeded("tool.resource", "total_operations", t.limits.MaxTotalOperations, t.totalOps+1)
	}

	t.usedMemoryBytes += memoryBytes
	t.concurrentOps++
	t.totalOps++
	return &Guard{tracker: t, memoryBytes: memoryBytes}, nil
}

// RecordCPUTime adds elapsed CPU time to the tracker's running total,
// returning a ResourceLimit error if it now exceeds MaxCPUTimeMs.
func (t *ResourceTracker) RecordCPUTime(ms int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.usedCPUTimeMs += ms
	if t.limits.MaxCPUTimeMs > 0 && t.usedCPUTimeMs > t.limits.MaxCPUTimeMs {
		return errs.ResourceLimitExceeded("tool.resource", "cpu_time_ms", t.limits.MaxCPUTimeMs, t.usedCPUTimeMs)
	}
	return nil
}

// Release frees the guard's reservation. Safe to call multiple times.
func (g *Guard) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.released {
		return
	}
	g.released = true
	g.tracker.mu.Lock()
	defer g.tracker.mu.Unlock()
	g.tracker.usedMemoryBytes -= g.memoryBytes
	g.tracker.concurrentOps--
}
