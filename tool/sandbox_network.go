package tool

import (
	"sync"
	"time"

	"github.com/agentmesh/substrate/errs"
)

// NetworkSandbox restricts tool network access to an allow-listed set of
// hosts and enforces a per-host sliding-window rate limit.
type NetworkSandbox struct {
	mu         sync.Mutex
	allowed    map[string]bool
	maxReqs    int
	window     time.Duration
	timestamps map[string][]time.Time
}

func NewNetworkSandbox(allowedHosts []string, maxRequests int, window time.Duration) *NetworkSandbox {
	allowed := make(map[string]bool, len(allowedHosts))
	for _, h := range allowedHosts {
		allowed[h] = true
	}
	return &NetworkSandbox{
		allowed:    allowed,
		maxReqs:    maxRequests,
		window:     window,
		timestamps: make(map[string][]time.Time),
	}
}

// Allow checks host against the allow list and sliding-window rate limit,
// recording the call if permitted.
func (s *NetworkSandbox) Allow(host string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.allowed[host] {
		return errs.New(errs.Security, "tool.sandbox.network", "host not allow-listed: "+host)
	}

	cutoff := now.Add(-s.window)
	hist := s.timestamps[host]
	kept := hist[:0]
	for _, t := range hist {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= s.maxReqs {
		return errs.ResourceLimitExceeded("tool.sandbox.network", "requests_per_window:"+host, int64(s.maxReqs), int64(len(kept)+1))
	}
	kept = append(kept, now)
	s.timestamps[host] = kept
	return nil
}
