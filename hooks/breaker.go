package hooks

import (
	"sync"
	"time"
)

// BreakerState is one of the three circuit breaker states.
type BreakerState int

const (
	Closed BreakerState = iota
	Open
	HalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures one circuit breaker instance.
type BreakerConfig struct {
	FailureThreshold int           // consecutive failures to trip Closed -> Open
	SuccessThreshold int           // consecutive successes to close HalfOpen -> Closed
	ResetTimeout     time.Duration // Open -> HalfOpen after this elapses
}

// DefaultBreakerConfig mirrors the scenario in spec §8.4: two failures trip
// the breaker, one success in HalfOpen closes it, with a 100ms cooldown.
var DefaultBreakerConfig = BreakerConfig{
	FailureThreshold: 2,
	SuccessThreshold: 1,
	ResetTimeout:     100 * time.Millisecond,
}

// CircuitBreaker isolates a caller from a repeatedly failing hook. States
// transition Closed -> (FailureThreshold consecutive failures) -> Open ->
// (ResetTimeout elapses) -> HalfOpen -> (SuccessThreshold consecutive
// successes) -> Closed. A single failure while HalfOpen reopens the breaker.
type CircuitBreaker struct {
	cfg BreakerConfig

	mu              sync.Mutex
	state           BreakerState
	consecutiveFail int
	consecutiveOK   int
	openedAt        time.Time
	probeInFlight   bool
}

// NewCircuitBreaker constructs a breaker in the Closed state.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{cfg: cfg, state: Closed}
}

// State reports the current breaker state without mutating it, except for
// the implicit Open -> HalfOpen transition once ResetTimeout has elapsed.
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeTransitionToHalfOpenLocked()
	return b.state
}

func (b *CircuitBreaker) maybeTransitionToHalfOpenLocked() {
	if b.state == Open && time.Since(b.openedAt) >= b.cfg.ResetTimeout {
		b.state = HalfOpen
		b.consecutiveOK = 0
		b.probeInFlight = false
	}
}

// AllowRequest reports whether a call may proceed. In Open state it rejects
// until ResetTimeout has elapsed, after which exactly one probe call is
// admitted (AllowRequest returns true once, subsequent concurrent callers
// are rejected until the probe's outcome is recorded).
func (b *CircuitBreaker) AllowRequest() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeTransitionToHalfOpenLocked()
	switch b.state {
	case Closed:
		return true
	case HalfOpen:
		if b.probeInFlight {
			return false
		}
		b.probeInFlight = true
		return true
	case Open:
		return false
	default:
		return false
	}
}

// RecordSuccess registers a successful call outcome.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFail = 0
	switch b.state {
	case HalfOpen:
		b.probeInFlight = false
		b.consecutiveOK++
		if b.consecutiveOK >= b.cfg.SuccessThreshold {
			b.state = Closed
			b.consecutiveOK = 0
		}
	case Open:
		// stale probe result after a fresh transition; ignore
	case Closed:
	}
}

// RecordFailure registers a failed call outcome.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case HalfOpen:
		b.probeInFlight = false
		b.trip()
	case Closed:
		b.consecutiveFail++
		if b.consecutiveFail >= b.cfg.FailureThreshold {
			b.trip()
		}
	case Open:
	}
}

func (b *CircuitBreaker) trip() {
	b.state = Open
	b.openedAt = time.Now()
	b.consecutiveFail = 0
	b.consecutiveOK = 0
}

// BreakerSnapshot is the serializable state of one CircuitBreaker: the shape
// a shared store persists so multiple process replicas dispatching the same
// hook id observe, and contribute to, one breaker state instead of each
// tripping independently on their own partial view of failures.
type BreakerSnapshot struct {
	State           BreakerState
	ConsecutiveFail int
	ConsecutiveOK   int
	OpenedAt        time.Time
}

// Snapshot captures the breaker's current state for persistence.
func (b *CircuitBreaker) Snapshot() BreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeTransitionToHalfOpenLocked()
	return BreakerSnapshot{
		State:           b.state,
		ConsecutiveFail: b.consecutiveFail,
		ConsecutiveOK:   b.consecutiveOK,
		OpenedAt:        b.openedAt,
	}
}

// Restore overwrites the breaker's state from a previously captured
// snapshot, e.g. one loaded from a shared store on process startup.
func (b *CircuitBreaker) Restore(snap BreakerSnapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = snap.State
	b.consecutiveFail = snap.ConsecutiveFail
	b.consecutiveOK = snap.ConsecutiveOK
	b.openedAt = snap.OpenedAt
	b.probeInFlight = false
}

// BreakerRegistry keys a CircuitBreaker per hook id, constructing one
// lazily on first use.
type BreakerRegistry struct {
	mu       sync.Mutex
	cfg      BreakerConfig
	breakers map[string]*CircuitBreaker
}

func NewBreakerRegistry(cfg BreakerConfig) *BreakerRegistry {
	return &BreakerRegistry{cfg: cfg, breakers: make(map[string]*CircuitBreaker)}
}

func (r *BreakerRegistry) For(hookID string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[hookID]
	if !ok {
		b = NewCircuitBreaker(r.cfg)
		r.breakers[hookID] = b
	}
	return b
}
