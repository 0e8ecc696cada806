package hooks

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestBreakerTripsAfterThresholdConsecutiveFailures is the §8 property for
// the circuit breaker: for any failure threshold and any run of at least
// that many consecutive RecordFailure calls (with no intervening success),
// the breaker is Open and rejects requests, regardless of the exact count.
func TestBreakerTripsAfterThresholdConsecutiveFailures(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("N >= threshold consecutive failures always opens the breaker", prop.ForAll(
		func(threshold, extra int) bool {
			b := NewCircuitBreaker(BreakerConfig{
				FailureThreshold: threshold,
				SuccessThreshold: 1,
				ResetTimeout:     time.Hour,
			})
			for i := 0; i < threshold+extra; i++ {
				b.RecordFailure()
			}
			return b.State() == Open && !b.AllowRequest()
		},
		gen.IntRange(1, 10),
		gen.IntRange(0, 10),
	))

	properties.TestingRun(t)
}

// TestBreakerNeverOpensBelowThreshold: fewer than FailureThreshold
// consecutive failures, with no success in between, never trips the
// breaker out of Closed.
func TestBreakerNeverOpensBelowThreshold(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("fewer than threshold failures keeps the breaker Closed", prop.ForAll(
		func(threshold int) bool {
			if threshold < 2 {
				return true // nothing below a threshold of 1 to exercise
			}
			b := NewCircuitBreaker(BreakerConfig{
				FailureThreshold: threshold,
				SuccessThreshold: 1,
				ResetTimeout:     time.Hour,
			})
			for i := 0; i < threshold-1; i++ {
				b.RecordFailure()
			}
			return b.State() == Closed && b.AllowRequest()
		},
		gen.IntRange(1, 10),
	))

	properties.TestingRun(t)
}
