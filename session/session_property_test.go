package session

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func statusGen() gopter.Gen {
	return gen.OneConstOf(StatusActive, StatusSuspended, StatusCompleted, StatusFailed)
}

// TestSessionTransitionFromActiveMatchesLegalTransitions is the §8 property
// for the session FSM: a fresh session starts Active, and for any target
// status, Transition succeeds exactly when that edge is declared in
// legalTransitions.
func TestSessionTransitionFromActiveMatchesLegalTransitions(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("Active -> target succeeds iff legalTransitions allows it", prop.ForAll(
		func(target Status) bool {
			now := time.Now()
			s := New(Metadata{Name: "prop"}, nil, now)
			err := s.Transition(target, now)
			wantOK := legalTransitions[StatusActive][target]
			if wantOK {
				return err == nil && s.Status() == target
			}
			return err != nil && s.Status() == StatusActive
		},
		statusGen(),
	))

	properties.TestingRun(t)
}

// TestSessionTerminalStatesRejectEveryTransition: once a session reaches
// Completed or Failed, every further Transition call fails and the status
// never changes, for any target including the terminal status itself.
func TestSessionTerminalStatesRejectEveryTransition(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("terminal states reject all further transitions", prop.ForAll(
		func(terminal, target Status) bool {
			now := time.Now()
			s := New(Metadata{Name: "prop"}, nil, now)
			if err := s.Transition(terminal, now); err != nil {
				return true // terminal not directly reachable from Active; nothing to check
			}
			err := s.Transition(target, now)
			return err != nil && s.Status() == terminal
		},
		gen.OneConstOf(StatusCompleted, StatusFailed),
		statusGen(),
	))

	properties.TestingRun(t)
}
