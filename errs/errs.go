// Package errs defines the error taxonomy shared by every component in the
// substrate. Errors wrap a Kind so callers can branch on category with
// errors.As without depending on a specific component's error type.
package errs

import (
	"errors"
	"fmt"
)

// Kind is the semantic category of a substrate error. Kinds determine retry
// eligibility; they are not Go types, so a single Error value carries exactly
// one Kind via the Error struct below.
type Kind int

const (
	// Validation: input failed schema/contract. Non-retriable.
	Validation Kind = iota
	// NotFound: referenced id absent. Non-retriable unless the caller
	// expects eventual consistency.
	NotFound
	// InvalidStateTransition: an FSM rejected a move. Non-retriable.
	InvalidStateTransition
	// ResourceLimit: a tracked resource would exceed its cap. Possibly
	// retriable after backoff.
	ResourceLimit
	// Timeout: a deadline elapsed. Retriable per policy.
	Timeout
	// Security: sandbox denial or tenant boundary violation. Never
	// auto-retried.
	Security
	// Storage: backend-originated failure. Retriable if marked transient.
	Storage
	// Provider: LLM/tool external failure. Retriable via circuit breaker +
	// retry.
	Provider
	// Cancelled: cooperative cancellation. Propagated without retry.
	Cancelled
	// Integrity: content hash mismatch or schema violation detected at read.
	Integrity
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case NotFound:
		return "not_found"
	case InvalidStateTransition:
		return "invalid_state_transition"
	case ResourceLimit:
		return "resource_limit"
	case Timeout:
		return "timeout"
	case Security:
		return "security"
	case Storage:
		return "storage"
	case Provider:
		return "provider"
	case Cancelled:
		return "cancelled"
	case Integrity:
		return "integrity"
	default:
		return "unknown"
	}
}

// nonRetriable holds the kinds that must never be retried automatically.
var nonRetriable = map[Kind]bool{
	Validation:             true,
	NotFound:               true,
	InvalidStateTransition: true,
	Security:               true,
	Cancelled:              true,
	Integrity:              true,
}

// Retriable reports whether errors of kind k may be retried by a workflow
// retry policy or a circuit breaker. ResourceLimit, Timeout, Storage, and
// Provider are retriable; the rest are not.
func (k Kind) Retriable() bool { return !nonRetriable[k] }

// Error is the concrete error type every component returns. Component is the
// name of the originating component (for logs/traces). Transient gates
// retriability for Storage/Provider errors: Storage defaults to false
// ("retriable if marked transient" per spec §7) while Provider defaults to
// true ("retriable via circuit breaker + retry" unconditionally per spec
// §7) unless a construction site overrides it with WithTransient.
type Error struct {
	Kind      Kind
	Component string
	Message   string
	Transient bool
	Err       error
}

func (e *Error) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("%s: %s: %s", e.Component, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Retriable reports whether this specific error should be retried, honoring
// an explicit Transient override for Storage/Provider kinds.
func (e *Error) Retriable() bool {
	if (e.Kind == Storage || e.Kind == Provider) {
		return e.Transient
	}
	return e.Kind.Retriable()
}

// New constructs an Error of the given kind.
func New(kind Kind, component, message string) *Error {
	return &Error{Kind: kind, Component: component, Message: message, Transient: kind == Provider}
}

// Wrap constructs an Error of the given kind that wraps err.
func Wrap(kind Kind, component, message string, err error) *Error {
	return &Error{Kind: kind, Component: component, Message: message, Err: err, Transient: kind == Provider}
}

// WithTransient sets whether a Storage/Provider error is retriable.
func (e *Error) WithTransient(transient bool) *Error {
	e.Transient = transient
	return e
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// InvalidTransition constructs the InvalidStateTransition error naming the
// attempted from/to states.
func InvalidTransition(component, from, to string) *Error {
	return New(InvalidStateTransition, component, fmt.Sprintf("invalid transition from %s to %s", from, to))
}

// ResourceLimitExceeded constructs a ResourceLimit error naming the
// offending resource, its cap, and the amount already in use.
func ResourceLimitExceeded(component, resource string, limit, used int64) *Error {
	return New(ResourceLimit, component, fmt.Sprintf("%s limit exceeded: used %d, limit %d", resource, used, limit))
}
