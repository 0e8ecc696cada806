// Package hooks implements the hook registry and dispatcher: named
// registration points, four dispatch patterns (sequential, parallel,
// voting, first-match), a per-hook circuit breaker and token-bucket rate
// limiter, and a replay-capable persistence envelope. It generalizes the
// simple publish/subscribe fan-out used by the event bus into something that
// can cancel, modify, or retry the point it guards.
package hooks

import (
	"context"
	"time"

	"github.com/agentmesh/substrate/component"
)

// Point names a location in execution where hooks may run, e.g.
// BeforeAgentExecution, AfterToolInvocation, ToolError, AgentError,
// SystemStartup, SessionCreated.
type Point string

const (
	BeforeAgentExecution Point = "BeforeAgentExecution"
	AfterAgentExecution  Point = "AfterAgentExecution"
	BeforeToolInvocation Point = "BeforeToolInvocation"
	AfterToolInvocation  Point = "AfterToolInvocation"
	ToolError            Point = "ToolError"
	AgentError           Point = "AgentError"
	SystemStartup        Point = "SystemStartup"
	SessionCreated       Point = "SessionCreated"
)

// ResultKind discriminates the closed set of hook result variants.
type ResultKind int

const (
	ResultContinue ResultKind = iota
	ResultModified
	ResultCancel
	ResultReplace
	ResultRedirect
	ResultRetry
	ResultCache
	ResultFork
	ResultSkipped
)

func (k ResultKind) String() string {
	switch k {
	case ResultContinue:
		return "continue"
	case ResultModified:
		return "modified"
	case ResultCancel:
		return "cancel"
	case ResultReplace:
		return "replace"
	case ResultRedirect:
		return "redirect"
	case ResultRetry:
		return "retry"
	case ResultCache:
		return "cache"
	case ResultFork:
		return "fork"
	case ResultSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// RetrySpec is the payload of a Retry result.
type RetrySpec struct {
	Delay time.Duration
	Max   int
}

// CacheSpec is the payload of a Cache result.
type CacheSpec struct {
	Key string
	TTL time.Duration
}

// Spawn describes one forked execution requested by a Fork result.
type Spawn struct {
	Point Point
	Input map[string]any
}

// Result is the tagged outcome of running a single hook.
type Result struct {
	Kind     ResultKind
	Payload  any    // for Modified/Replace: the JSON-like replacement value
	Reason   string // for Cancel
	Target   string // for Redirect
	Retry    RetrySpec
	Cache    CacheSpec
	Spawns   []Spawn
}

// Continue is the zero-effect result most hooks return.
var Continue = Result{Kind: ResultContinue}

// Skipped indicates the hook did not run (circuit open or rate limited).
var Skipped = Result{Kind: ResultSkipped}

// Fn is a hook's executable body. It receives the execution context and
// returns a tagged Result.
type Fn func(ctx context.Context, ec *component.ExecutionContext) (Result, error)

// Predicate decides whether a hook should run for the current context.
type Predicate func(ctx context.Context, ec *component.ExecutionContext) bool

// AlwaysRun is the default predicate.
func AlwaysRun(context.Context, *component.ExecutionContext) bool { return true }

// Hook is one registration: identity, the point it guards, an optional
// predicate, a priority (lower runs first in Sequential/Voting-by-priority),
// and the function to run.
type Hook struct {
	ID        string
	Metadata  component.Metadata
	Point     Point
	Predicate Predicate
	Priority  int
	Run       Fn
}

func (h Hook) shouldRun(ctx context.Context, ec *component.ExecutionContext) bool {
	if h.Predicate == nil {
		return true
	}
	return h.Predicate(ctx, ec)
}
