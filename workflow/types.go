// Package workflow implements the workflow engine described in spec §4.F:
// a shared step graph executed by one of four variants (Sequential,
// Parallel, Conditional, Loop), with per-step retry policy and state-backed
// output plumbing via the `$step_{name}_output[.path]` sigil.
package workflow

import (
	"time"
)

// StepKind discriminates what a WorkflowStep invokes. Dynamic dispatch
// across agents/tools/workflows/custom functions is modeled as this tagged
// variant plus a registry keyed by id, not an inheritance hierarchy.
type StepKind int

const (
	StepAgent StepKind = iota
	StepTool
	StepWorkflow
	StepCustom
)

// RetryPolicy is the per-step retry configuration from spec §4.F: on
// failure, sleep backoff_seconds * (2^(attempt-1) if exponential else 1);
// bubble the last error once attempts are exhausted.
type RetryPolicy struct {
	MaxAttempts        int
	BackoffSeconds     float64
	ExponentialBackoff bool
}

// Delay returns the sleep duration before retry attempt (1-indexed).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if p.BackoffSeconds <= 0 {
		return 0
	}
	seconds := p.BackoffSeconds
	if p.ExponentialBackoff && attempt > 1 {
		for i := 1; i < attempt; i++ {
			seconds *= 2
		}
	}
	return time.Duration(seconds * float64(time.Second))
}

// WorkflowStep is one node in the shared step graph.
type WorkflowStep struct {
	ID           string
	Kind         StepKind
	AgentID      string // StepAgent
	ToolID       string // StepTool
	WorkflowID   string // StepWorkflow
	FnName       string // StepCustom
	Inputs       map[string]any
	Dependencies []string
	RetryPolicy  RetryPolicy
	Watchdog     time.Duration
}

// WorkflowKind discriminates the four executor variants.
type WorkflowKind int

const (
	KindSequential WorkflowKind = iota
	KindParallel
	KindConditional
	KindLoop
)

// SequentialConfig configures the Sequential executor.
type SequentialConfig struct {
	ContinueOnError bool
	// Aggregate, when "collect", makes the workflow output an ordered list
	// of every successful step's output instead of just the last one.
	Aggregate string
}

// ParallelConfig configures the Parallel executor.
type ParallelConfig struct {
	MaxConcurrency int
	FailFast       bool
}

// ConditionalBranch pairs a predicate function name with the steps it runs
// when the predicate evaluates true. Predicate resolution is left to the
// caller-supplied PredicateFunc registry, not hardcoded here.
type ConditionalBranch struct {
	Predicate string
	Steps     []WorkflowStep
}

// ConditionalConfig configures the Conditional executor.
type ConditionalConfig struct {
	Branches               []ConditionalBranch
	Default                []WorkflowStep
	ExecuteAllMatching     bool
	ShortCircuitEvaluation bool
}

// IteratorKind discriminates Loop's three iterator variants.
type IteratorKind int

const (
	IterRange IteratorKind = iota
	IterCollection
	IterWhile
)

// Iterator describes how a Loop config advances.
type Iterator struct {
	Kind IteratorKind

	// IterRange
	Start, End, Step int

	// IterCollection: the state key holding the collection to range over.
	CollectionKey string

	// IterWhile: predicate name re-evaluated each iteration, resolved via
	// the same PredicateFunc registry as Conditional.
	Predicate string
}

// LoopConfig configures the Loop executor.
type LoopConfig struct {
	Iterator      Iterator
	MaxIterations int
	Steps         []WorkflowStep
}

// LoopSignal is returned by a step to control loop iteration.
type LoopSignal int

const (
	LoopNone LoopSignal = iota
	LoopBreak
	LoopContinue
)

// Workflow is the top-level unit of execution.
type Workflow struct {
	ID     string
	Name   string
	Kind   WorkflowKind
	Steps  []WorkflowStep // for Sequential/Parallel
	Config any            // *SequentialConfig | *ParallelConfig | *ConditionalConfig | *LoopConfig
}

// StepResult is one step's recorded outcome.
type StepResult struct {
	StepID    string
	Output    any
	Err       error
	Cancelled bool
	Attempts  int
	StartedAt time.Time
	Duration  time.Duration
}

// Output is the workflow's typed result.
type Output struct {
	Value    any
	Steps    []StepResult
	Duration time.Duration
}
