package tool

import (
	"context"
	"time"

	"github.com/agentmesh/substrate/component"
)

// Invoker runs a Tool subject to its input schema and the configured
// resource tracker, wrapping the outcome in a Result. Invoke does not
// consult the Path or Network sandboxes held in its fields.
type Invoker struct {
	Tools     map[string]Tool
	Resources *ResourceTracker
	Path      *PathSandbox
	Network   *NetworkSandbox
}

func NewInvoker(resources *ResourceTracker) *Invoker {
	return &Invoker{Tools: make(map[string]Tool), Resources: resources}
}

func (i *Invoker) Register(id string, t Tool) { i.Tools[id] = t }

// Invoke validates input against the tool's schema, acquires a resource
// guard for the estimated memory footprint, executes, and releases the
// guard regardless of outcome.
func (i *Invoker) Invoke(ctx context.Context, ec *component.ExecutionContext, toolID string, input component.Input, estimatedMemoryBytes int64) (Result, error) {
	t, ok := i.Tools[toolID]
	if !ok {
		return Result{Success: false, Error: "unknown tool: " + toolID}, nil
	}
	if err := t.ValidateInput(input); err != nil {
		return Result{Success: false, Error: err.Error()}, err
	}

	var guard *Guard
	if i.Resources != nil {
		g, err := i.Resources.Acquire(estimatedMemoryBytes, 0)
		if err != nil {
			return Result{Success: false, Error: err.Error()}, err
		}
		guard = g
		defer guard.Release()
	}

	start := time.Now()
	out, err := t.Execute(ctx, ec, input)
	elapsed := time.Since(start).Milliseconds()
	if i.Resources != nil {
		_ = i.Resources.RecordCPUTime(elapsed)
	}
	if err != nil {
		recovered, herr := t.HandleError(ctx, ec, err)
		if herr != nil {
			return Result{Success: false, Error: herr.Error(), ExecutionTimeMs: elapsed}, herr
		}
		return Result{Success: true, Data: recovered, ExecutionTimeMs: elapsed}, nil
	}
	return Result{Success: true, Data: out, ExecutionTimeMs: elapsed}, nil
}
