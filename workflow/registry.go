package workflow

import (
	"context"

	"github.com/agentmesh/substrate/component"
)

// PredicateFunc evaluates a named Conditional branch or Loop While
// condition against the current execution context and loop state.
type PredicateFunc func(ctx context.Context, ec *component.ExecutionContext) (bool, error)

// CustomFunc is the handler invoked for a StepCustom step.
type CustomFunc func(ctx context.Context, ec *component.ExecutionContext, params map[string]any) (any, error)

// Registry resolves the ids named by a WorkflowStep's StepKind to the
// concrete component/function they invoke. Dynamic dispatch across
// agents/tools/workflows is modeled entirely through this registry plus the
// step's tagged kind; there is no inheritance hierarchy.
type Registry struct {
	Agents     map[string]component.Component
	Tools      map[string]component.Component
	Workflows  map[string]*Workflow
	CustomFns  map[string]CustomFunc
	Predicates map[string]PredicateFunc
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		Agents:     make(map[string]component.Component),
		Tools:      make(map[string]component.Component),
		Workflows:  make(map[string]*Workflow),
		CustomFns:  make(map[string]CustomFunc),
		Predicates: make(map[string]PredicateFunc),
	}
}

func (r *Registry) RegisterAgent(id string, c component.Component)  { r.Agents[id] = c }
func (r *Registry) RegisterTool(id string, c component.Component)   { r.Tools[id] = c }
func (r *Registry) RegisterWorkflow(wf *Workflow)                   { r.Workflows[wf.ID] = wf }
func (r *Registry) RegisterCustomFn(name string, fn CustomFunc)     { r.CustomFns[name] = fn }
func (r *Registry) RegisterPredicate(name string, fn PredicateFunc) { r.Predicates[name] = fn }
