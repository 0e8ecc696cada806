// Package tool implements the tool contract and execution sandbox from spec
// §4.H: a tool declares a category, security level, and JSON-schema input
// contract, and runs behind path/network/resource sandboxing.
package tool

import (
	"context"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/agentmesh/substrate/component"
)

// SecurityLevel declares what a tool may be allowed to do irrespective of its
// own logic. Neither Invoker nor the sandboxes read it; no per-level limits
// are applied.
type SecurityLevel int

const (
	Safe SecurityLevel = iota
	Restricted
	Privileged
)

func (l SecurityLevel) String() string {
	switch l {
	case Safe:
		return "safe"
	case Restricted:
		return "restricted"
	case Privileged:
		return "privileged"
	default:
		return "unknown"
	}
}

// LifecycleState is the tool's own execution state machine, supplementing
// the bare component.Component contract with explicit init/teardown states.
type LifecycleState int

const (
	Uninitialized LifecycleState = iota
	Ready
	Executing
	Failed
)

// Result is a tool's wrapped output: {success, data, error?, execution_time_ms?}.
type Result struct {
	Success         bool
	Data            any
	Error           string
	ExecutionTimeMs int64
}

// Tool is the contract every tool implements, layered over component.Component:
// Metadata/ValidateInput/Execute/HandleError (§4.A) plus its category,
// security level, and input schema declarations.
type Tool interface {
	component.Component
	Category() string
	SecurityLevel() SecurityLevel
	InputSchema() *jsonschema.Schema
}

// Base provides the common bookkeeping (lifecycle state, schema-validated
// ValidateInput) that concrete tools embed rather than reimplementing.
type Base struct {
	Meta   component.Metadata
	Cat    string
	Level  SecurityLevel
	Schema *jsonschema.Schema
	state  LifecycleState
}

func NewBase(meta component.Metadata, category string, level SecurityLevel, schema *jsonschema.Schema) Base {
	return Base{Meta: meta, Cat: category, Level: level, Schema: schema, state: Ready}
}

func (b Base) Metadata() component.Metadata   { return b.Meta }
func (b Base) Category() string               { return b.Cat }
func (b Base) SecurityLevel() SecurityLevel    { return b.Level }
func (b Base) InputSchema() *jsonschema.Schema { return b.Schema }

func (b *Base) State() LifecycleState   { return b.state }
func (b *Base) setState(s LifecycleState) { b.state = s }

// ValidateInput validates input.Parameters against the declared JSON schema,
// when one is configured.
func (b Base) ValidateInput(input component.Input) error {
	if b.Schema == nil {
		return nil
	}
	return b.Schema.Validate(input.Parameters)
}

// Wrap runs fn through the Uninitialized->Ready->Executing->(Ready|Failed)
// lifecycle, timing execution and packaging the outcome as a Result.
func Wrap(ctx context.Context, b *Base, fn func(ctx context.Context) (any, error)) (Result, error) {
	b.setState(Executing)
	start := time.Now()
	data, err := fn(ctx)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		b.setState(Failed)
		return Result{Success: false, Error: err.Error(), ExecutionTimeMs: elapsed}, err
	}
	b.setState(Ready)
	return Result{Success: true, Data: data, ExecutionTimeMs: elapsed}, nil
}
