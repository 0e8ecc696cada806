package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/agentmesh/substrate/component"
	"github.com/agentmesh/substrate/errs"
	"github.com/agentmesh/substrate/events"
)

// Executor runs a Workflow against a Registry, reading/writing per-step
// state through the workflow-scoped ExecutionContext and emitting
// WorkflowStepStarted/Completed/Failed events.
type Executor struct {
	Registry *Registry
	Bus      *events.Bus
}

func NewExecutor(reg *Registry, bus *events.Bus) *Executor {
	return &Executor{Registry: reg, Bus: bus}
}

const (
	EventStepStarted   = "WorkflowStepStarted"
	EventStepCompleted = "WorkflowStepCompleted"
	EventStepFailed    = "WorkflowStepFailed"
)

// Run executes wf against input, dispatching to the executor variant named
// by wf.Kind.
func (x *Executor) Run(ctx context.Context, wf *Workflow, ec *component.ExecutionContext, input map[string]any) (Output, error) {
	start := time.Now()
	var out Output
	var err error

	switch wf.Kind {
	case KindParallel:
		cfg, _ := wf.Config.(*ParallelConfig)
		if cfg == nil {
			cfg = &ParallelConfig{}
		}
		out, err = x.runParallel(ctx, wf, ec, input, cfg)
	case KindConditional:
		cfg, _ := wf.Config.(*ConditionalConfig)
		if cfg == nil {
			cfg = &ConditionalConfig{}
		}
		out, err = x.runConditional(ctx, wf, ec, input, cfg)
	case KindLoop:
		cfg, _ := wf.Config.(*LoopConfig)
		if cfg == nil {
			cfg = &LoopConfig{}
		}
		out, err = x.runLoop(ctx, wf, ec, input, cfg)
	default:
		cfg, _ := wf.Config.(*SequentialConfig)
		if cfg == nil {
			cfg = &SequentialConfig{}
		}
		out, err = x.runSequential(ctx, wf, ec, input, wf.Steps, cfg)
	}
	out.Duration = time.Since(start)
	return out, err
}

func (x *Executor) runSequential(ctx context.Context, wf *Workflow, ec *component.ExecutionContext, input map[string]any, steps []WorkflowStep, cfg *SequentialConfig) (Output, error) {
	var results []StepResult
	var collected []any
	var lastOutput any

	for _, step := range steps {
		res := x.runStep(ctx, wf, ec, step, input)
		results = append(results, res)
		if res.Err != nil && !cfg.ContinueOnError {
			return Output{Value: lastOutput, Steps: results}, res.Err
		}
		if res.Err == nil {
			lastOutput = res.Output
			collected = append(collected, res.Output)
		}
	}
	if cfg.Aggregate == "collect" {
		return Output{Value: collected, Steps: results}, nil
	}
	return Output{Value: lastOutput, Steps: results}, nil
}

func (x *Executor) runParallel(ctx context.Context, wf *Workflow, ec *component.ExecutionContext, input map[string]any, cfg *ParallelConfig) (Output, error) {
	n := len(wf.Steps)
	results := make([]StepResult, n)

	maxConcurrency := cfg.MaxConcurrency
	if maxConcurrency <= 0 || maxConcurrency > n {
		maxConcurrency = n
	}
	if maxConcurrency == 0 {
		return Output{}, nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := make(chan struct{}, maxConcurrency)
	var wg sync.WaitGroup
	var firstErr error
	var mu sync.Mutex

	for i, step := range wf.Steps {
		i, step := i, step
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			select {
			case <-runCtx.Done():
				results[i] = StepResult{StepID: step.ID, Cancelled: true}
				return
			default:
			}

			res := x.runStep(runCtx, wf, ec, step, input)
			if res.Err != nil && runCtx.Err() != nil {
				res.Cancelled = true
			}
			results[i] = res
			if res.Err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = res.Err
				}
				mu.Unlock()
				if cfg.FailFast {
					cancel()
				}
			}
		}()
	}
	wg.Wait()

	if cfg.FailFast {
		for i, r := range results {
			if r.StepID == "" {
				results[i] = StepResult{StepID: wf.Steps[i].ID, Cancelled: true}
			}
		}
	}

	values := make([]any, len(results))
	for i, r := range results {
		values[i] = r.Output
	}
	if firstErr != nil {
		return Output{Value: values, Steps: results}, firstErr
	}
	return Output{Value: values, Steps: results}, nil
}

func (x *Executor) runConditional(ctx context.Context, wf *Workflow, ec *component.ExecutionContext, input map[string]any, cfg *ConditionalConfig) (Output, error) {
	var matched []ConditionalBranch
	for _, branch := range cfg.Branches {
		pred, ok := x.Registry.Predicates[branch.Predicate]
		if !ok {
			return Output{}, errs.New(errs.NotFound, "workflow.conditional", "unregistered predicate: "+branch.Predicate)
		}
		ok2, err := pred(ctx, ec)
		if err != nil {
			return Output{}, err
		}
		if ok2 {
			matched = append(matched, branch)
			if !cfg.ExecuteAllMatching && cfg.ShortCircuitEvaluation {
				break
			}
			if !cfg.ExecuteAllMatching {
				break
			}
		}
	}
	if len(matched) == 0 {
		if cfg.Default == nil {
			return Output{}, nil
		}
		return x.runSequential(ctx, wf, ec, input, cfg.Default, &SequentialConfig{})
	}

	var allResults []StepResult
	var lastValue any
	for _, branch := range matched {
		out, err := x.runSequential(ctx, wf, ec, input, branch.Steps, &SequentialConfig{})
		allResults = append(allResults, out.Steps...)
		lastValue = out.Value
		if err != nil {
			return Output{Value: lastValue, Steps: allResults}, err
		}
	}
	return Output{Value: lastValue, Steps: allResults}, nil
}

func (x *Executor) runLoop(ctx context.Context, wf *Workflow, ec *component.ExecutionContext, input map[string]any, cfg *LoopConfig) (Output, error) {
	var contributions []any
	var allResults []StepResult

	emit := func(iteration int) (bool, error) {
		loopEC := ec
		loopEC.Data["loop_state.current_iteration"] = iteration
		loopEC.Data["loop_state.contributions"] = contributions

		for _, step := range cfg.Steps {
			res := x.runStep(ctx, wf, loopEC, step, input)
			allResults = append(allResults, res)
			if res.Err != nil {
				return false, res.Err
			}
			contributions = append(contributions, res.Output)
			if signal, ok := res.Output.(LoopSignal); ok {
				if signal == LoopBreak {
					return true, nil
				}
				if signal == LoopContinue {
					return false, nil
				}
			}
		}
		return false, nil
	}

	iteration := 0
	switch cfg.Iterator.Kind {
	case IterRange:
		step := cfg.Iterator.Step
		if step == 0 {
			step = 1
		}
		for i := cfg.Iterator.Start; (step > 0 && i < cfg.Iterator.End) || (step < 0 && i > cfg.Iterator.End); i += step {
			if cfg.MaxIterations > 0 && iteration >= cfg.MaxIterations {
				break
			}
			brk, err := emit(iteration)
			if err != nil {
				return Output{Value: contributions, Steps: allResults}, err
			}
			iteration++
			if brk {
				break
			}
		}
	case IterCollection:
		raw, ok, err := ec.State.Read(ctx, cfg.Iterator.CollectionKey)
		if err != nil {
			return Output{}, err
		}
		if !ok {
			return Output{Value: contributions, Steps: allResults}, nil
		}
		items, _ := raw.([]any)
		for range items {
			if cfg.MaxIterations > 0 && iteration >= cfg.MaxIterations {
				break
			}
			brk, err := emit(iteration)
			if err != nil {
				return Output{Value: contributions, Steps: allResults}, err
			}
			iteration++
			if brk {
				break
			}
		}
	case IterWhile:
		pred, ok := x.Registry.Predicates[cfg.Iterator.Predicate]
		if !ok {
			return Output{}, errs.New(errs.NotFound, "workflow.loop", "unregistered predicate: "+cfg.Iterator.Predicate)
		}
		for {
			if cfg.MaxIterations > 0 && iteration >= cfg.MaxIterations {
				break
			}
			cont, err := pred(ctx, ec)
			if err != nil {
				return Output{}, err
			}
			if !cont {
				break
			}
			brk, err := emit(iteration)
			if err != nil {
				return Output{Value: contributions, Steps: allResults}, err
			}
			iteration++
			if brk {
				break
			}
		}
	}
	return Output{Value: contributions, Steps: allResults}, nil
}

// runStep resolves sigil-referenced inputs, applies the step's retry
// policy and watchdog timeout, writes the outcome to state, and emits the
// step lifecycle events.
func (x *Executor) runStep(ctx context.Context, wf *Workflow, ec *component.ExecutionContext, step WorkflowStep, _ map[string]any) StepResult {
	start := time.Now()
	x.publish(ctx, EventStepStarted, wf.ID, step.ID, nil)

	resolved, err := resolveInputs(ctx, ec.State, wf.ID, step.Inputs)
	if err != nil {
		_ = ec.State.Write(ctx, stepErrorName(step.ID), err.Error())
		return x.finishFailed(ctx, wf, step, start, err)
	}

	attempts := 0
	maxAttempts := step.RetryPolicy.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var output any
	var runErr error
	for attempts < maxAttempts {
		attempts++
		stepCtx := ctx
		var cancel context.CancelFunc
		if step.Watchdog > 0 {
			stepCtx, cancel = context.WithTimeout(ctx, step.Watchdog)
		}
		output, runErr = x.invoke(stepCtx, ec, step, resolved)
		if cancel != nil {
			cancel()
		}
		if runErr == nil {
			break
		}
		if e, ok := runErr.(*errs.Error); ok && !e.Retriable() {
			break
		}
		if attempts < maxAttempts {
			select {
			case <-time.After(step.RetryPolicy.Delay(attempts)):
			case <-ctx.Done():
				runErr = errs.Wrap(errs.Cancelled, "workflow.step", "cancelled during retry backoff", ctx.Err())
			}
		}
	}

	if runErr != nil {
		_ = ec.State.Write(ctx, stepErrorName(step.ID), runErr.Error())
		return x.finishFailedAttempts(ctx, wf, step, start, runErr, attempts)
	}

	_ = ec.State.Write(ctx, stepOutputName(step.ID), output)
	duration := time.Since(start)
	x.publish(ctx, EventStepCompleted, wf.ID, step.ID, map[string]any{"duration_ms": duration.Milliseconds()})
	return StepResult{StepID: step.ID, Output: output, Attempts: attempts, StartedAt: start, Duration: duration}
}

func (x *Executor) finishFailed(ctx context.Context, wf *Workflow, step WorkflowStep, start time.Time, err error) StepResult {
	return x.finishFailedAttempts(ctx, wf, step, start, err, 1)
}

func (x *Executor) finishFailedAttempts(ctx context.Context, wf *Workflow, step WorkflowStep, start time.Time, err error, attempts int) StepResult {
	x.publish(ctx, EventStepFailed, wf.ID, step.ID, map[string]any{"error": err.Error()})
	return StepResult{StepID: step.ID, Err: err, Attempts: attempts, StartedAt: start, Duration: time.Since(start)}
}

func (x *Executor) invoke(ctx context.Context, ec *component.ExecutionContext, step WorkflowStep, input map[string]any) (any, error) {
	switch step.Kind {
	case StepAgent:
		c, ok := x.Registry.Agents[step.AgentID]
		if !ok {
			return nil, errs.New(errs.NotFound, "workflow.step", "unregistered agent: "+step.AgentID)
		}
		return x.invokeComponent(ctx, ec, c, input)
	case StepTool:
		c, ok := x.Registry.Tools[step.ToolID]
		if !ok {
			return nil, errs.New(errs.NotFound, "workflow.step", "unregistered tool: "+step.ToolID)
		}
		return x.invokeComponent(ctx, ec, c, input)
	case StepWorkflow:
		wf, ok := x.Registry.Workflows[step.WorkflowID]
		if !ok {
			return nil, errs.New(errs.NotFound, "workflow.step", "unregistered workflow: "+step.WorkflowID)
		}
		out, err := x.Run(ctx, wf, ec, input)
		return out.Value, err
	case StepCustom:
		fn, ok := x.Registry.CustomFns[step.FnName]
		if !ok {
			return nil, errs.New(errs.NotFound, "workflow.step", "unregistered custom fn: "+step.FnName)
		}
		return fn(ctx, ec, input)
	default:
		return nil, errs.New(errs.Validation, "workflow.step", "unknown step kind")
	}
}

func (x *Executor) invokeComponent(ctx context.Context, ec *component.ExecutionContext, c component.Component, input map[string]any) (any, error) {
	text, _ := input["text"].(string)
	params := input
	out, err := c.Execute(ctx, ec, component.Input{Text: text, Parameters: params})
	if err != nil {
		recovered, herr := c.HandleError(ctx, ec, err)
		if herr != nil {
			return nil, herr
		}
		return recovered, nil
	}
	return out, nil
}

func (x *Executor) publish(ctx context.Context, eventType, workflowID, stepID string, payload map[string]any) {
	if x.Bus == nil {
		return
	}
	if payload == nil {
		payload = map[string]any{}
	}
	payload["workflow_id"] = workflowID
	payload["step_id"] = stepID
	x.Bus.Publish(ctx, events.Event{Type: eventType, Payload: payload, SourceComponent: "workflow"})
}
