package workflow

import (
	"context"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/agentmesh/substrate/component"
	"github.com/agentmesh/substrate/state"
)

// TemporalActivities exposes one workflow step as a Temporal activity, so a
// durable deployment gets replay, history, and Temporal-managed retries per
// step without teaching the Sequential/Parallel/Conditional/Loop dispatch
// logic in executor.go anything about Temporal. The in-memory Executor this
// wraps remains the activity's implementation; Temporal only supplies the
// durability envelope around it.
type TemporalActivities struct {
	Executor *Executor
}

const stepActivityName = "RunStepActivity"

// Register registers the activity with w under stepActivityName, the name
// RunSequentialWorkflow references when scheduling it.
func (a *TemporalActivities) Register(w worker.Worker) {
	w.RegisterActivityWithOptions(a.RunStepActivity, activity.RegisterOptions{Name: stepActivityName})
}

// StepActivityInput is the serializable payload RunStepActivity receives.
// Step is a WorkflowStep, already a plain value type safe to pass through
// Temporal's payload converter.
type StepActivityInput struct {
	WorkflowID string
	Step       WorkflowStep
}

// RunStepActivity runs one step through the same runStep dispatch path the
// in-memory executor variants use, returning the StepResult Temporal
// records in the workflow's history. Each call gets its own in-memory state,
// so a step's sigil inputs cannot read outputs recorded by earlier
// activities.
func (a *TemporalActivities) RunStepActivity(ctx context.Context, in StepActivityInput) (StepResult, error) {
	wf := &Workflow{ID: in.WorkflowID}
	ec := component.NewRootExecutionContext(component.Workflow(in.WorkflowID))
	ec.State = state.Access{Store: state.NewMemoryStore(), Scope: ec.Scope}
	// Temporal's RetryPolicy governs retries, so runStep makes one attempt.
	step := in.Step
	step.RetryPolicy = RetryPolicy{}
	res := a.Executor.runStep(ctx, wf, ec, step, nil)
	return res, res.Err
}

// RunSequentialWorkflow is a Temporal workflow function that durably runs
// wf's steps in order. Each WorkflowStep.RetryPolicy is translated into a
// Temporal ActivityOptions.RetryPolicy, so Temporal's own retry machinery
// governs durable retries across process restarts instead of this
// package's in-memory backoff loop (used when Executor.Run executes
// in-process without a durable engine underneath it).
func RunSequentialWorkflow(ctx workflow.Context, wf *Workflow) ([]StepResult, error) {
	results := make([]StepResult, 0, len(wf.Steps))
	for _, step := range wf.Steps {
		actCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
			StartToCloseTimeout: stepTimeout(step),
			RetryPolicy:         temporalRetryPolicy(step.RetryPolicy),
		})
		var res StepResult
		in := StepActivityInput{WorkflowID: wf.ID, Step: step}
		if err := workflow.ExecuteActivity(actCtx, stepActivityName, in).Get(actCtx, &res); err != nil {
			results = append(results, res)
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

func stepTimeout(step WorkflowStep) time.Duration {
	if step.Watchdog > 0 {
		return step.Watchdog
	}
	return time.Minute
}

func temporalRetryPolicy(p RetryPolicy) *temporal.RetryPolicy {
	if p.MaxAttempts <= 0 {
		return &temporal.RetryPolicy{MaximumAttempts: 1}
	}
	coefficient := 1.0
	if p.ExponentialBackoff {
		coefficient = 2.0
	}
	initial := time.Duration(p.BackoffSeconds * float64(time.Second))
	if initial <= 0 {
		initial = time.Second
	}
	return &temporal.RetryPolicy{
		InitialInterval:    initial,
		BackoffCoefficient: coefficient,
		MaximumAttempts:    int32(p.MaxAttempts),
	}
}
