package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"

	"github.com/agentmesh/substrate/component"
	"github.com/agentmesh/substrate/events"
)

func TestRunSequentialWorkflowExecutesStepsInOrder(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()

	reg := NewRegistry()
	reg.RegisterCustomFn("noop", func(ctx context.Context, ec *component.ExecutionContext, params map[string]any) (any, error) {
		return "ok", nil
	})
	activities := &TemporalActivities{Executor: NewExecutor(reg, events.NewBus())}
	env.RegisterActivityWithOptions(activities.RunStepActivity, activity.RegisterOptions{Name: stepActivityName})

	wf := &Workflow{
		ID:   "wf-1",
		Kind: KindSequential,
		Steps: []WorkflowStep{
			{ID: "step-1", Kind: StepCustom, FnName: "noop", RetryPolicy: RetryPolicy{MaxAttempts: 1}},
		},
	}

	env.ExecuteWorkflow(RunSequentialWorkflow, wf)

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var results []StepResult
	require.NoError(t, env.GetWorkflowResult(&results))
	require.Len(t, results, 1)
	require.Equal(t, "step-1", results[0].StepID)
	require.Equal(t, "ok", results[0].Output)
}

func TestRunSequentialWorkflowStopsOnStepFailure(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()

	reg := NewRegistry()
	activities := &TemporalActivities{Executor: NewExecutor(reg, events.NewBus())}
	env.RegisterActivityWithOptions(activities.RunStepActivity, activity.RegisterOptions{Name: stepActivityName})

	wf := &Workflow{
		ID:   "wf-2",
		Kind: KindSequential,
		Steps: []WorkflowStep{
			{ID: "missing-fn", Kind: StepCustom, FnName: "does-not-exist", RetryPolicy: RetryPolicy{MaxAttempts: 1}},
		},
	}

	env.ExecuteWorkflow(RunSequentialWorkflow, wf)

	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())
}
