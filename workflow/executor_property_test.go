package workflow

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/agentmesh/substrate/component"
)

// TestParallelPreservesStepOrderRegardlessOfCompletionTiming is the §8
// property for the workflow engine's Parallel executor (scenario 8.2): no
// matter what order steps finish in, StepResults come back in the same
// order as wf.Steps.
func TestParallelPreservesStepOrderRegardlessOfCompletionTiming(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	delaysGen := gen.SliceOfN(6, gen.IntRange(0, 5))

	properties.Property("Parallel step results preserve declaration order", prop.ForAll(
		func(delaysMs []int) bool {
			reg := NewRegistry()
			steps := make([]WorkflowStep, len(delaysMs))
			for i, d := range delaysMs {
				id := fmt.Sprintf("s%d", i)
				reg.RegisterAgent(id, fakeComponent{
					meta:  component.Metadata{Name: id},
					delay: time.Duration(d) * time.Millisecond,
				})
				steps[i] = WorkflowStep{ID: id, Kind: StepAgent, AgentID: id}
			}
			wf := &Workflow{ID: "wf-prop", Kind: KindParallel, Steps: steps, Config: &ParallelConfig{MaxConcurrency: 4}}

			x := NewExecutor(reg, nil)
			out, err := x.Run(context.Background(), wf, newTestExecutionContext(), nil)
			if err != nil || len(out.Steps) != len(steps) {
				return false
			}
			for i, res := range out.Steps {
				if res.StepID != steps[i].ID {
					return false
				}
			}
			return true
		},
		delaysGen,
	))

	properties.TestingRun(t)
}
