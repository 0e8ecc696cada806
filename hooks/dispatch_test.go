package hooks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentmesh/substrate/component"
)

func testHook(id string, priority int, result Result) Hook {
	return Hook{
		ID:       id,
		Point:    BeforeAgentExecution,
		Priority: priority,
		Run: func(ctx context.Context, ec *component.ExecutionContext) (Result, error) {
			return result, nil
		},
	}
}

func newTestDispatcher() *Dispatcher {
	reg := NewRegistry()
	return NewDispatcher(reg, BreakerConfig{FailureThreshold: 2, SuccessThreshold: 1, ResetTimeout: 100 * time.Millisecond}, RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000})
}

func TestVotingMajorityWins(t *testing.T) {
	d := newTestDispatcher()
	d.Registry.Configure(BeforeAgentExecution, PointConfig{Pattern: Voting, Threshold: 0.5})
	d.Registry.Register(testHook("h1", 0, Continue))
	d.Registry.Register(testHook("h2", 1, Continue))
	d.Registry.Register(testHook("h3", 2, Result{Kind: ResultModified, Payload: map[string]any{"v": 1}}))
	d.Registry.Register(testHook("h4", 3, Continue))

	ec := component.NewRootExecutionContext(component.Global())
	res, err := d.Dispatch(context.Background(), BeforeAgentExecution, ec, "corr-1")
	require.NoError(t, err)
	require.Equal(t, ResultContinue, res.Kind)
}

func TestVotingTieByPriority(t *testing.T) {
	d := newTestDispatcher()
	d.Registry.Configure(BeforeAgentExecution, PointConfig{Pattern: Voting, Threshold: 0.5, TieBreaker: TieByPriority})
	d.Registry.Register(testHook("h1", 0, Result{Kind: ResultCancel, Reason: "first"}))
	d.Registry.Register(testHook("h2", 1, Result{Kind: ResultReplace, Payload: "x"}))

	ec := component.NewRootExecutionContext(component.Global())
	res, err := d.Dispatch(context.Background(), BeforeAgentExecution, ec, "corr-2")
	require.NoError(t, err)
	require.Equal(t, ResultCancel, res.Kind)
	require.Equal(t, "first", res.Reason)
}

func TestSequentialFirstNonContinueWins(t *testing.T) {
	d := newTestDispatcher()
	d.Registry.Configure(BeforeAgentExecution, PointConfig{Pattern: Sequential})
	d.Registry.Register(testHook("h1", 0, Continue))
	d.Registry.Register(testHook("h2", 1, Result{Kind: ResultCancel, Reason: "stop"}))
	d.Registry.Register(testHook("h3", 2, Continue))

	ec := component.NewRootExecutionContext(component.Global())
	res, err := d.Dispatch(context.Background(), BeforeAgentExecution, ec, "corr-3")
	require.NoError(t, err)
	require.Equal(t, ResultCancel, res.Kind)
}

func TestParallelJoinModifyMergesPayloads(t *testing.T) {
	d := newTestDispatcher()
	d.Registry.Configure(BeforeAgentExecution, PointConfig{Pattern: Parallel, Aggregator: JoinModify})
	d.Registry.Register(testHook("h1", 0, Result{Kind: ResultModified, Payload: map[string]any{"a": 1}}))
	d.Registry.Register(testHook("h2", 1, Result{Kind: ResultModified, Payload: map[string]any{"b": 2}}))

	ec := component.NewRootExecutionContext(component.Global())
	res, err := d.Dispatch(context.Background(), BeforeAgentExecution, ec, "corr-4")
	require.NoError(t, err)
	require.Equal(t, ResultModified, res.Kind)
	merged, ok := res.Payload.(map[string]any)
	require.True(t, ok)
	require.Equal(t, 1, merged["a"])
	require.Equal(t, 2, merged["b"])
}

func TestCircuitBreakerTripsAndRecoversAfterResetTimeout(t *testing.T) {
	d := newTestDispatcher()
	d.Registry.Configure(BeforeAgentExecution, PointConfig{Pattern: Sequential})

	failing := Hook{
		ID:       "flaky",
		Point:    BeforeAgentExecution,
		Priority: 0,
		Run: func(ctx context.Context, ec *component.ExecutionContext) (Result, error) {
			return Result{}, assertErr
		},
	}
	d.Registry.Register(failing)

	ec := component.NewRootExecutionContext(component.Global())

	_, _ = d.Dispatch(context.Background(), BeforeAgentExecution, ec, "corr-5")
	_, _ = d.Dispatch(context.Background(), BeforeAgentExecution, ec, "corr-5")
	require.Equal(t, Open, d.Breakers.For("flaky").State())

	res, err := d.Dispatch(context.Background(), BeforeAgentExecution, ec, "corr-5")
	require.NoError(t, err)
	require.Equal(t, ResultContinue, res.Kind)

	time.Sleep(150 * time.Millisecond)
	require.Equal(t, HalfOpen, d.Breakers.For("flaky").State())
	require.True(t, d.Breakers.For("flaky").AllowRequest())
}

var assertErr = errTest{}

type errTest struct{}

func (errTest) Error() string { return "boom" }
