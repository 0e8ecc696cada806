package hooks

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agentmesh/substrate/component"
	"github.com/agentmesh/substrate/telemetry"
)

// Dispatcher runs a Point's registered hooks per its configured
// DispatchPattern, isolating failures behind a per-hook circuit breaker and
// token-bucket rate limiter, and optionally recording a replay envelope for
// every hook invocation.
type Dispatcher struct {
	Registry *Registry
	Breakers *BreakerRegistry
	Limiters *RateLimiterRegistry
	Recorder Recorder
	Logger   telemetry.Logger
}

// NewDispatcher constructs a Dispatcher with fresh breaker/limiter
// registries using the given defaults. Recorder and Logger are optional.
func NewDispatcher(registry *Registry, breakerCfg BreakerConfig, rateCfg RateLimitConfig) *Dispatcher {
	return &Dispatcher{
		Registry: registry,
		Breakers: NewBreakerRegistry(breakerCfg),
		Limiters: NewRateLimiterRegistry(rateCfg),
		Logger:   telemetry.NewNoopLogger(),
	}
}

// Dispatch runs every hook registered at point according to the point's
// configured pattern and returns the point's resulting Result.
func (d *Dispatcher) Dispatch(ctx context.Context, point Point, ec *component.ExecutionContext, correlationID string) (Result, error) {
	hooks := d.Registry.Snapshot(point)
	if len(hooks) == 0 {
		return Continue, nil
	}
	cfg := d.Registry.ConfigFor(point)

	switch cfg.Pattern {
	case Parallel:
		return d.dispatchParallel(ctx, hooks, ec, correlationID, cfg)
	case Voting:
		return d.dispatchVoting(ctx, hooks, ec, correlationID, cfg)
	case FirstMatch:
		return d.dispatchFirstMatch(ctx, hooks, ec, correlationID)
	default:
		return d.dispatchSequential(ctx, hooks, ec, correlationID, cfg)
	}
}

// runHook applies predicate/breaker/rate-limit gating and, when the hook
// actually runs, records a replay envelope and feeds the outcome back into
// its circuit breaker.
func (d *Dispatcher) runHook(ctx context.Context, h Hook, ec *component.ExecutionContext, correlationID string) (Result, error) {
	if !h.shouldRun(ctx, ec) {
		return Skipped, nil
	}
	breaker := d.Breakers.For(h.ID)
	if !breaker.AllowRequest() {
		return Skipped, nil
	}
	if d.Limiters != nil && !d.Limiters.Allow(h.ID) {
		return Skipped, nil
	}

	start := time.Now()
	result, err := h.Run(ctx, ec)
	duration := time.Since(start)

	if err != nil {
		breaker.RecordFailure()
	} else {
		breaker.RecordSuccess()
	}

	if d.Recorder != nil {
		serialized, _ := json.Marshal(ec.Data)
		_ = d.Recorder.Record(ctx, Envelope{
			HookID:            h.ID,
			ExecutionID:       h.ID + ":" + correlationID,
			CorrelationID:     correlationID,
			SerializedContext: serialized,
			Result:            result,
			Timestamp:         start,
			Duration:          duration,
		})
	}
	return result, err
}

func (d *Dispatcher) dispatchSequential(ctx context.Context, hooks []Hook, ec *component.ExecutionContext, correlationID string, cfg PointConfig) (Result, error) {
	winner := Continue
	var remaining []Hook

	for i, h := range hooks {
		res, err := d.runHook(ctx, h, ec, correlationID)
		if err != nil {
			return Result{}, err
		}
		if res.Kind != ResultContinue && res.Kind != ResultSkipped {
			winner = res
			remaining = hooks[i+1:]
			break
		}
	}
	if cfg.PostNotify && len(remaining) > 0 {
		for _, h := range remaining {
			_, _ = d.runHook(ctx, h, ec, correlationID)
		}
	}
	return winner, nil
}

func (d *Dispatcher) dispatchFirstMatch(ctx context.Context, hooks []Hook, ec *component.ExecutionContext, correlationID string) (Result, error) {
	for _, h := range hooks {
		if !h.shouldRun(ctx, ec) {
			continue
		}
		return d.runHook(ctx, h, ec, correlationID)
	}
	return Continue, nil
}

func (d *Dispatcher) dispatchParallel(ctx context.Context, hooks []Hook, ec *component.ExecutionContext, correlationID string, cfg PointConfig) (Result, error) {
	results := make([]Result, len(hooks))
	errs := make([]error, len(hooks))

	switch cfg.Aggregator {
	case AllOrCancel:
		gctx, cancel := context.WithCancel(ctx)
		defer cancel()
		g, gctx2 := errgroup.WithContext(gctx)
		for i, h := range hooks {
			i, h := i, h
			g.Go(func() error {
				res, err := d.runHook(gctx2, h, ec, correlationID)
				results[i] = res
				errs[i] = err
				if err != nil || res.Kind == ResultCancel {
					cancel()
				}
				return nil
			})
		}
		_ = g.Wait()
		for i, res := range results {
			if errs[i] != nil {
				return Result{}, errs[i]
			}
			if res.Kind == ResultCancel {
				return res, nil
			}
		}
		return Continue, nil

	case JoinModify:
		var wg sync.WaitGroup
		for i, h := range hooks {
			i, h := i, h
			wg.Add(1)
			go func() {
				defer wg.Done()
				res, err := d.runHook(ctx, h, ec, correlationID)
				results[i] = res
				errs[i] = err
			}()
		}
		wg.Wait()
		merged := map[string]any{}
		modified := false
		for i, res := range results {
			if errs[i] != nil {
				return Result{}, errs[i]
			}
			if res.Kind == ResultModified {
				if payload, ok := res.Payload.(map[string]any); ok {
					for k, v := range payload {
						merged[k] = v
					}
					modified = true
				}
			}
		}
		if modified {
			return Result{Kind: ResultModified, Payload: merged}, nil
		}
		return Continue, nil

	default: // FirstSuccess
		var wg sync.WaitGroup
		for i, h := range hooks {
			i, h := i, h
			wg.Add(1)
			go func() {
				defer wg.Done()
				res, err := d.runHook(ctx, h, ec, correlationID)
				results[i] = res
				errs[i] = err
			}()
		}
		wg.Wait()
		for i, res := range results {
			if errs[i] != nil {
				continue
			}
			if res.Kind != ResultContinue && res.Kind != ResultSkipped {
				return res, nil
			}
		}
		for _, err := range errs {
			if err != nil {
				return Result{}, err
			}
		}
		return Continue, nil
	}
}

func (d *Dispatcher) dispatchVoting(ctx context.Context, hooks []Hook, ec *component.ExecutionContext, correlationID string, cfg PointConfig) (Result, error) {
	results := make([]Result, len(hooks))
	errs := make([]error, len(hooks))
	var wg sync.WaitGroup
	for i, h := range hooks {
		i, h := i, h
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := d.runHook(ctx, h, ec, correlationID)
			results[i] = res
			errs[i] = err
		}()
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return Result{}, err
		}
	}

	counts := map[ResultKind]int{}
	firstOfKind := map[ResultKind]int{} // hook index of first occurrence
	total := 0
	for i, res := range results {
		if res.Kind == ResultSkipped {
			continue
		}
		total++
		counts[res.Kind]++
		if _, ok := firstOfKind[res.Kind]; !ok {
			firstOfKind[res.Kind] = i
		}
	}
	if total == 0 {
		return Continue, nil
	}

	maxCount := 0
	for _, c := range counts {
		if c > maxCount {
			maxCount = c
		}
	}
	var tied []ResultKind
	for k, c := range counts {
		if c == maxCount {
			tied = append(tied, k)
		}
	}

	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = 0.5
	}
	if float64(maxCount)/float64(total) < threshold {
		return Continue, nil
	}

	winnerKind := tied[0]
	if len(tied) > 1 {
		winnerKind = resolveTie(tied, cfg.TieBreaker, results, firstOfKind)
	}
	return results[firstOfKind[winnerKind]], nil
}

func resolveTie(tied []ResultKind, tb TieBreaker, results []Result, firstOfKind map[ResultKind]int) ResultKind {
	switch tb {
	case TiePreferContinue:
		for _, k := range tied {
			if k == ResultContinue {
				return k
			}
		}
	case TiePreferAction:
		for _, k := range tied {
			if k != ResultContinue {
				return k
			}
		}
	case TieByPriority:
		// lowest hook index (== registration priority order since the
		// registry snapshot is priority-sorted) among the tied kinds wins.
		best := tied[0]
		bestIdx := firstOfKind[best]
		for _, k := range tied[1:] {
			if idx := firstOfKind[k]; idx < bestIdx {
				best, bestIdx = k, idx
			}
		}
		return best
	case TieFirstResult:
	}
	// TieFirstResult, or PreferContinue/PreferAction found no match: earliest
	// occurring result among the tied kinds wins.
	best := tied[0]
	bestIdx := firstOfKind[best]
	for _, k := range tied[1:] {
		if idx := firstOfKind[k]; idx < bestIdx {
			best, bestIdx = k, idx
		}
	}
	return best
}
