// Package agent implements the agent runtime contract of spec §4.G: an agent
// wraps a Provider and a tool set, executes the validate/hooks/stream/hooks
// sequence, interleaves tool calls mid-stream, and bounds conversation
// memory with FIFO eviction.
package agent

import (
	"context"
	"fmt"

	"github.com/agentmesh/substrate/component"
	"github.com/agentmesh/substrate/errs"
	"github.com/agentmesh/substrate/hooks"
	"github.com/agentmesh/substrate/tool"
)

// Config bounds an Agent's behavior.
type Config struct {
	MaxTextSize          int
	MaxConversationTurns int
	MaxToolRounds        int // upper bound on provider-resume cycles per Execute
	EstimatedToolMemory  int64
}

// Agent wraps a Provider and a tool set behind the uniform component
// contract, per spec §4.G. ProviderID keys its circuit breaker so repeated
// provider timeouts or network errors trip independently per backend.
type Agent struct {
	Meta       component.Metadata
	ProviderID string
	Provider   Provider
	Tools      *tool.Invoker
	ToolSpecs  []ToolSpec
	Memory     *Memory
	Hooks      *hooks.Dispatcher
	Breakers   *hooks.BreakerRegistry
	Config     Config
}

// New constructs an Agent with a fresh bounded Memory.
func New(meta component.Metadata, providerID string, provider Provider, systemPrompt string, cfg Config) *Agent {
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = 8
	}
	return &Agent{
		Meta:       meta,
		ProviderID: providerID,
		Provider:   provider,
		Memory:     NewMemory(systemPrompt, cfg.MaxConversationTurns),
		Config:     cfg,
	}
}

func (a *Agent) Metadata() component.Metadata { return a.Meta }

// ValidateInput enforces the required-text and maximum-size rules of
// validate_input (spec §4.G step 1).
func (a *Agent) ValidateInput(input component.Input) error {
	if input.Text == "" {
		return errs.New(errs.Validation, "agent", "input text is required")
	}
	if a.Config.MaxTextSize > 0 && len(input.Text) > a.Config.MaxTextSize {
		return errs.New(errs.Validation, "agent", "input text exceeds maximum size")
	}
	return nil
}

// Execute runs the full agent step sequence and returns the final output,
// draining ExecuteStream internally.
func (a *Agent) Execute(ctx context.Context, ec *component.ExecutionContext, input component.Input) (component.Output, error) {
	ch, err := a.ExecuteStream(ctx, ec, input)
	if err != nil {
		return component.Output{}, err
	}
	var out component.Output
	var streamErr error
	for chunk := range ch {
		switch chunk.Kind {
		case component.ChunkText:
			out.Text += chunk.Text
		case component.ChunkControl:
			if chunk.Control == component.StreamCancelled {
				streamErr = errs.New(errs.Cancelled, "agent", chunk.Reason)
			}
		}
	}
	if streamErr != nil {
		return out, streamErr
	}
	return out, nil
}

// HandleError lets AgentError hooks attempt recovery; an unresolved error is
// surfaced as an error output per spec §4.G.
func (a *Agent) HandleError(ctx context.Context, ec *component.ExecutionContext, err error) (component.Output, error) {
	if a.Hooks != nil {
		ec.Data["agent_error"] = err.Error()
		res, herr := a.Hooks.Dispatch(ctx, hooks.AgentError, ec, string(a.Meta.ID))
		if herr == nil {
			switch res.Kind {
			case hooks.ResultReplace:
				if text, ok := res.Payload.(string); ok {
					return component.Output{Text: text}, nil
				}
			case hooks.ResultRetry:
				return component.Output{}, errs.Wrap(errs.Provider, "agent", "retry requested", err)
			}
		}
	}
	return component.Output{}, err
}

// ExecuteStream implements component.StreamingComponent: it runs validate ->
// BeforeAgentExecution -> provider streaming with tool-call interleaving ->
// AfterAgentExecution, emitting chunks as they become available.
func (a *Agent) ExecuteStream(ctx context.Context, ec *component.ExecutionContext, input component.Input) (<-chan component.Chunk, error) {
	if err := a.ValidateInput(input); err != nil {
		return nil, err
	}

	if a.Hooks != nil {
		ec.Data["agent_input"] = input
		res, err := a.Hooks.Dispatch(ctx, hooks.BeforeAgentExecution, ec, string(a.Meta.ID))
		if err != nil {
			return nil, err
		}
		switch res.Kind {
		case hooks.ResultCancel:
			return nil, errs.New(errs.Security, "agent", "execution cancelled by hook: "+res.Reason)
		case hooks.ResultModified:
			if modified, ok := res.Payload.(component.Input); ok {
				input = modified
			}
		}
	}

	a.Memory.Append(Turn{Role: RoleUser, Text: input.Text})

	out := make(chan component.Chunk)
	go a.run(ctx, ec, input, out)
	return out, nil
}

func (a *Agent) run(ctx context.Context, ec *component.ExecutionContext, input component.Input, out chan<- component.Chunk) {
	defer close(out)

	var breaker *hooks.CircuitBreaker
	if a.Breakers != nil {
		breaker = a.Breakers.For(a.ProviderID)
	}

	var finalText string
	index := 0
	emit := func(c component.Chunk) {
		c.ChunkIndex = index
		index++
		select {
		case out <- c:
		case <-ctx.Done():
		}
	}

	for round := 0; round < a.Config.MaxToolRounds; round++ {
		if breaker != nil && !breaker.AllowRequest() {
			a.finishStream(ctx, ec, emit, finalText, errs.New(errs.Provider, "agent", "circuit open for provider "+a.ProviderID))
			return
		}

		req := Request{SystemPrompt: a.Memory.SystemPrompt, Turns: a.Memory.Turns(), Input: input, Tools: a.ToolSpecs}
		stream, err := a.Provider.Stream(ctx, req)
		if err != nil {
			if breaker != nil {
				breaker.RecordFailure()
			}
			a.finishStream(ctx, ec, emit, finalText, errs.Wrap(errs.Provider, "agent", "provider stream failed", err))
			return
		}

		var pendingToolCall *component.ToolCall
		var cancelled bool
		for chunk := range stream {
			switch chunk.Kind {
			case component.ChunkText:
				finalText += chunk.Text
				emit(chunk)
			case component.ChunkMedia:
				emit(chunk)
			case component.ChunkToolCallProgress:
				emit(chunk)
			case component.ChunkToolCallComplete:
				tc := chunk.ToolCall
				pendingToolCall = &tc
			case component.ChunkControl:
				if chunk.Control == component.StreamCancelled {
					cancelled = true
				}
			}
		}

		if breaker != nil {
			breaker.RecordSuccess()
		}

		if cancelled {
			emit(component.Chunk{Kind: component.ChunkControl, Control: component.StreamCancelled, Reason: "provider stream cancelled"})
			return
		}

		if pendingToolCall == nil {
			a.Memory.Append(Turn{Role: RoleAssistant, Text: finalText})
			emit(component.Chunk{Kind: component.ChunkControl, Control: component.StreamEnd})
			a.runAfterHooks(ctx, ec, finalText)
			return
		}

		a.Memory.Append(Turn{Role: RoleAssistant, Text: finalText})
		toolOut, toolErr := a.invokeTool(ctx, ec, *pendingToolCall)
		if toolErr != nil {
			a.finishStream(ctx, ec, emit, finalText, toolErr)
			return
		}
		a.Memory.Append(Turn{Role: RoleTool, ToolID: pendingToolCall.Name, Payload: toolOut})
		emit(component.Chunk{Kind: component.ChunkToolCallComplete, ToolCall: *pendingToolCall})
	}

	a.finishStream(ctx, ec, emit, finalText, errs.New(errs.ResourceLimit, "agent", "exceeded maximum tool-call rounds"))
}

// invokeTool runs a single tool call via the configured Invoker subject to
// §4.H limits, then lets a ToolError hook decide whether to retry, replace
// with a canned output, or leave the failure unresolved.
func (a *Agent) invokeTool(ctx context.Context, ec *component.ExecutionContext, call component.ToolCall) (any, error) {
	if a.Tools == nil {
		return nil, errs.New(errs.Validation, "agent", "no tool invoker configured")
	}
	input := component.Input{Parameters: call.Arguments}
	res, err := a.Tools.Invoke(ctx, ec, call.Name, input, a.Config.EstimatedToolMemory)
	if err == nil && res.Success {
		return res.Data, nil
	}

	if a.Hooks != nil {
		ec.Data["tool_error"] = fmt.Sprintf("%v", errOrResultError(err, res))
		ec.Data["tool_name"] = call.Name
		hres, herr := a.Hooks.Dispatch(ctx, hooks.ToolError, ec, call.ID)
		if herr == nil {
			switch hres.Kind {
			case hooks.ResultReplace:
				return hres.Payload, nil
			case hooks.ResultRetry:
				return a.invokeTool(ctx, ec, call)
			}
		}
	}

	if err != nil {
		return nil, errs.Wrap(errs.Provider, "agent", "tool invocation failed: "+call.Name, err)
	}
	return nil, errs.New(errs.Provider, "agent", "tool invocation failed: "+call.Name+": "+res.Error)
}

func errOrResultError(err error, res tool.Result) string {
	if err != nil {
		return err.Error()
	}
	return res.Error
}

func (a *Agent) runAfterHooks(ctx context.Context, ec *component.ExecutionContext, finalText string) {
	if a.Hooks == nil {
		return
	}
	ec.Data["agent_output"] = finalText
	_, _ = a.Hooks.Dispatch(ctx, hooks.AfterAgentExecution, ec, string(a.Meta.ID))
}

func (a *Agent) finishStream(ctx context.Context, ec *component.ExecutionContext, emit func(component.Chunk), finalText string, err error) {
	if finalText != "" {
		a.Memory.Append(Turn{Role: RoleAssistant, Text: finalText})
	}
	ec.Data["agent_error"] = err.Error()
	emit(component.Chunk{Kind: component.ChunkControl, Control: component.StreamCancelled, Reason: err.Error()})
	a.runAfterHooks(ctx, ec, finalText)
}
