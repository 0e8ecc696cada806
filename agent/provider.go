package agent

import (
	"context"

	"github.com/agentmesh/substrate/component"
)

// ToolSpec describes one tool made available to a provider request, enough
// for the provider to advertise it to the underlying model.
type ToolSpec struct {
	Name        string
	Description string
	Schema      any
}

// Request is the provider-agnostic shape of one completion request: the
// pinned system prompt, the retained conversation window, the triggering
// input, and the tools the model may call.
type Request struct {
	SystemPrompt string
	Turns        []Turn
	Input        component.Input
	Tools        []ToolSpec
}

// Provider abstracts an LLM backend. Concrete clients (OpenAI, Anthropic,
// local runtimes, ...) are out of scope here; Provider is the seam a
// concrete client implements. Stream yields an ordered Chunk sequence ending
// in a Control chunk, matching component.StreamingComponent's contract so an
// Agent can interleave tool calls without the provider knowing about tools
// beyond their name and arguments.
type Provider interface {
	Stream(ctx context.Context, req Request) (<-chan component.Chunk, error)
}
