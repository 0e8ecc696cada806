package workflow

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/agentmesh/substrate/component"
	"github.com/agentmesh/substrate/errs"
)

// sigilPattern matches $step_{name}_output or $step_{name}_output.path.to.field.
var sigilPattern = regexp.MustCompile(`^\$step_([A-Za-z0-9_\-]+)_output(?:\.(.+))?$`)

func stepOutputName(stepID string) string {
	return fmt.Sprintf("step:%s:output", stepID)
}

func stepErrorName(stepID string) string {
	return fmt.Sprintf("step:%s:error", stepID)
}

// resolveInputs walks inputs and replaces every string value matching the
// sigil pattern with the referenced step's (possibly path-projected) output,
// read from state at step-start as required by spec §4.F.
func resolveInputs(ctx context.Context, state component.StateAccess, workflowID string, inputs map[string]any) (map[string]any, error) {
	if inputs == nil {
		return nil, nil
	}
	out := make(map[string]any, len(inputs))
	for k, v := range inputs {
		resolved, err := resolveValue(ctx, state, workflowID, v)
		if err != nil {
			return nil, err
		}
		out[k] = resolved
	}
	return out, nil
}

func resolveValue(ctx context.Context, state component.StateAccess, workflowID string, v any) (any, error) {
	switch val := v.(type) {
	case string:
		m := sigilPattern.FindStringSubmatch(val)
		if m == nil {
			return val, nil
		}
		stepID, path := m[1], m[2]
		raw, ok, err := state.Read(ctx, stepOutputName(stepID))
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errs.New(errs.NotFound, "workflow.sigil", "no recorded output for step "+stepID)
		}
		if path == "" {
			return raw, nil
		}
		return projectPath(raw, path)
	case map[string]any:
		return resolveInputs(ctx, state, workflowID, val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			resolved, err := resolveValue(ctx, state, workflowID, item)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return val, nil
	}
}

// projectPath walks a dotted path (e.g. "result.items.0.name") through
// nested maps/slices.
func projectPath(v any, path string) (any, error) {
	cur := v
	for _, segment := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[segment]
			if !ok {
				return nil, errs.New(errs.NotFound, "workflow.sigil", "path segment not found: "+segment)
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(segment)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, errs.New(errs.NotFound, "workflow.sigil", "invalid index segment: "+segment)
			}
			cur = node[idx]
		default:
			return nil, errs.New(errs.NotFound, "workflow.sigil", "cannot project into scalar at segment: "+segment)
		}
	}
	return cur, nil
}
