package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/ensemble-ai/ensemble/pkg/tool"
)

// agentQueryArgs is the uniform argument shape of every agent-as-tool
// wrapper: one free-form query string.
type agentQueryArgs struct {
	Query string `json:"query" jsonschema:"required,description=A focused self-contained query for this specialist"`
}

// AsTool wraps a specialist so the supervisor can dispatch to it as an
// ordinary tool call. The wrapper owns the specialist timeout: a
// specialist that exceeds it, or runs past its recursion limit, returns
// a recoverable result string instead of failing the turn.
func AsTool(rt *Runtime, a *Agent) (*tool.Tool, error) {
	name := "ask_" + a.Name
	description := fmt.Sprintf("Invoke the %s specialist. Use it for queries matching its capabilities.", a.Name)

	handler := func(ctx context.Context, args map[string]any) (string, error) {
		query, _ := args["query"].(string)

		ctx, cancel := context.WithTimeout(ctx, rt.Settings().SpecialistTimeout())
		defer cancel()

		result, err := rt.Execute(ctx, a, query, nil)
		if err != nil {
			// The specialist's deadline fired. Report it as a result so the
			// supervisor can retry with a narrower query. A supervisor-level
			// deadline surfaces again on the supervisor's own context.
			if errors.Is(err, context.DeadlineExceeded) {
				return fmt.Sprintf("Agent %s timed out after %s. Consider a narrower query.",
					a.Name, rt.Settings().SpecialistTimeout()), nil
			}
			var recursionErr *RecursionExceededError
			if errors.As(err, &recursionErr) {
				return fmt.Sprintf("Agent %s took too many steps (limit %d). Consider a simpler query.",
					a.Name, recursionErr.Limit), nil
			}
			return "", err
		}
		return result.Response, nil
	}

	return tool.New(name, description, agentQueryArgs{}, handler)
}
