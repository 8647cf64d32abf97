package agent

import (
	"context"
	"strings"

	"github.com/ensemble-ai/ensemble/pkg/middleware"
	"github.com/ensemble-ai/ensemble/pkg/protocol"
)

// FormatterName is the fixed name of the response formatting agent.
const FormatterName = "formatter"

// BuildFormatter composes the formatting agent: a single no-tool LLM
// pass that turns raw specialist results into the user-facing reply.
func BuildFormatter(prompt FormatterPrompt) *Agent {
	return &Agent{
		Name:         FormatterName,
		Capabilities: prompt.Build(),
		DatetimeMode: middleware.DatetimeMinimal,
		Supervisor:   true, // no planning prompt; the formatter never plans
	}
}

// FormatterQuery renders the formatter's input: the user's query followed
// by the raw supervisor output the formatter should rewrite.
func FormatterQuery(userQuery, rawResults string) string {
	var sb strings.Builder
	sb.WriteString("## User query\n\n")
	sb.WriteString(userQuery)
	sb.WriteString("\n\n## Specialist results\n\n")
	if rawResults == "" {
		sb.WriteString("(no results)")
	} else {
		sb.WriteString(rawResults)
	}
	return sb.String()
}

// Format runs the formatting pass. The caller bounds ctx with the
// formatter timeout and decides the fallback when this fails.
func Format(ctx context.Context, rt *Runtime, f *Agent, userQuery, rawResults string, prior []protocol.Message) (string, error) {
	result, err := rt.Execute(ctx, f, FormatterQuery(userQuery, rawResults), prior)
	if err != nil {
		return "", err
	}
	return result.Response, nil
}
