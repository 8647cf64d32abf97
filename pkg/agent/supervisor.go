package agent

import (
	"github.com/ensemble-ai/ensemble/pkg/middleware"
	"github.com/ensemble-ai/ensemble/pkg/tool"
)

// SupervisorName is the fixed name of the top-level routing agent.
const SupervisorName = "supervisor"

// BuildSupervisor composes the top-level agent from the current registry:
// the routing prompt with one capabilities section per specialist, and one
// agent-as-tool wrapper per specialist. Rebuild after registry changes;
// the supervisor is a snapshot, not a live view.
func BuildSupervisor(rt *Runtime, reg *Registry) (*Agent, error) {
	specialists := reg.All()

	tools := make([]*tool.Tool, 0, len(specialists))
	for _, a := range specialists {
		t, err := AsTool(rt, a)
		if err != nil {
			return nil, err
		}
		tools = append(tools, t)
	}

	return &Agent{
		Name:         SupervisorName,
		Capabilities: SupervisorPrompt(reg),
		Tools:        tools,
		DatetimeMode: middleware.DatetimeFull,
		Supervisor:   true,
	}, nil
}
