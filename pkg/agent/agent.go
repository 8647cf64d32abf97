// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package agent implements the agent execution model: the per-agent tool
// loop, the registry of specialists, the agent-as-tool wrapper the
// supervisor dispatches through, and the supervisor and formatter
// builders.
package agent

import (
	"fmt"
	"time"

	"github.com/ensemble-ai/ensemble/pkg/middleware"
	"github.com/ensemble-ai/ensemble/pkg/tool"
)

// Agent is a named LLM-driven component. Capabilities serves double duty:
// it is the agent's own base system prompt and the supervisor's routing
// cue. One string, no duplication.
type Agent struct {
	Name         string
	Capabilities string
	Tools        []*tool.Tool

	// DatetimeMode defaults to minimal; the supervisor uses full.
	DatetimeMode middleware.DatetimeMode

	// RecursionLimit caps tool-loop iterations per invocation. Zero means
	// the settings default.
	RecursionLimit int

	// Supervisor marks the top-level agent; specialists get the planning
	// prompt appended to their system prompt, the supervisor's prompt is
	// fully composed by the builder.
	Supervisor bool
}

// ToolByName finds one of the agent's tools.
func (a *Agent) ToolByName(name string) (*tool.Tool, bool) {
	for _, t := range a.Tools {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}

// ToolNames returns the agent's tool names in declaration order.
func (a *Agent) ToolNames() []string {
	names := make([]string, len(a.Tools))
	for i, t := range a.Tools {
		names[i] = t.Name
	}
	return names
}

// Definitions returns the provider-facing tool definitions.
func (a *Agent) Definitions() []tool.Definition {
	defs := make([]tool.Definition, len(a.Tools))
	for i, t := range a.Tools {
		defs[i] = t.Definition()
	}
	return defs
}

// DuplicateAgentError reports a Register on an existing name without the
// overwrite flag.
type DuplicateAgentError struct {
	Name string
}

func (e *DuplicateAgentError) Error() string {
	return fmt.Sprintf("agent %q already registered", e.Name)
}

// RecursionExceededError reports a tool loop that passed its step budget.
type RecursionExceededError struct {
	Agent string
	Limit int
}

func (e *RecursionExceededError) Error() string {
	return fmt.Sprintf("agent %s exceeded recursion limit of %d steps", e.Agent, e.Limit)
}

// SupervisorTimeoutError aborts the turn when the top-level supervisor
// exceeds its bound.
type SupervisorTimeoutError struct {
	Timeout time.Duration
}

func (e *SupervisorTimeoutError) Error() string {
	return fmt.Sprintf("supervisor exceeded timeout of %s", e.Timeout)
}
