package agent

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ensemble-ai/ensemble/pkg/config"
	"github.com/ensemble-ai/ensemble/pkg/llms"
	"github.com/ensemble-ai/ensemble/pkg/middleware"
)

func TestRegistryRegisterAndList(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&Agent{Name: "alpha", Capabilities: "a"}, false))
	require.NoError(t, reg.Register(&Agent{Name: "beta", Capabilities: "b"}, false))
	require.NoError(t, reg.Register(&Agent{Name: "gamma", Capabilities: "g"}, false))

	names := make([]string, 0, reg.Count())
	for _, a := range reg.All() {
		names = append(names, a.Name)
	}
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, names)
	assert.True(t, reg.IsRegistered("beta"))
	assert.False(t, reg.IsRegistered("delta"))
}

func TestRegistryDuplicate(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&Agent{Name: "alpha", Capabilities: "a"}, false))

	err := reg.Register(&Agent{Name: "alpha", Capabilities: "a2"}, false)
	var dup *DuplicateAgentError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "alpha", dup.Name)

	got, ok := reg.Get("alpha")
	require.True(t, ok)
	assert.Equal(t, "a", got.Capabilities, "failed register must not overwrite")
}

func TestRegistryOverwriteKeepsPosition(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&Agent{Name: "alpha", Capabilities: "a"}, false))
	require.NoError(t, reg.Register(&Agent{Name: "beta", Capabilities: "b"}, false))

	require.NoError(t, reg.Register(&Agent{Name: "alpha", Capabilities: "a2"}, true))

	agents := reg.All()
	require.Len(t, agents, 2)
	assert.Equal(t, "alpha", agents[0].Name)
	assert.Equal(t, "a2", agents[0].Capabilities)
	assert.Equal(t, "beta", agents[1].Name)
}

func TestRegistryUnregister(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&Agent{Name: "alpha", Capabilities: "a"}, false))

	require.NoError(t, reg.Unregister("alpha"))
	assert.False(t, reg.IsRegistered("alpha"))
	assert.Error(t, reg.Unregister("alpha"))
}

func TestSupervisorPromptDeterministic(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&Agent{Name: "weather", Capabilities: "Answers weather questions."}, false))
	require.NoError(t, reg.Register(&Agent{Name: "news", Capabilities: "Summarizes current news."}, false))

	first := SupervisorPrompt(reg)
	second := SupervisorPrompt(reg)
	assert.Equal(t, first, second)

	// Sections follow registration order.
	weatherIdx := strings.Index(first, "### weather")
	newsIdx := strings.Index(first, "### news")
	require.NotEqual(t, -1, weatherIdx)
	require.NotEqual(t, -1, newsIdx)
	assert.Less(t, weatherIdx, newsIdx)
	assert.Contains(t, first, "Answers weather questions.")
	assert.Contains(t, first, SpecialistPlanningPrompt)
}

func TestSupervisorPromptEmptyRegistry(t *testing.T) {
	prompt := SupervisorPrompt(NewRegistry())
	assert.Contains(t, prompt, "(none registered; answer directly)")
}

func TestBuildSupervisor(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&Agent{Name: "weather", Capabilities: "Answers weather questions."}, false))
	require.NoError(t, reg.Register(&Agent{Name: "news", Capabilities: "Summarizes current news."}, false))

	rt := NewRuntime(llms.NewMockProvider(), config.DefaultSettings(), nil)
	sup, err := BuildSupervisor(rt, reg)
	require.NoError(t, err)

	assert.Equal(t, SupervisorName, sup.Name)
	assert.True(t, sup.Supervisor)
	assert.Equal(t, middleware.DatetimeFull, sup.DatetimeMode)
	assert.Equal(t, []string{"ask_weather", "ask_news"}, sup.ToolNames())
	assert.Contains(t, sup.Capabilities, "### weather")

	defs := sup.Definitions()
	require.Len(t, defs, 2)
	props, ok := defs[0].Parameters["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "query")
}

func TestFormatterPromptDefaultsAndOverrides(t *testing.T) {
	base := FormatterPrompt{}.Build()
	assert.Contains(t, base, "Never mention specialists, agents, or tools.")
	assert.Contains(t, base, "Be warm and direct.")

	custom := FormatterPrompt{Tone: "Be extremely formal.", Extra: "Always sign off as HAL."}.Build()
	assert.Contains(t, custom, "Be extremely formal.")
	assert.NotContains(t, custom, "Be warm and direct.")
	assert.Contains(t, custom, "Always sign off as HAL.")
	assert.Contains(t, custom, "Never mention specialists, agents, or tools.")
}

func TestFormatterQuery(t *testing.T) {
	q := FormatterQuery("what is up", "result one\nresult two")
	assert.Contains(t, q, "## User query")
	assert.Contains(t, q, "what is up")
	assert.Contains(t, q, "## Specialist results")
	assert.Contains(t, q, "result one")

	empty := FormatterQuery("hi", "")
	assert.Contains(t, empty, "(no results)")
}
