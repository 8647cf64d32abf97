package agent

import (
	"strings"
)

// baseSupervisorPrompt is the static head of the supervisor's system
// prompt; the registry capabilities section and planning prompt follow.
const baseSupervisorPrompt = `You are the supervisor of a team of specialist agents.
Your job is to answer the user's query by routing work to the right
specialists and combining their results.

Routing rules:
- Pick specialists by the capabilities described below, not by tool names.
- Pass each specialist a focused, self-contained query.
- Call several specialists in parallel when their work is independent.
- If no specialist fits, answer directly from your own knowledge.
- If a specialist reports an error or timeout, decide whether to retry
  with a narrower query, try another specialist, or explain the limitation.`

// SpecialistPlanningPrompt is the static chain-of-thought block appended
// to every specialist's system prompt. It replaces an explicit task-list
// tool with prompt-only planning.
const SpecialistPlanningPrompt = `## How to work

1. Break the query into the smallest independent subtasks.
2. Issue tool calls for independent subtasks in parallel, in one step.
3. After each round of results, check what is still missing.
4. Stop as soon as you can answer; do not call tools you do not need.
5. Before answering, review the query once more for unaddressed parts.`

// SupervisorPrompt composes the supervisor system prompt: base prompt,
// one capabilities section per registered agent in insertion order, then
// the planning prompt. Byte-identical for identical registries.
func SupervisorPrompt(reg *Registry) string {
	var sb strings.Builder
	sb.WriteString(baseSupervisorPrompt)
	sb.WriteString("\n\n## Available specialists\n")

	agents := reg.All()
	if len(agents) == 0 {
		sb.WriteString("\n(none registered; answer directly)\n")
	} else {
		for _, a := range agents {
			sb.WriteString("\n### " + a.Name + "\n")
			sb.WriteString(a.Capabilities + "\n")
		}
	}

	sb.WriteString("\n" + SpecialistPlanningPrompt)
	return sb.String()
}

// Default formatter prompt sections. CORE is rarely customized; the rest
// exist to be overridden per deployment.
const (
	defaultFormatterCore = `You turn raw specialist results into the reply the user reads.
Synthesize the results below into one natural answer to the user's query.
Never mention specialists, agents, or tools.`

	defaultFormatterTone = `Be warm and direct. Match the user's language and register.`

	defaultFormatterFormat = `Answer in plain prose. Use short lists only when the content is
genuinely list-shaped. Keep it as brief as a complete answer allows.`
)

// FormatterPrompt builds the formatter system prompt from four composable
// sections. Zero-valued sections fall back to defaults; Extra is empty by
// default.
type FormatterPrompt struct {
	Core   string
	Tone   string
	Format string
	Extra  string
}

// Build returns the composed system prompt.
func (p FormatterPrompt) Build() string {
	core := p.Core
	if core == "" {
		core = defaultFormatterCore
	}
	tone := p.Tone
	if tone == "" {
		tone = defaultFormatterTone
	}
	format := p.Format
	if format == "" {
		format = defaultFormatterFormat
	}

	sections := []string{core, tone, format}
	if p.Extra != "" {
		sections = append(sections, p.Extra)
	}
	return strings.Join(sections, "\n\n")
}
