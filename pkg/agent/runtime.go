package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ensemble-ai/ensemble/pkg/config"
	"github.com/ensemble-ai/ensemble/pkg/knowledge"
	"github.com/ensemble-ai/ensemble/pkg/llms"
	"github.com/ensemble-ai/ensemble/pkg/logger"
	"github.com/ensemble-ai/ensemble/pkg/middleware"
	"github.com/ensemble-ai/ensemble/pkg/observability"
	"github.com/ensemble-ai/ensemble/pkg/progress"
	"github.com/ensemble-ai/ensemble/pkg/protocol"
)

// Result is the outcome of one agent invocation.
type Result struct {
	Response  string
	AgentName string
	ToolsUsed []string
	Metadata  Metadata
}

// Metadata carries execution details alongside the response.
type Metadata struct {
	Steps int
}

// Runtime executes agents' tool loops against one provider. Immutable
// after construction apart from the per-agent middleware chain cache.
type Runtime struct {
	provider llms.Provider
	settings *config.Settings
	store    *knowledge.Store
	extras   []middleware.Middleware

	mu     sync.Mutex
	chains map[string]middleware.Next
}

// NewRuntime builds a runtime. store may be nil when no agent carries
// knowledge tools; extras run between DatetimeContext and
// ToolInstructions in registration order.
func NewRuntime(provider llms.Provider, settings *config.Settings, store *knowledge.Store, extras ...middleware.Middleware) *Runtime {
	return &Runtime{
		provider: provider,
		settings: settings,
		store:    store,
		extras:   extras,
		chains:   make(map[string]middleware.Next),
	}
}

// Provider returns the runtime's model provider.
func (r *Runtime) Provider() llms.Provider {
	return r.provider
}

// Settings returns the runtime's settings.
func (r *Runtime) Settings() *config.Settings {
	return r.settings
}

// Execute runs one agent invocation: the tool loop of the agent against
// the provider, bounded by ctx. Each invocation starts with a fresh step
// counter regardless of the caller's position in its own loop.
//
// Progress events stream to the sink attached to ctx, if any.
func (r *Runtime) Execute(ctx context.Context, a *Agent, query string, prior []protocol.Message) (*Result, error) {
	tracer := observability.GetTracer("ensemble.agent")
	ctx, span := tracer.Start(ctx, observability.SpanAgentCall,
		trace.WithAttributes(attribute.String(observability.AttrAgentName, a.Name)))
	defer span.End()

	sink := progress.FromContext(ctx)
	sink.Emit(progress.Text(a.Name, "processing"))

	limit := a.RecursionLimit
	if limit <= 0 {
		limit = r.settings.RecursionLimit
	}

	chain, err := r.chainFor(a)
	if err != nil {
		return nil, err
	}

	system := protocol.CreateSystemMessage(r.systemPrompt(a))

	messages := make([]protocol.Message, 0, len(prior)+1)
	messages = append(messages, prior...)
	messages = append(messages, protocol.CreateUserMessage(query))

	var toolsUsed []string
	steps := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		req := &llms.Request{
			SystemMessage:   &system,
			Messages:        messages,
			Tools:           a.Definitions(),
			Model:           r.settings.LLMModel,
			Temperature:     r.settings.LLMTemperature,
			ReasoningEffort: r.settings.LLMReasoningEffort,
			MaxTokens:       r.settings.LLMMaxTokens,
			Timeout:         r.settings.LLMRequestTimeout(),
		}

		resp, err := chain(ctx, req)
		if err != nil {
			return nil, err
		}

		// Summarization compacts req.Messages in place. Adopt the compacted
		// list so later iterations build on the synopsis instead of
		// re-summarizing the same prefix.
		messages = req.Messages

		if !resp.Message.HasToolCalls() {
			return &Result{
				Response:  resp.Text,
				AgentName: a.Name,
				ToolsUsed: toolsUsed,
				Metadata:  Metadata{Steps: steps},
			}, nil
		}

		steps++
		if steps > limit {
			return nil, &RecursionExceededError{Agent: a.Name, Limit: limit}
		}

		messages = append(messages, resp.Message)

		results := r.executeToolCalls(ctx, a, resp.ToolCalls, sink)
		for _, call := range resp.ToolCalls {
			toolsUsed = append(toolsUsed, call.Name)
		}
		// Results append in the order of the originating tool-call list,
		// never finish order, so replays are deterministic.
		messages = append(messages, results...)
	}
}

// executeToolCalls runs one assistant message's tool calls concurrently.
// Handler errors and panics become "ERROR: ..." result strings so the
// model can recover.
func (r *Runtime) executeToolCalls(ctx context.Context, a *Agent, calls []protocol.ToolCall, sink *progress.Sink) []protocol.Message {
	results := make([]protocol.Message, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		i, call := i, call
		g.Go(func() error {
			sink.Emit(progress.ToolStart(a.Name, call.Name, argsPreview(call.Args)))
			content, ok := r.runToolCall(gctx, a, call)
			sink.Emit(progress.ToolEnd(a.Name, call.Name, ok))
			results[i] = protocol.CreateToolMessage(call.ID, content)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (r *Runtime) runToolCall(ctx context.Context, a *Agent, call protocol.ToolCall) (content string, ok bool) {
	defer func() {
		if p := recover(); p != nil {
			logger.GetLogger().Error("tool handler panicked", "agent", a.Name, "tool", call.Name, "panic", p)
			content = fmt.Sprintf("ERROR: tool %s panicked: %v", call.Name, p)
			ok = false
		}
	}()

	t, found := a.ToolByName(call.Name)
	if !found {
		return fmt.Sprintf("ERROR: unknown tool: %s", call.Name), false
	}

	if err := t.ValidateArgs(call.Args); err != nil {
		return fmt.Sprintf("ERROR: %v", err), false
	}

	tracer := observability.GetTracer("ensemble.agent")
	ctx, span := tracer.Start(ctx, observability.SpanToolExecution,
		trace.WithAttributes(attribute.String(observability.AttrToolName, call.Name)))
	defer span.End()

	out, err := t.Handler(ctx, call.Args)
	if err != nil {
		logger.GetLogger().Warn("tool handler failed", "agent", a.Name, "tool", call.Name, "error", err)
		return fmt.Sprintf("ERROR: %v", err), false
	}
	return out, true
}

func (r *Runtime) systemPrompt(a *Agent) string {
	if a.Supervisor {
		return a.Capabilities
	}
	return a.Capabilities + "\n\n" + SpecialistPlanningPrompt
}

// chainFor returns the agent's middleware pipeline, built once. The order
// is engine-mandated: DatetimeContext, registered extras,
// ToolInstructions, Summarization, PromptDebug.
func (r *Runtime) chainFor(a *Agent) (middleware.Next, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if chain, ok := r.chains[a.Name]; ok {
		return chain, nil
	}

	mode := a.DatetimeMode
	if mode == "" {
		mode = middleware.DatetimeMinimal
	}

	chain := middleware.NewChain(middleware.NewDatetimeContext(mode))
	chain.Append(r.extras...)

	if r.store != nil {
		instr, err := middleware.NewToolInstructions(r.store, a.ToolNames())
		if err != nil {
			return nil, err
		}
		if instr != nil {
			chain.Append(instr)
		}
	}

	if r.settings.SummarizationEnabled {
		chain.Append(middleware.NewSummarization(r.provider,
			r.settings.SummarizationTriggerTokens, r.settings.SummarizationKeepMessages))
	}

	if r.settings.Debug {
		chain.Append(middleware.NewPromptDebug(
			r.settings.DebugPromptMaxLength, r.settings.DebugShowResponse))
	}

	next := chain.Then(func(ctx context.Context, req *llms.Request) (*llms.Response, error) {
		return r.provider.Generate(ctx, req)
	})
	r.chains[a.Name] = next
	return next, nil
}

// argsPreview renders tool arguments for progress events, truncated so a
// large payload does not flood the client.
func argsPreview(args map[string]any) string {
	data, err := json.Marshal(args)
	if err != nil {
		return ""
	}
	preview := string(data)
	if len(preview) > 120 {
		preview = preview[:120] + "..."
	}
	return strings.ReplaceAll(preview, "\n", " ")
}
