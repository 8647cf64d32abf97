// Package graph runs the fixed two-node turn pipeline: the supervisor
// gathers results, the formatter writes the reply.
package graph

import (
	"context"
	"errors"

	"github.com/ensemble-ai/ensemble/pkg/agent"
	"github.com/ensemble-ai/ensemble/pkg/llms"
	"github.com/ensemble-ai/ensemble/pkg/logger"
	"github.com/ensemble-ai/ensemble/pkg/observability"
	"github.com/ensemble-ai/ensemble/pkg/progress"
	"github.com/ensemble-ai/ensemble/pkg/protocol"
)

// User-visible translations of engine failures. Full detail goes to the
// log, never to the user.
const (
	msgRateLimit = "API rate limit reached; please retry in a moment."
	msgTimeout   = "The request took too long; try a narrower query."
	msgRecursion = "The request required too many steps; please simplify."
	msgGeneric   = "An error occurred while processing your request."
)

// Executor owns one chatbot's turn execution. Safe for concurrent turns;
// each turn gets its own state and supervisor snapshot.
type Executor struct {
	runtime         *agent.Runtime
	registry        *agent.Registry
	formatterPrompt agent.FormatterPrompt
}

func NewExecutor(rt *agent.Runtime, reg *agent.Registry, prompt agent.FormatterPrompt) *Executor {
	return &Executor{runtime: rt, registry: reg, formatterPrompt: prompt}
}

// RunTurn executes one turn over the state: supervisor under
// supervisor_timeout, then formatter under formatter_timeout with a
// raw-results fallback. Exactly one assistant message is appended to the
// history, in every outcome. The turn's progress sink is closed on return.
func (e *Executor) RunTurn(ctx context.Context, state *protocol.ChatbotState) *protocol.ChatbotState {
	tracer := observability.GetTracer("ensemble.graph")
	ctx, span := tracer.Start(ctx, observability.SpanTurn)
	defer span.End()

	sink := progress.FromContext(ctx)
	defer sink.Close()

	rawResults, err := e.runSupervisor(ctx, state)
	if err != nil {
		return e.failTurn(state, sink, err)
	}
	state.AgentResults = rawResults

	if err := state.Transition(protocol.StepFormatter); err != nil {
		return e.failTurn(state, sink, err)
	}

	state.ChatbotResponse = e.runFormatter(ctx, state)

	// Only the formatted reply persists; agent_results is discarded so the
	// history never carries both.
	state.AppendMessage(protocol.CreateAssistantMessage(state.ChatbotResponse))
	if err := state.Transition(protocol.StepComplete); err != nil {
		logger.GetLogger().Error("workflow transition failed", "error", err)
	}

	sink.Emit(progress.Final(state.ChatbotResponse))
	return state
}

// runSupervisor invokes the supervisor snapshot under supervisor_timeout.
// Nested specialist calls and their tools all run within this bound.
func (e *Executor) runSupervisor(ctx context.Context, state *protocol.ChatbotState) (string, error) {
	settings := e.runtime.Settings()

	supervisor, err := agent.BuildSupervisor(e.runtime, e.registry)
	if err != nil {
		return "", err
	}

	supCtx, cancel := context.WithTimeout(ctx, settings.SupervisorTimeout())
	defer cancel()

	result, err := e.runtime.Execute(supCtx, supervisor, state.UserQuery, priorHistory(state))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return "", &agent.SupervisorTimeoutError{Timeout: settings.SupervisorTimeout()}
		}
		return "", err
	}
	return result.Response, nil
}

// runFormatter rewrites raw results into the user-facing reply. Any
// formatter failure, timeout included, falls back to the raw results.
func (e *Executor) runFormatter(ctx context.Context, state *protocol.ChatbotState) string {
	settings := e.runtime.Settings()
	formatter := agent.BuildFormatter(e.formatterPrompt)

	fmtCtx, cancel := context.WithTimeout(ctx, settings.FormatterTimeout())
	defer cancel()

	formatted, err := agent.Format(fmtCtx, e.runtime, formatter, state.UserQuery, state.AgentResults, priorHistory(state))
	if err != nil {
		logger.GetLogger().Warn("formatter failed, returning raw results", "error", err)
		return state.AgentResults
	}
	return formatted
}

// failTurn translates the failure for the user, appends the reply message
// and marks the turn errored.
func (e *Executor) failTurn(state *protocol.ChatbotState, sink *progress.Sink, err error) *protocol.ChatbotState {
	message := userMessage(err)
	logger.GetLogger().Error("turn failed", "error", err, "user_message", message)

	state.ChatbotResponse = message
	state.AppendMessage(protocol.CreateAssistantMessage(message))
	_ = state.Transition(protocol.StepError)

	sink.Emit(progress.Error(message))
	return state
}

// userMessage maps engine errors to the fixed user-visible taxonomy.
func userMessage(err error) string {
	var supTimeout *agent.SupervisorTimeoutError
	var recursion *agent.RecursionExceededError

	switch {
	case llms.IsKind(err, llms.ErrRateLimit):
		return msgRateLimit
	case errors.As(err, &supTimeout),
		llms.IsKind(err, llms.ErrTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return msgTimeout
	case errors.As(err, &recursion):
		return msgRecursion
	default:
		return msgGeneric
	}
}

// priorHistory returns the conversation before this turn's user message.
// The runtime re-appends the query itself.
func priorHistory(state *protocol.ChatbotState) []protocol.Message {
	msgs := state.Messages
	if n := len(msgs); n > 0 && msgs[n-1].Role == protocol.RoleUser && msgs[n-1].Text() == state.UserQuery {
		return msgs[:n-1]
	}
	return msgs
}
