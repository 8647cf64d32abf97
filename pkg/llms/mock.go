package llms

import (
	"context"
	"sync"

	"github.com/ensemble-ai/ensemble/pkg/protocol"
)

// ScriptStep is one scripted completion for the mock provider.
type ScriptStep struct {
	Response *Response
	Err      error
}

// TextStep scripts a plain text completion.
func TextStep(text string) ScriptStep {
	return ScriptStep{Response: &Response{
		Message: protocol.CreateAssistantMessage(text),
		Text:    text,
	}}
}

// ToolCallStep scripts a completion that requests the given tool calls.
func ToolCallStep(calls ...protocol.ToolCall) ScriptStep {
	return ScriptStep{Response: &Response{
		Message:   protocol.CreateAssistantToolCallMessage("", calls),
		ToolCalls: calls,
	}}
}

// MockProvider replays a script of completions and records every request
// it sees. Used by engine tests in place of a real endpoint.
type MockProvider struct {
	mu       sync.Mutex
	script   []ScriptStep
	requests []*Request

	// GenerateFn, when set, bypasses the script entirely.
	GenerateFn func(ctx context.Context, req *Request) (*Response, error)
}

func NewMockProvider(steps ...ScriptStep) *MockProvider {
	return &MockProvider{script: steps}
}

func (m *MockProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.requests = append(m.requests, req.Clone())
	var step ScriptStep
	if len(m.script) > 0 {
		step = m.script[0]
		m.script = m.script[1:]
	} else {
		step = TextStep("OK")
	}
	m.mu.Unlock()

	if m.GenerateFn != nil {
		return m.GenerateFn(ctx, req)
	}
	return step.Response, step.Err
}

func (m *MockProvider) ModelName() string { return "mock" }

func (m *MockProvider) Close() error { return nil }

// Requests returns a snapshot of every request seen so far.
func (m *MockProvider) Requests() []*Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Request, len(m.requests))
	copy(out, m.requests)
	return out
}
