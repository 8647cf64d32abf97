package llms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ensemble-ai/ensemble/pkg/protocol"
	"github.com/ensemble-ai/ensemble/pkg/tool"
)

func completionHandler(t *testing.T, capture *openAIRequest, reply string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(capture))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(reply))
	}
}

func TestOpenAIProvider_Generate(t *testing.T) {
	var captured openAIRequest
	server := httptest.NewServer(completionHandler(t, &captured, `{
		"choices": [{"message": {"role": "assistant", "content": "hello there"}, "finish_reason": "stop"}],
		"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
	}`))
	defer server.Close()

	provider := NewOpenAIProvider(server.URL, "test-key", "test-model")
	system := protocol.CreateSystemMessage("you are helpful")

	resp, err := provider.Generate(context.Background(), &Request{
		SystemMessage: &system,
		Messages:      []protocol.Message{protocol.CreateUserMessage("hi")},
		Temperature:   0.3,
		Tools: []tool.Definition{
			{Name: "get_weather", Description: "gets weather", Parameters: map[string]any{"type": "object"}},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "hello there", resp.Text)
	assert.Empty(t, resp.ToolCalls)
	assert.Equal(t, 15, resp.TokensUsed)

	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Equal(t, "you are helpful", captured.Messages[0].Content)
	require.Len(t, captured.Tools, 1)
	assert.Equal(t, "function", captured.Tools[0].Type)
	assert.Equal(t, "get_weather", captured.Tools[0].Function.Name)
	assert.Equal(t, "test-model", captured.Model)
}

func TestOpenAIProvider_ToolCallsParsed(t *testing.T) {
	var captured openAIRequest
	server := httptest.NewServer(completionHandler(t, &captured, `{
		"choices": [{"message": {"role": "assistant", "content": "", "tool_calls": [
			{"id": "call-1", "type": "function", "function": {"name": "get_weather", "arguments": "{\"city\": \"Tokyo\"}"}}
		]}, "finish_reason": "tool_calls"}],
		"usage": {"total_tokens": 20}
	}`))
	defer server.Close()

	provider := NewOpenAIProvider(server.URL, "k", "m")
	resp, err := provider.Generate(context.Background(), &Request{
		Messages: []protocol.Message{protocol.CreateUserMessage("weather in Tokyo?")},
	})
	require.NoError(t, err)

	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "call-1", resp.ToolCalls[0].ID)
	assert.Equal(t, "get_weather", resp.ToolCalls[0].Name)
	assert.Equal(t, map[string]any{"city": "Tokyo"}, resp.ToolCalls[0].Args)
	assert.True(t, resp.Message.HasToolCalls())
}

func TestOpenAIProvider_ToolResultSerialization(t *testing.T) {
	var captured openAIRequest
	server := httptest.NewServer(completionHandler(t, &captured, `{
		"choices": [{"message": {"role": "assistant", "content": "done"}}]
	}`))
	defer server.Close()

	provider := NewOpenAIProvider(server.URL, "k", "m")
	_, err := provider.Generate(context.Background(), &Request{
		Messages: []protocol.Message{
			protocol.CreateUserMessage("q"),
			protocol.CreateAssistantToolCallMessage("", []protocol.ToolCall{
				{ID: "call-1", Name: "get_weather", Args: map[string]any{"city": "Tokyo"}},
			}),
			protocol.CreateToolMessage("call-1", "Sunny, 22°C"),
		},
	})
	require.NoError(t, err)

	require.Len(t, captured.Messages, 3)
	assistant := captured.Messages[1]
	require.Len(t, assistant.ToolCalls, 1)
	assert.JSONEq(t, `{"city": "Tokyo"}`, assistant.ToolCalls[0].Function.Arguments)
	toolMsg := captured.Messages[2]
	assert.Equal(t, "tool", toolMsg.Role)
	assert.Equal(t, "call-1", toolMsg.ToolCallID)
	assert.Equal(t, "Sunny, 22°C", toolMsg.Content)
}

func TestOpenAIProvider_ErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   ErrorKind
	}{
		{name: "auth", status: http.StatusUnauthorized, want: ErrAuth},
		{name: "forbidden", status: http.StatusForbidden, want: ErrAuth},
		{name: "client", status: http.StatusBadRequest, want: ErrClient},
		{name: "rate limit", status: http.StatusTooManyRequests, want: ErrRateLimit},
		{name: "server", status: http.StatusInternalServerError, want: ErrServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Retry-After", "0")
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			provider := NewOpenAIProvider(server.URL, "k", "m")
			_, err := provider.Generate(context.Background(), &Request{
				Messages: []protocol.Message{protocol.CreateUserMessage("q")},
			})
			require.Error(t, err)
			assert.True(t, IsKind(err, tt.want), "error = %v, want kind %v", err, tt.want)
		})
	}
}

func TestOpenAIProvider_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer server.Close()

	provider := NewOpenAIProvider(server.URL, "k", "m")
	start := time.Now()
	_, err := provider.Generate(context.Background(), &Request{
		Messages: []protocol.Message{protocol.CreateUserMessage("q")},
		Timeout:  50 * time.Millisecond,
	})
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrTimeout), "error = %v, want timeout", err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestMockProvider_Script(t *testing.T) {
	mock := NewMockProvider(
		ToolCallStep(protocol.ToolCall{ID: "c1", Name: "weather", Args: map[string]any{"query": "Tokyo"}}),
		TextStep("all done"),
	)

	resp, err := mock.Generate(context.Background(), &Request{})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)

	resp, err = mock.Generate(context.Background(), &Request{})
	require.NoError(t, err)
	assert.Equal(t, "all done", resp.Text)

	// Exhausted script falls back to a default completion.
	resp, err = mock.Generate(context.Background(), &Request{})
	require.NoError(t, err)
	assert.Equal(t, "OK", resp.Text)

	assert.Len(t, mock.Requests(), 3)
}
