package llms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ensemble-ai/ensemble/pkg/httpclient"
	"github.com/ensemble-ai/ensemble/pkg/observability"
	"github.com/ensemble-ai/ensemble/pkg/protocol"
)

// OpenAIProvider talks to any OpenAI-compatible chat completions endpoint,
// including Gemini's compatibility surface.
type OpenAIProvider struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *httpclient.Client
}

type openAIRequest struct {
	Model           string          `json:"model"`
	Messages        []openAIMessage `json:"messages"`
	MaxTokens       *int            `json:"max_tokens,omitempty"`
	Temperature     float64         `json:"temperature"`
	Tools           []openAITool    `json:"tools,omitempty"`
	ReasoningEffort string          `json:"reasoning_effort,omitempty"`
}

type openAIMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content"`
	ToolCalls  []openAIToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type openAITool struct {
	Type     string             `json:"type"`
	Function openAIToolFunction `json:"function"`
}

type openAIToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type openAIToolCall struct {
	ID       string             `json:"id"`
	Type     string             `json:"type"`
	Function openAIFunctionCall `json:"function"`
}

type openAIFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type openAIResponse struct {
	Choices []openAIChoice `json:"choices"`
	Usage   openAIUsage    `json:"usage"`
	Error   *openAIError   `json:"error,omitempty"`
}

type openAIChoice struct {
	Message      openAIMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type openAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// NewOpenAIProvider builds a provider for baseURL. Rate limits get one
// retry with jittered backoff; everything else surfaces immediately.
func NewOpenAIProvider(baseURL, apiKey, model string) *OpenAIProvider {
	return &OpenAIProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		httpClient: httpclient.New(
			httpclient.WithMaxRetries(1),
			httpclient.WithHeaderParser(httpclient.ParseOpenAIHeaders),
		),
	}
}

func (p *OpenAIProvider) ModelName() string {
	return p.model
}

func (p *OpenAIProvider) Close() error {
	return nil
}

// Generate runs one chat completion. The request Timeout bounds the HTTP
// call via a derived context so cancellation propagates mid-flight.
func (p *OpenAIProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	tracer := observability.GetTracer("ensemble.llm")
	ctx, span := tracer.Start(ctx, observability.SpanLLMRequest,
		trace.WithAttributes(
			attribute.String(observability.AttrLLMModel, p.effectiveModel(req)),
		),
	)
	defer span.End()

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	body, err := json.Marshal(p.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		if resp != nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}
		llmErr := p.classifyTransportError(ctx, resp, err)
		span.RecordError(llmErr)
		span.SetStatus(codes.Error, llmErr.Error())
		return nil, llmErr
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		llmErr := &Error{
			Kind:    classifyStatus(resp.StatusCode),
			Status:  resp.StatusCode,
			Message: strings.TrimSpace(string(data)),
		}
		span.RecordError(llmErr)
		span.SetStatus(codes.Error, llmErr.Error())
		return nil, llmErr
	}

	var parsed openAIResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if parsed.Error != nil {
		return nil, &Error{Kind: ErrServer, Message: parsed.Error.Message}
	}
	if len(parsed.Choices) == 0 {
		return nil, &Error{Kind: ErrServer, Message: "no response choices returned"}
	}

	return p.buildResponse(parsed)
}

func (p *OpenAIProvider) effectiveModel(req *Request) string {
	if req.Model != "" {
		return req.Model
	}
	return p.model
}

func (p *OpenAIProvider) buildRequest(req *Request) openAIRequest {
	out := openAIRequest{
		Model:           p.effectiveModel(req),
		Temperature:     req.Temperature,
		ReasoningEffort: req.ReasoningEffort,
	}
	if req.MaxTokens > 0 {
		maxTokens := req.MaxTokens
		out.MaxTokens = &maxTokens
	}

	if req.SystemMessage != nil {
		out.Messages = append(out.Messages, openAIMessage{
			Role:    string(protocol.RoleSystem),
			Content: req.SystemMessage.Text(),
		})
	}
	for _, msg := range req.Messages {
		out.Messages = append(out.Messages, convertMessage(msg))
	}

	for _, def := range req.Tools {
		out.Tools = append(out.Tools, openAITool{
			Type: "function",
			Function: openAIToolFunction{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters,
			},
		})
	}

	return out
}

func convertMessage(msg protocol.Message) openAIMessage {
	out := openAIMessage{
		Role:       string(msg.Role),
		Content:    msg.Text(),
		ToolCallID: msg.ToolCallID,
	}
	for _, call := range msg.ToolCalls {
		args, err := json.Marshal(call.Args)
		if err != nil {
			args = []byte("{}")
		}
		out.ToolCalls = append(out.ToolCalls, openAIToolCall{
			ID:   call.ID,
			Type: "function",
			Function: openAIFunctionCall{
				Name:      call.Name,
				Arguments: string(args),
			},
		})
	}
	return out
}

func (p *OpenAIProvider) buildResponse(parsed openAIResponse) (*Response, error) {
	choice := parsed.Choices[0]

	var toolCalls []protocol.ToolCall
	for _, call := range choice.Message.ToolCalls {
		args := map[string]any{}
		if call.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
				return nil, fmt.Errorf("tool call %s has malformed arguments: %w", call.Function.Name, err)
			}
		}
		toolCalls = append(toolCalls, protocol.ToolCall{
			ID:   call.ID,
			Name: call.Function.Name,
			Args: args,
		})
	}

	message := protocol.CreateAssistantToolCallMessage(choice.Message.Content, toolCalls)
	return &Response{
		Message:    message,
		Text:       choice.Message.Content,
		ToolCalls:  toolCalls,
		TokensUsed: parsed.Usage.TotalTokens,
	}, nil
}

// classifyTransportError maps context and transport failures onto the
// error taxonomy.
func (p *OpenAIProvider) classifyTransportError(ctx context.Context, resp *http.Response, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &Error{Kind: ErrTimeout, Message: "llm request timed out", Err: err}
	}

	var retryErr *httpclient.RetryableError
	if errors.As(err, &retryErr) {
		return &Error{
			Kind:    classifyStatus(retryErr.StatusCode),
			Status:  retryErr.StatusCode,
			Message: retryErr.Message,
			Err:     err,
		}
	}

	if resp != nil {
		return &Error{
			Kind:   classifyStatus(resp.StatusCode),
			Status: resp.StatusCode,
			Err:    err,
		}
	}
	return &Error{Kind: ErrServer, Message: "transport failure", Err: err}
}
