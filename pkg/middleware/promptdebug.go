package middleware

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ensemble-ai/ensemble/pkg/llms"
	"github.com/ensemble-ai/ensemble/pkg/logger"
)

// PromptDebug logs the final request and response around each model call.
//
// Development only: tool arguments are logged verbatim and may contain
// credentials. Keep it off outside local debugging.
type PromptDebug struct {
	MaxLength    int
	ShowResponse bool
}

func NewPromptDebug(maxLength int, showResponse bool) *PromptDebug {
	return &PromptDebug{MaxLength: maxLength, ShowResponse: showResponse}
}

func (m *PromptDebug) WrapModelCall(ctx context.Context, req *llms.Request, next Next) (*llms.Response, error) {
	log := logger.GetLogger()

	system := ""
	if req.SystemMessage != nil {
		system = req.SystemMessage.Text()
	}
	log.Info("llm request", "model", req.Model, "system", m.truncate(system))

	for i, msg := range req.Messages {
		entry := msg.Text()
		if msg.HasToolCalls() {
			calls, _ := json.Marshal(msg.ToolCalls)
			entry = fmt.Sprintf("%s tool_calls=%s", entry, calls)
		}
		log.Info("llm request message", "index", i, "role", msg.Role, "content", m.truncate(entry))
	}

	resp, err := next(ctx, req)

	if err != nil {
		log.Info("llm response error", "error", err)
		return resp, err
	}
	if m.ShowResponse {
		text := resp.Text
		if len(resp.ToolCalls) > 0 {
			calls, _ := json.Marshal(resp.ToolCalls)
			text = fmt.Sprintf("%s tool_calls=%s", text, calls)
		}
		log.Info("llm response", "content", m.truncate(text), "tokens", resp.TokensUsed)
	}

	return resp, err
}

func (m *PromptDebug) truncate(s string) string {
	if m.MaxLength <= 0 || len(s) <= m.MaxLength {
		return s
	}
	return s[:m.MaxLength] + "... (truncated)"
}
