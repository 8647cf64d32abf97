// Package protocol defines the conversation data model shared by the
// engine: messages, tool calls, and the per-turn chatbot state.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ContentPartType tags a structured content part.
type ContentPartType string

const (
	ContentPartTypeText       ContentPartType = "text"
	ContentPartTypeToolCall   ContentPartType = "tool_call"
	ContentPartTypeToolResult ContentPartType = "tool_result"
)

// ContentPart is one element of a structured message body.
type ContentPart struct {
	Type       ContentPartType `json:"type"`
	Text       string          `json:"text,omitempty"`
	ToolCall   *ToolCall       `json:"tool_call,omitempty"`
	ToolResult *ToolResult     `json:"tool_result,omitempty"`
}

// ToolCall is an LLM request to invoke a tool.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"arguments"`
}

// ToolResult is the stringified outcome of a tool invocation.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	Error      string `json:"error,omitempty"`
}

// Message is one entry in a conversation. Content carries plain text;
// Parts carries structured content when present. Messages are treated as
// immutable once appended to a conversation.
type Message struct {
	Role       Role          `json:"role"`
	Content    string        `json:"content,omitempty"`
	Parts      []ContentPart `json:"parts,omitempty"`
	ToolCalls  []ToolCall    `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
	Name       string        `json:"name,omitempty"`
}

// Text returns the plain-text body of the message, flattening structured
// parts when Content is empty.
func (m *Message) Text() string {
	if m.Content != "" {
		return m.Content
	}
	var out string
	for _, p := range m.Parts {
		if p.Type == ContentPartTypeText {
			out += p.Text
		}
	}
	return out
}

// HasToolCalls reports whether the message requests any tool invocations.
func (m *Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

func CreateSystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: text}
}

func CreateUserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

func CreateAssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: text}
}

func CreateAssistantToolCallMessage(text string, calls []ToolCall) Message {
	return Message{Role: RoleAssistant, Content: text, ToolCalls: calls}
}

// CreateToolMessage builds a tool-result message for the given call ID.
func CreateToolMessage(toolCallID, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: toolCallID}
}

// MarshalMessage serializes a message to JSON.
func MarshalMessage(m Message) ([]byte, error) {
	return json.Marshal(m)
}

// UnmarshalMessage deserializes a message from JSON, validating the role.
func UnmarshalMessage(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	switch m.Role {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
	default:
		return Message{}, fmt.Errorf("unknown message role: %q", m.Role)
	}
	return m, nil
}
