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

// Package llms wraps LLM provider HTTP APIs behind the Provider interface.
// Requests carry the per-call timeout; errors map onto a small taxonomy the
// engine translates for users.
package llms

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ensemble-ai/ensemble/pkg/protocol"
	"github.com/ensemble-ai/ensemble/pkg/tool"
)

// Provider is the model client interface the engine dispatches through.
type Provider interface {
	Generate(ctx context.Context, req *Request) (*Response, error)
	ModelName() string
	Close() error
}

// Request is the mutable value passed into each LLM call. Middleware may
// change any field before the request reaches the provider.
type Request struct {
	SystemMessage   *protocol.Message
	Messages        []protocol.Message
	Tools           []tool.Definition
	Model           string
	Temperature     float64
	ReasoningEffort string
	MaxTokens       int
	Timeout         time.Duration
}

// Clone returns a shallow copy with an independent Messages slice so
// middleware can reorder or replace messages without aliasing the caller's.
func (r *Request) Clone() *Request {
	clone := *r
	clone.Messages = make([]protocol.Message, len(r.Messages))
	copy(clone.Messages, r.Messages)
	if r.SystemMessage != nil {
		system := *r.SystemMessage
		clone.SystemMessage = &system
	}
	return &clone
}

// Response is one assistant completion.
type Response struct {
	Message    protocol.Message
	Text       string
	ToolCalls  []protocol.ToolCall
	TokensUsed int
}

// ErrorKind classifies provider failures.
type ErrorKind int

const (
	ErrTimeout ErrorKind = iota
	ErrRateLimit
	ErrAuth
	ErrServer
	ErrClient
)

func (k ErrorKind) String() string {
	switch k {
	case ErrTimeout:
		return "timeout"
	case ErrRateLimit:
		return "rate_limit"
	case ErrAuth:
		return "auth"
	case ErrServer:
		return "server"
	default:
		return "client"
	}
}

// Error is the provider error taxonomy surfaced to the engine.
type Error struct {
	Kind    ErrorKind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("llm %s error (HTTP %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("llm %s error: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is an llms.Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var llmErr *Error
	return errors.As(err, &llmErr) && llmErr.Kind == kind
}

// classifyStatus maps an HTTP status onto the error taxonomy.
func classifyStatus(status int) ErrorKind {
	switch {
	case status == 408:
		return ErrTimeout
	case status == 429:
		return ErrRateLimit
	case status == 401 || status == 403:
		return ErrAuth
	case status >= 500:
		return ErrServer
	default:
		return ErrClient
	}
}
