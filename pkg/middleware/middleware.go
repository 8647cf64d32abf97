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

// Package middleware mutates model requests around every LLM call. The
// engine mandates the order: DatetimeContext, registered extras,
// ToolInstructions, Summarization, PromptDebug.
package middleware

import (
	"context"

	"github.com/ensemble-ai/ensemble/pkg/llms"
)

// Next invokes the rest of the chain, ending at the provider.
type Next func(ctx context.Context, req *llms.Request) (*llms.Response, error)

// Middleware wraps one model call. Implementations may mutate the request
// before calling next and transform the response after.
type Middleware interface {
	WrapModelCall(ctx context.Context, req *llms.Request, next Next) (*llms.Response, error)
}

// Func adapts a function to the Middleware interface.
type Func func(ctx context.Context, req *llms.Request, next Next) (*llms.Response, error)

func (f Func) WrapModelCall(ctx context.Context, req *llms.Request, next Next) (*llms.Response, error) {
	return f(ctx, req, next)
}

// Chain composes middlewares left to right; the first is outermost and
// sees the raw response last.
type Chain struct {
	middlewares []Middleware
}

func NewChain(middlewares ...Middleware) *Chain {
	return &Chain{middlewares: middlewares}
}

// Append adds middlewares to the end of the chain.
func (c *Chain) Append(middlewares ...Middleware) {
	c.middlewares = append(c.middlewares, middlewares...)
}

// Then builds the callable pipeline terminating at final.
func (c *Chain) Then(final Next) Next {
	next := final
	for i := len(c.middlewares) - 1; i >= 0; i-- {
		mw := c.middlewares[i]
		inner := next
		next = func(ctx context.Context, req *llms.Request) (*llms.Response, error) {
			return mw.WrapModelCall(ctx, req, inner)
		}
	}
	return next
}
