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

// Package tool defines the invocable capability value type handed to
// agents: a name, a description, a JSON schema for arguments, and a
// handler. Schemas are generated from Go structs or supplied raw.
package tool

import (
	"context"
	"fmt"
)

// HandlerFunc executes a tool with validated arguments. The returned
// string is what the model sees; unrecoverable failures return an error.
type HandlerFunc func(ctx context.Context, args map[string]any) (string, error)

// Tool describes one invocable capability.
type Tool struct {
	Name        string
	Description string
	InputSchema map[string]any
	Handler     HandlerFunc

	compiled *compiledSchema
}

// Definition is the provider-facing shape of a tool, serialized into the
// function-calling format of the LLM API.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolExecutionError reports an unrecoverable handler failure.
type ToolExecutionError struct {
	Tool string
	Err  error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Err)
}

func (e *ToolExecutionError) Unwrap() error {
	return e.Err
}

// New builds a tool whose argument schema is generated from the
// argsPrototype struct via its json/jsonschema tags.
func New(name, description string, argsPrototype any, handler HandlerFunc) (*Tool, error) {
	schema, err := GenerateSchema(argsPrototype)
	if err != nil {
		return nil, fmt.Errorf("failed to generate schema for tool %s: %w", name, err)
	}
	return NewWithSchema(name, description, schema, handler)
}

// NewWithSchema builds a tool from a raw JSON schema map.
func NewWithSchema(name, description string, schema map[string]any, handler HandlerFunc) (*Tool, error) {
	if name == "" {
		return nil, fmt.Errorf("tool name cannot be empty")
	}
	if handler == nil {
		return nil, fmt.Errorf("tool %s: handler cannot be nil", name)
	}

	t := &Tool{
		Name:        name,
		Description: description,
		InputSchema: schema,
		Handler:     handler,
	}

	compiled, err := compileSchema(schema)
	if err != nil {
		return nil, fmt.Errorf("tool %s: invalid schema: %w", name, err)
	}
	t.compiled = compiled

	return t, nil
}

// Definition returns the provider-facing serialization of the tool.
func (t *Tool) Definition() Definition {
	return Definition{
		Name:        t.Name,
		Description: t.Description,
		Parameters:  t.InputSchema,
	}
}

// ValidateArgs checks args against the tool's schema. The schema is
// compiled once at construction.
func (t *Tool) ValidateArgs(args map[string]any) error {
	if t.compiled == nil {
		return nil
	}
	return t.compiled.validate(args)
}
