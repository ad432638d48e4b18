// Package agenttools implements the domain tools the four specialist
// agents expose to the LLM (spec §4.10): URL extraction, knowledge-graph
// maintenance, learning-assistant helpers, and the deep-research
// pipeline's building blocks. Grounded on tool/doc.go's tool catalog
// shape (Name/Description/Call(ctx, jsonArgs)) and
// prebuilt/react_agent.go's tool-call loop, generalized from the
// teacher's generic {"input": string} parameter schema to a real
// per-tool JSON schema via google/jsonschema-go, since the orchestrator
// needs the LLM to pass structured arguments (a URL, a card id, a
// canvas id), not a single free-text string.
package agenttools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// Tool is the contract every domain tool satisfies. It mirrors
// github.com/tmc/langchaingo/tools.Tool's Name/Description/Call shape
// (so a Tool can still be wrapped for the teacher's generic ReAct loop)
// but adds Schema, since the orchestrator needs a real JSON schema per
// tool rather than the generic {"input": string} contract.
type Tool interface {
	Name() string
	Description() string
	Schema() *jsonschema.Schema
	Call(ctx context.Context, argsJSON string) (string, error)
}

// FuncTool adapts a typed Go function into a Tool: arguments are decoded
// from JSON into A, the result is encoded back to JSON from R. This is
// the single generalization point replacing react_agent.go's hardcoded
// `{"input": string}` schema with a reflected, tool-specific one.
//
// NOTE: the exact jsonschema-go reflection entry point
// (jsonschema.For[T]) is not exercised anywhere else in the retrieved
// pack — every other reference to the library is a `jsonschema:"..."`
// struct tag consumed by an MCP SDK, not a direct API call. Flagged in
// DESIGN.md as the one best-guess API surface in this package.
type FuncTool[A any, R any] struct {
	name        string
	description string
	schema      *jsonschema.Schema
	fn          func(ctx context.Context, args A) (R, error)
}

// NewFuncTool builds a FuncTool, reflecting A into a JSON schema.
func NewFuncTool[A any, R any](name, description string, fn func(ctx context.Context, args A) (R, error)) *FuncTool[A, R] {
	schema, err := jsonschema.For[A](nil)
	if err != nil {
		// A malformed arg struct is a programming error caught at
		// construction time (tool registration happens once, at
		// startup), not a per-call failure.
		panic(fmt.Sprintf("agenttools: %s: reflect schema: %v", name, err))
	}
	return &FuncTool[A, R]{name: name, description: description, schema: schema, fn: fn}
}

func (t *FuncTool[A, R]) Name() string                { return t.name }
func (t *FuncTool[A, R]) Description() string         { return t.description }
func (t *FuncTool[A, R]) Schema() *jsonschema.Schema   { return t.schema }

func (t *FuncTool[A, R]) Call(ctx context.Context, argsJSON string) (string, error) {
	var args A
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return "", fmt.Errorf("agenttools: %s: decode arguments: %w", t.name, err)
		}
	}
	result, err := t.fn(ctx, args)
	if err != nil {
		return "", err
	}
	encoded, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("agenttools: %s: encode result: %w", t.name, err)
	}
	return string(encoded), nil
}
