// Package tools holds the fixed set of tools the model may call, the
// typed argument decoding that feeds them, and the dispatcher that turns
// every call into a JSON string.
package tools

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

// Handler runs a tool. The returned value is JSON-encoded by the
// dispatcher; handlers never encode their own results.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Tool is a named, schema-described operation.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
	Handler     Handler        `json:"-"`
}

// Registry maps tool names to tools. It is built once and not mutated
// afterwards, so it is safe for concurrent use.
type Registry struct {
	tools map[string]*Tool
	names []string
}

// NewRegistry builds a registry from tools. Empty or duplicate names
// and missing handlers are errors.
func NewRegistry(tools ...*Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]*Tool, len(tools))}
	var errs []error
	for _, t := range tools {
		switch {
		case t == nil:
			errs = append(errs, errors.New("nil tool"))
			continue
		case t.Name == "":
			errs = append(errs, errors.New("tool with empty name"))
			continue
		case t.Handler == nil:
			errs = append(errs, fmt.Errorf("tool %s has no handler", t.Name))
			continue
		}
		if _, dup := r.tools[t.Name]; dup {
			errs = append(errs, fmt.Errorf("duplicate tool %s", t.Name))
			continue
		}
		if t.Parameters == nil {
			t.Parameters = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		r.tools[t.Name] = t
		r.names = append(r.names, t.Name)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	slices.Sort(r.names)
	return r, nil
}

// Get returns the named tool, or nil.
func (r *Registry) Get(name string) *Tool {
	return r.tools[name]
}

// Names returns tool names in sorted order.
func (r *Registry) Names() []string {
	return slices.Clone(r.names)
}

// Definitions returns the tools in the OpenAI function-calling format,
// sorted by name so prompts are stable across requests.
func (r *Registry) Definitions() []map[string]any {
	result := make([]map[string]any, 0, len(r.names))
	for _, name := range r.names {
		t := r.tools[name]
		result = append(result, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			},
		})
	}
	return result
}
