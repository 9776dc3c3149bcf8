// Package llm provides provider-neutral chat types and the clients that
// translate them to each model provider's wire format.
package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// LevelTrace is below Debug, used for wire-level payload logging.
const LevelTrace = slog.Level(-8)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ErrNotConfigured is returned when a provider is selected but its
// credential is missing.
var ErrNotConfigured = errors.New("llm provider not configured")

// Message is one entry of a conversation. An assistant message that
// only carries tool calls has empty Content, which providers send as
// null.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// ToolCall is a request by the model to invoke a named tool.
type ToolCall struct {
	ID       string       `json:"id"`
	Function FunctionCall `json:"function"`
}

// FunctionCall names the tool and carries its arguments as the raw
// JSON-encoded object the model produced.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// DecodeArguments parses the raw argument JSON. Empty input yields an
// empty map.
func (tc ToolCall) DecodeArguments() (map[string]any, error) {
	raw := strings.TrimSpace(tc.Function.Arguments)
	if raw == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

// NewToolCall builds a ToolCall from decoded arguments. Providers that
// return arguments as objects use it to normalize to the raw form.
func NewToolCall(id, name string, args any) ToolCall {
	raw := "{}"
	if args != nil {
		if b, err := json.Marshal(args); err == nil {
			raw = string(b)
		}
	}
	return ToolCall{ID: id, Function: FunctionCall{Name: name, Arguments: raw}}
}

// ChatResponse is the unified response from any provider.
type ChatResponse struct {
	Model        string
	Provider     string // set by MultiClient when the client leaves it empty
	Message      Message
	FinishReason string

	InputTokens  int
	OutputTokens int
}

// APIError is a non-success HTTP response from a provider.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error %d: %s", e.Provider, e.StatusCode, e.Body)
}

// GenerationOptions are sampling parameters shared by all providers.
type GenerationOptions struct {
	Temperature float64
	MaxTokens   int
}
