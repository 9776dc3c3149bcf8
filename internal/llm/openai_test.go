package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpenAIClient_Chat(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q, want /chat/completions", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"model": "gpt-4o-2024-08-06",
			"choices": [{
				"finish_reason": "tool_calls",
				"message": {
					"role": "assistant",
					"content": null,
					"tool_calls": [{"id": "call_1", "type": "function", "function": {"name": "bio_get", "arguments": "{\"keys\":[\"name\"]}"}}]
				}
			}],
			"usage": {"prompt_tokens": 120, "completion_tokens": 15}
		}`)
	}))
	defer srv.Close()

	c := NewOpenAIClient("sk-test", srv.URL, GenerationOptions{Temperature: 0.3, MaxTokens: 600}, srv.Client(), quietLogger())
	tools := []map[string]any{{"type": "function", "function": map[string]any{"name": "bio_get"}}}
	messages := []Message{
		{Role: RoleSystem, Content: "rules"},
		{Role: RoleUser, Content: "who are you?"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "call_0", Function: FunctionCall{Name: "bio_get", Arguments: "{}"}}}},
		{Role: RoleTool, ToolCallID: "call_0", Name: "bio_get", Content: `{"name":"Ada"}`},
	}

	resp, err := c.Chat(context.Background(), "gpt-4o", messages, tools)
	if err != nil {
		t.Fatalf("Chat() error: %v", err)
	}

	if got["tool_choice"] != "auto" {
		t.Errorf("tool_choice = %v, want auto", got["tool_choice"])
	}
	if got["max_tokens"] != float64(600) {
		t.Errorf("max_tokens = %v, want 600", got["max_tokens"])
	}
	wireMsgs := got["messages"].([]any)
	assistant := wireMsgs[2].(map[string]any)
	if c, present := assistant["content"]; !present || c != nil {
		t.Errorf("assistant tool-call content = %v (present %v), want null", c, present)
	}
	tool := wireMsgs[3].(map[string]any)
	if tool["tool_call_id"] != "call_0" {
		t.Errorf("tool_call_id = %v, want call_0", tool["tool_call_id"])
	}

	if resp.InputTokens != 120 || resp.OutputTokens != 15 {
		t.Errorf("usage = %d/%d, want 120/15", resp.InputTokens, resp.OutputTokens)
	}
	if len(resp.Message.ToolCalls) != 1 {
		t.Fatalf("tool calls = %d, want 1", len(resp.Message.ToolCalls))
	}
	tc := resp.Message.ToolCalls[0]
	if tc.ID != "call_1" || tc.Function.Name != "bio_get" {
		t.Errorf("tool call = %+v", tc)
	}
	args, err := tc.DecodeArguments()
	if err != nil {
		t.Fatalf("DecodeArguments() error: %v", err)
	}
	if keys, ok := args["keys"].([]any); !ok || len(keys) != 1 || keys[0] != "name" {
		t.Errorf("args = %v", args)
	}
}

func TestOpenAIClient_NoToolsOmitsToolChoice(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		io.WriteString(w, `{"model":"m","choices":[{"message":{"role":"assistant","content":"hi"},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	c := NewOpenAIClient("k", srv.URL, GenerationOptions{}, srv.Client(), quietLogger())
	resp, err := c.Chat(context.Background(), "m", []Message{{Role: RoleUser, Content: "hello"}}, nil)
	if err != nil {
		t.Fatalf("Chat() error: %v", err)
	}
	if _, ok := got["tool_choice"]; ok {
		t.Error("tool_choice sent without tools")
	}
	if resp.Message.Content != "hi" {
		t.Errorf("content = %q, want hi", resp.Message.Content)
	}
}

func TestOpenAIClient_Errors(t *testing.T) {
	c := NewOpenAIClient("", "http://unused.invalid", GenerationOptions{}, nil, quietLogger())
	if _, err := c.Chat(context.Background(), "m", nil, nil); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("missing key error = %v, want ErrNotConfigured", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"rate limited"}}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c = NewOpenAIClient("k", srv.URL, GenerationOptions{}, srv.Client(), quietLogger())
	_, err := c.Chat(context.Background(), "m", []Message{{Role: RoleUser, Content: "x"}}, nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("StatusCode = %d, want 429", apiErr.StatusCode)
	}
}

func TestToolCall_DecodeArguments(t *testing.T) {
	tests := []struct {
		raw     string
		wantLen int
		wantErr bool
	}{
		{"", 0, false},
		{"  ", 0, false},
		{"null", 0, false},
		{`{"a":1,"b":"x"}`, 2, false},
		{`{"a":`, 0, true},
		{`[1,2]`, 0, true},
	}
	for _, tt := range tests {
		args, err := ToolCall{Function: FunctionCall{Arguments: tt.raw}}.DecodeArguments()
		if (err != nil) != tt.wantErr {
			t.Errorf("DecodeArguments(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			continue
		}
		if err == nil && len(args) != tt.wantLen {
			t.Errorf("DecodeArguments(%q) len = %d, want %d", tt.raw, len(args), tt.wantLen)
		}
	}
}
