package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestParseTextToolCalls(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantName string
		wantLen  int
	}{
		{"plain text", "Ada works on compilers.", "", 0},
		{"single object", `{"name":"bio_get","arguments":{"keys":["name"]}}`, "bio_get", 1},
		{"array", `[{"name":"bio_get","arguments":{}},{"name":"github_list_repos","arguments":{}}]`, "bio_get", 2},
		{"tagged", "<tool_call>{\"name\":\"github_get_readme\",\"arguments\":{\"owner_repo\":\"a/b\"}}</tool_call>", "github_get_readme", 1},
		{"unclosed tag", "<tool_call>{\"name\":\"bio_get\",\"arguments\":{}}", "bio_get", 1},
		{"object without name", `{"answer": 42}`, "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseTextToolCalls(tt.content)
			if len(got) != tt.wantLen {
				t.Fatalf("len = %d, want %d", len(got), tt.wantLen)
			}
			if tt.wantLen > 0 {
				if got[0].Function.Name != tt.wantName {
					t.Errorf("name = %q, want %q", got[0].Function.Name, tt.wantName)
				}
				if got[0].ID == "" {
					t.Error("parsed tool call has no ID")
				}
			}
		})
	}
}

func TestOllamaClient_Chat(t *testing.T) {
	var req ollamaRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&req)
		io.WriteString(w, `{
			"model": "qwen3:4b",
			"message": {"role": "assistant", "content": "", "tool_calls": [{"function": {"name": "bio_get", "arguments": {"keys": ["name"]}}}]},
			"done": true,
			"prompt_eval_count": 30,
			"eval_count": 4
		}`)
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, GenerationOptions{Temperature: 0.3, MaxTokens: 100}, quietLogger())
	messages := []Message{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "call_0", Function: FunctionCall{Name: "bio_get", Arguments: `{"keys":["x"]}`}}}},
		{Role: RoleTool, ToolCallID: "call_0", Content: `{"x":null}`},
	}
	resp, err := c.Chat(context.Background(), "qwen3:4b", messages, []map[string]any{{"type": "function"}})
	if err != nil {
		t.Fatalf("Chat() error: %v", err)
	}

	if got := req.Messages[1].ToolCalls[0].Function.Arguments["keys"]; got == nil {
		t.Error("outbound arguments were not sent as an object")
	}
	if req.Options["num_predict"] != float64(100) {
		t.Errorf("num_predict = %v", req.Options["num_predict"])
	}
	if len(resp.Message.ToolCalls) != 1 {
		t.Fatalf("tool calls = %d, want 1", len(resp.Message.ToolCalls))
	}
	if resp.Message.ToolCalls[0].Function.Arguments != `{"keys":["name"]}` {
		t.Errorf("arguments = %q", resp.Message.ToolCalls[0].Function.Arguments)
	}
	if resp.InputTokens != 30 || resp.OutputTokens != 4 {
		t.Errorf("usage = %d/%d", resp.InputTokens, resp.OutputTokens)
	}
}

func TestDemoClient(t *testing.T) {
	resp, err := DemoClient{}.Chat(context.Background(), "demo", []Message{
		{Role: RoleSystem, Content: "rules"},
		{Role: RoleUser, Content: "  first  "},
		{Role: RoleAssistant, Content: "ok"},
		{Role: RoleUser, Content: " latest question "},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Message.Content != "(demo) You said: latest question" {
		t.Errorf("content = %q", resp.Message.Content)
	}
	if len(resp.Message.ToolCalls) != 0 {
		t.Error("demo client requested tools")
	}
}
