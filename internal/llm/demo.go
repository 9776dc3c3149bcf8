package llm

import (
	"context"
	"strings"
)

// DemoClient answers without contacting any provider. It echoes the
// most recent user message and never requests tools.
type DemoClient struct{}

// Chat returns an echo of the last user message.
func (DemoClient) Chat(_ context.Context, model string, messages []Message, _ []map[string]any) (*ChatResponse, error) {
	var last string
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			last = strings.TrimSpace(messages[i].Content)
			break
		}
	}
	return &ChatResponse{
		Model:        model,
		Provider:     "demo",
		FinishReason: "stop",
		Message:      Message{Role: RoleAssistant, Content: "(demo) You said: " + last},
	}, nil
}

// Ping always succeeds.
func (DemoClient) Ping(context.Context) error { return nil }

// ProviderFor reports "demo" for every model.
func (DemoClient) ProviderFor(string) string { return "demo" }
