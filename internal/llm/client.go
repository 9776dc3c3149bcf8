package llm

import "context"

// Client is the interface every provider implements. Implementations
// are stateless between calls; the full conversation is sent each time.
type Client interface {
	// Chat sends the conversation and tool definitions and returns the
	// model's next message. When tools is non-empty the model chooses
	// freely whether to call them.
	Chat(ctx context.Context, model string, messages []Message, tools []map[string]any) (*ChatResponse, error)

	// Ping checks if the provider is reachable.
	Ping(ctx context.Context) error
}
