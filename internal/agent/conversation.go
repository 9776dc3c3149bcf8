package agent

import (
	"slices"

	"github.com/folio-agent/folio/internal/llm"
)

// Conversation is the ordered message list sent to the model on every
// hop. Each tool result directly follows the assistant message that
// requested it and carries the same call ID.
type Conversation struct {
	messages []llm.Message
}

// NewConversation seeds a conversation with the system prompt, prior
// user and assistant turns, and the new user message. History entries
// with other roles are dropped.
func NewConversation(systemPrompt string, history []llm.Message, message string) *Conversation {
	c := &Conversation{messages: make([]llm.Message, 0, len(history)+2)}
	if systemPrompt != "" {
		c.messages = append(c.messages, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})
	}
	for _, m := range history {
		if m.Role != llm.RoleUser && m.Role != llm.RoleAssistant {
			continue
		}
		c.messages = append(c.messages, llm.Message{Role: m.Role, Content: m.Content})
	}
	c.messages = append(c.messages, llm.Message{Role: llm.RoleUser, Content: message})
	return c
}

// AppendToolExchange records one tool call and its result as an
// assistant message holding only that call, followed by the tool
// message answering it.
func (c *Conversation) AppendToolExchange(call llm.ToolCall, result string) {
	c.messages = append(c.messages,
		llm.Message{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{call}},
		llm.Message{Role: llm.RoleTool, Content: result, ToolCallID: call.ID, Name: call.Function.Name},
	)
}

// Messages returns a copy of the conversation.
func (c *Conversation) Messages() []llm.Message {
	return slices.Clone(c.messages)
}

// Len returns the number of messages.
func (c *Conversation) Len() int { return len(c.messages) }
