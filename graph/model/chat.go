// Package model provides LLM integration adapters.
package model

import "context"

// ChatModel defines the interface for LLM chat providers.
//
// It abstracts the differences between providers (OpenAI-compatible
// gateways, Anthropic, Google) behind a single call. Implementations should:
//   - Convert Message roles to the provider's format (system prompts included)
//   - Respect context cancellation and timeouts
//   - Retry transient failures where the provider's SDK does not
//
// Example:
//
//	m := openai.NewChatModel(apiKey, "gpt-4o-mini")
//	out, err := m.Chat(ctx, []model.Message{
//	    {Role: model.RoleSystem, Content: "Answer with one SQL statement."},
//	    {Role: model.RoleUser, Content: "How many trades were made in Q4?"},
//	})
type ChatModel interface {
	// Chat sends messages to the LLM and returns its reply.
	Chat(ctx context.Context, messages []Message) (ChatOut, error)
}

// Message represents a single message in an LLM conversation.
type Message struct {
	// Role identifies the sender. Use the Role* constants.
	Role string

	// Content contains the message text.
	Content string
}

// Standard role constants for LLM conversations.
const (
	// RoleSystem sets context or instructions; usually first.
	RoleSystem = "system"

	// RoleUser is a message from the human user.
	RoleUser = "user"

	// RoleAssistant is a response from the LLM.
	RoleAssistant = "assistant"
)

// ChatOut represents the LLM's reply.
type ChatOut struct {
	// Text contains the generated response.
	Text string

	// Usage reports token consumption when the provider returns it.
	Usage Usage
}

// Usage is the token accounting of one call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// SplitSystem separates leading and interleaved system messages from the
// conversation, joining their text. Providers with a dedicated system
// parameter (Anthropic, Google) use it.
func SplitSystem(messages []Message) (system string, rest []Message) {
	rest = make([]Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role != RoleSystem {
			rest = append(rest, msg)
			continue
		}
		if system != "" {
			system += "\n\n"
		}
		system += msg.Content
	}
	return system, rest
}
