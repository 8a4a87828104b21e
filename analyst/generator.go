package analyst

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dshills/queryflow/graph/model"
	"github.com/dshills/queryflow/querydb"
)

// Generator produces text from a system prompt and the conversation so far.
type Generator interface {
	Generate(ctx context.Context, systemPrompt string, history []Message) (string, error)
}

// Executor runs read-only queries and describes the database they run on.
// *querydb.DB implements it.
type Executor interface {
	Execute(ctx context.Context, query string) (querydb.Rows, error)
	Schema(ctx context.Context) (string, error)
}

// ChatGenerator adapts a model.ChatModel to Generator.
type ChatGenerator struct {
	Model model.ChatModel
}

// Generate implements Generator. An empty reply is an error.
func (g ChatGenerator) Generate(ctx context.Context, systemPrompt string, history []Message) (string, error) {
	if g.Model == nil {
		return "", errors.New("chat model is not configured")
	}
	msgs := make([]model.Message, 0, len(history)+1)
	if systemPrompt != "" {
		msgs = append(msgs, model.Message{Role: model.RoleSystem, Content: systemPrompt})
	}
	for _, m := range history {
		msgs = append(msgs, model.Message{Role: chatRole(m.Role), Content: m.Text})
	}

	out, err := g.Model.Chat(ctx, msgs)
	if err != nil {
		return "", fmt.Errorf("chat: %w", err)
	}
	text := strings.TrimSpace(out.Text)
	if text == "" {
		return "", errors.New("model returned an empty reply")
	}
	return text, nil
}

func chatRole(r Role) string {
	switch r {
	case RoleAssistant:
		return model.RoleAssistant
	case RoleSystem:
		return model.RoleSystem
	default:
		return model.RoleUser
	}
}
