package anthropic

import (
	"context"
	"errors"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/queryflow/graph/model"
)

type fakeClient struct {
	params anthropic.MessageNewParams
	reply  *anthropic.Message
	err    error
}

func (f *fakeClient) createMessage(_ context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	f.params = params
	return f.reply, f.err
}

func TestChat_LiftsSystemPrompt(t *testing.T) {
	client := &fakeClient{reply: &anthropic.Message{
		Content: []anthropic.ContentBlockUnion{
			{Type: "text", Text: "SELECT COUNT(*)"},
			{Type: "text", Text: "FROM transactions"},
		},
		Usage: anthropic.Usage{InputTokens: 30, OutputTokens: 8},
	}}
	m := &ChatModel{modelName: DefaultModel, maxTokens: 100, client: client}

	out, err := m.Chat(context.Background(), []model.Message{
		{Role: model.RoleSystem, Content: "schema"},
		{Role: model.RoleUser, Content: "how many trades?"},
		{Role: model.RoleAssistant, Content: "earlier answer"},
		{Role: model.RoleUser, Content: "and in Q4?"},
	})
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(*)\nFROM transactions", out.Text)
	assert.Equal(t, 30, out.Usage.InputTokens)

	require.Len(t, client.params.System, 1)
	assert.Equal(t, "schema", client.params.System[0].Text)
	require.Len(t, client.params.Messages, 3)
	assert.Equal(t, anthropic.MessageParamRoleUser, client.params.Messages[0].Role)
	assert.Equal(t, anthropic.MessageParamRoleAssistant, client.params.Messages[1].Role)
	assert.Equal(t, int64(100), client.params.MaxTokens)
}

func TestChat_Errors(t *testing.T) {
	m := &ChatModel{modelName: DefaultModel, maxTokens: 100, client: &fakeClient{err: errors.New("overloaded")}}

	_, err := m.Chat(context.Background(), []model.Message{{Role: model.RoleSystem, Content: "only system"}})
	assert.Error(t, err)

	_, err = m.Chat(context.Background(), []model.Message{{Role: model.RoleUser, Content: "q"}})
	assert.ErrorContains(t, err, "overloaded")
}

func TestNewChatModel_Default(t *testing.T) {
	m := NewChatModel("key", "")
	assert.Equal(t, DefaultModel, m.modelName)
}
