package analyst

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/queryflow/graph/model"
)

func TestChatGenerator(t *testing.T) {
	ctx := context.Background()
	mock := &model.MockChatModel{Responses: []model.ChatOut{{Text: "  SELECT 1  "}}}
	gen := ChatGenerator{Model: mock}

	text, err := gen.Generate(ctx, "system prompt", []Message{
		NewMessage(RoleSystem, "summary"),
		NewMessage(RoleUser, "q"),
		NewMessage(RoleAssistant, "a"),
	})
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", text)

	require.Equal(t, 1, mock.CallCount())
	assert.Equal(t, []model.Message{
		{Role: model.RoleSystem, Content: "system prompt"},
		{Role: model.RoleSystem, Content: "summary"},
		{Role: model.RoleUser, Content: "q"},
		{Role: model.RoleAssistant, Content: "a"},
	}, mock.Calls[0].Messages)
}

func TestChatGenerator_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := ChatGenerator{}.Generate(ctx, "s", nil)
	assert.Error(t, err)

	_, err = ChatGenerator{Model: &model.MockChatModel{Err: errors.New("quota")}}.Generate(ctx, "s", nil)
	assert.ErrorContains(t, err, "quota")

	_, err = ChatGenerator{Model: &model.MockChatModel{Responses: []model.ChatOut{{Text: " \n"}}}}.Generate(ctx, "s", nil)
	assert.ErrorContains(t, err, "empty")
}

func TestCleanQuery(t *testing.T) {
	for in, want := range map[string]string{
		"SELECT 1;":                    "SELECT 1",
		"```sql\nSELECT 1;\n```":       "SELECT 1",
		"```\nSELECT a\nFROM b\n```":   "SELECT a\nFROM b",
		"```SELECT 1```":               "SELECT 1",
		"  select * from holdings  \n": "select * from holdings",
	} {
		assert.Equal(t, want, cleanQuery(in), in)
	}
}
