package analyst

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func messages(n int) []Message {
	out := make([]Message, n)
	for i := range out {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		out[i] = NewMessage(role, fmt.Sprintf("message %d", i))
	}
	return out
}

func texts(msgs []Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = string(m.Role) + ":" + m.Text
	}
	return out
}

func TestMerge_AppendsInOrder(t *testing.T) {
	s := Merge(SessionState{History: messages(1)}, Update{Append: []Message{
		NewMessage(RoleAssistant, "a"),
		NewMessage(RoleUser, "b"),
	}})
	assert.Equal(t, []string{"user:message 0", "assistant:a", "user:b"}, texts(s.History))
}

func TestMerge_DoesNotAliasHistory(t *testing.T) {
	orig := SessionState{History: messages(3)}
	_ = Merge(orig, Update{AmendLast: "note"})
	assert.Equal(t, "message 1", orig.History[1].Text)
}

func TestMerge_EmptyHistoryStaysEmpty(t *testing.T) {
	s := Merge(SessionState{History: []Message{}}, Update{})
	require.NotNil(t, s.History)
	assert.Empty(t, s.History)

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"history":[]`)

	assert.Nil(t, Merge(SessionState{}, Update{}).History)
}

func TestMerge_Compaction(t *testing.T) {
	h := messages(7)
	summary := NewMessage(RoleSystem, "summary")
	s := Merge(SessionState{History: h}, Update{Compact: &Compaction{Cut: 5, Summary: summary}})

	require.Len(t, s.History, 3)
	assert.Equal(t, summary, s.History[0])
	assert.Equal(t, h[5:], s.History[1:])

	// Out-of-range cuts are clamped.
	s = Merge(SessionState{History: messages(2)}, Update{Compact: &Compaction{Cut: 10, Summary: summary}})
	assert.Equal(t, []Message{summary}, s.History)
}

func TestMerge_AmendLast(t *testing.T) {
	s := Merge(SessionState{History: messages(3)}, Update{AmendLast: "chart"})
	assert.Equal(t, "message 1\n\nchart", s.History[1].Text)
	assert.Equal(t, "message 2", s.History[2].Text)

	s = Merge(SessionState{History: []Message{NewMessage(RoleUser, "q")}}, Update{AmendLast: "chart"})
	require.Len(t, s.History, 2)
	assert.Equal(t, RoleAssistant, s.History[1].Role)
	assert.Equal(t, "chart", s.History[1].Text)
}

func TestMerge_Scalars(t *testing.T) {
	d := Accept(true)
	s := Merge(SessionState{Attempts: 1}, Update{
		CandidateQuery:     ref("SELECT 1"),
		ResultPayload:      ref("{}"),
		Error:              ref("boom"),
		Fault:              ref(ExecutionFault),
		IncrementAttempts:  true,
		ApprovalPending:    ref(true),
		VisualizeRequested: ref(true),
		Decision:           &d,
	})
	assert.Equal(t, "SELECT 1", s.CandidateQuery)
	assert.Equal(t, "{}", s.ResultPayload)
	assert.Equal(t, "boom", s.Error)
	assert.Equal(t, ExecutionFault, s.Fault)
	assert.Equal(t, 2, s.Attempts)
	assert.True(t, s.ApprovalPending)
	assert.True(t, s.VisualizeRequested)
	require.NotNil(t, s.Decision)
	assert.Equal(t, d, *s.Decision)

	// An empty update changes nothing, and the counter only moves on request.
	assert.Equal(t, s, Merge(s, Update{}))

	s = Merge(s, Update{ClearDecision: true})
	assert.Nil(t, s.Decision)
}

func TestMerge_NewTurnResetsTurnFields(t *testing.T) {
	d := Reject("no")
	prev := SessionState{
		History:            messages(2),
		Question:           "old",
		CandidateQuery:     "SELECT 1",
		ResultPayload:      "{}",
		Error:              "boom",
		Fault:              ExecutionFault,
		Attempts:           3,
		ApprovalPending:    true,
		VisualizeRequested: true,
		Decision:           &d,
	}
	s := Merge(prev, UserTurn("show me Q4 tech holdings"))

	assert.Equal(t, SessionState{
		History:  s.History,
		Question: "show me Q4 tech holdings",
	}, s)
	require.Len(t, s.History, 3)
	assert.Equal(t, prev.History, s.History[:2])
	assert.Equal(t, RoleUser, s.History[2].Role)
	assert.NotEmpty(t, s.History[2].ID)
}

func TestNewMessage_UniqueIDs(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := NewMessage(RoleUser, "x").ID
		require.False(t, seen[id])
		seen[id] = true
	}
}

func TestDecision_Validate(t *testing.T) {
	assert.NoError(t, Accept(false).Validate())
	assert.NoError(t, Reject("").Validate())
	assert.NoError(t, Edit("SELECT 1", true).Validate())
	assert.Error(t, Edit("  ", false).Validate())
	assert.Error(t, Decision{Kind: "maybe"}.Validate())
}
