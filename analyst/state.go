// Package analyst implements the conversational query assistant: the session
// state, its merge rules, the workflow nodes and the graph that wires them.
package analyst

import "github.com/google/uuid"

// Role identifies who authored a message.
type Role string

// Message roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one entry of a thread's history.
type Message struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// NewMessage creates a message with a fresh ID.
func NewMessage(role Role, text string) Message {
	return Message{ID: uuid.NewString(), Role: role, Text: text}
}

// SessionState is everything a thread remembers between runs. It is
// persisted as JSON after every node.
type SessionState struct {
	History []Message `json:"history"`

	// Question is the user text that opened the current turn.
	Question string `json:"question,omitempty"`

	CandidateQuery string `json:"candidate_query,omitempty"`
	// ResultPayload holds the encoded rows of the last successful execution.
	ResultPayload string `json:"result_payload,omitempty"`

	// Error is empty when the turn is healthy.
	Error string    `json:"error,omitempty"`
	Fault FaultKind `json:"fault,omitempty"`

	// Attempts counts generate/execute cycles in the current turn.
	Attempts int `json:"attempts"`

	ApprovalPending    bool `json:"approval_pending"`
	VisualizeRequested bool `json:"visualize_requested"`

	// Decision is the reviewer's answer, present from Resume until the
	// approval gate consumes it.
	Decision *Decision `json:"decision,omitempty"`
}

// Compaction replaces History[:Cut] with Summary.
type Compaction struct {
	Cut     int     `json:"cut"`
	Summary Message `json:"summary"`
}

// Update is a sparse change to SessionState. Nil pointers and false flags
// leave fields untouched.
type Update struct {
	// NewTurn resets every per-turn field before anything else applies.
	NewTurn  bool
	Question *string

	Compact *Compaction
	Append  []Message
	// AmendLast is appended to the most recent assistant message.
	AmendLast string

	CandidateQuery *string
	ResultPayload  *string
	Error          *string
	Fault          *FaultKind

	IncrementAttempts bool

	ApprovalPending    *bool
	VisualizeRequested *bool

	Decision      *Decision
	ClearDecision bool
}

// Merge applies update to current and returns the next state. It never
// mutates current's history in place.
func Merge(current SessionState, update Update) SessionState {
	next := current
	if current.History != nil {
		next.History = append(make([]Message, 0, len(current.History)+len(update.Append)+1), current.History...)
	}

	if update.NewTurn {
		next.Question = ""
		next.CandidateQuery = ""
		next.ResultPayload = ""
		next.Error = ""
		next.Fault = ""
		next.Attempts = 0
		next.ApprovalPending = false
		next.VisualizeRequested = false
		next.Decision = nil
	}
	if update.Question != nil {
		next.Question = *update.Question
	}

	if c := update.Compact; c != nil {
		cut := c.Cut
		if cut < 0 {
			cut = 0
		}
		if cut > len(next.History) {
			cut = len(next.History)
		}
		tail := next.History[cut:]
		next.History = append([]Message{c.Summary}, tail...)
	}
	next.History = append(next.History, update.Append...)
	if update.AmendLast != "" {
		next.History = amendLast(next.History, update.AmendLast)
	}

	if update.CandidateQuery != nil {
		next.CandidateQuery = *update.CandidateQuery
	}
	if update.ResultPayload != nil {
		next.ResultPayload = *update.ResultPayload
	}
	if update.Error != nil {
		next.Error = *update.Error
	}
	if update.Fault != nil {
		next.Fault = *update.Fault
	}
	if update.IncrementAttempts {
		next.Attempts++
	}
	if update.ApprovalPending != nil {
		next.ApprovalPending = *update.ApprovalPending
	}
	if update.VisualizeRequested != nil {
		next.VisualizeRequested = *update.VisualizeRequested
	}
	if update.ClearDecision {
		next.Decision = nil
	}
	if update.Decision != nil {
		d := *update.Decision
		next.Decision = &d
	}
	return next
}

func amendLast(history []Message, note string) []Message {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == RoleAssistant {
			history[i].Text += "\n\n" + note
			return history
		}
	}
	return append(history, NewMessage(RoleAssistant, note))
}

// UserTurn is the update that opens a new turn with text.
func UserTurn(text string) Update {
	return Update{
		NewTurn:  true,
		Question: &text,
		Append:   []Message{NewMessage(RoleUser, text)},
	}
}

// ResumeWith is the update that hands a reviewer's decision to the gate.
func ResumeWith(d Decision) Update {
	return Update{Decision: &d}
}

func withError(kind FaultKind, msg string) Update {
	return Update{Error: &msg, Fault: &kind}
}

func clearError() Update {
	empty, none := "", FaultKind("")
	return Update{Error: &empty, Fault: &none}
}

func ref[T any](v T) *T {
	return &v
}
