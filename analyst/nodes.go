package analyst

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dshills/queryflow/graph"
	"github.com/dshills/queryflow/querydb"
)

// Node IDs of the assistant workflow.
const (
	NodeSummarize     = "summarize"
	NodeGenerateQuery = "generate_query"
	NodeValidate      = "validate"
	NodeAwaitApproval = "await_approval"
	NodeExecute       = "execute"
	NodeAnalyze       = "analyze"
	NodeVisualize     = "visualize"
)

// keepTail is how many recent messages compaction never touches.
const keepTail = 2

type result = graph.NodeResult[Update]

func ok(u Update) result {
	return result{Update: u}
}

// nodes holds the collaborators every node shares. Nodes themselves keep no
// state between calls.
type nodes struct {
	gen              Generator
	exec             Executor
	summaryThreshold int
}

// Summarize folds all but the last keepTail messages into one summary once
// the history outgrows the threshold.
func (n *nodes) Summarize(ctx context.Context, s SessionState) result {
	if len(s.History) <= n.summaryThreshold {
		return ok(Update{})
	}
	cut := len(s.History) - keepTail
	older := s.History[:cut]

	text, err := n.gen.Generate(ctx, summaryPrompt, older)
	if err != nil || strings.TrimSpace(text) == "" {
		text = digest(older)
	}
	return ok(Update{Compact: &Compaction{
		Cut:     cut,
		Summary: NewMessage(RoleSystem, "Summary of earlier conversation: "+text),
	}})
}

// digest is the summary used when generation is unavailable.
func digest(msgs []Message) string {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		text := strings.Join(strings.Fields(m.Text), " ")
		if len(text) > 80 {
			text = text[:77] + "..."
		}
		parts = append(parts, fmt.Sprintf("%s: %s", m.Role, text))
	}
	return strings.Join(parts, " | ")
}

// GenerateQuery asks the generator for a query, feeding it the schema and
// the error the previous attempt ran into. Every call is one attempt.
func (n *nodes) GenerateQuery(ctx context.Context, s SessionState) result {
	fail := func(err error) result {
		u := withError(GenerationFault, err.Error())
		u.CandidateQuery = ref("")
		u.IncrementAttempts = true
		return ok(u)
	}

	schema, err := n.exec.Schema(ctx)
	if err != nil {
		return fail(fmt.Errorf("read schema: %w", err))
	}
	text, err := n.gen.Generate(ctx, queryPrompt(schema, s.Question, s.Error), s.History)
	if err != nil {
		return fail(fmt.Errorf("generate query: %w", err))
	}
	query := cleanQuery(text)
	if query == "" {
		return fail(errors.New("generate query: empty query"))
	}
	return ok(Update{CandidateQuery: &query, IncrementAttempts: true})
}

// Validate rejects candidates that could modify data. An empty candidate
// means generation failed, and its error is kept.
func (n *nodes) Validate(_ context.Context, s SessionState) result {
	if strings.TrimSpace(s.CandidateQuery) == "" {
		if s.Error == "" {
			return ok(withError(GenerationFault, "no query to validate"))
		}
		return ok(Update{})
	}
	if kw := CheckQuery(s.CandidateQuery); kw != "" {
		return ok(withError(PolicyViolation, policyMessage(kw)))
	}
	return ok(clearError())
}

func policyMessage(keyword string) string {
	return fmt.Sprintf("security check failed: %s statements are not allowed, read-only access only", keyword)
}

// AwaitApproval is the human gate. Without a decision it asks for one when a
// query is ready; with a decision it applies it and lets the run continue.
func (n *nodes) AwaitApproval(_ context.Context, s SessionState) result {
	d := s.Decision
	if d == nil {
		if s.Error == "" && s.CandidateQuery != "" {
			return ok(Update{ApprovalPending: ref(true)})
		}
		return ok(Update{ApprovalPending: ref(false)})
	}

	u := Update{
		ApprovalPending:    ref(false),
		ClearDecision:      true,
		VisualizeRequested: ref(d.Visualize),
	}
	switch d.Kind {
	case DecisionEdit:
		u.CandidateQuery = ref(d.Query)
		if kw := CheckQuery(d.Query); kw != "" {
			u.Error, u.Fault = ref(policyMessage(kw)), ref(PolicyViolation)
		} else {
			u.Error, u.Fault = ref(""), ref(FaultKind(""))
		}
	case DecisionReject:
		reason := strings.TrimSpace(d.Reason)
		msg := "user rejected the query"
		feedback := "I rejected the query " + s.CandidateQuery
		if reason != "" {
			msg += ": " + reason
			feedback += ". Feedback: " + reason
		}
		u.Error, u.Fault = ref(msg), ref(UserRejection)
		u.VisualizeRequested = ref(false)
		u.Append = []Message{NewMessage(RoleUser, feedback)}
	default:
		u.Error, u.Fault = ref(""), ref(FaultKind(""))
	}
	return ok(u)
}

// Execute runs the approved candidate. It does nothing while the turn
// carries an error.
func (n *nodes) Execute(ctx context.Context, s SessionState) result {
	if s.Error != "" {
		return ok(Update{})
	}
	rows, err := n.exec.Execute(ctx, s.CandidateQuery)
	if err != nil {
		u := withError(ExecutionFault, err.Error())
		u.ResultPayload = ref("")
		return ok(u)
	}
	payload, err := rows.Encode()
	if err != nil {
		return ok(withError(ExecutionFault, err.Error()))
	}
	return ok(Update{ResultPayload: &payload})
}

// Analyze closes the turn with exactly one assistant message.
func (n *nodes) Analyze(ctx context.Context, s SessionState) result {
	say := func(text string) result {
		return ok(Update{Append: []Message{NewMessage(RoleAssistant, text)}})
	}

	if s.Error != "" {
		return say(fmt.Sprintf("I could not answer that after %d attempt(s). Last error: %s", s.Attempts, s.Error))
	}
	rows, err := querydb.Decode(s.ResultPayload)
	if s.ResultPayload == "" || err != nil || rows.Len() == 0 {
		return say("The query ran but returned no data, so there is nothing to analyze.")
	}

	text, err := n.gen.Generate(ctx, analysisPrompt(s.Question, s.ResultPayload), s.History)
	if err != nil {
		return say(fallbackAnalysis(rows))
	}
	return say(text)
}

func fallbackAnalysis(rows querydb.Rows) string {
	msg := fmt.Sprintf("The query returned %d row(s) with columns %s.", rows.Len(), strings.Join(rows.Columns, ", "))
	if rows.Truncated {
		msg += " The result was truncated."
	}
	return msg
}

// Visualize appends a chart to the analysis. Its failures end the turn with
// a note on the answer.
func (n *nodes) Visualize(_ context.Context, s SessionState) result {
	rows, err := querydb.Decode(s.ResultPayload)
	if s.ResultPayload == "" || err != nil {
		return ok(chartFailed("no result to chart"))
	}
	chart, err := RenderChart(rows)
	if err != nil {
		return ok(chartFailed(err.Error()))
	}
	return ok(Update{AmendLast: chart})
}

func chartFailed(reason string) Update {
	u := withError(VisualizationFault, "visualization failed: "+reason)
	u.AmendLast = "Chart unavailable: " + reason
	return u
}
