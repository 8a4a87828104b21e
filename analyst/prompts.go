package analyst

import (
	"fmt"
	"strings"
)

const queryPromptIntro = "You are a SQLite expert working on an investment portfolio database."

const summaryPrompt = "Summarize the conversation so far in a few sentences. " +
	"Keep tickers, sectors, dates and figures the user asked about."

const analysisPromptIntro = "You are an investment analyst."

func queryPrompt(schema, question, lastError string) string {
	var b strings.Builder
	b.WriteString(queryPromptIntro)
	b.WriteString("\n\nSchema:\n")
	b.WriteString(schema)
	if lastError != "" {
		fmt.Fprintf(&b, "\n\nThe previous attempt failed: %s\nFix the query so it does not fail the same way.", lastError)
	}
	fmt.Fprintf(&b, "\n\nWrite one read-only SQLite query that answers: %s\nReturn only the SQL, no explanation.", question)
	return b.String()
}

func analysisPrompt(question, payload string) string {
	return fmt.Sprintf("%s Answer the question %q using these query results (JSON):\n%s\n"+
		"Reply in plain language; mention notable figures.", analysisPromptIntro, question, payload)
}

// cleanQuery strips markdown fences and a trailing semicolon from a model reply.
func cleanQuery(text string) string {
	q := strings.TrimSpace(text)
	if strings.HasPrefix(q, "```") {
		q = strings.TrimPrefix(q, "```")
		if nl := strings.IndexByte(q, '\n'); nl >= 0 && !strings.ContainsAny(q[:nl], " ") {
			q = q[nl+1:] // language tag
		}
		q = strings.TrimSuffix(strings.TrimSpace(q), "```")
	}
	q = strings.TrimSpace(q)
	return strings.TrimSpace(strings.TrimSuffix(q, ";"))
}
