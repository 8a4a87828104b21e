package analyst

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckQuery_DeniesMutatingKeywords(t *testing.T) {
	n := &nodes{}
	templates := []string{
		"%s",
		"SELECT 1; %s",
		"WITH x AS (SELECT 1) %s",
		"  \n\t%s\n",
	}
	for _, kw := range DenyList {
		for _, variant := range []string{kw, strings.ToLower(kw), kw[:1] + strings.ToLower(kw[1:])} {
			for _, tmpl := range templates {
				q := strings.Replace(tmpl, "%s", variant+" something", 1)
				assert.Equal(t, kw, CheckQuery(q), q)

				res := n.Validate(context.Background(), SessionState{CandidateQuery: q})
				s := Merge(SessionState{}, res.Update)
				assert.NotEmpty(t, s.Error, q)
				assert.Equal(t, PolicyViolation, s.Fault, q)
			}
		}
	}
}

func TestCheckQuery_AllowsReadOnly(t *testing.T) {
	n := &nodes{}
	for _, q := range []string{
		"SELECT * FROM holdings",
		"select ticker, qty from holdings where qty > 0 order by qty desc",
		"SELECT updated_at, created_by FROM audit",
		"SELECT 'x' AS deleted_flag",
		"WITH t AS (SELECT * FROM transactions) SELECT COUNT(*) FROM t",
		"SELECT 1 -- DROP TABLE holdings",
		"SELECT /* DELETE FROM holdings */ 1",
	} {
		assert.Empty(t, CheckQuery(q), q)

		res := n.Validate(context.Background(), SessionState{CandidateQuery: q, Error: "old", Fault: ExecutionFault})
		s := Merge(SessionState{Error: "old", Fault: ExecutionFault}, res.Update)
		assert.Empty(t, s.Error, q)
		assert.Empty(t, s.Fault, q)
	}
}

func TestNormalizeQuery(t *testing.T) {
	assert.Equal(t, "SELECT A FROM B", NormalizeQuery("select a -- note\n  from /* x */ b"))
}
