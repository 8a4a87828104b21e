package analyst

import (
	"regexp"
	"strings"
)

// DenyList holds the statement keywords that can change data or schema.
var DenyList = []string{
	"INSERT", "UPDATE", "DELETE", "DROP", "ALTER", "CREATE", "REPLACE",
	"TRUNCATE", "MERGE", "UPSERT", "ATTACH", "DETACH", "PRAGMA", "VACUUM",
	"REINDEX", "GRANT", "REVOKE",
}

var (
	lineComment  = regexp.MustCompile(`--[^\n]*`)
	blockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
	denyPattern  = regexp.MustCompile(`\b(` + strings.Join(DenyList, "|") + `)\b`)
)

// NormalizeQuery strips comments, upper-cases and collapses whitespace so
// keyword checks cannot be dodged with formatting.
func NormalizeQuery(query string) string {
	q := blockComment.ReplaceAllString(query, " ")
	q = lineComment.ReplaceAllString(q, " ")
	return strings.Join(strings.Fields(strings.ToUpper(q)), " ")
}

// CheckQuery returns the first deny-listed keyword in query, or "" when the
// query is read-only.
func CheckQuery(query string) string {
	return denyPattern.FindString(NormalizeQuery(query))
}
