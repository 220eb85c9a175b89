package agent

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/mkravets/finalyst/llm"
)

// ErrUnsafeSQL is returned when generated or supplied SQL trips the
// injection filters.
var ErrUnsafeSQL = errors.New("agent: unsafe sql input")

// Patterns that indicate a free-text value is trying to smuggle SQL.
// Applied to identifiers and descriptions, never to the generated query
// itself (which is expected to contain SELECT).
var sqlInjectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(INSERT|UPDATE|DELETE|DROP|CREATE|ALTER)\b`),
	regexp.MustCompile(`--|#|/\*|\*/`),
	regexp.MustCompile(`(?i)\bOR\b.*=`),
	regexp.MustCompile(`(?i)\bUNION\b.*\bSELECT\b`),
}

var readOnlyQuery = regexp.MustCompile(`(?i)^\s*(SELECT|WITH)\b`)

// sanitizeSQLInput rejects injection-shaped text and escapes what remains.
func sanitizeSQLInput(text string) (string, error) {
	for _, p := range sqlInjectionPatterns {
		if p.MatchString(text) {
			return "", fmt.Errorf("%w: %.60s", ErrUnsafeSQL, text)
		}
	}
	s := strings.ReplaceAll(text, "'", "''")
	s = strings.ReplaceAll(s, ";", "")
	return s, nil
}

const sqlGenPrompt = `Generate a SQL query (PostgreSQL syntax) that extracts the following KPIs:
%s

From table: %s

Requirements:
- Handle NULL values with COALESCE
- Return only the SQL query, no explanation, no markdown fences`

// queryGenerator turns a table name and KPI description into a SQL query
// via a dedicated low-temperature chat call.
type queryGenerator struct {
	provider llm.Provider
	model    string
}

func (q *queryGenerator) Generate(ctx context.Context, tableName, kpiDescription string) (string, error) {
	safeTable, err := sanitizeSQLInput(tableName)
	if err != nil {
		return "", err
	}
	safeDesc, err := sanitizeSQLInput(kpiDescription)
	if err != nil {
		return "", err
	}

	resp, err := q.provider.Chat(ctx, llm.ChatRequest{
		Model: q.model,
		Messages: []llm.Message{
			{Role: "user", Content: fmt.Sprintf(sqlGenPrompt, safeDesc, safeTable)},
		},
		Temperature: 0.0,
	})
	if err != nil {
		return "", fmt.Errorf("generating query: %w", err)
	}

	sql := stripCodeFences(resp.Content)
	if sql == "" {
		return "", fmt.Errorf("model returned empty query")
	}
	// A generated query must be read-only.
	if !readOnlyQuery.MatchString(sql) {
		return "", fmt.Errorf("%w: generated query is not a SELECT", ErrUnsafeSQL)
	}
	return sql, nil
}

// stripCodeFences removes a surrounding ```sql ... ``` block if present.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
