package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mkravets/finalyst/archive"
	"github.com/mkravets/finalyst/llm"
)

// toolCall is the model's request to invoke a tool.
type toolCall struct {
	Tool      string          `json:"tool"`
	Arguments json.RawMessage `json:"arguments"`
}

// toolResult is what goes back to the model after a tool runs. Errors are
// reported in-band so the model can recover.
type toolResult struct {
	Tool   string `json:"tool"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Searcher is the archive surface the agent's search tool needs.
type Searcher interface {
	Search(ctx context.Context, embedding []float32, k int) ([]archive.Match, error)
}

// toolbox dispatches tool calls from the extraction loop.
type toolbox struct {
	searcher Searcher
	embedder llm.Provider
	queryGen *queryGenerator
	topK     int
}

func (t *toolbox) descriptions() string {
	return fmt.Sprintf(`Available tools:
1. search_archive — find similar archived reports.
   arguments: {"query": "search text"}
2. calculate_metric — compute a financial ratio (%s).
   arguments: {"metric": "name", "values": {"input_name": number, ...}}
3. generate_table_query — produce a SQL query extracting KPIs from a parsed table.
   arguments: {"table_name": "name", "kpi_description": "what to extract"}`,
		strings.Join(SupportedMetrics(), ", "))
}

// dispatch runs one tool call. Tool failures are returned inside the
// toolResult, never as an error: the loop continues.
func (t *toolbox) dispatch(ctx context.Context, call toolCall) toolResult {
	out := toolResult{Tool: call.Tool}

	switch call.Tool {
	case "search_archive":
		var args struct {
			Query string `json:"query"`
		}
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			out.Error = fmt.Sprintf("bad arguments: %v", err)
			return out
		}
		matches, err := t.searchArchive(ctx, args.Query)
		if err != nil {
			out.Error = err.Error()
			return out
		}
		out.Result = matches

	case "calculate_metric":
		var args struct {
			Metric string             `json:"metric"`
			Values map[string]float64 `json:"values"`
		}
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			out.Error = fmt.Sprintf("bad arguments: %v", err)
			return out
		}
		value, err := Calculate(args.Metric, args.Values)
		if err != nil {
			out.Error = err.Error()
			return out
		}
		out.Result = value

	case "generate_table_query":
		var args struct {
			TableName      string `json:"table_name"`
			KPIDescription string `json:"kpi_description"`
		}
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			out.Error = fmt.Sprintf("bad arguments: %v", err)
			return out
		}
		if t.queryGen == nil {
			out.Error = "query generation is not configured"
			return out
		}
		sql, err := t.queryGen.Generate(ctx, args.TableName, args.KPIDescription)
		if err != nil {
			out.Error = err.Error()
			return out
		}
		out.Result = sql

	default:
		out.Error = fmt.Sprintf("unknown tool %q", call.Tool)
	}
	return out
}

// searchResult is the trimmed match shape shown to the model.
type searchResult struct {
	ReportID string  `json:"report_id"`
	Filename string  `json:"filename"`
	Company  string  `json:"company,omitempty"`
	Summary  string  `json:"summary,omitempty"`
	Score    float64 `json:"score"`
}

func (t *toolbox) searchArchive(ctx context.Context, query string) ([]searchResult, error) {
	if t.searcher == nil {
		return []searchResult{}, nil
	}
	embeddings, err := t.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("embedding query: provider returned no embeddings")
	}
	matches, err := t.searcher.Search(ctx, embeddings[0], t.topK)
	if err != nil {
		return nil, fmt.Errorf("searching archive: %w", err)
	}
	results := make([]searchResult, 0, len(matches))
	for _, m := range matches {
		results = append(results, searchResult{
			ReportID: m.ReportID,
			Filename: m.Filename,
			Company:  m.Company,
			Summary:  m.Summary,
			Score:    m.Score,
		})
	}
	return results, nil
}
