// Package agent implements the tool-calling KPI extraction loop. A chat
// model is driven round by round: each reply is either a tool invocation
// or a final payload of financial metrics, which is schema-validated
// before being accepted.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mkravets/finalyst/llm"
	"github.com/mkravets/finalyst/parser"
	"github.com/mkravets/finalyst/report"
)

// ErrBudgetExceeded is returned when the model keeps calling tools past
// the configured round limit without producing a final payload.
var ErrBudgetExceeded = errors.New("agent: tool round budget exceeded")

const (
	defaultMaxRounds = 8
	// maxPromptChars bounds how much document text goes into the prompt.
	maxPromptChars = 3000
	// maxPromptTables bounds how many parsed tables are shown.
	maxPromptTables = 5
)

// Config assembles an Extractor's collaborators.
type Config struct {
	Chat        llm.Provider
	ChatModel   string
	Embedder    llm.Provider
	Searcher    Searcher
	TopK        int
	MaxRounds   int
	Temperature float64
	Logger      *slog.Logger
}

// Extractor runs KPI extraction over a parsed document.
type Extractor struct {
	chat        llm.Provider
	model       string
	temperature float64
	maxRounds   int
	tools       *toolbox
	logger      *slog.Logger
}

// NewExtractor builds an Extractor. Searcher may be nil; the search tool
// then returns empty results.
func NewExtractor(cfg Config) *Extractor {
	maxRounds := cfg.MaxRounds
	if maxRounds <= 0 {
		maxRounds = defaultMaxRounds
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = 3
	}
	return &Extractor{
		chat:        cfg.Chat,
		model:       cfg.ChatModel,
		temperature: cfg.Temperature,
		maxRounds:   maxRounds,
		logger:      logger,
		tools: &toolbox{
			searcher: cfg.Searcher,
			embedder: cfg.Embedder,
			queryGen: &queryGenerator{provider: cfg.Chat, model: cfg.ChatModel},
			topK:     topK,
		},
	}
}

// Input is the extraction context for one document.
type Input struct {
	ReportType     report.ReportType
	Text           string
	Tables         []parser.Table
	SimilarReports []report.SimilarReport
}

// Result holds the accepted metrics and anything worth telling the caller.
type Result struct {
	Metrics  map[string]*report.FinancialMetric
	Warnings []string
	Rounds   int
}

// modelReply is one round's decoded model output: a tool call, a final
// payload, or neither (unparseable).
type modelReply struct {
	Tool      string          `json:"tool"`
	Arguments json.RawMessage `json:"arguments"`
	Final     json.RawMessage `json:"final"`
}

// Extract drives the tool loop until the model emits a final payload or
// the round budget runs out.
func (e *Extractor) Extract(ctx context.Context, in Input) (*Result, error) {
	messages := []llm.Message{
		{Role: "system", Content: e.systemPrompt(in.ReportType)},
		{Role: "user", Content: e.documentPrompt(in)},
	}

	res := &Result{Metrics: map[string]*report.FinancialMetric{}}
	reprompted := false
	corrected := false

	for round := 1; round <= e.maxRounds; round++ {
		res.Rounds = round

		resp, err := e.chat.Chat(ctx, llm.ChatRequest{
			Model:          e.model,
			Messages:       messages,
			Temperature:    e.temperature,
			ResponseFormat: "json_object",
		})
		if err != nil {
			return nil, fmt.Errorf("extraction round %d: %w", round, err)
		}
		messages = append(messages, llm.Message{Role: "assistant", Content: resp.Content})

		reply, err := parseReply(resp.Content)
		if err != nil {
			if reprompted {
				return nil, fmt.Errorf("unparseable model output after reprompt: %w", err)
			}
			reprompted = true
			e.logger.Warn("unparseable agent reply, reprompting", "round", round, "error", err)
			messages = append(messages, llm.Message{
				Role:    "user",
				Content: fmt.Sprintf("Your reply was not valid (%v). Respond with a single JSON object: either {\"tool\": ..., \"arguments\": ...} or {\"final\": {...}}.", err),
			})
			continue
		}

		if reply.Final != nil {
			if err := report.ValidateKPIPayload(in.ReportType, reply.Final); err != nil {
				if !corrected {
					corrected = true
					e.logger.Warn("final payload failed validation, requesting correction", "round", round, "error", err)
					messages = append(messages, llm.Message{
						Role:    "user",
						Content: fmt.Sprintf("Your final payload failed validation: %v\nFix the payload and respond again with {\"final\": {...}}.", err),
					})
					continue
				}
				// Second invalid payload: keep what decodes cleanly and
				// record the rest as warnings.
				e.acceptLenient(reply.Final, res)
				res.Warnings = append(res.Warnings,
					fmt.Sprintf("kpi payload failed validation twice: %v", err))
				return res, nil
			}
			if err := decodeMetrics(reply.Final, res.Metrics); err != nil {
				return nil, fmt.Errorf("decoding final payload: %w", err)
			}
			return res, nil
		}

		out := e.tools.dispatch(ctx, toolCall{Tool: reply.Tool, Arguments: reply.Arguments})
		if out.Error != "" {
			e.logger.Warn("tool call failed", "tool", reply.Tool, "error", out.Error)
		} else {
			e.logger.Debug("tool call completed", "tool", reply.Tool, "round", round)
		}
		payload, _ := json.Marshal(out)
		messages = append(messages, llm.Message{Role: "user", Content: string(payload)})
	}

	return nil, fmt.Errorf("%w: no final payload after %d rounds", ErrBudgetExceeded, e.maxRounds)
}

// acceptLenient salvages individually-decodable metrics from an invalid
// payload, recording a warning per dropped slot.
func (e *Extractor) acceptLenient(payload json.RawMessage, res *Result) {
	var slots map[string]json.RawMessage
	if err := json.Unmarshal(payload, &slots); err != nil {
		res.Warnings = append(res.Warnings, "kpi payload was not a JSON object, all metrics dropped")
		return
	}
	for slot, raw := range slots {
		if string(raw) == "null" {
			continue
		}
		var m report.FinancialMetric
		if err := json.Unmarshal(raw, &m); err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("dropped metric %q: %v", slot, err))
			continue
		}
		res.Metrics[slot] = &m
	}
}

func decodeMetrics(payload json.RawMessage, dst map[string]*report.FinancialMetric) error {
	var slots map[string]*report.FinancialMetric
	if err := json.Unmarshal(payload, &slots); err != nil {
		return err
	}
	for slot, m := range slots {
		if m != nil {
			dst[slot] = m
		}
	}
	return nil
}

// parseReply extracts and decodes the JSON object in a model reply.
func parseReply(content string) (*modelReply, error) {
	raw := llm.ExtractJSONObject(content)
	if raw == "" {
		return nil, fmt.Errorf("no JSON object found")
	}
	var reply modelReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if reply.Final == nil && reply.Tool == "" {
		return nil, fmt.Errorf("reply has neither \"tool\" nor \"final\"")
	}
	return &reply, nil
}

func (e *Extractor) systemPrompt(rt report.ReportType) string {
	var b strings.Builder
	b.WriteString("You are an expert financial analyst. Extract key performance indicators from the report the user provides.\n\n")
	b.WriteString(e.tools.descriptions())
	b.WriteString("\n\nProtocol: every reply must be exactly one JSON object.\n")
	b.WriteString("To call a tool: {\"tool\": \"name\", \"arguments\": {...}}\n")
	b.WriteString("To finish: {\"final\": {...}} where the payload maps metric slots to objects or null.\n\n")

	var slots []string
	switch rt {
	case report.IncomeStatement:
		slots = []string{"revenue", "gross_profit", "operating_income", "net_income"}
	default:
		slots = []string{"total_assets", "total_liabilities", "equity", "current_assets", "current_liabilities"}
	}
	b.WriteString("Final payload slots: " + strings.Join(slots, ", ") + "\n")
	b.WriteString(`Each non-null slot: {"name": "...", "value": number, "unit": "RUB", "period": "YYYY-MM-DD", "confidence": 0.0-1.0}` + "\n")
	b.WriteString("Use null for metrics the document does not contain. Never invent values.")
	return b.String()
}

func (e *Extractor) documentPrompt(in Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Report type: %s\n\n", in.ReportType)

	text := in.Text
	if len(text) > maxPromptChars {
		text = text[:maxPromptChars]
	}
	b.WriteString("Document text:\n" + text + "\n")

	if len(in.Tables) > 0 {
		b.WriteString("\nParsed tables:\n")
		for i, t := range in.Tables {
			if i >= maxPromptTables {
				fmt.Fprintf(&b, "... and %d more tables\n", len(in.Tables)-maxPromptTables)
				break
			}
			fmt.Fprintf(&b, "- %s (%d rows)\n", t.Name, len(t.Rows))
			for j, row := range t.Rows {
				if j >= 10 {
					b.WriteString("  ...\n")
					break
				}
				b.WriteString("  " + strings.Join(row, " | ") + "\n")
			}
		}
	}

	if len(in.SimilarReports) > 0 {
		b.WriteString("\nSimilar archived reports (for cross-checking):\n")
		for _, s := range in.SimilarReports {
			fmt.Fprintf(&b, "- %s (%s, score %.2f)\n", s.Filename, s.Company, s.Score)
		}
	}
	return b.String()
}
