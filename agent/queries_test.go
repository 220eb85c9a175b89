package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/mkravets/finalyst/llm"
)

func TestSanitizeSQLInput(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"plain", "total assets for Q3", "total assets for Q3", false},
		{"escapes quotes", "O'Brien table", "O''Brien table", false},
		{"strips semicolons", "metrics; extra", "metrics extra", false},
		{"drop statement", "x; DROP TABLE reports", "", true},
		{"comment marker", "value -- hidden", "", true},
		{"union select", "1 UNION SELECT password", "", true},
		{"or equals", "name OR 1=1", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := sanitizeSQLInput(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrUnsafeSQL) {
					t.Fatalf("expected ErrUnsafeSQL, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare", "SELECT 1", "SELECT 1"},
		{"fenced", "```sql\nSELECT 1\n```", "SELECT 1"},
		{"fenced no lang", "```\nSELECT 1\n```", "SELECT 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripCodeFences(tt.in); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestQueryGeneratorRejectsNonSelect(t *testing.T) {
	gen := &queryGenerator{
		provider: &scriptedProvider{replies: []string{"UPDATE reports SET x = 1"}},
		model:    "test",
	}
	if _, err := gen.Generate(context.Background(), "balance", "total assets"); !errors.Is(err, ErrUnsafeSQL) {
		t.Fatalf("expected ErrUnsafeSQL for non-SELECT, got %v", err)
	}
}

func TestQueryGeneratorReturnsSelect(t *testing.T) {
	gen := &queryGenerator{
		provider: &scriptedProvider{replies: []string{"```sql\nSELECT COALESCE(total_assets, 0) FROM balance\n```"}},
		model:    "test",
	}
	sql, err := gen.Generate(context.Background(), "balance", "total assets")
	if err != nil {
		t.Fatalf("generating: %v", err)
	}
	if sql != "SELECT COALESCE(total_assets, 0) FROM balance" {
		t.Fatalf("unexpected sql: %q", sql)
	}
}

func TestQueryGeneratorRejectsUnsafeTableName(t *testing.T) {
	gen := &queryGenerator{
		provider: &scriptedProvider{replies: []string{"SELECT 1"}},
		model:    "test",
	}
	if _, err := gen.Generate(context.Background(), "t; DROP TABLE reports", "assets"); !errors.Is(err, ErrUnsafeSQL) {
		t.Fatalf("expected ErrUnsafeSQL, got %v", err)
	}
}

// scriptedProvider replays canned replies in order.
type scriptedProvider struct {
	replies []string
	calls   int
	// requests records what the loop sent, for assertions.
	requests []llm.ChatRequest
}

func (s *scriptedProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	s.requests = append(s.requests, req)
	if s.calls >= len(s.replies) {
		return nil, errors.New("no scripted reply left")
	}
	reply := s.replies[s.calls]
	s.calls++
	return &llm.ChatResponse{Content: reply, FinishReason: "stop"}, nil
}

func (s *scriptedProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0, 0}
	}
	return out, nil
}
