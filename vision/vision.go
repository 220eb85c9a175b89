// Package vision analyzes chart and diagram images found in financial
// reports using a multimodal LLM. When the model is unreachable or
// returns garbage, a placeholder result keeps the pipeline alive.
package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/mkravets/finalyst/llm"
	"github.com/mkravets/finalyst/report"
)

const (
	// maxImageBytes caps individual images sent for analysis.
	maxImageBytes = 5 << 20

	placeholderConfidence = 0.3
)

const chartPrompt = `You are a financial chart analyst. Examine the image and respond with a single JSON object, no other text:
{
  "chart_type": "line" | "bar" | "pie" | "unknown",
  "title": "chart title or empty string",
  "extracted_values": {"label": number, ...},
  "trends": ["observed trend descriptions"],
  "confidence": 0.0-1.0
}
If the image is not a chart, use chart_type "unknown" with confidence below 0.5.`

// Analyzer runs chart analysis over extracted report images.
type Analyzer struct {
	provider        llm.VisionProvider
	model           string
	fallbackEnabled bool
	concurrency     int
	logger          *slog.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithFallback controls whether provider failures produce placeholder
// results instead of errors.
func WithFallback(enabled bool) Option {
	return func(a *Analyzer) { a.fallbackEnabled = enabled }
}

// WithConcurrency bounds how many images are analyzed in parallel.
func WithConcurrency(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) { a.logger = l }
}

// NewAnalyzer builds an Analyzer. provider may be nil, in which case every
// image gets a placeholder (or an error when fallback is disabled).
func NewAnalyzer(provider llm.VisionProvider, model string, opts ...Option) *Analyzer {
	a := &Analyzer{
		provider:        provider,
		model:           model,
		fallbackEnabled: true,
		concurrency:     4,
		logger:          slog.Default(),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// ErrVisionUnavailable indicates the vision model could not be reached or
// no provider is configured.
var ErrVisionUnavailable = errors.New("vision: model unavailable")

// AnalyzeImage analyzes a single image file and returns structured chart data.
func (a *Analyzer) AnalyzeImage(ctx context.Context, path string) (*report.ChartAnalysis, error) {
	data, err := loadImage(path)
	if err != nil {
		return a.fallback(path, err)
	}

	if a.provider == nil {
		return a.fallback(path, ErrVisionUnavailable)
	}

	dataURL := fmt.Sprintf("data:%s;base64,%s",
		detectMIME(data), base64.StdEncoding.EncodeToString(data))

	resp, err := a.provider.ChatWithImages(ctx, llm.VisionChatRequest{
		Model: a.model,
		Messages: []llm.VisionMessage{{
			Role: "user",
			Content: []llm.ContentPart{
				{Type: "text", Text: chartPrompt},
				{Type: "image_url", ImageURL: &llm.ImageURL{URL: dataURL}},
			},
		}},
		Temperature: 0.1,
	})
	if err != nil {
		return a.fallback(path, fmt.Errorf("%w: %v", ErrVisionUnavailable, err))
	}

	analysis, err := parseChartResponse(resp.Content)
	if err != nil {
		a.logger.Warn("unparseable vision response", "image", path, "error", err)
		return a.fallback(path, err)
	}
	return analysis, nil
}

// AnalyzeAll analyzes images concurrently, preserving input order. Per-image
// failures surface as placeholders when fallback is enabled; with fallback
// disabled the first error cancels the group.
func (a *Analyzer) AnalyzeAll(ctx context.Context, paths []string) ([]report.ChartAnalysis, error) {
	if len(paths) == 0 {
		return nil, nil
	}

	results := make([]*report.ChartAnalysis, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)

	for i, path := range paths {
		g.Go(func() error {
			analysis, err := a.AnalyzeImage(ctx, path)
			if err != nil {
				return fmt.Errorf("analyzing %s: %w", path, err)
			}
			results[i] = analysis
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]report.ChartAnalysis, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, nil
}

// fallback returns a low-confidence placeholder when enabled, otherwise the
// original error.
func (a *Analyzer) fallback(path string, cause error) (*report.ChartAnalysis, error) {
	if !a.fallbackEnabled {
		return nil, cause
	}
	a.logger.Warn("chart analysis degraded", "image", path, "cause", cause)
	return &report.ChartAnalysis{
		ChartType:       "unknown",
		Title:           "",
		ExtractedValues: map[string]float64{},
		Trends:          []string{"visual analysis unavailable"},
		Confidence:      placeholderConfidence,
	}, nil
}

// parseChartResponse extracts the JSON object from a model reply that may
// wrap it in prose or markdown fences.
func parseChartResponse(content string) (*report.ChartAnalysis, error) {
	raw := llm.ExtractJSONObject(content)
	if raw == "" {
		return nil, fmt.Errorf("no JSON object in response")
	}

	var analysis report.ChartAnalysis
	if err := json.Unmarshal([]byte(raw), &analysis); err != nil {
		return nil, fmt.Errorf("decoding chart analysis: %w", err)
	}

	switch analysis.ChartType {
	case "line", "bar", "pie", "unknown":
	default:
		analysis.ChartType = "unknown"
	}
	if analysis.Confidence < 0 || analysis.Confidence > 1 {
		analysis.Confidence = 0.5
	}
	if analysis.ExtractedValues == nil {
		analysis.ExtractedValues = map[string]float64{}
	}
	if analysis.Trends == nil {
		analysis.Trends = []string{}
	}
	return &analysis, nil
}

var imageMagics = map[string][]byte{
	"image/png":  {0x89, 'P', 'N', 'G'},
	"image/jpeg": {0xFF, 0xD8, 0xFF},
	"image/webp": []byte("RIFF"),
}

// loadImage reads an image file, enforcing the size cap and a known raster
// signature.
func loadImage(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat image: %w", err)
	}
	if info.Size() > maxImageBytes {
		return nil, fmt.Errorf("image %s exceeds %d bytes", path, maxImageBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}
	if detectMIME(data) == "" {
		return nil, fmt.Errorf("unrecognized image format: %s", path)
	}
	return data, nil
}

func detectMIME(data []byte) string {
	for mime, magic := range imageMagics {
		if bytes.HasPrefix(data, magic) {
			return mime
		}
	}
	return ""
}
