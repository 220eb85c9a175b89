// Package finalyst analyzes financial report documents (PDF and Excel):
// it parses text, tables, and charts, searches an archive of previous
// reports for similar ones, extracts KPIs with a tool-calling LLM agent,
// and returns a schema-validated structured result.
package finalyst

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mkravets/finalyst/agent"
	"github.com/mkravets/finalyst/archive"
	"github.com/mkravets/finalyst/ingest"
	"github.com/mkravets/finalyst/llm"
	"github.com/mkravets/finalyst/parser"
	"github.com/mkravets/finalyst/report"
	"github.com/mkravets/finalyst/vision"
)

// Engine is the public analysis surface.
type Engine interface {
	// Analyze runs the full pipeline over a document on disk.
	Analyze(ctx context.Context, path string, opts ...AnalyzeOption) (*report.AnalysisResult, error)

	// ListReports returns all archived reports, newest first.
	ListReports(ctx context.Context) ([]archive.Entry, error)

	// DeleteReport removes a report and its embedding from the archive.
	DeleteReport(ctx context.Context, reportID string) error

	// Archive exposes the underlying store for direct queries.
	Archive() *archive.Store

	// Close releases the archive database.
	Close() error
}

// AnalyzeOption adjusts a single Analyze call.
type AnalyzeOption func(*analyzeOptions)

type analyzeOptions struct {
	reportType   report.ReportType
	company      string
	addToArchive bool
}

// WithReportType sets the statement type being extracted. Defaults to
// balance_sheet.
func WithReportType(rt report.ReportType) AnalyzeOption {
	return func(o *analyzeOptions) { o.reportType = rt }
}

// WithCompany attaches a company name to the analysis. The name is
// sanitized; an invalid name fails the call.
func WithCompany(name string) AnalyzeOption {
	return func(o *analyzeOptions) { o.company = name }
}

// WithArchive stores the analyzed document in the archive so later
// analyses can find it by similarity.
func WithArchive() AnalyzeOption {
	return func(o *analyzeOptions) { o.addToArchive = true }
}

// Option configures the engine at construction.
type Option func(*engine)

// WithLogger sets the engine's structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *engine) { e.logger = l }
}

type engine struct {
	cfg       Config
	validator *ingest.Validator
	registry  *parser.Registry
	embedder  llm.Provider
	visioner  *vision.Analyzer
	extractor *agent.Extractor
	store     *archive.Store
	logger    *slog.Logger
}

// New builds an Engine from configuration. The archive database is opened
// (and created if absent) immediately; LLM providers are constructed but
// not contacted until the first Analyze.
func New(cfg Config, opts ...Option) (Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &engine{
		cfg:       cfg,
		validator: ingest.NewValidator(cfg.MaxUploadBytes, cfg.AllowedExtensions),
		registry:  parser.NewRegistry(),
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}

	chat, err := llm.NewProvider(llm.Config(cfg.Chat))
	if err != nil {
		return nil, fmt.Errorf("%w: chat: %v", ErrInvalidConfig, err)
	}
	e.embedder, err = llm.NewProvider(llm.Config(cfg.Embedding))
	if err != nil {
		return nil, fmt.Errorf("%w: embedding: %v", ErrInvalidConfig, err)
	}

	// A missing vision provider is not fatal when fallback is on; charts
	// then come back as placeholders.
	visionProvider, err := llm.NewVisionProvider(llm.Config(cfg.Vision))
	if err != nil && !cfg.VisionFallbackEnabled {
		return nil, fmt.Errorf("%w: vision: %v", ErrInvalidConfig, err)
	}
	e.visioner = vision.NewAnalyzer(visionProvider, cfg.Vision.Model,
		vision.WithFallback(cfg.VisionFallbackEnabled),
		vision.WithConcurrency(cfg.ChartConcurrency),
		vision.WithLogger(e.logger))

	e.store, err = archive.New(cfg.resolveArchivePath(), cfg.EmbeddingDim)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}

	e.extractor = agent.NewExtractor(agent.Config{
		Chat:        chat,
		ChatModel:   cfg.Chat.Model,
		Embedder:    e.embedder,
		Searcher:    e.store,
		TopK:        cfg.TopKSimilar,
		MaxRounds:   cfg.MaxToolRounds,
		Temperature: cfg.Temperature,
		Logger:      e.logger,
	})

	return e, nil
}

func (e *engine) Analyze(ctx context.Context, path string, opts ...AnalyzeOption) (*report.AnalysisResult, error) {
	start := time.Now()

	options := analyzeOptions{reportType: report.BalanceSheet}
	for _, o := range opts {
		o(&options)
	}

	company := ""
	if options.company != "" {
		clean, err := ingest.SanitizeCompanyName(options.company)
		if err != nil {
			return nil, err
		}
		company = clean
	}

	if err := e.validator.ValidateFile(path); err != nil {
		return nil, err
	}

	reportID := newReportID()
	logger := e.logger.With("report_id", reportID, "file", filepath.Base(path))
	logger.Info("analysis started", "report_type", options.reportType)

	parsed, err := e.parse(ctx, path)
	if err != nil {
		return nil, err
	}
	text := parsed.Text()
	logger.Info("document parsed",
		"pages", parsed.NumPages,
		"tables", len(parsed.Tables),
		"images", len(parsed.Images),
		"elapsed", time.Since(start))

	var warnings []string

	similar, embedding, err := e.findSimilar(ctx, company, text)
	if err != nil {
		// Archive search is best effort; extraction proceeds without it.
		logger.Warn("similarity search unavailable", "error", err)
		warnings = append(warnings, "similarity search unavailable")
	}

	charts, err := e.analyzeCharts(ctx, parsed.Images)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVisionUnavailable, err)
	}
	logger.Info("charts analyzed", "count", len(charts), "elapsed", time.Since(start))

	extraction, err := e.extractor.Extract(ctx, agent.Input{
		ReportType:     options.reportType,
		Text:           text,
		Tables:         parsed.Tables,
		SimilarReports: similar,
	})
	if err != nil {
		if errors.Is(err, agent.ErrBudgetExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrAgentBudgetExceeded, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	warnings = append(warnings, extraction.Warnings...)
	logger.Info("kpi extraction finished",
		"metrics", len(extraction.Metrics),
		"rounds", extraction.Rounds,
		"elapsed", time.Since(start))

	result, err := report.Assemble(report.AssembleInput{
		ReportID:       reportID,
		ReportType:     options.reportType,
		CompanyName:    company,
		RawText:        text,
		Metrics:        extraction.Metrics,
		Charts:         charts,
		SimilarReports: similar,
		Warnings:       warnings,
		Metadata: map[string]any{
			"num_pages":  parsed.NumPages,
			"num_tables": len(parsed.Tables),
			"num_charts": len(charts),
			"filename":   filepath.Base(path),
		},
		ProcessingSecs: time.Since(start).Seconds(),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResultInvalid, err)
	}

	if options.addToArchive {
		if err := e.archiveResult(ctx, path, result, embedding); err != nil {
			logger.Warn("archiving failed", "error", err)
			result.Warnings = append(result.Warnings, "report was not archived")
		}
	}
	e.logAnalysis(ctx, path, result)

	logger.Info("analysis completed", "duration_secs", result.ProcessingSecs)
	return result, nil
}

func (e *engine) parse(ctx context.Context, path string) (*parser.ParsedContent, error) {
	p, err := e.registry.Get(filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	parsed, err := p.Parse(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParsingFailed, err)
	}
	return parsed, nil
}

// findSimilar embeds a short summary of the document and searches the
// archive. The embedding is returned for reuse when the document is
// archived afterwards.
func (e *engine) findSimilar(ctx context.Context, company, text string) ([]report.SimilarReport, []float32, error) {
	query := summaryText(company, text)
	embeddings, err := e.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if len(embeddings) == 0 {
		return nil, nil, fmt.Errorf("%w: provider returned no embeddings", ErrEmbeddingFailed)
	}
	embedding := embeddings[0]

	matches, err := e.store.Search(ctx, embedding, e.cfg.TopKSimilar)
	if err != nil {
		return nil, embedding, fmt.Errorf("searching archive: %w", err)
	}

	similar := make([]report.SimilarReport, 0, len(matches))
	for _, m := range matches {
		similar = append(similar, report.SimilarReport{
			ReportID: m.ReportID,
			Filename: m.Filename,
			Company:  m.Company,
			Type:     m.ReportType,
			Score:    m.Score,
		})
	}
	return similar, embedding, nil
}

func (e *engine) analyzeCharts(ctx context.Context, images []parser.ImageRef) ([]report.ChartAnalysis, error) {
	if len(images) == 0 {
		return nil, nil
	}
	paths := make([]string, len(images))
	for i, img := range images {
		paths[i] = img.Path
	}
	return e.visioner.AnalyzeAll(ctx, paths)
}

// archiveResult stores the document's embedding and metadata unless an
// identical document is already archived.
func (e *engine) archiveResult(ctx context.Context, path string, res *report.AnalysisResult, embedding []float32) error {
	if embedding == nil {
		return fmt.Errorf("no embedding available")
	}

	hash, err := fileHash(path)
	if err != nil {
		return err
	}
	exists, err := e.store.HasContentHash(ctx, hash)
	if err != nil {
		return err
	}
	if exists {
		e.logger.Info("duplicate document, archive entry skipped", "hash", hash[:12])
		return nil
	}

	_, err = e.store.Add(ctx, archive.Entry{
		ReportID:    res.ReportID,
		Filename:    filepath.Base(path),
		Company:     res.CompanyName,
		ReportType:  string(res.ReportType),
		ContentHash: hash,
		Summary:     summaryText(res.CompanyName, res.RawText),
	}, embedding)
	return err
}

func (e *engine) logAnalysis(ctx context.Context, path string, res *report.AnalysisResult) {
	kpiCount := 0
	if res.BalanceSheet != nil {
		for _, m := range []*report.FinancialMetric{
			res.BalanceSheet.TotalAssets, res.BalanceSheet.TotalLiabilities,
			res.BalanceSheet.Equity, res.BalanceSheet.CurrentAssets,
			res.BalanceSheet.CurrentLiabilities,
		} {
			if m != nil {
				kpiCount++
			}
		}
	}
	if res.IncomeStatement != nil {
		for _, m := range []*report.FinancialMetric{
			res.IncomeStatement.Revenue, res.IncomeStatement.GrossProfit,
			res.IncomeStatement.OperatingIncome, res.IncomeStatement.NetIncome,
		} {
			if m != nil {
				kpiCount++
			}
		}
	}

	if err := e.store.LogAnalysis(ctx, archive.Record{
		ReportID:       res.ReportID,
		ReportType:     string(res.ReportType),
		Filename:       filepath.Base(path),
		KPICount:       kpiCount,
		ChartCount:     len(res.Charts),
		SimilarCount:   len(res.SimilarReports),
		WarningCount:   len(res.Warnings),
		ProcessingSecs: res.ProcessingSecs,
	}); err != nil {
		e.logger.Warn("analysis log write failed", "error", err)
	}
}

func (e *engine) ListReports(ctx context.Context) ([]archive.Entry, error) {
	return e.store.List(ctx)
}

func (e *engine) DeleteReport(ctx context.Context, reportID string) error {
	err := e.store.Delete(ctx, reportID)
	if errors.Is(err, archive.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrReportNotFound, reportID)
	}
	return err
}

func (e *engine) Archive() *archive.Store { return e.store }

func (e *engine) Close() error { return e.store.Close() }

// newReportID generates ids like "report_3fa09c21".
func newReportID() string {
	return "report_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// summaryText builds the short text used for embeddings: company name plus
// the document's opening characters.
func summaryText(company, text string) string {
	const headChars = 500
	head := text
	if len(head) > headChars {
		head = head[:headChars]
	}
	if company == "" {
		return head
	}
	return company + " " + head
}

func fileHash(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("hashing file: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
