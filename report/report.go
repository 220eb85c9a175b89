// Package report defines the structured output of a financial report
// analysis and validates it before it ever reaches a caller.
package report

import "fmt"

// ReportType identifies the kind of financial statement being analyzed.
type ReportType string

const (
	BalanceSheet    ReportType = "balance_sheet"
	IncomeStatement ReportType = "income_statement"
	CashFlow        ReportType = "cash_flow"
	AnnualReport    ReportType = "annual_report"
)

// ParseReportType validates a report type string.
func ParseReportType(s string) (ReportType, error) {
	switch ReportType(s) {
	case BalanceSheet, IncomeStatement, CashFlow, AnnualReport:
		return ReportType(s), nil
	case "":
		return BalanceSheet, nil
	}
	return "", fmt.Errorf("unknown report type: %q", s)
}

// SourceRef locates a metric inside the source document.
type SourceRef struct {
	Page  int    `json:"page,omitempty"`
	Table string `json:"table,omitempty"`
}

// FinancialMetric is a single named metric extracted from a report.
type FinancialMetric struct {
	Name       string    `json:"name"`
	Value      float64   `json:"value"`
	Unit       string    `json:"unit"`
	Period     string    `json:"period"` // YYYY-MM-DD
	Confidence float64   `json:"confidence"`
	Source     SourceRef `json:"source,omitempty"`
}

// BalanceSheetKPI holds the metrics extracted from a balance sheet.
type BalanceSheetKPI struct {
	TotalAssets        *FinancialMetric `json:"total_assets,omitempty"`
	TotalLiabilities   *FinancialMetric `json:"total_liabilities,omitempty"`
	Equity             *FinancialMetric `json:"equity,omitempty"`
	CurrentAssets      *FinancialMetric `json:"current_assets,omitempty"`
	CurrentLiabilities *FinancialMetric `json:"current_liabilities,omitempty"`
}

// CurrentRatio derives the current liquidity ratio when both inputs are
// present and the denominator is positive.
func (b *BalanceSheetKPI) CurrentRatio() (float64, bool) {
	if b.CurrentAssets == nil || b.CurrentLiabilities == nil {
		return 0, false
	}
	if b.CurrentLiabilities.Value <= 0 {
		return 0, false
	}
	return b.CurrentAssets.Value / b.CurrentLiabilities.Value, true
}

// IncomeStatementKPI holds the metrics extracted from an income statement.
type IncomeStatementKPI struct {
	Revenue         *FinancialMetric `json:"revenue,omitempty"`
	GrossProfit     *FinancialMetric `json:"gross_profit,omitempty"`
	OperatingIncome *FinancialMetric `json:"operating_income,omitempty"`
	NetIncome       *FinancialMetric `json:"net_income,omitempty"`
}

// ProfitMargin derives net income over revenue, zero when revenue is missing
// or non-positive.
func (i *IncomeStatementKPI) ProfitMargin() float64 {
	if i.Revenue == nil || i.NetIncome == nil || i.Revenue.Value <= 0 {
		return 0
	}
	return i.NetIncome.Value / i.Revenue.Value
}

// ChartAnalysis is the structured description of one extracted chart.
type ChartAnalysis struct {
	ChartType       string             `json:"chart_type"` // line, bar, pie, unknown
	Title           string             `json:"title,omitempty"`
	ExtractedValues map[string]float64 `json:"extracted_values"`
	Trends          []string           `json:"trends"`
	Confidence      float64            `json:"confidence"`
}

// SimilarReport is one archive match returned by similarity search.
type SimilarReport struct {
	ReportID string  `json:"report_id"`
	Filename string  `json:"filename"`
	Company  string  `json:"company,omitempty"`
	Type     string  `json:"report_type"`
	Score    float64 `json:"score"`
}

// AnalysisResult is the terminal entity returned to the caller.
// It is immutable once assembled and always passes Validate before
// leaving the engine.
type AnalysisResult struct {
	ReportID        string              `json:"report_id"`
	ReportType      ReportType          `json:"report_type"`
	CompanyName     string              `json:"company_name,omitempty"`
	ReportDate      string              `json:"report_date"` // YYYY-MM-DD
	BalanceSheet    *BalanceSheetKPI    `json:"balance_sheet,omitempty"`
	IncomeStatement *IncomeStatementKPI `json:"income_statement,omitempty"`
	Charts          []ChartAnalysis     `json:"charts"`
	SimilarReports  []SimilarReport     `json:"similar_reports"`
	RawText         string              `json:"raw_text"`
	Warnings        []string            `json:"warnings,omitempty"`
	Metadata        map[string]any      `json:"metadata,omitempty"`
	ProcessingSecs  float64             `json:"processing_time"`
}
