package report

import (
	"fmt"
	"regexp"
	"time"
)

// maxRawTextChars bounds the raw text echoed back in a result.
const maxRawTextChars = 5000

// AssembleInput carries everything the pipeline produced for one document.
type AssembleInput struct {
	ReportID       string
	ReportType     ReportType
	CompanyName    string
	RawText        string
	Metrics        map[string]*FinancialMetric // slot name -> metric (nil = not found)
	Charts         []ChartAnalysis
	SimilarReports []SimilarReport
	Warnings       []string
	Metadata       map[string]any
	ProcessingSecs float64
}

// Assemble builds and validates the final AnalysisResult. Metrics that fail
// field-level checks are dropped and recorded as warnings rather than
// invalidating the whole result; the returned result always passes Validate.
func Assemble(in AssembleInput) (*AnalysisResult, error) {
	metrics, warnings := sanitizeMetrics(in.Metrics)
	warnings = append(in.Warnings, warnings...)

	res := &AnalysisResult{
		ReportID:       in.ReportID,
		ReportType:     in.ReportType,
		CompanyName:    in.CompanyName,
		ReportDate:     extractReportDate(in.RawText),
		Charts:         in.Charts,
		SimilarReports: in.SimilarReports,
		RawText:        truncate(in.RawText, maxRawTextChars),
		Warnings:       warnings,
		Metadata:       in.Metadata,
		ProcessingSecs: in.ProcessingSecs,
	}
	if res.Charts == nil {
		res.Charts = []ChartAnalysis{}
	}
	for i := range res.Charts {
		if res.Charts[i].ExtractedValues == nil {
			res.Charts[i].ExtractedValues = map[string]float64{}
		}
		if res.Charts[i].Trends == nil {
			res.Charts[i].Trends = []string{}
		}
	}
	if res.SimilarReports == nil {
		res.SimilarReports = []SimilarReport{}
	}

	switch in.ReportType {
	case IncomeStatement:
		res.IncomeStatement = &IncomeStatementKPI{
			Revenue:         metrics["revenue"],
			GrossProfit:     metrics["gross_profit"],
			OperatingIncome: metrics["operating_income"],
			NetIncome:       metrics["net_income"],
		}
	default:
		res.BalanceSheet = &BalanceSheetKPI{
			TotalAssets:        metrics["total_assets"],
			TotalLiabilities:   metrics["total_liabilities"],
			Equity:             metrics["equity"],
			CurrentAssets:      metrics["current_assets"],
			CurrentLiabilities: metrics["current_liabilities"],
		}
	}

	if err := Validate(res); err != nil {
		return nil, err
	}
	return res, nil
}

// sanitizeMetrics applies field-level checks: negative values are rejected
// (financial statement line items are reported as magnitudes), confidence is
// clamped to [0,1] with a default of 1, and a missing period drops the metric.
func sanitizeMetrics(in map[string]*FinancialMetric) (map[string]*FinancialMetric, []string) {
	out := make(map[string]*FinancialMetric, len(in))
	var warnings []string

	for slot, m := range in {
		if m == nil {
			continue
		}
		if m.Value < 0 {
			warnings = append(warnings, fmt.Sprintf("dropped %s: negative value", slot))
			continue
		}
		if !datePattern.MatchString(m.Period) {
			warnings = append(warnings, fmt.Sprintf("dropped %s: invalid period %q", slot, m.Period))
			continue
		}
		if m.Name == "" {
			m.Name = slot
		}
		if m.Unit == "" {
			m.Unit = "RUB"
		}
		if m.Confidence <= 0 {
			m.Confidence = 1.0
		} else if m.Confidence > 1 {
			m.Confidence = 1.0
		}
		out[slot] = m
	}
	return out, warnings
}

var (
	datePattern   = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	isoDateInText = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
	dmyDateInText = regexp.MustCompile(`(\d{2})\.(\d{2})\.(\d{4})`)
)

// extractReportDate pulls a report date out of the opening text, falling
// back to today when none is found.
func extractReportDate(text string) string {
	head := text
	if len(head) > 1000 {
		head = head[:1000]
	}

	if m := isoDateInText.FindString(head); m != "" {
		if _, err := time.Parse("2006-01-02", m); err == nil {
			return m
		}
	}
	if m := dmyDateInText.FindStringSubmatch(head); m != nil {
		s := fmt.Sprintf("%s-%s-%s", m[3], m[2], m[1])
		if _, err := time.Parse("2006-01-02", s); err == nil {
			return s
		}
	}
	return time.Now().Format("2006-01-02")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
