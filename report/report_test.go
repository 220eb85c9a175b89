package report

import (
	"strings"
	"testing"
	"time"
)

func metric(name string, value float64) *FinancialMetric {
	return &FinancialMetric{
		Name:       name,
		Value:      value,
		Unit:       "RUB",
		Period:     "2024-12-31",
		Confidence: 0.9,
	}
}

// ---------------------------------------------------------------------------
// Report types
// ---------------------------------------------------------------------------

func TestParseReportType(t *testing.T) {
	tests := []struct {
		in      string
		want    ReportType
		wantErr bool
	}{
		{"balance_sheet", BalanceSheet, false},
		{"income_statement", IncomeStatement, false},
		{"cash_flow", CashFlow, false},
		{"annual_report", AnnualReport, false},
		{"", BalanceSheet, false}, // default
		{"quarterly", "", true},
	}
	for _, tt := range tests {
		got, err := ParseReportType(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseReportType(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseReportType(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseReportType(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Derived ratios
// ---------------------------------------------------------------------------

func TestCurrentRatio(t *testing.T) {
	b := &BalanceSheetKPI{
		CurrentAssets:      metric("current_assets", 200),
		CurrentLiabilities: metric("current_liabilities", 100),
	}
	ratio, ok := b.CurrentRatio()
	if !ok || ratio != 2.0 {
		t.Fatalf("expected ratio 2.0, got %f (ok=%v)", ratio, ok)
	}

	b.CurrentLiabilities = nil
	if _, ok := b.CurrentRatio(); ok {
		t.Fatal("expected no ratio without liabilities")
	}

	b.CurrentLiabilities = metric("current_liabilities", 0)
	if _, ok := b.CurrentRatio(); ok {
		t.Fatal("expected no ratio with zero liabilities")
	}
}

func TestProfitMargin(t *testing.T) {
	i := &IncomeStatementKPI{
		Revenue:   metric("revenue", 1000),
		NetIncome: metric("net_income", 150),
	}
	if got := i.ProfitMargin(); got != 0.15 {
		t.Fatalf("expected margin 0.15, got %f", got)
	}

	i.Revenue = nil
	if got := i.ProfitMargin(); got != 0 {
		t.Fatalf("expected 0 margin without revenue, got %f", got)
	}
}

// ---------------------------------------------------------------------------
// Assembly
// ---------------------------------------------------------------------------

func TestAssembleBalanceSheet(t *testing.T) {
	res, err := Assemble(AssembleInput{
		ReportID:   "report_0a1b2c3d",
		ReportType: BalanceSheet,
		RawText:    "Бухгалтерский баланс на 31.12.2024",
		Metrics: map[string]*FinancialMetric{
			"total_assets": metric("total_assets", 5000),
			"equity":       metric("equity", 2000),
		},
		ProcessingSecs: 1.2,
	})
	if err != nil {
		t.Fatalf("assembling: %v", err)
	}

	if res.BalanceSheet == nil {
		t.Fatal("expected balance sheet KPI group")
	}
	if res.IncomeStatement != nil {
		t.Fatal("expected no income statement group")
	}
	if res.BalanceSheet.TotalAssets == nil || res.BalanceSheet.TotalAssets.Value != 5000 {
		t.Fatalf("unexpected total_assets: %+v", res.BalanceSheet.TotalAssets)
	}
	if res.ReportDate != "2024-12-31" {
		t.Fatalf("expected date from text, got %s", res.ReportDate)
	}
	// Validation requires non-nil arrays.
	if res.Charts == nil || res.SimilarReports == nil {
		t.Fatal("expected empty, non-nil charts and similar_reports")
	}
}

func TestAssembleIncomeStatement(t *testing.T) {
	res, err := Assemble(AssembleInput{
		ReportID:   "report_00ff00ff",
		ReportType: IncomeStatement,
		RawText:    "Отчет о прибылях и убытках",
		Metrics: map[string]*FinancialMetric{
			"revenue":    metric("revenue", 9000),
			"net_income": metric("net_income", 800),
		},
		ProcessingSecs: 0.5,
	})
	if err != nil {
		t.Fatalf("assembling: %v", err)
	}
	if res.IncomeStatement == nil || res.IncomeStatement.Revenue == nil {
		t.Fatal("expected income statement with revenue")
	}
	if res.BalanceSheet != nil {
		t.Fatal("expected no balance sheet group")
	}
}

func TestAssembleDropsInvalidMetrics(t *testing.T) {
	bad := metric("total_liabilities", -100) // negative
	noPeriod := metric("equity", 500)
	noPeriod.Period = "Q4 2024"

	res, err := Assemble(AssembleInput{
		ReportID:   "report_11111111",
		ReportType: BalanceSheet,
		RawText:    "balance",
		Metrics: map[string]*FinancialMetric{
			"total_assets":      metric("total_assets", 1000),
			"total_liabilities": bad,
			"equity":            noPeriod,
		},
		ProcessingSecs: 0.1,
	})
	if err != nil {
		t.Fatalf("assembling: %v", err)
	}

	if res.BalanceSheet.TotalLiabilities != nil {
		t.Fatal("expected negative metric to be dropped")
	}
	if res.BalanceSheet.Equity != nil {
		t.Fatal("expected metric with bad period to be dropped")
	}
	if res.BalanceSheet.TotalAssets == nil {
		t.Fatal("expected valid metric to survive")
	}
	if len(res.Warnings) != 2 {
		t.Fatalf("expected 2 warnings, got %v", res.Warnings)
	}
}

func TestAssembleFillsMetricDefaults(t *testing.T) {
	m := &FinancialMetric{Value: 42, Period: "2024-06-30"}
	res, err := Assemble(AssembleInput{
		ReportID:   "report_22222222",
		ReportType: BalanceSheet,
		RawText:    "balance",
		Metrics:    map[string]*FinancialMetric{"total_assets": m},
	})
	if err != nil {
		t.Fatalf("assembling: %v", err)
	}
	got := res.BalanceSheet.TotalAssets
	if got.Name != "total_assets" || got.Unit != "RUB" || got.Confidence != 1.0 {
		t.Fatalf("expected defaults applied, got %+v", got)
	}
}

func TestAssembleTruncatesRawText(t *testing.T) {
	res, err := Assemble(AssembleInput{
		ReportID:   "report_33333333",
		ReportType: BalanceSheet,
		RawText:    strings.Repeat("x", 9000),
	})
	if err != nil {
		t.Fatalf("assembling: %v", err)
	}
	if len(res.RawText) != maxRawTextChars {
		t.Fatalf("expected raw text truncated to %d, got %d", maxRawTextChars, len(res.RawText))
	}
}

func TestAssembleNormalizesChartFields(t *testing.T) {
	res, err := Assemble(AssembleInput{
		ReportID:   "report_44444444",
		ReportType: BalanceSheet,
		RawText:    "balance",
		Charts:     []ChartAnalysis{{ChartType: "bar", Confidence: 0.7}},
	})
	if err != nil {
		t.Fatalf("assembling: %v", err)
	}
	c := res.Charts[0]
	if c.ExtractedValues == nil || c.Trends == nil {
		t.Fatal("expected nil chart maps and slices normalized")
	}
}

func TestAssembleRejectsBadReportID(t *testing.T) {
	if _, err := Assemble(AssembleInput{
		ReportID:   "not-a-report-id",
		ReportType: BalanceSheet,
		RawText:    "balance",
	}); err == nil {
		t.Fatal("expected validation failure for malformed report id")
	}
}

// ---------------------------------------------------------------------------
// Date extraction
// ---------------------------------------------------------------------------

func TestExtractReportDate(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"iso", "Report as of 2024-09-30 follows", "2024-09-30"},
		{"dmy", "Баланс на 31.12.2023", "2023-12-31"},
		{"iso wins over dmy", "2024-01-15 and also 02.02.2022", "2024-01-15"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractReportDate(tt.text); got != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestExtractReportDateFallsBackToToday(t *testing.T) {
	got := extractReportDate("no dates here")
	if got != time.Now().Format("2006-01-02") {
		t.Fatalf("expected today's date, got %s", got)
	}
}

// ---------------------------------------------------------------------------
// Schema validation
// ---------------------------------------------------------------------------

func TestValidateKPIPayload(t *testing.T) {
	valid := []byte(`{
		"total_assets": {"name": "total_assets", "value": 100, "unit": "RUB", "period": "2024-12-31", "confidence": 0.8},
		"equity": null
	}`)
	if err := ValidateKPIPayload(BalanceSheet, valid); err != nil {
		t.Fatalf("expected valid payload, got %v", err)
	}

	wrongSlot := []byte(`{"revenue": null}`)
	if err := ValidateKPIPayload(BalanceSheet, wrongSlot); err == nil {
		t.Fatal("expected income slot to fail balance sheet schema")
	}
	if err := ValidateKPIPayload(IncomeStatement, wrongSlot); err != nil {
		t.Fatalf("expected revenue slot valid for income statement, got %v", err)
	}

	badPeriod := []byte(`{"total_assets": {"name": "a", "value": 1, "unit": "RUB", "period": "Q4"}}`)
	if err := ValidateKPIPayload(BalanceSheet, badPeriod); err == nil {
		t.Fatal("expected bad period to fail validation")
	}

	badConfidence := []byte(`{"total_assets": {"name": "a", "value": 1, "unit": "RUB", "period": "2024-12-31", "confidence": 1.5}}`)
	if err := ValidateKPIPayload(BalanceSheet, badConfidence); err == nil {
		t.Fatal("expected out-of-range confidence to fail validation")
	}
}
