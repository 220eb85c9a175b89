package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculate(t *testing.T) {
	tests := []struct {
		metric string
		values map[string]float64
		want   float64
	}{
		{"current_ratio", map[string]float64{"current_assets": 200, "current_liabilities": 100}, 2.0},
		{"quick_ratio", map[string]float64{"current_assets": 300, "inventory": 100, "current_liabilities": 100}, 2.0},
		{"roe", map[string]float64{"net_income": 50, "equity": 500}, 10.0},
		{"roa", map[string]float64{"net_income": 50, "total_assets": 1000}, 5.0},
		{"debt_to_equity", map[string]float64{"total_debt": 300, "equity": 600}, 0.5},
		{"profit_margin", map[string]float64{"net_income": 150, "revenue": 1000}, 15.0},
		{"gross_margin", map[string]float64{"gross_profit": 400, "revenue": 1000}, 40.0},
		{"operating_margin", map[string]float64{"operating_income": 200, "revenue": 1000}, 20.0},
	}
	for _, tt := range tests {
		t.Run(tt.metric, func(t *testing.T) {
			got, err := Calculate(tt.metric, tt.values)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestCalculateCaseInsensitive(t *testing.T) {
	got, err := Calculate("ROE", map[string]float64{"net_income": 50, "equity": 500})
	require.NoError(t, err)
	assert.InDelta(t, 10.0, got, 1e-9)
}

func TestCalculateUnsupportedMetric(t *testing.T) {
	_, err := Calculate("sharpe_ratio", map[string]float64{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported metric")
}

func TestCalculateMissingValue(t *testing.T) {
	_, err := Calculate("current_ratio", map[string]float64{"current_assets": 200})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required value")
}

func TestCalculateDivisionByZero(t *testing.T) {
	tests := []struct {
		metric string
		values map[string]float64
	}{
		{"current_ratio", map[string]float64{"current_assets": 200, "current_liabilities": 0}},
		{"quick_ratio", map[string]float64{"current_assets": 200, "inventory": 50, "current_liabilities": 0}},
		{"roe", map[string]float64{"net_income": 50, "equity": 0}},
		{"profit_margin", map[string]float64{"net_income": 50, "revenue": 0}},
	}
	for _, tt := range tests {
		t.Run(tt.metric, func(t *testing.T) {
			_, err := Calculate(tt.metric, tt.values)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "division by zero")
		})
	}
}

func TestSupportedMetricsSorted(t *testing.T) {
	names := SupportedMetrics()
	require.Len(t, names, 8)
	assert.IsIncreasing(t, names)
}
