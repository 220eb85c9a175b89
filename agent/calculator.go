package agent

import (
	"fmt"
	"sort"
	"strings"
)

// metricDef describes one supported financial ratio: the inputs it needs
// and how to compute it from them.
type metricDef struct {
	inputs  []string
	compute func(v map[string]float64) (float64, error)
}

func ratio(num, den string, scale float64) func(map[string]float64) (float64, error) {
	return func(v map[string]float64) (float64, error) {
		if v[den] == 0 {
			return 0, fmt.Errorf("division by zero: %s is 0", den)
		}
		return v[num] / v[den] * scale, nil
	}
}

var metricDefs = map[string]metricDef{
	"current_ratio": {
		inputs:  []string{"current_assets", "current_liabilities"},
		compute: ratio("current_assets", "current_liabilities", 1),
	},
	"quick_ratio": {
		inputs: []string{"current_assets", "inventory", "current_liabilities"},
		compute: func(v map[string]float64) (float64, error) {
			if v["current_liabilities"] == 0 {
				return 0, fmt.Errorf("division by zero: current_liabilities is 0")
			}
			return (v["current_assets"] - v["inventory"]) / v["current_liabilities"], nil
		},
	},
	"roe": {
		inputs:  []string{"net_income", "equity"},
		compute: ratio("net_income", "equity", 100),
	},
	"roa": {
		inputs:  []string{"net_income", "total_assets"},
		compute: ratio("net_income", "total_assets", 100),
	},
	"debt_to_equity": {
		inputs:  []string{"total_debt", "equity"},
		compute: ratio("total_debt", "equity", 1),
	},
	"profit_margin": {
		inputs:  []string{"net_income", "revenue"},
		compute: ratio("net_income", "revenue", 100),
	},
	"gross_margin": {
		inputs:  []string{"gross_profit", "revenue"},
		compute: ratio("gross_profit", "revenue", 100),
	},
	"operating_margin": {
		inputs:  []string{"operating_income", "revenue"},
		compute: ratio("operating_income", "revenue", 100),
	},
}

// SupportedMetrics returns the sorted metric names the calculator handles.
func SupportedMetrics() []string {
	names := make([]string, 0, len(metricDefs))
	for name := range metricDefs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Calculate computes a named financial ratio from the supplied values.
// Ratio metrics (current_ratio, quick_ratio, debt_to_equity) are plain
// quotients; the margin and return metrics are percentages.
func Calculate(metric string, values map[string]float64) (float64, error) {
	def, ok := metricDefs[strings.ToLower(metric)]
	if !ok {
		return 0, fmt.Errorf("unsupported metric %q, supported: %s",
			metric, strings.Join(SupportedMetrics(), ", "))
	}
	for _, in := range def.inputs {
		if _, ok := values[in]; !ok {
			return 0, fmt.Errorf("missing required value %q for %s", in, metric)
		}
	}
	return def.compute(values)
}
