package report

// Schemas here are built as generic maps (JSON-Schema draft 2020-12 subset)
// so the same definition can be sent to a model as an output constraint and
// compiled locally for validation.

func metricSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"name":       map[string]any{"type": "string", "minLength": 1},
			"value":      map[string]any{"type": "number"},
			"unit":       map[string]any{"type": "string", "minLength": 1},
			"period":     map[string]any{"type": "string", "pattern": `^\d{4}-\d{2}-\d{2}$`},
			"confidence": map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
			"source": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"properties": map[string]any{
					"page":  map[string]any{"type": "integer", "minimum": 0},
					"table": map[string]any{"type": "string"},
				},
			},
		},
		"required": []string{"name", "value", "unit", "period"},
	}
}

func chartSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"chart_type": map[string]any{
				"type": "string",
				"enum": []string{"line", "bar", "pie", "unknown"},
			},
			"title":            map[string]any{"type": "string"},
			"extracted_values": map[string]any{"type": "object", "additionalProperties": map[string]any{"type": "number"}},
			"trends":           map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"confidence":       map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
		},
		"required": []string{"chart_type", "confidence"},
	}
}

// KPIPayloadSchema constrains the KPI agent's final payload: a flat map of
// metric slots, each either null or a FinancialMetric. The slot names depend
// on the report type being extracted.
func KPIPayloadSchema(reportType ReportType) map[string]any {
	var slots []string
	switch reportType {
	case IncomeStatement:
		slots = []string{"revenue", "gross_profit", "operating_income", "net_income"}
	default:
		slots = []string{"total_assets", "total_liabilities", "equity", "current_assets", "current_liabilities"}
	}

	props := make(map[string]any, len(slots))
	for _, s := range slots {
		props[s] = map[string]any{
			"oneOf": []any{metricSchema(), map[string]any{"type": "null"}},
		}
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
	}
}

// ResultSchema describes a fully assembled AnalysisResult.
func ResultSchema() map[string]any {
	kpiGroup := func(slots ...string) map[string]any {
		props := make(map[string]any, len(slots))
		for _, s := range slots {
			props[s] = map[string]any{
				"oneOf": []any{metricSchema(), map[string]any{"type": "null"}},
			}
		}
		return map[string]any{
			"type":                 "object",
			"additionalProperties": false,
			"properties":           props,
		}
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"report_id": map[string]any{"type": "string", "pattern": `^report_[0-9a-f]{8}$`},
			"report_type": map[string]any{
				"type": "string",
				"enum": []string{"balance_sheet", "income_statement", "cash_flow", "annual_report"},
			},
			"company_name": map[string]any{"type": "string", "minLength": 2, "maxLength": 200},
			"report_date":  map[string]any{"type": "string", "pattern": `^\d{4}-\d{2}-\d{2}$`},
			"balance_sheet": map[string]any{
				"oneOf": []any{
					kpiGroup("total_assets", "total_liabilities", "equity", "current_assets", "current_liabilities"),
					map[string]any{"type": "null"},
				},
			},
			"income_statement": map[string]any{
				"oneOf": []any{
					kpiGroup("revenue", "gross_profit", "operating_income", "net_income"),
					map[string]any{"type": "null"},
				},
			},
			"charts": map[string]any{"type": "array", "items": chartSchema()},
			"similar_reports": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"properties": map[string]any{
						"report_id":   map[string]any{"type": "string"},
						"filename":    map[string]any{"type": "string"},
						"company":     map[string]any{"type": "string"},
						"report_type": map[string]any{"type": "string"},
						"score":       map[string]any{"type": "number"},
					},
					"required": []string{"report_id", "score"},
				},
			},
			"raw_text":        map[string]any{"type": "string", "maxLength": 5000},
			"warnings":        map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"metadata":        map[string]any{"type": "object"},
			"processing_time": map[string]any{"type": "number", "minimum": 0},
		},
		"required": []string{"report_id", "report_type", "report_date", "charts", "similar_reports", "raw_text", "processing_time"},
	}
}
