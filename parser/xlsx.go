package parser

import (
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// XLSXParser extracts cell grids and formulas from Excel workbooks.
type XLSXParser struct{}

func (p *XLSXParser) SupportedFormats() []string { return []string{"xlsx", "xls"} }

func (p *XLSXParser) Parse(ctx context.Context, path string) (*ParsedContent, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	result := &ParsedContent{
		Metadata: map[string]string{"format": "xlsx"},
	}

	for sheetIdx, sheet := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rows, err := f.GetRows(sheet)
		if err != nil || len(rows) == 0 {
			continue
		}

		result.Tables = append(result.Tables, Table{
			Name: sheet,
			Rows: rows,
		})

		// Render the sheet as text so downstream search and extraction can
		// treat spreadsheets and PDFs uniformly.
		var text strings.Builder
		text.WriteString(sheet + "\n")
		for _, row := range rows {
			text.WriteString(strings.Join(row, " | "))
			text.WriteByte('\n')
		}
		result.Pages = append(result.Pages, Page{
			Number: sheetIdx + 1,
			Text:   text.String(),
		})

		result.Formulas = append(result.Formulas, sheetFormulas(f, sheet, rows)...)
	}

	if len(result.Tables) == 0 {
		return nil, fmt.Errorf("no data found in workbook")
	}

	result.NumPages = len(result.Pages)
	result.Metadata["sheet_count"] = fmt.Sprintf("%d", len(result.Tables))
	return result, nil
}

// sheetFormulas collects every formula cell on a sheet.
func sheetFormulas(f *excelize.File, sheet string, rows [][]string) []Formula {
	var formulas []Formula
	for r, row := range rows {
		for c := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				continue
			}
			expr, err := f.GetCellFormula(sheet, cell)
			if err != nil || expr == "" {
				continue
			}
			formulas = append(formulas, Formula{
				Sheet: sheet,
				Cell:  cell,
				Expr:  expr,
			})
		}
	}
	return formulas
}
