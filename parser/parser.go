// Package parser extracts text, tables, and images from uploaded reports.
package parser

import (
	"context"
	"strings"
)

// ParsedContent is what a parser produces from a document file.
// A parser either returns a complete ParsedContent or an error; there is no
// silent partial output.
type ParsedContent struct {
	Pages    []Page            // Ordered page text blocks
	Tables   []Table           // Detected tabular data
	Images   []ImageRef        // Extracted raster images (chart candidates)
	Formulas []Formula         // Spreadsheet formulas (Excel only)
	NumPages int
	Metadata map[string]string
}

// Page holds the plain text of one document page.
type Page struct {
	Number int
	Text   string
}

// Table is one detected table with its location in the source document.
type Table struct {
	Name string     // sheet name for Excel, synthetic label for PDF
	Page int        // 0 for spreadsheet tables
	Rows [][]string
}

// ImageRef points at an image file extracted from the document.
type ImageRef struct {
	Path string
	Page int
}

// Formula is a spreadsheet formula with its cell coordinate.
type Formula struct {
	Sheet string
	Cell  string
	Expr  string
}

// Text concatenates all page text into one block, pages separated by
// blank lines.
func (p *ParsedContent) Text() string {
	parts := make([]string, 0, len(p.Pages))
	for _, pg := range p.Pages {
		if t := strings.TrimSpace(pg.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n\n")
}

// Parser can parse a specific document format.
type Parser interface {
	Parse(ctx context.Context, path string) (*ParsedContent, error)
	SupportedFormats() []string
}
