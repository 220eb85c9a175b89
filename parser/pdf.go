package parser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// PDFParser extracts page text and table-shaped regions with ledongthuc/pdf
// and embedded raster images with pdfcpu.
type PDFParser struct{}

func (p *PDFParser) SupportedFormats() []string { return []string{"pdf"} }

func (p *PDFParser) Parse(ctx context.Context, path string) (*ParsedContent, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer f.Close()

	result := &ParsedContent{
		NumPages: reader.NumPage(),
		Metadata: map[string]string{"format": "pdf"},
	}

	for i := 1; i <= result.NumPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			// Skip pages that fail to extract
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		result.Pages = append(result.Pages, Page{Number: i, Text: text})
		result.Tables = append(result.Tables, detectTables(text, i)...)
	}

	if len(result.Pages) == 0 {
		return nil, fmt.Errorf("no extractable text in PDF")
	}

	images, err := extractImages(path)
	if err != nil {
		// Image extraction failure is not fatal: text and tables are still
		// usable, chart analysis simply gets nothing to look at.
		result.Metadata["image_extraction_error"] = err.Error()
	} else {
		result.Images = images
	}

	return result, nil
}

// columnGap matches runs of whitespace that separate table columns in
// extracted PDF text (two or more spaces, or a tab).
var columnGap = regexp.MustCompile(`\t| {2,}`)

// detectTables finds consecutive lines that split into the same number of
// columns and groups them into tables. Requires at least two columns and
// two rows to avoid flagging ordinary prose.
func detectTables(pageText string, pageNum int) []Table {
	var tables []Table
	var rows [][]string

	flush := func() {
		if len(rows) >= 2 {
			tables = append(tables, Table{
				Name: fmt.Sprintf("page_%d_table_%d", pageNum, len(tables)+1),
				Page: pageNum,
				Rows: rows,
			})
		}
		rows = nil
	}

	for _, line := range strings.Split(pageText, "\n") {
		cols := splitColumns(line)
		if len(cols) >= 2 {
			if len(rows) > 0 && len(rows[len(rows)-1]) != len(cols) {
				flush()
			}
			rows = append(rows, cols)
		} else {
			flush()
		}
	}
	flush()

	return tables
}

func splitColumns(line string) []string {
	var cols []string
	for _, c := range columnGap.Split(strings.TrimSpace(line), -1) {
		if c = strings.TrimSpace(c); c != "" {
			cols = append(cols, c)
		}
	}
	return cols
}

// extractImages writes the PDF's embedded raster images into a per-document
// temp directory and returns references to them.
func extractImages(path string) ([]ImageRef, error) {
	outDir, err := os.MkdirTemp("", "finalyst-images-*")
	if err != nil {
		return nil, fmt.Errorf("creating image dir: %w", err)
	}

	if err := api.ExtractImagesFile(path, outDir, nil, nil); err != nil {
		os.RemoveAll(outDir)
		return nil, fmt.Errorf("extracting images: %w", err)
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		return nil, fmt.Errorf("listing images: %w", err)
	}

	var images []ImageRef
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		images = append(images, ImageRef{
			Path: filepath.Join(outDir, e.Name()),
			Page: pageFromImageName(e.Name()),
		})
	}
	return images, nil
}

// pdfcpu names extracted images like "<stem>_page_3_Im0.png".
var imagePagePattern = regexp.MustCompile(`_(?:page_)?(\d+)_`)

func pageFromImageName(name string) int {
	m := imagePagePattern.FindStringSubmatch(name)
	if m == nil {
		return 0
	}
	var page int
	fmt.Sscanf(m[1], "%d", &page)
	return page
}
