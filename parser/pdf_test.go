package parser

import "testing"

func TestDetectTables(t *testing.T) {
	text := "Annual results overview\n" +
		"Metric\tQ1\tQ2\n" +
		"Revenue\t100\t150\n" +
		"Net income\t20\t35\n" +
		"Closing prose follows here."

	tables := detectTables(text, 3)
	if len(tables) != 1 {
		t.Fatalf("expected 1 table, got %d", len(tables))
	}
	tab := tables[0]
	if tab.Page != 3 {
		t.Fatalf("expected page 3, got %d", tab.Page)
	}
	if tab.Name != "page_3_table_1" {
		t.Fatalf("unexpected table name %q", tab.Name)
	}
	if len(tab.Rows) != 3 || len(tab.Rows[0]) != 3 {
		t.Fatalf("unexpected shape: %v", tab.Rows)
	}
	if tab.Rows[1][0] != "Revenue" || tab.Rows[1][2] != "150" {
		t.Fatalf("unexpected row content: %v", tab.Rows[1])
	}
}

func TestDetectTablesSplitsOnColumnCountChange(t *testing.T) {
	text := "A  B\nC  D\nE  F  G\nH  I  J"
	tables := detectTables(text, 1)
	if len(tables) != 2 {
		t.Fatalf("expected 2 tables, got %d", len(tables))
	}
	if len(tables[0].Rows[0]) != 2 || len(tables[1].Rows[0]) != 3 {
		t.Fatalf("unexpected column counts: %v", tables)
	}
}

func TestDetectTablesIgnoresProse(t *testing.T) {
	text := "This is a normal paragraph.\nIt has no columns at all.\nJust sentences."
	if tables := detectTables(text, 1); len(tables) != 0 {
		t.Fatalf("expected no tables in prose, got %d", len(tables))
	}
}

func TestDetectTablesRequiresTwoRows(t *testing.T) {
	text := "Header1  Header2\nplain line\nmore prose"
	if tables := detectTables(text, 1); len(tables) != 0 {
		t.Fatalf("expected single column row to be discarded, got %d tables", len(tables))
	}
}

func TestSplitColumns(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"a\tb\tc", 3},
		{"a  b   c", 3},
		{"single", 1},
		{"  padded   cells  ", 2},
		{"", 0},
	}
	for _, tt := range tests {
		if got := splitColumns(tt.in); len(got) != tt.want {
			t.Errorf("splitColumns(%q) = %v, want %d columns", tt.in, got, tt.want)
		}
	}
}

func TestPageFromImageName(t *testing.T) {
	tests := []struct {
		name string
		want int
	}{
		{"report_page_3_Im0.png", 3},
		{"doc_12_Im1.jpg", 12},
		{"noindex.png", 0},
	}
	for _, tt := range tests {
		if got := pageFromImageName(tt.name); got != tt.want {
			t.Errorf("pageFromImageName(%q) = %d, want %d", tt.name, got, tt.want)
		}
	}
}
