//go:build cgo

package archive

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "archive.db")
	s, err := New(dbPath, 4) // dim=4 for test vectors
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleEntry(id string) Entry {
	return Entry{
		ReportID:    id,
		Filename:    "q3.pdf",
		Company:     "Acme",
		ReportType:  "balance_sheet",
		ContentHash: "hash-" + id,
		Summary:     "Acme balance sheet Q3",
	}
}

// ---------------------------------------------------------------------------
// Construction
// ---------------------------------------------------------------------------

func TestNew(t *testing.T) {
	s := newTestStore(t)
	if s.EmbeddingDim() != 4 {
		t.Fatalf("expected embedding dim 4, got %d", s.EmbeddingDim())
	}
}

func TestNewCreatesParentDir(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "sub", "dir", "archive.db")
	s, err := New(dbPath, 4)
	if err != nil {
		t.Fatalf("creating store in nested dir: %v", err)
	}
	s.Close()
}

// ---------------------------------------------------------------------------
// Add / Get / List / Delete
// ---------------------------------------------------------------------------

func TestAddAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rowid, err := s.Add(ctx, sampleEntry("report_00000001"), []float32{1, 0, 0, 0})
	if err != nil {
		t.Fatalf("adding entry: %v", err)
	}
	if rowid == 0 {
		t.Fatal("expected non-zero rowid")
	}

	e, err := s.Get(ctx, "report_00000001")
	if err != nil {
		t.Fatalf("getting entry: %v", err)
	}
	if e.Company != "Acme" || e.ReportType != "balance_sheet" {
		t.Fatalf("unexpected entry: %+v", e)
	}
	if e.CreatedAt == "" {
		t.Fatal("expected created_at to be set")
	}
}

func TestAddRejectsWrongDimension(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Add(context.Background(), sampleEntry("report_00000002"), []float32{1, 2}); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestGetNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Get(context.Background(), "report_deadbeef"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"report_00000001", "report_00000002"} {
		if _, err := s.Add(ctx, sampleEntry(id), []float32{1, 0, 0, 0}); err != nil {
			t.Fatalf("adding %s: %v", id, err)
		}
	}

	entries, err := s.List(ctx)
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
}

func TestDeleteRemovesEmbedding(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Add(ctx, sampleEntry("report_00000003"), []float32{0, 1, 0, 0}); err != nil {
		t.Fatalf("adding: %v", err)
	}
	if err := s.Delete(ctx, "report_00000003"); err != nil {
		t.Fatalf("deleting: %v", err)
	}
	if _, err := s.Get(ctx, "report_00000003"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}

	matches, err := s.Search(ctx, []float32{0, 1, 0, 0}, 5)
	if err != nil {
		t.Fatalf("searching: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected no matches after delete, got %d", len(matches))
	}
}

func TestDeleteNotFound(t *testing.T) {
	s := newTestStore(t)
	if err := s.Delete(context.Background(), "report_deadbeef"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Search
// ---------------------------------------------------------------------------

func TestSearchRanksByDistance(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	vectors := map[string][]float32{
		"report_0000000a": {1, 0, 0, 0},
		"report_0000000b": {0, 1, 0, 0},
		"report_0000000c": {0.9, 0.1, 0, 0},
	}
	for id, v := range vectors {
		if _, err := s.Add(ctx, sampleEntry(id), v); err != nil {
			t.Fatalf("adding %s: %v", id, err)
		}
	}

	matches, err := s.Search(ctx, []float32{1, 0, 0, 0}, 2)
	if err != nil {
		t.Fatalf("searching: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].ReportID != "report_0000000a" {
		t.Fatalf("expected exact match first, got %s", matches[0].ReportID)
	}
	if matches[0].Score < matches[1].Score {
		t.Fatalf("expected descending scores, got %f then %f", matches[0].Score, matches[1].Score)
	}
}

func TestSearchZeroK(t *testing.T) {
	s := newTestStore(t)
	matches, err := s.Search(context.Background(), []float32{1, 0, 0, 0}, 0)
	if err != nil {
		t.Fatalf("searching with k=0: %v", err)
	}
	if matches != nil {
		t.Fatalf("expected nil matches, got %v", matches)
	}
}

// ---------------------------------------------------------------------------
// Dedupe and diagnostics
// ---------------------------------------------------------------------------

func TestHasContentHash(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	exists, err := s.HasContentHash(ctx, "hash-report_00000009")
	if err != nil {
		t.Fatalf("checking hash: %v", err)
	}
	if exists {
		t.Fatal("expected hash to be absent")
	}

	if _, err := s.Add(ctx, sampleEntry("report_00000009"), []float32{0, 0, 1, 0}); err != nil {
		t.Fatalf("adding: %v", err)
	}

	exists, err = s.HasContentHash(ctx, "hash-report_00000009")
	if err != nil {
		t.Fatalf("checking hash: %v", err)
	}
	if !exists {
		t.Fatal("expected hash to be present")
	}
}

func TestLogAnalysisAndStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.LogAnalysis(ctx, Record{
		ReportID:       "report_00000010",
		ReportType:     "income_statement",
		Filename:       "fy.xlsx",
		KPICount:       4,
		ChartCount:     1,
		ProcessingSecs: 2.5,
	})
	if err != nil {
		t.Fatalf("logging analysis: %v", err)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Analyses != 1 {
		t.Fatalf("expected 1 logged analysis, got %d", stats.Analyses)
	}
	if stats.Reports != 0 {
		t.Fatalf("expected 0 reports, got %d", stats.Reports)
	}
}

func TestSerializeFloat32(t *testing.T) {
	got := serializeFloat32([]float32{1.0})
	// 1.0 as little-endian IEEE-754: 00 00 80 3f
	want := []byte{0x00, 0x00, 0x80, 0x3f}
	if len(got) != 4 {
		t.Fatalf("expected 4 bytes, got %d", len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d: expected %#x, got %#x", i, want[i], got[i])
		}
	}
}
