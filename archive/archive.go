// Package archive stores embeddings of previously analyzed reports and
// serves nearest-neighbour searches over them. The index is disk-backed
// SQLite with sqlite-vec and is reloaded whole at process start.
package archive

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

// ErrNotFound is returned when a report id has no archive entry.
var ErrNotFound = errors.New("archive: report not found")

// Entry is one archived report.
type Entry struct {
	ID          int64  `json:"-"`
	ReportID    string `json:"report_id"`
	Filename    string `json:"filename"`
	Company     string `json:"company,omitempty"`
	ReportType  string `json:"report_type"`
	ContentHash string `json:"content_hash"`
	Summary     string `json:"summary,omitempty"`
	Metadata    string `json:"metadata,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// Match is one similarity-search hit.
type Match struct {
	Entry
	Score float64 `json:"score"`
}

// Record is one analysis_log row.
type Record struct {
	ReportID       string
	ReportType     string
	Filename       string
	KPICount       int
	ChartCount     int
	SimilarCount   int
	WarningCount   int
	ProcessingSecs float64
}

// Store wraps the SQLite archive database.
type Store struct {
	db           *sql.DB
	embeddingDim int
}

// New opens (or creates) the archive at dbPath and initialises the schema.
func New(dbPath string, embeddingDim int) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating archive directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging archive: %w", err)
	}

	if _, err := db.Exec(schemaSQL(embeddingDim)); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	return &Store{db: db, embeddingDim: embeddingDim}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// EmbeddingDim returns the configured embedding dimension.
func (s *Store) EmbeddingDim() int {
	return s.embeddingDim
}

// Add stores an entry and its embedding atomically. Returns the rowid.
func (s *Store) Add(ctx context.Context, e Entry, embedding []float32) (int64, error) {
	if len(embedding) != s.embeddingDim {
		return 0, fmt.Errorf("embedding dimension %d does not match index dimension %d",
			len(embedding), s.embeddingDim)
	}

	var rowid int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO reports (report_id, filename, company, report_type, content_hash, summary, metadata)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, e.ReportID, e.Filename, e.Company, e.ReportType, e.ContentHash, e.Summary, e.Metadata)
		if err != nil {
			return err
		}
		rowid, err = res.LastInsertId()
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			"INSERT INTO vec_reports (report_rowid, embedding) VALUES (?, ?)",
			rowid, serializeFloat32(embedding))
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("archiving report: %w", err)
	}
	return rowid, nil
}

// Search returns the top-k archive entries nearest to the query embedding.
func (s *Store) Search(ctx context.Context, embedding []float32, k int) ([]Match, error) {
	if k <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT v.report_rowid, v.distance,
			r.report_id, r.filename, r.company, r.report_type,
			r.content_hash, r.summary, r.created_at
		FROM vec_reports v
		JOIN reports r ON r.id = v.report_rowid
		WHERE v.embedding MATCH ? AND k = ?
		ORDER BY v.distance
	`, serializeFloat32(embedding), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		var distance float64
		var company, summary sql.NullString
		if err := rows.Scan(&m.ID, &distance,
			&m.ReportID, &m.Filename, &company, &m.ReportType,
			&m.ContentHash, &summary, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Company = company.String
		m.Summary = summary.String
		// Cosine distance to similarity score.
		m.Score = 1.0 - distance
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// Get retrieves an entry by its public report id.
func (s *Store) Get(ctx context.Context, reportID string) (*Entry, error) {
	e := &Entry{}
	var company, summary, metadata sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, report_id, filename, company, report_type, content_hash, summary, metadata, created_at
		FROM reports WHERE report_id = ?
	`, reportID).Scan(&e.ID, &e.ReportID, &e.Filename, &company, &e.ReportType,
		&e.ContentHash, &summary, &metadata, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	e.Company = company.String
	e.Summary = summary.String
	e.Metadata = metadata.String
	return e, nil
}

// List returns all archive entries, newest first.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, report_id, filename, company, report_type, content_hash, summary, metadata, created_at
		FROM reports ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var company, summary, metadata sql.NullString
		if err := rows.Scan(&e.ID, &e.ReportID, &e.Filename, &company, &e.ReportType,
			&e.ContentHash, &summary, &metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Company = company.String
		e.Summary = summary.String
		e.Metadata = metadata.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Delete removes an entry and its embedding. The only way archive contents
// shrink.
func (s *Store) Delete(ctx context.Context, reportID string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var rowid int64
		err := tx.QueryRowContext(ctx,
			"SELECT id FROM reports WHERE report_id = ?", reportID).Scan(&rowid)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			"DELETE FROM vec_reports WHERE report_rowid = ?", rowid); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, "DELETE FROM reports WHERE id = ?", rowid)
		return err
	})
}

// HasContentHash reports whether a report with this content hash is already
// archived, used to skip duplicate entries.
func (s *Store) HasContentHash(ctx context.Context, hash string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM reports WHERE content_hash = ?", hash).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// LogAnalysis appends one analysis_log row. Failures are the caller's to
// ignore; the log is diagnostic.
func (s *Store) LogAnalysis(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO analysis_log (report_id, report_type, filename, kpi_count,
			chart_count, similar_count, warning_count, processing_secs)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ReportID, rec.ReportType, rec.Filename, rec.KPICount,
		rec.ChartCount, rec.SimilarCount, rec.WarningCount, rec.ProcessingSecs)
	return err
}

// Stats holds archive object counts.
type Stats struct {
	Reports    int `json:"reports"`
	Embeddings int `json:"embeddings"`
	Analyses   int `json:"analyses"`
}

// Stats returns counts of reports, embeddings, and logged analyses.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	queries := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM reports", &stats.Reports},
		{"SELECT COUNT(*) FROM vec_reports", &stats.Embeddings},
		{"SELECT COUNT(*) FROM analysis_log", &stats.Analyses},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("counting %s: %w", q.query, err)
		}
	}
	return stats, nil
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// serializeFloat32 converts a float32 slice to little-endian bytes for sqlite-vec.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}
