package archive

import "fmt"

// schemaSQL returns the DDL for the archive. embeddingDim controls the
// vec0 virtual table dimension.
func schemaSQL(embeddingDim int) string {
	return fmt.Sprintf(`
-- Archived analysis results available for similarity search.
-- Entries are immutable; removal is an explicit management action.
CREATE TABLE IF NOT EXISTS reports (
    id INTEGER PRIMARY KEY,
    report_id TEXT NOT NULL UNIQUE,
    filename TEXT NOT NULL,
    company TEXT,
    report_type TEXT NOT NULL,
    content_hash TEXT NOT NULL,
    summary TEXT,
    metadata JSON,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Report embeddings via sqlite-vec. Cosine distance so scores read as
-- similarity after 1-d conversion.
CREATE VIRTUAL TABLE IF NOT EXISTS vec_reports USING vec0(
    report_rowid INTEGER PRIMARY KEY,
    embedding float[%d] distance_metric=cosine
);

-- Per-request audit log
CREATE TABLE IF NOT EXISTS analysis_log (
    id INTEGER PRIMARY KEY,
    report_id TEXT NOT NULL,
    report_type TEXT,
    filename TEXT,
    kpi_count INTEGER DEFAULT 0,
    chart_count INTEGER DEFAULT 0,
    similar_count INTEGER DEFAULT 0,
    warning_count INTEGER DEFAULT 0,
    processing_secs REAL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_reports_hash ON reports(content_hash);
CREATE INDEX IF NOT EXISTS idx_reports_company ON reports(company);
CREATE INDEX IF NOT EXISTS idx_analysis_log_report ON analysis_log(report_id);
`, embeddingDim)
}
