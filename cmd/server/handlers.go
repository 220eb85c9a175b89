package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/mkravets/finalyst"
	"github.com/mkravets/finalyst/ingest"
	"github.com/mkravets/finalyst/report"
)

type handler struct {
	engine    finalyst.Engine
	validator *ingest.Validator
}

func newHandler(e finalyst.Engine, v *ingest.Validator) *handler {
	return &handler{engine: e, validator: v}
}

// POST /api/v1/analyze
// Multipart upload: "file" plus optional "report_type", "company", and
// "archive" form fields.
func (h *handler) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Minute)
	defer cancel()

	r.Body = http.MaxBytesReader(w, r.Body, h.validator.MaxBytes()+1<<20) // headroom for form fields
	if err := r.ParseMultipartForm(h.validator.MaxBytes()); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file exceeds the upload size limit")
			return
		}
		writeError(w, http.StatusBadRequest, "expected multipart upload with a 'file' field")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	// Declared size and extension are checked before anything hits the disk.
	if err := h.validator.ValidateUpload(header.Filename, header.Size); err != nil {
		status, msg := analyzeErrorStatus(err)
		writeError(w, status, msg)
		return
	}

	reportType, err := report.ParseReportType(r.FormValue("report_type"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Sanitise filename to prevent path traversal.
	safeName := filepath.Base(header.Filename)

	tmpDir, err := os.MkdirTemp("", "finalyst-upload-*")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to process file")
		slog.Error("creating temp dir", "error", err)
		return
	}
	defer os.RemoveAll(tmpDir)

	tmpPath := filepath.Join(tmpDir, safeName)
	dst, err := os.Create(tmpPath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to process file")
		slog.Error("creating temp file", "error", err)
		return
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		writeError(w, http.StatusInternalServerError, "failed to save file")
		slog.Error("saving uploaded file", "error", err)
		return
	}
	dst.Close()

	opts := []finalyst.AnalyzeOption{finalyst.WithReportType(reportType)}
	if company := r.FormValue("company"); company != "" {
		opts = append(opts, finalyst.WithCompany(company))
	}
	if r.FormValue("archive") == "true" {
		opts = append(opts, finalyst.WithArchive())
	}

	result, err := h.engine.Analyze(ctx, tmpPath, opts...)
	if err != nil {
		status, msg := analyzeErrorStatus(err)
		writeError(w, status, msg)
		slog.Error("analyze error", "file", safeName, "error", err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// analyzeErrorStatus maps pipeline errors to HTTP statuses without leaking
// internal detail.
func analyzeErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ingest.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, "file exceeds the upload size limit"
	case errors.Is(err, ingest.ErrDisallowedType),
		errors.Is(err, ingest.ErrExecutable),
		errors.Is(err, finalyst.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType, "unsupported file type"
	case errors.Is(err, ingest.ErrInvalidInput):
		return http.StatusBadRequest, "invalid input"
	case errors.Is(err, finalyst.ErrParsingFailed):
		return http.StatusUnprocessableEntity, "document could not be parsed"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "analysis timed out"
	default:
		return http.StatusInternalServerError, "analysis failed"
	}
}

// GET /api/v1/reports
func (h *handler) handleListReports(w http.ResponseWriter, r *http.Request) {
	reports, err := h.engine.ListReports(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list reports")
		slog.Error("list reports error", "error", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reports": reports,
	})
}

// DELETE /api/v1/reports/{id}
func (h *handler) handleDeleteReport(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "report id is required")
		return
	}

	if err := h.engine.DeleteReport(r.Context(), id); err != nil {
		if errors.Is(err, finalyst.ErrReportNotFound) {
			writeError(w, http.StatusNotFound, "report not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "delete failed")
		slog.Error("delete error", "report_id", id, "error", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// GET /health
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
