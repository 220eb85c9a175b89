package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mkravets/finalyst"
	"github.com/mkravets/finalyst/archive"
	"github.com/mkravets/finalyst/ingest"
	"github.com/mkravets/finalyst/report"
)

// stubEngine fails the upload with a fixed error and counts Analyze calls.
type stubEngine struct {
	analyzeCalls int
	analyzeErr   error
}

func (s *stubEngine) Analyze(ctx context.Context, path string, opts ...finalyst.AnalyzeOption) (*report.AnalysisResult, error) {
	s.analyzeCalls++
	return nil, s.analyzeErr
}

func (s *stubEngine) ListReports(ctx context.Context) ([]archive.Entry, error) { return nil, nil }
func (s *stubEngine) DeleteReport(ctx context.Context, id string) error        { return nil }
func (s *stubEngine) Archive() *archive.Store                                  { return nil }
func (s *stubEngine) Close() error                                             { return nil }

func multipartUpload(t *testing.T, filename string, size int) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("creating form file: %v", err)
	}
	if _, err := fw.Write(bytes.Repeat([]byte("a"), size)); err != nil {
		t.Fatalf("writing form file: %v", err)
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func postAnalyze(t *testing.T, h *handler, filename string, size int) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartUpload(t, filename, size)
	req := httptest.NewRequest("POST", "/api/v1/analyze", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.handleAnalyze(rec, req)
	return rec
}

func TestAnalyzeRejectsUploadBeforeEngine(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		size     int
		want     int
	}{
		{"disallowed extension", "report.exe", 10, http.StatusUnsupportedMediaType},
		{"declared size over limit", "report.pdf", 4096, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := &stubEngine{analyzeErr: errors.New("must not be reached")}
			h := newHandler(eng, ingest.NewValidator(1024, []string{".pdf", ".xlsx"}))

			rec := postAnalyze(t, h, tt.filename, tt.size)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rec.Code)
			}
			if eng.analyzeCalls != 0 {
				t.Fatalf("rejected upload reached the engine %d times", eng.analyzeCalls)
			}
		})
	}
}

func TestAnalyzeOversizedBodyReturns413(t *testing.T) {
	eng := &stubEngine{analyzeErr: errors.New("must not be reached")}
	h := newHandler(eng, ingest.NewValidator(1024, []string{".pdf"}))

	// Past the body reader's cap, so the multipart parse itself fails.
	rec := postAnalyze(t, h, "report.pdf", 2<<20)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 for oversized body, got %d", rec.Code)
	}
	if eng.analyzeCalls != 0 {
		t.Fatal("oversized upload must not reach the engine")
	}
}

func TestAnalyzeValidUploadReachesEngine(t *testing.T) {
	eng := &stubEngine{analyzeErr: finalyst.ErrParsingFailed}
	h := newHandler(eng, ingest.NewValidator(1024, []string{".pdf"}))

	rec := postAnalyze(t, h, "report.pdf", 100)
	if eng.analyzeCalls != 1 {
		t.Fatalf("expected one Analyze call, got %d", eng.analyzeCalls)
	}
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 from the engine error, got %d", rec.Code)
	}
}

func TestAnalyzeErrorStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"too large", ingest.ErrFileTooLarge, http.StatusRequestEntityTooLarge},
		{"disallowed type", ingest.ErrDisallowedType, http.StatusUnsupportedMediaType},
		{"executable", ingest.ErrExecutable, http.StatusUnsupportedMediaType},
		{"unsupported format", finalyst.ErrUnsupportedFormat, http.StatusUnsupportedMediaType},
		{"bad input", ingest.ErrInvalidInput, http.StatusBadRequest},
		{"parse failure", finalyst.ErrParsingFailed, http.StatusUnprocessableEntity},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"extraction failure", finalyst.ErrExtractionFailed, http.StatusInternalServerError},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("analyzing upload: %w", tt.err)
			status, msg := analyzeErrorStatus(wrapped)
			if status != tt.want {
				t.Fatalf("expected status %d, got %d", tt.want, status)
			}
			// Responses must not leak the internal error chain.
			if strings.Contains(msg, "analyzing upload") || strings.Contains(msg, "boom") {
				t.Fatalf("message leaks internals: %q", msg)
			}
		})
	}
}
