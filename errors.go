package finalyst

import "errors"

// Upload rejection errors (size, type, executable signature) live in the
// ingest package; the engine surfaces them unwrapped so callers can use
// errors.Is against ingest's sentinels.
var (
	// ErrUnsupportedFormat is returned when no parser handles the format.
	ErrUnsupportedFormat = errors.New("finalyst: unsupported document format")

	// ErrParsingFailed is returned when document parsing fails.
	ErrParsingFailed = errors.New("finalyst: parsing failed")

	// ErrEmbeddingFailed is returned when embedding generation fails.
	ErrEmbeddingFailed = errors.New("finalyst: embedding generation failed")

	// ErrVisionUnavailable is returned when the vision provider fails and
	// fallback mode is disabled.
	ErrVisionUnavailable = errors.New("finalyst: vision provider unavailable")

	// ErrExtractionFailed is returned when the KPI agent cannot produce a
	// usable payload.
	ErrExtractionFailed = errors.New("finalyst: kpi extraction failed")

	// ErrAgentBudgetExceeded is returned when the tool loop runs out of rounds.
	ErrAgentBudgetExceeded = errors.New("finalyst: agent exceeded tool round budget")

	// ErrResultInvalid is returned when an assembled result fails schema
	// validation. Results that fail validation are never returned to callers.
	ErrResultInvalid = errors.New("finalyst: analysis result failed validation")

	// ErrReportNotFound is returned when an archive entry does not exist.
	ErrReportNotFound = errors.New("finalyst: report not found")

	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("finalyst: invalid configuration")
)
