// Package ingest validates uploaded files before any parsing happens.
// Rejected files never reach a parser.
package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	// ErrFileTooLarge is returned when an upload exceeds the size ceiling.
	ErrFileTooLarge = errors.New("ingest: file exceeds maximum upload size")

	// ErrDisallowedType is returned for extensions outside the allowlist.
	ErrDisallowedType = errors.New("ingest: file type not allowed")

	// ErrExecutable is returned when a file starts with an executable signature.
	ErrExecutable = errors.New("ingest: executable files are not allowed")

	// ErrInvalidInput is returned for malformed caller-supplied values.
	ErrInvalidInput = errors.New("ingest: invalid input")
)

// Executable signatures checked before dispatching to a parser.
var executableMagics = [][]byte{
	[]byte("MZ"),             // PE (EXE/DLL)
	{0x7f, 'E', 'L', 'F'},    // ELF
	{0xfe, 0xed, 0xfa, 0xce}, // Mach-O 32-bit
	{0xfe, 0xed, 0xfa, 0xcf}, // Mach-O 64-bit
	{0xcf, 0xfa, 0xed, 0xfe}, // Mach-O little-endian
}

// Validator enforces upload constraints.
type Validator struct {
	maxBytes   int64
	extensions map[string]bool
}

// NewValidator builds a Validator. Extensions are matched case-insensitively
// and must include the leading dot.
func NewValidator(maxBytes int64, extensions []string) *Validator {
	exts := make(map[string]bool, len(extensions))
	for _, e := range extensions {
		exts[strings.ToLower(e)] = true
	}
	return &Validator{maxBytes: maxBytes, extensions: exts}
}

// ValidateFile checks a file on disk: size ceiling, extension allowlist,
// and executable signature. Returns nil when the file may be parsed.
func (v *Validator) ValidateFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	if err := v.checkExtension(filepath.Ext(path)); err != nil {
		return err
	}
	if info.Size() > v.maxBytes {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrFileTooLarge, info.Size(), v.maxBytes)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	defer f.Close()

	header := make([]byte, 4)
	n, err := f.Read(header)
	if err != nil && err != io.EOF {
		return fmt.Errorf("%w: reading header: %v", ErrInvalidInput, err)
	}
	return checkMagic(header[:n])
}

// ValidateUpload checks declared size and extension before the body has been
// written to disk. Used by the HTTP handler to reject early.
func (v *Validator) ValidateUpload(filename string, size int64) error {
	if err := v.checkExtension(filepath.Ext(filename)); err != nil {
		return err
	}
	if size > v.maxBytes {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrFileTooLarge, size, v.maxBytes)
	}
	return nil
}

// MaxBytes returns the configured size ceiling.
func (v *Validator) MaxBytes() int64 { return v.maxBytes }

func (v *Validator) checkExtension(ext string) error {
	ext = strings.ToLower(ext)
	if ext == "" || !v.extensions[ext] {
		return fmt.Errorf("%w: %q", ErrDisallowedType, ext)
	}
	return nil
}

func checkMagic(header []byte) error {
	for _, magic := range executableMagics {
		if len(header) >= len(magic) && bytes.Equal(header[:len(magic)], magic) {
			return ErrExecutable
		}
	}
	return nil
}

var (
	htmlTagPattern     = regexp.MustCompile(`<[^>]*>`)
	companyNamePattern = regexp.MustCompile(`^[а-яА-ЯёЁa-zA-Z0-9\s\-"'.]+$`)
)

// SanitizeCompanyName strips markup and enforces length and character
// constraints on a caller-supplied company name.
func SanitizeCompanyName(name string) (string, error) {
	// Strip HTML tags before validating characters.
	clean := strings.TrimSpace(htmlTagPattern.ReplaceAllString(name, ""))

	if len(clean) < 2 {
		return "", fmt.Errorf("%w: company name too short", ErrInvalidInput)
	}
	if len(clean) > 200 {
		return "", fmt.Errorf("%w: company name too long", ErrInvalidInput)
	}
	if !companyNamePattern.MatchString(clean) {
		return "", fmt.Errorf("%w: company name contains invalid characters", ErrInvalidInput)
	}
	return clean, nil
}
