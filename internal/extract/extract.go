// Package extract converts uploaded files into plain text.
//
// Format dispatch is a closed set of strategies selected by Classify, a pure
// function of the declared content type and the file extension. Adding a
// format means adding a Kind, a classifier rule, and one extract function;
// call sites never change.
package extract

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
)

// Kind identifies the extraction strategy for a file.
type Kind int

const (
	// KindUnsupported means no extraction strategy matches; uploads of this
	// kind are rejected before a document is registered.
	KindUnsupported Kind = iota

	// KindPDF extracts per-page text from PDF files.
	KindPDF

	// KindWord extracts paragraph and table text from .docx files.
	KindWord

	// KindHTML extracts visible text from HTML files.
	KindHTML

	// KindPlainText reads the file as text directly.
	KindPlainText

	// KindUnknown is a best-effort text decode with invalid-byte tolerance.
	KindUnknown
)

// String returns a short name for the kind, used in logs.
func (k Kind) String() string {
	switch k {
	case KindPDF:
		return "pdf"
	case KindWord:
		return "word"
	case KindHTML:
		return "html"
	case KindPlainText:
		return "text"
	case KindUnknown:
		return "unknown"
	default:
		return "unsupported"
	}
}

var (
	// ErrUnsupported indicates no extraction strategy matches the file.
	ErrUnsupported = errors.New("unsupported file type")

	// ErrNoContent indicates extraction produced no usable text. The caller
	// must treat this as a hard pipeline failure, never as an empty success.
	ErrNoContent = errors.New("no extractable content")
)

// textExtensions are extensions read as plain text regardless of the
// declared content type.
var textExtensions = map[string]bool{
	".txt": true, ".md": true, ".markdown": true, ".csv": true,
	".log": true, ".json": true, ".yaml": true, ".yml": true,
	".xml": true, ".rst": true,
}

// binaryPrefixes are content-type prefixes with no text to extract.
var binaryPrefixes = []string{"image/", "audio/", "video/", "font/"}

// binaryExtensions are rejected outright.
var binaryExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true,
	".mp3": true, ".mp4": true, ".mov": true, ".zip": true, ".gz": true,
	".tar": true, ".exe": true, ".so": true, ".dylib": true, ".doc": true,
}

// Classify maps (declared content type, filename) to an extraction Kind.
// Pure function; the declared type wins over the extension when both match
// a strategy.
func Classify(contentType, filename string) Kind {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	ext := strings.ToLower(filepath.Ext(filename))

	switch {
	case ct == "application/pdf" || ext == ".pdf":
		return KindPDF
	case ct == "application/vnd.openxmlformats-officedocument.wordprocessingml.document" || ext == ".docx":
		return KindWord
	case ct == "text/html" || ext == ".html" || ext == ".htm":
		return KindHTML
	case strings.HasPrefix(ct, "text/") || textExtensions[ext]:
		return KindPlainText
	}

	for _, prefix := range binaryPrefixes {
		if strings.HasPrefix(ct, prefix) {
			return KindUnsupported
		}
	}
	if binaryExtensions[ext] {
		return KindUnsupported
	}

	return KindUnknown
}

// Engine extracts plain text from files on disk.
type Engine struct {
	logger *slog.Logger
}

// NewEngine creates an extraction engine. logger nil falls back to
// slog.Default().
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger}
}

// Extract converts the file at path into plain text, dispatching on the
// classification of (contentType, path). A non-nil error always means the
// document cannot be ingested; there is no "empty but successful" result.
func (e *Engine) Extract(path, contentType string) (string, error) {
	kind := Classify(contentType, path)

	var text string
	var err error
	switch kind {
	case KindPDF:
		text, err = extractPDF(path)
	case KindWord:
		text, err = e.extractWord(path)
	case KindHTML:
		text, err = extractHTML(path)
	case KindPlainText:
		text, err = extractText(path)
	case KindUnknown:
		text, err = extractLossy(path)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupported, contentType)
	}
	if err != nil {
		return "", fmt.Errorf("extracting %s as %s: %w", filepath.Base(path), kind, err)
	}

	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: %s", ErrNoContent, filepath.Base(path))
	}

	e.logger.Debug("extracted text", "file", filepath.Base(path), "kind", kind.String(),
		"chars", len(text))
	return text, nil
}
