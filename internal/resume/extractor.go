package resume

import (
	"strings"
	"unicode/utf8"

	"jobpulse/internal/errors"
)

// TextExtractor turns an uploaded resume payload into plain text, bounded
// to the first maxPages pages. PDF extraction is an external collaborator:
// deployments inject their extractor here; the core ships the plain-text
// implementation.
type TextExtractor interface {
	// Extract returns the resume text for the payload, or an input error
	// when the payload cannot be handled.
	Extract(payload []byte, contentType string, maxPages int) (string, error)
	// Supports reports whether the extractor handles the content type.
	Supports(contentType string) bool
}

// PlainTextExtractor accepts text payloads as-is. The page cap maps onto a
// character budget since plain text has no page structure.
type PlainTextExtractor struct {
	// CharsPerPage approximates one resume page of text; 0 uses a default.
	CharsPerPage int
}

// Ensure PlainTextExtractor implements TextExtractor
var _ TextExtractor = (*PlainTextExtractor)(nil)

const defaultCharsPerPage = 4000

// Supports implements TextExtractor.
func (e *PlainTextExtractor) Supports(contentType string) bool {
	ct := strings.ToLower(contentType)
	return ct == "" ||
		strings.HasPrefix(ct, "text/plain") ||
		strings.HasPrefix(ct, "application/octet-stream")
}

// Extract implements TextExtractor.
func (e *PlainTextExtractor) Extract(payload []byte, contentType string, maxPages int) (string, error) {
	if len(payload) == 0 {
		return "", errors.NewInputError("uploaded file is empty", nil)
	}
	if !e.Supports(contentType) {
		return "", errors.NewInputError("unsupported file type", nil).
			WithContext("content_type", contentType)
	}
	if !utf8.Valid(payload) {
		return "", errors.NewInputError("payload is not valid text", nil)
	}

	text := strings.TrimSpace(string(payload))
	if text == "" {
		return "", errors.NewInputError("uploaded file contains no text", nil)
	}

	perPage := e.CharsPerPage
	if perPage <= 0 {
		perPage = defaultCharsPerPage
	}
	if maxPages > 0 && len(text) > maxPages*perPage {
		text = text[:maxPages*perPage]
	}
	return text, nil
}
