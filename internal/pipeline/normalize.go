package pipeline

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dvloznov/just-save/internal/domain"
)

// Normalize checks an upload against the size limits and prepares its text for
// a prompt. declaredSize is the size of the original file (for PDFs, the PDF
// bytes, not the extracted text). Text longer than limits.MaxTextLength
// characters is cut and TruncationMarker appended.
func Normalize(content string, declaredSize int64, kind domain.SourceKind, limits Limits) (string, error) {
	limits = limits.withDefaults()

	if kind != domain.SourceCSV && kind != domain.SourcePDF {
		return "", fmt.Errorf("Normalize: %w: %q", domain.ErrUnsupportedSource, kind)
	}

	if max := limits.MaxBytes(kind); declaredSize > max {
		return "", fmt.Errorf("Normalize: %d bytes exceeds %d: %w", declaredSize, max, domain.ErrFileTooLarge)
	}

	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("Normalize: %w", domain.ErrEmptyInput)
	}

	if utf8.RuneCountInString(content) <= limits.MaxTextLength {
		return content, nil
	}

	// Cut on a rune boundary.
	n := 0
	for i := range content {
		if n == limits.MaxTextLength {
			return content[:i] + TruncationMarker, nil
		}
		n++
	}
	return content, nil
}
