package pipeline

import (
	"time"

	"github.com/dvloznov/just-save/internal/domain"
)

// Default limits for statement processing.
// They can be overridden via configuration (MAX_CSV_BYTES, MAX_PDF_BYTES, MAX_TEXT_LENGTH).
const (
	// DefaultMaxCSVBytes is the largest CSV upload accepted.
	DefaultMaxCSVBytes int64 = 5 * 1024 * 1024

	// DefaultMaxPDFBytes is the largest PDF upload accepted.
	DefaultMaxPDFBytes int64 = 10 * 1024 * 1024

	// DefaultMaxTextLength is the number of characters of statement text embedded in a prompt.
	DefaultMaxTextLength = 100000

	// DefaultReasoningTimeout bounds every reasoning call.
	DefaultReasoningTimeout = 90 * time.Second

	// TruncationMarker is appended to statement text cut at MaxTextLength.
	TruncationMarker = "\n... (truncated)"
)

// Limits are the size ceilings applied by Normalize.
type Limits struct {
	MaxCSVBytes   int64
	MaxPDFBytes   int64
	MaxTextLength int
}

// DefaultLimits returns the limits used when nothing is configured.
func DefaultLimits() Limits {
	return Limits{
		MaxCSVBytes:   DefaultMaxCSVBytes,
		MaxPDFBytes:   DefaultMaxPDFBytes,
		MaxTextLength: DefaultMaxTextLength,
	}
}

// MaxBytes returns the upload ceiling for kind.
func (l Limits) MaxBytes(kind domain.SourceKind) int64 {
	if kind == domain.SourcePDF {
		return l.MaxPDFBytes
	}
	return l.MaxCSVBytes
}

// withDefaults fills zero fields from DefaultLimits.
func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.MaxCSVBytes <= 0 {
		l.MaxCSVBytes = d.MaxCSVBytes
	}
	if l.MaxPDFBytes <= 0 {
		l.MaxPDFBytes = d.MaxPDFBytes
	}
	if l.MaxTextLength <= 0 {
		l.MaxTextLength = d.MaxTextLength
	}
	return l
}
