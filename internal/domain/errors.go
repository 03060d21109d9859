package domain

import (
	"errors"
	"fmt"
)

// Pipeline failure kinds. Callers match them with errors.Is.
var (
	// ErrEmptyInput is returned when no file, text or transactions were supplied.
	ErrEmptyInput = errors.New("empty input")

	// ErrFileTooLarge is returned when an upload exceeds the configured ceiling.
	ErrFileTooLarge = errors.New("file too large")

	// ErrUnsupportedSource is returned for statement formats the extractor cannot read.
	ErrUnsupportedSource = errors.New("unsupported source")

	// ErrReasoningUnavailable is returned when the reasoning engine call failed.
	ErrReasoningUnavailable = errors.New("reasoning engine unavailable")

	// ErrReasoningTimeout is returned when the reasoning engine exceeded its deadline.
	ErrReasoningTimeout = errors.New("reasoning engine timeout")

	// ErrNoJSONFound is returned when no JSON payload could be located in the engine output.
	ErrNoJSONFound = errors.New("no JSON found in response")

	// ErrNoTransactionsFound is returned when every candidate record failed validation.
	ErrNoTransactionsFound = errors.New("no transactions found")

	// ErrMalformedInsights marks an unusable insights block. It is logged, never returned
	// to callers of Analyze.
	ErrMalformedInsights = errors.New("malformed insights")

	// ErrNotConfigured is returned at construction time when a required credential is missing.
	ErrNotConfigured = errors.New("reasoning engine not configured")

	// ErrUnreadableDocument is returned when no text can be pulled out of a PDF
	// (corrupt, encrypted or image-only).
	ErrUnreadableDocument = errors.New("unreadable document")
)

const maxRawLen = 2000

// PipelineError carries diagnostic context for a failed pipeline operation.
// Raw holds (a truncated copy of) the engine response, for logs only.
type PipelineError struct {
	Op   string
	Kind SourceKind
	Raw  string
	Err  error
}

func (e *PipelineError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("%s (%s): %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// NewPipelineError wraps err, truncating raw to a loggable size.
func NewPipelineError(op string, kind SourceKind, raw string, err error) *PipelineError {
	if len(raw) > maxRawLen {
		raw = raw[:maxRawLen]
	}
	return &PipelineError{Op: op, Kind: kind, Raw: raw, Err: err}
}

// RawResponse returns the engine response attached to err, if any.
func RawResponse(err error) string {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Raw
	}
	return ""
}

// IsRetryable reports whether the user may simply try again.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrReasoningUnavailable) ||
		errors.Is(err, ErrReasoningTimeout) ||
		errors.Is(err, ErrNoJSONFound)
}

// ClassifyError returns a short label for metrics and run telemetry.
func ClassifyError(err error) string {
	if err == nil {
		return "none"
	}

	switch {
	case errors.Is(err, ErrEmptyInput):
		return "empty_input"
	case errors.Is(err, ErrFileTooLarge):
		return "file_too_large"
	case errors.Is(err, ErrUnsupportedSource):
		return "unsupported_source"
	case errors.Is(err, ErrReasoningTimeout):
		return "reasoning_timeout"
	case errors.Is(err, ErrReasoningUnavailable):
		return "reasoning_unavailable"
	case errors.Is(err, ErrNoJSONFound):
		return "no_json_found"
	case errors.Is(err, ErrNoTransactionsFound):
		return "no_transactions_found"
	case errors.Is(err, ErrNotConfigured):
		return "not_configured"
	case errors.Is(err, ErrUnreadableDocument):
		return "unreadable_document"
	case errors.Is(err, ErrMalformedInsights):
		return "malformed_insights"
	default:
		return "other"
	}
}

// UserMessage returns the generic, non-technical text shown to end users.
func UserMessage(err error, kind SourceKind) string {
	label := "statement"
	switch kind {
	case SourceCSV:
		label = "CSV"
	case SourcePDF:
		label = "PDF"
	}

	switch {
	case errors.Is(err, ErrEmptyInput):
		if kind == "" {
			return "No transactions provided."
		}
		return fmt.Sprintf("The %s file is empty.", label)
	case errors.Is(err, ErrFileTooLarge):
		if kind == SourcePDF {
			return "File too large. Maximum size is 10MB."
		}
		return "File too large. Maximum size is 5MB."
	case errors.Is(err, ErrUnsupportedSource):
		return "Please upload a CSV or PDF file."
	case errors.Is(err, ErrNoTransactionsFound):
		return fmt.Sprintf("No transactions found in %s. Please ensure this is a valid bank statement.", label)
	case errors.Is(err, ErrNoJSONFound):
		if kind == "" {
			return "Failed to analyze transactions. Please try again."
		}
		return fmt.Sprintf("Failed to parse transactions from %s. The file format may not be supported.", label)
	case errors.Is(err, ErrReasoningTimeout):
		return "The analysis took too long. Please try again."
	case errors.Is(err, ErrReasoningUnavailable):
		return "The analysis service is unavailable right now. Please try again."
	case errors.Is(err, ErrNotConfigured):
		return "The analysis service is not configured."
	case errors.Is(err, ErrUnreadableDocument):
		return "Could not read any text from this PDF. It may be scanned or password protected."
	default:
		return "Something went wrong. Please try again."
	}
}
