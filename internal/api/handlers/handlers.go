package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"

	"github.com/dvloznov/just-save/internal/api/middleware"
	"github.com/dvloznov/just-save/internal/domain"
	"github.com/dvloznov/just-save/internal/logger"
	"github.com/dvloznov/just-save/internal/pipeline"
)

// Pipeline is the part of pipeline.Service the handlers use.
type Pipeline interface {
	Limits() pipeline.Limits
	ExtractTransactions(ctx context.Context, content string, declaredSize int64, kind domain.SourceKind) ([]domain.Transaction, error)
	Analyze(ctx context.Context, txs []domain.Transaction) (*domain.Analysis, error)
	Explain(ctx context.Context, a *domain.Analysis) (string, error)
}

// maxJSONBody bounds analyze / explain / audit request bodies.
const maxJSONBody = 10 << 20

// StatusFor maps a pipeline error to an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrEmptyInput),
		errors.Is(err, domain.ErrFileTooLarge),
		errors.Is(err, domain.ErrNoTransactionsFound),
		errors.Is(err, domain.ErrUnsupportedSource),
		errors.Is(err, domain.ErrUnreadableDocument),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrReasoningTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrReasoningUnavailable),
		errors.Is(err, domain.ErrNoJSONFound):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeFailure logs err without statement content and writes the generic
// user message for it.
func writeFailure(w http.ResponseWriter, r *http.Request, op string, kind domain.SourceKind, err error) {
	log := logger.FromContext(r.Context())
	status := StatusFor(err)

	ev := log.Warn()
	if status >= http.StatusInternalServerError {
		ev = log.Error()
	}
	ev.Str("op", op).
		Str("kind", string(kind)).
		Str("error_kind", domain.ClassifyError(err)).
		Int("status", status).
		Msg("Request failed")

	if raw := domain.RawResponse(err); raw != "" {
		log.Debug().Str("op", op).Str("raw_response", logger.Truncate(raw, 500)).Msg("Engine response that failed sanitizing")
	}

	msg := domain.UserMessage(err, kind)
	if errors.Is(err, errBadRequest) {
		msg = "Invalid request body"
	}
	middleware.WriteError(w, status, msg)
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("decodeJSON: %w", domain.ErrFileTooLarge)
		}
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("decodeJSON: empty body: %w", domain.ErrEmptyInput)
		}
		return fmt.Errorf("decodeJSON: %v: %w", err, errBadRequest)
	}
	return nil
}

var errBadRequest = errors.New("invalid request body")

// upload is a statement file received from a multipart form.
type upload struct {
	name string
	kind domain.SourceKind
	size int64
	data []byte
}

// readUpload streams the "file" form field into memory. want, when set, is
// the only kind accepted; otherwise the kind comes from the file extension.
// Parts are never spooled to temporary files, and size ceilings are enforced
// while reading.
func readUpload(w http.ResponseWriter, r *http.Request, limits pipeline.Limits, want domain.SourceKind) (*upload, error) {
	ceiling := limits.MaxBytes(domain.SourceCSV)
	if pdf := limits.MaxBytes(domain.SourcePDF); pdf > ceiling {
		ceiling = pdf
	}
	// Room for multipart framing on top of the largest file we accept.
	r.Body = http.MaxBytesReader(w, r.Body, ceiling+1<<20)

	mr, err := r.MultipartReader()
	if err != nil {
		return nil, fmt.Errorf("readUpload: reading form: %v: %w", err, domain.ErrEmptyInput)
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil, fmt.Errorf("readUpload: no file provided: %w", domain.ErrEmptyInput)
		}
		if err != nil {
			return nil, uploadReadError("reading form", err)
		}
		if part.FormName() != "file" || part.FileName() == "" {
			part.Close()
			continue
		}

		up, err := readFilePart(part, limits, want)
		part.Close()
		return up, err
	}
}

func readFilePart(part *multipart.Part, limits pipeline.Limits, want domain.SourceKind) (*upload, error) {
	name := part.FileName()

	kind := want
	if ext, err := domain.ParseSourceKind(filepath.Ext(name)); err == nil {
		if want != "" && ext != want {
			return nil, fmt.Errorf("readUpload: %s uploaded as %s: %w", ext, want, domain.ErrUnsupportedSource)
		}
		kind = ext
	} else if want == "" {
		return nil, fmt.Errorf("readUpload: %w", err)
	}

	limit := limits.MaxBytes(kind)
	data, err := io.ReadAll(io.LimitReader(part, limit+1))
	if err != nil {
		return nil, uploadReadError("reading file", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("readUpload: %w", domain.ErrFileTooLarge)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("readUpload: %w", domain.ErrEmptyInput)
	}

	return &upload{name: name, kind: kind, size: int64(len(data)), data: data}, nil
}

func uploadReadError(doing string, err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return fmt.Errorf("readUpload: %w", domain.ErrFileTooLarge)
	}
	return fmt.Errorf("readUpload: %s: %v: %w", doing, err, domain.ErrEmptyInput)
}
