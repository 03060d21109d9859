package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dvloznov/just-save/internal/api/middleware"
	"github.com/dvloznov/just-save/internal/domain"
	"github.com/dvloznov/just-save/internal/logger"
	"github.com/dvloznov/just-save/internal/pdftext"
)

// StatementsHandler handles statement upload endpoints.
type StatementsHandler struct {
	svc Pipeline
	pdf pdftext.Extractor
}

// NewStatementsHandler creates a new statements handler.
func NewStatementsHandler(svc Pipeline, pdf pdftext.Extractor) *StatementsHandler {
	return &StatementsHandler{svc: svc, pdf: pdf}
}

// ParseCSV handles POST /api/parse-csv
func (h *StatementsHandler) ParseCSV(w http.ResponseWriter, r *http.Request) {
	h.parse(w, r, domain.SourceCSV)
}

// ParsePDF handles POST /api/parse-pdf
func (h *StatementsHandler) ParsePDF(w http.ResponseWriter, r *http.Request) {
	h.parse(w, r, domain.SourcePDF)
}

func (h *StatementsHandler) parse(w http.ResponseWriter, r *http.Request, kind domain.SourceKind) {
	ctx := r.Context()

	up, err := readUpload(w, r, h.svc.Limits(), kind)
	if err != nil {
		writeFailure(w, r, "parse", kind, err)
		return
	}

	text, err := statementText(ctx, h.pdf, up)
	if err != nil {
		writeFailure(w, r, "parse", kind, err)
		return
	}

	txs, err := h.svc.ExtractTransactions(ctx, text, up.size, up.kind)
	if err != nil {
		writeFailure(w, r, "parse", kind, err)
		return
	}

	log := logger.FromContext(ctx)
	log.Info().Str("kind", string(kind)).Int64("bytes", up.size).Int("transactions", len(txs)).Msg("Statement parsed")

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": txs,
	})
}

// statementText returns the text the extractor works on: the CSV itself, or
// the text pulled out of a PDF.
func statementText(ctx context.Context, pdf pdftext.Extractor, up *upload) (string, error) {
	if up.kind != domain.SourcePDF {
		return string(up.data), nil
	}
	if pdf == nil {
		return "", fmt.Errorf("statementText: no PDF text extractor: %w", domain.ErrUnsupportedSource)
	}
	return pdf.ExtractText(ctx, up.data)
}
