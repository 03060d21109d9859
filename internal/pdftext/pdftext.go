// Package pdftext pulls plain text out of PDF statements so it can be sent to
// the extraction prompt.
package pdftext

import (
	"context"
	"fmt"
	"strings"

	"github.com/gen2brain/go-fitz"

	"github.com/dvloznov/just-save/internal/domain"
	"github.com/dvloznov/just-save/internal/logger"
)

// Extractor turns PDF bytes into text.
type Extractor interface {
	ExtractText(ctx context.Context, pdf []byte) (string, error)
}

// FitzExtractor extracts text with MuPDF through go-fitz.
type FitzExtractor struct{}

// NewFitzExtractor creates a FitzExtractor.
func NewFitzExtractor() *FitzExtractor {
	return &FitzExtractor{}
}

// ExtractText returns the text of every page, pages separated by a newline.
// Pages that fail to extract are skipped. A document with no text at all
// (typically a scan) yields ErrUnreadableDocument.
func (e *FitzExtractor) ExtractText(ctx context.Context, pdf []byte) (string, error) {
	if len(pdf) == 0 {
		return "", fmt.Errorf("ExtractText: %w", domain.ErrEmptyInput)
	}

	doc, err := fitz.NewFromMemory(pdf)
	if err != nil {
		return "", fmt.Errorf("ExtractText: open PDF: %v: %w", err, domain.ErrUnreadableDocument)
	}
	defer doc.Close()

	log := logger.FromContext(ctx)

	var b strings.Builder
	pages := doc.NumPage()
	for i := 0; i < pages; i++ {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("ExtractText: %w", err)
		}

		text, err := doc.Text(i)
		if err != nil {
			log.Warn().Int("page", i+1).Err(err).Msg("Failed to extract text from page")
			continue
		}
		if text != "" {
			b.WriteString(text)
			b.WriteString("\n")
		}
	}

	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", fmt.Errorf("ExtractText: no text in %d pages: %w", pages, domain.ErrUnreadableDocument)
	}

	log.Debug().Int("pages", pages).Int("text_length", len(text)).Msg("PDF text extracted")
	return text, nil
}
