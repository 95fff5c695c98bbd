// Package extractor routes documents to a format-specific text extractor.
package extractor

import (
	"context"
	"strings"

	"github.com/vessellink/veddy/internal/core/domain"
	"github.com/vessellink/veddy/internal/core/ports"
)

type Router struct {
	pdf   ports.TextExtractor
	plain ports.TextExtractor
}

func NewRouter(pdf, plain ports.TextExtractor) *Router {
	return &Router{pdf: pdf, plain: plain}
}

func (r *Router) Extract(ctx context.Context, doc *domain.Document) (string, error) {
	if doc.MimeType == "application/pdf" || strings.HasSuffix(strings.ToLower(doc.Filename), ".pdf") {
		return r.pdf.Extract(ctx, doc)
	}
	return r.plain.Extract(ctx, doc)
}
