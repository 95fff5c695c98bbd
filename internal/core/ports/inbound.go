package ports

import (
	"context"
	"io"

	"github.com/vessellink/veddy/internal/core/domain"
)

// ChatRequest carries one user question through the pipeline.
type ChatRequest struct {
	UserID    string
	Query     string
	TableMode bool
	// History overrides the stored conversation history when non-empty.
	History string
}

// ChatResult is the completed answer with its retrieval context and the
// degradation flags the delivery layer reports on.
type ChatResult struct {
	Answer   string
	Mode     domain.GenerationMode
	Intent   domain.ComparisonIntent
	Passages []domain.Passage

	RetrievalDegraded bool
	RerankFallback    bool
	URLTiers          [3]int
	PersistFailed     bool
}

// ChatService is the inbound contract for answering questions. onToken, when
// non-nil, receives every normalized token as it is generated; returning an
// error from it cancels generation.
type ChatService interface {
	Respond(ctx context.Context, req ChatRequest, onToken func(token string) error) (*ChatResult, error)
}

// DocumentIngestor is the inbound contract for document upload orchestration.
type DocumentIngestor interface {
	Upload(ctx context.Context, filename, mimeType, title string, body io.Reader) (*domain.Document, error)
}

// DocumentReader is the inbound read model for document metadata/state.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
}

// DocumentProcessor is the inbound contract for asynchronous document processing.
type DocumentProcessor interface {
	ProcessByID(ctx context.Context, documentID string) error
}
