package ports

import (
	"context"
	"io"

	"github.com/vessellink/veddy/internal/core/domain"
)

// DocumentRepository persists and reads document state.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
}

// ObjectStorage stores source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// MessageQueue publishes/consumes ingestion events.
type MessageQueue interface {
	PublishDocumentIngested(ctx context.Context, documentID string) error
	SubscribeDocumentIngested(ctx context.Context, handler func(context.Context, string) error) error
}

// TextExtractor extracts plain text from a stored document.
type TextExtractor interface {
	Extract(ctx context.Context, doc *domain.Document) (string, error)
}

// Tokenizer maps text to model token ids and back.
type Tokenizer interface {
	Encode(text string) []int
	Decode(tokens []int) string
}

// Chunker splits extracted text into token-window chunks.
type Chunker interface {
	Chunk(text string) []domain.Chunk
}

// Embedder builds vectors for chunks and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// SearchStore indexes chunks and serves hybrid/vector retrieval.
type SearchStore interface {
	IndexChunks(ctx context.Context, doc *domain.Document, chunks []domain.Chunk, vectors [][]float32) error
	HybridSearch(ctx context.Context, queryText string, queryVector []float32, matchCount int, fullTextWeight, semanticWeight float64) ([]domain.Passage, error)
	VectorSearch(ctx context.Context, queryVector []float32, matchCount int, threshold float64, efSearch int) ([]domain.Passage, error)
	DocumentURL(ctx context.Context, documentID string) (string, error)
}

// RerankModel scores one query/passage pair.
type RerankModel interface {
	Score(ctx context.Context, query, text string) (float64, error)
}

// ChatMessage is a provider-neutral chat turn.
type ChatMessage struct {
	Role    string
	Content string
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatModel generates answers. Stream calls onDelta for every partial text
// piece in arrival order; a non-nil onDelta error aborts the stream and is
// returned unchanged.
type ChatModel interface {
	Stream(ctx context.Context, messages []ChatMessage, onDelta func(delta string) error) error
	Invoke(ctx context.Context, messages []ChatMessage) (string, error)
}

// MessageStore persists question/answer exchanges.
type MessageStore interface {
	SaveMessage(ctx context.Context, msg *domain.Message) error
	ListRecent(ctx context.Context, userID string, limit int) ([]domain.Message, error)
}

// ChannelActivity is one outbound frame for an enterprise chat channel.
type ChannelActivity struct {
	Type       string
	Text       string
	StreamID   string
	Sequence   int
	StreamType string
}

// ChannelConversation addresses a channel reply.
type ChannelConversation struct {
	ServiceURL     string
	ConversationID string
}

// ChannelTransport delivers activities to an enterprise chat channel.
// SendActivity returns the channel-assigned activity id.
type ChannelTransport interface {
	SendActivity(ctx context.Context, conv ChannelConversation, activity ChannelActivity) (string, error)
}
