package domain

import (
	"encoding/json"
	"time"
)

// Passage is a retrieved chunk as returned by the search store, carrying
// both the fused retrieval score and an optional cross-encoder score.
type Passage struct {
	ID          string          `json:"id"`
	DocumentID  string          `json:"document_id,omitempty"`
	Title       string          `json:"title,omitempty"`
	Text        string          `json:"content"`
	Source      string          `json:"source,omitempty"`
	URL         string          `json:"url,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	Similarity  float64         `json:"similarity"`
	RerankScore *float64        `json:"rerank_score,omitempty"`
}

// Score prefers the rerank score when present.
func (p Passage) Score() float64 {
	if p.RerankScore != nil {
		return *p.RerankScore
	}
	return p.Similarity
}

// ComparisonIntent is the analyzer verdict for a user query.
type ComparisonIntent struct {
	IsComparison bool     `json:"is_comparison"`
	Topics       []string `json:"topics,omitempty"`
	Confidence   float64  `json:"confidence"`
	Method       string   `json:"method,omitempty"`
}

// Message is one persisted question/answer exchange.
type Message struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	Query          string    `json:"query"`
	Answer         string    `json:"answer"`
	TableMode      bool      `json:"table_mode"`
	ComparisonMode bool      `json:"comparison_mode"`
	Topics         []string  `json:"topics,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
