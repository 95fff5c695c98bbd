package domain

import (
	"encoding/json"
	"time"
)

type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "uploaded"
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusFailed     DocumentStatus = "failed"
)

type Document struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Filename    string          `json:"filename"`
	MimeType    string          `json:"mime_type"`
	StoragePath string          `json:"storage_path"`
	Source      string          `json:"source,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	Status      DocumentStatus  `json:"status"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Chunk is one token window of a document, ready for embedding.
type Chunk struct {
	DocumentID string
	Sequence   int
	Text       string
	TokenCount int
}
