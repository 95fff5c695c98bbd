package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/vessellink/veddy/internal/core/domain"
)

// SearchStore serves passage indexing and hybrid retrieval over pgvector.
type SearchStore struct {
	db *sql.DB
}

func NewSearchStore(db *sql.DB) *SearchStore {
	return &SearchStore{db: db}
}

// IndexChunks replaces the indexed passages of a document atomically.
func (s *SearchStore) IndexChunks(ctx context.Context, doc *domain.Document, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks/vectors mismatch: %d/%d", len(chunks), len(vectors))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin index tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM passages WHERE document_id = $1`, doc.ID); err != nil {
		return fmt.Errorf("delete stale passages: %w", err)
	}

	metadata := doc.Metadata
	if len(metadata) == 0 {
		metadata = []byte(`{}`)
	}
	for i, chunk := range chunks {
		_, err := tx.ExecContext(ctx, `
INSERT INTO passages (id, document_id, seq, title, content, source, url, metadata, token_count, embedding)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`,
			uuid.NewString(), doc.ID, chunk.Sequence, doc.Title, chunk.Text, doc.Source, "",
			[]byte(metadata), chunk.TokenCount, pgvector.NewVector(vectors[i]),
		)
		if err != nil {
			return fmt.Errorf("insert passage %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit index tx: %w", err)
	}
	return nil
}

func (s *SearchStore) HybridSearch(ctx context.Context, queryText string, queryVector []float32, matchCount int, fullTextWeight, semanticWeight float64) ([]domain.Passage, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, document_id, title, content, source, url, metadata, similarity
FROM hybrid_search_passages($1, $2, $3, $4, $5)
`, queryText, pgvector.NewVector(queryVector), matchCount, fullTextWeight, semanticWeight)
	if err != nil {
		return nil, fmt.Errorf("hybrid search: %w", err)
	}
	defer rows.Close()

	return scanPassages(rows)
}

// VectorSearch is the pure semantic path. The HNSW probe depth is set per
// transaction so concurrent queries keep their own quality setting.
func (s *SearchStore) VectorSearch(ctx context.Context, queryVector []float32, matchCount int, threshold float64, efSearch int) ([]domain.Passage, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin search tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// SET does not take bind parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`SET LOCAL hnsw.ef_search = %d`, efSearch)); err != nil {
		return nil, fmt.Errorf("set ef_search: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `
SELECT id, document_id, title, content, source, url, metadata, similarity
FROM match_passages($1, $2, $3)
`, pgvector.NewVector(queryVector), matchCount, threshold)
	if err != nil {
		return nil, fmt.Errorf("match passages: %w", err)
	}
	defer rows.Close()

	passages, err := scanPassages(rows)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit search tx: %w", err)
	}
	return passages, nil
}

// DocumentURL resolves the parent document URL for passage backfill.
func (s *SearchStore) DocumentURL(ctx context.Context, documentID string) (string, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT COALESCE(metadata->>'url', metadata->>'page_url', metadata->>'source_url', '')
FROM documents
WHERE id = $1
`, documentID)

	var url string
	if err := row.Scan(&url); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", domain.WrapError(domain.ErrDocumentNotFound, "document url", err)
		}
		return "", fmt.Errorf("scan document url: %w", err)
	}
	return url, nil
}

func scanPassages(rows *sql.Rows) ([]domain.Passage, error) {
	var out []domain.Passage
	for rows.Next() {
		var (
			p                  domain.Passage
			title, source, url sql.NullString
			metadata           []byte
		)
		if err := rows.Scan(&p.ID, &p.DocumentID, &title, &p.Text, &source, &url, &metadata, &p.Similarity); err != nil {
			return nil, fmt.Errorf("scan passage: %w", err)
		}
		p.Title = title.String
		p.Source = source.String
		p.URL = url.String
		p.Metadata = metadata
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate passages: %w", err)
	}
	return out, nil
}
