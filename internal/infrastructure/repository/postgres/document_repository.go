package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/vessellink/veddy/internal/core/domain"
)

// embeddingDim matches the BGE-m3 embedding model served by the inference
// backend. Changing the model requires a reindex.
const embeddingDim = 1024

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *DocumentRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083001)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	query := fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	filename TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	storage_path TEXT NOT NULL,
	source TEXT,
	metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
	status TEXT NOT NULL,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(created_at DESC);

CREATE TABLE IF NOT EXISTS passages (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	seq INT NOT NULL,
	title TEXT,
	content TEXT NOT NULL,
	source TEXT,
	url TEXT,
	metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
	token_count INT NOT NULL DEFAULT 0,
	embedding vector(%d),
	content_tsv tsvector GENERATED ALWAYS AS (to_tsvector('simple', content)) STORED
);

CREATE INDEX IF NOT EXISTS idx_passages_document ON passages(document_id);
CREATE INDEX IF NOT EXISTS idx_passages_tsv ON passages USING GIN (content_tsv);
CREATE INDEX IF NOT EXISTS idx_passages_embedding ON passages USING hnsw (embedding vector_cosine_ops);

CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	query TEXT NOT NULL,
	answer TEXT NOT NULL,
	table_mode BOOLEAN NOT NULL DEFAULT FALSE,
	comparison_mode BOOLEAN NOT NULL DEFAULT FALSE,
	topics JSONB NOT NULL DEFAULT '[]'::jsonb,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_user_created ON messages(user_id, created_at DESC);

CREATE OR REPLACE FUNCTION hybrid_search_passages(
	query_text TEXT,
	query_embedding vector(%d),
	match_count INT,
	full_text_weight DOUBLE PRECISION,
	semantic_weight DOUBLE PRECISION
) RETURNS TABLE (
	id TEXT,
	document_id TEXT,
	title TEXT,
	content TEXT,
	source TEXT,
	url TEXT,
	metadata JSONB,
	similarity DOUBLE PRECISION
) LANGUAGE sql STABLE AS $$
	SELECT p.id, p.document_id, p.title, p.content, p.source, p.url, p.metadata,
		LEAST(1.0,
			full_text_weight * ts_rank_cd(p.content_tsv, plainto_tsquery('simple', query_text))
				+ semantic_weight * (1 - (p.embedding <=> query_embedding))) AS similarity
	FROM passages p
	WHERE p.embedding IS NOT NULL
	ORDER BY similarity DESC
	LIMIT match_count
$$;

CREATE OR REPLACE FUNCTION match_passages(
	query_embedding vector(%d),
	match_count INT,
	match_threshold DOUBLE PRECISION
) RETURNS TABLE (
	id TEXT,
	document_id TEXT,
	title TEXT,
	content TEXT,
	source TEXT,
	url TEXT,
	metadata JSONB,
	similarity DOUBLE PRECISION
) LANGUAGE sql STABLE AS $$
	SELECT p.id, p.document_id, p.title, p.content, p.source, p.url, p.metadata,
		1 - (p.embedding <=> query_embedding) AS similarity
	FROM passages p
	WHERE p.embedding IS NOT NULL
		AND 1 - (p.embedding <=> query_embedding) >= match_threshold
	ORDER BY p.embedding <=> query_embedding
	LIMIT match_count
$$;
`, embeddingDim, embeddingDim, embeddingDim)
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	metadata := doc.Metadata
	if len(metadata) == 0 {
		metadata = []byte(`{}`)
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO documents (
	id, title, filename, mime_type, storage_path, source, metadata, status, error_message, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
`,
		doc.ID, doc.Title, doc.Filename, doc.MimeType, doc.StoragePath, doc.Source, []byte(metadata),
		string(doc.Status), doc.Error, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, title, filename, mime_type, storage_path, COALESCE(source, ''), metadata, status, COALESCE(error_message, ''), created_at, updated_at
FROM documents
WHERE id = $1
`, id)

	var doc domain.Document
	var metadata []byte
	var status string

	err := row.Scan(
		&doc.ID, &doc.Title, &doc.Filename, &doc.MimeType, &doc.StoragePath, &doc.Source,
		&metadata, &status, &doc.Error, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", err)
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}

	doc.Metadata = metadata
	doc.Status = domain.DocumentStatus(status)
	return &doc, nil
}

func (r *DocumentRepository) UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, id, string(status), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update document status rows: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrDocumentNotFound, "update document status", sql.ErrNoRows)
	}
	return nil
}
