package postgres

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/vessellink/veddy/internal/core/domain"
)

func newStoreWithMock(t *testing.T) (*SearchStore, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &SearchStore{db: db}, mock, func() { _ = db.Close() }
}

func passageColumns() []string {
	return []string{"id", "document_id", "title", "content", "source", "url", "metadata", "similarity"}
}

func TestHybridSearchScansPassages(t *testing.T) {
	store, mock, done := newStoreWithMock(t)
	defer done()

	mock.ExpectQuery("FROM hybrid_search_passages").
		WithArgs("질문", sqlmock.AnyArg(), 60, 0.4, 0.6).
		WillReturnRows(sqlmock.NewRows(passageColumns()).
			AddRow("p1", "doc-1", "제목", "본문", "confluence", "https://wiki/1", []byte(`{}`), 0.87).
			AddRow("p2", "doc-1", nil, "본문2", nil, nil, []byte(`{"url":"https://wiki/2"}`), 0.61))

	passages, err := store.HybridSearch(context.Background(), "질문", []float32{0.1}, 60, 0.4, 0.6)
	if err != nil {
		t.Fatalf("HybridSearch() error = %v", err)
	}
	if len(passages) != 2 {
		t.Fatalf("expected 2 passages, got %d", len(passages))
	}
	if passages[0].URL != "https://wiki/1" || passages[0].Similarity != 0.87 {
		t.Fatalf("unexpected first passage: %+v", passages[0])
	}
	if passages[1].Title != "" || passages[1].URL != "" {
		t.Fatalf("null columns should scan empty: %+v", passages[1])
	}
	if string(passages[1].Metadata) != `{"url":"https://wiki/2"}` {
		t.Fatalf("metadata lost: %s", passages[1].Metadata)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestVectorSearchSetsProbeDepthInTx(t *testing.T) {
	store, mock, done := newStoreWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("SET LOCAL hnsw.ef_search = 50").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("FROM match_passages").
		WithArgs(sqlmock.AnyArg(), 30, 0.3).
		WillReturnRows(sqlmock.NewRows(passageColumns()).
			AddRow("p1", "doc-1", "제목", "본문", nil, nil, []byte(`{}`), 0.9))
	mock.ExpectCommit()

	passages, err := store.VectorSearch(context.Background(), []float32{0.1}, 30, 0.3, 50)
	if err != nil {
		t.Fatalf("VectorSearch() error = %v", err)
	}
	if len(passages) != 1 || passages[0].ID != "p1" {
		t.Fatalf("unexpected passages: %+v", passages)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDocumentURLNotFound(t *testing.T) {
	store, mock, done := newStoreWithMock(t)
	defer done()

	mock.ExpectQuery("FROM documents").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"url"}))

	_, err := store.DocumentURL(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestIndexChunksReplacesDocumentPassages(t *testing.T) {
	store, mock, done := newStoreWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM passages").
		WithArgs("doc-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("INSERT INTO passages").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO passages").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	doc := &domain.Document{ID: "doc-1", Title: "지침", Source: "confluence"}
	chunks := []domain.Chunk{
		{DocumentID: "doc-1", Sequence: 0, Text: "a", TokenCount: 1},
		{DocumentID: "doc-1", Sequence: 1, Text: "b", TokenCount: 1},
	}
	err := store.IndexChunks(context.Background(), doc, chunks, [][]float32{{0.1}, {0.2}})
	if err != nil {
		t.Fatalf("IndexChunks() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestIndexChunksVectorMismatch(t *testing.T) {
	store, _, done := newStoreWithMock(t)
	defer done()

	err := store.IndexChunks(context.Background(), &domain.Document{ID: "doc-1"}, []domain.Chunk{{Text: "a"}}, nil)
	if err == nil {
		t.Fatal("expected mismatch error")
	}
}
