package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/vessellink/veddy/internal/core/domain"
)

type statusCall struct {
	status domain.DocumentStatus
	errMsg string
}

type processRepoFake struct {
	doc           *domain.Document
	getErr        error
	statusErr     error
	failStatusErr error
	statusCalls   []statusCall
}

func (f *processRepoFake) Create(context.Context, *domain.Document) error { return nil }

func (f *processRepoFake) GetByID(context.Context, string) (*domain.Document, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	copyDoc := *f.doc
	return &copyDoc, nil
}

func (f *processRepoFake) UpdateStatus(_ context.Context, _ string, status domain.DocumentStatus, errMessage string) error {
	f.statusCalls = append(f.statusCalls, statusCall{status: status, errMsg: errMessage})
	if status == domain.StatusFailed && f.failStatusErr != nil {
		return f.failStatusErr
	}
	if f.statusErr != nil {
		return f.statusErr
	}
	return nil
}

type extractorFake struct {
	text string
	err  error
}

func (f *extractorFake) Extract(context.Context, *domain.Document) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

type chunkerFake struct {
	chunks []domain.Chunk
}

func (f *chunkerFake) Chunk(string) []domain.Chunk { return f.chunks }

type processEmbedderFake struct {
	vectors [][]float32
	err     error
}

func (f *processEmbedderFake) Embed(context.Context, []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vectors, nil
}

func (f *processEmbedderFake) EmbedQuery(context.Context, string) ([]float32, error) {
	return nil, nil
}

type indexStoreFake struct {
	searchStoreFake
	indexed []domain.Chunk
	err     error
}

func (f *indexStoreFake) IndexChunks(_ context.Context, _ *domain.Document, chunks []domain.Chunk, _ [][]float32) error {
	if f.err != nil {
		return f.err
	}
	f.indexed = chunks
	return nil
}

func TestProcessByIDSuccess(t *testing.T) {
	repo := &processRepoFake{doc: &domain.Document{ID: "doc-1"}}
	store := &indexStoreFake{}
	uc := NewProcessDocumentUseCase(
		repo,
		&extractorFake{text: "text"},
		&chunkerFake{chunks: []domain.Chunk{{Text: "a", TokenCount: 1}, {Text: "b", TokenCount: 1}}},
		&processEmbedderFake{vectors: [][]float32{{1}, {2}}},
		store,
	)

	if err := uc.ProcessByID(context.Background(), "doc-1"); err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}
	if len(repo.statusCalls) != 2 {
		t.Fatalf("expected 2 status calls, got %d", len(repo.statusCalls))
	}
	if repo.statusCalls[0].status != domain.StatusProcessing || repo.statusCalls[1].status != domain.StatusReady {
		t.Fatalf("unexpected status sequence: %+v", repo.statusCalls)
	}
	if len(store.indexed) != 2 {
		t.Fatalf("expected 2 indexed chunks, got %d", len(store.indexed))
	}
	for i, chunk := range store.indexed {
		if chunk.DocumentID != "doc-1" || chunk.Sequence != i {
			t.Fatalf("chunk %d not stamped with document/sequence: %+v", i, chunk)
		}
	}
}

func TestProcessByIDMarksFailedOnExtractError(t *testing.T) {
	repo := &processRepoFake{doc: &domain.Document{ID: "doc-1"}}
	uc := NewProcessDocumentUseCase(
		repo,
		&extractorFake{err: errors.New("extract fail")},
		&chunkerFake{chunks: []domain.Chunk{{Text: "a"}}},
		&processEmbedderFake{vectors: [][]float32{{1}}},
		&indexStoreFake{},
	)

	err := uc.ProcessByID(context.Background(), "doc-1")
	if err == nil {
		t.Fatalf("expected error")
	}
	if len(repo.statusCalls) != 2 {
		t.Fatalf("expected processing + failed status updates, got %d", len(repo.statusCalls))
	}
	if repo.statusCalls[1].status != domain.StatusFailed {
		t.Fatalf("expected failed status, got %+v", repo.statusCalls[1])
	}
}

func TestProcessByIDMarksFailedOnVectorMismatch(t *testing.T) {
	repo := &processRepoFake{doc: &domain.Document{ID: "doc-1"}}
	uc := NewProcessDocumentUseCase(
		repo,
		&extractorFake{text: "text"},
		&chunkerFake{chunks: []domain.Chunk{{Text: "a"}, {Text: "b"}}},
		&processEmbedderFake{vectors: [][]float32{{1}}},
		&indexStoreFake{},
	)

	err := uc.ProcessByID(context.Background(), "doc-1")
	if err == nil {
		t.Fatalf("expected error")
	}
	if len(repo.statusCalls) != 2 || repo.statusCalls[1].status != domain.StatusFailed {
		t.Fatalf("expected final failed status, got %+v", repo.statusCalls)
	}
}
