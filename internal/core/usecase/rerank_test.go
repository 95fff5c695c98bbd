package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/vessellink/veddy/internal/core/domain"
)

type rerankModelFake struct {
	scores map[string]float64
	errOn  string
	calls  int
}

func (f *rerankModelFake) Score(_ context.Context, _, text string) (float64, error) {
	f.calls++
	if f.errOn != "" && text == f.errOn {
		return 0, errors.New("rerank backend down")
	}
	return f.scores[text], nil
}

func TestRerankerOrdersByScore(t *testing.T) {
	model := &rerankModelFake{scores: map[string]float64{"a": 0.2, "b": 0.9, "c": 0.5}}
	reranker := NewReranker(model)

	passages := []domain.Passage{
		{ID: "1", Text: "a", Similarity: 0.9},
		{ID: "2", Text: "b", Similarity: 0.8},
		{ID: "3", Text: "c", Similarity: 0.7},
	}
	got, err := reranker.Rerank(context.Background(), "q", passages, 2)
	if err != nil {
		t.Fatalf("Rerank() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected top 2, got %d", len(got))
	}
	if got[0].ID != "2" || got[1].ID != "3" {
		t.Fatalf("unexpected order: %s, %s", got[0].ID, got[1].ID)
	}
	if got[0].RerankScore == nil || *got[0].RerankScore != 0.9 {
		t.Fatalf("rerank score not attached: %+v", got[0])
	}
	// Input order untouched.
	if passages[0].ID != "1" || passages[0].RerankScore != nil {
		t.Fatalf("input slice was modified: %+v", passages[0])
	}
}

func TestRerankerStableOnTies(t *testing.T) {
	model := &rerankModelFake{scores: map[string]float64{"a": 0.5, "b": 0.5}}
	reranker := NewReranker(model)

	got, err := reranker.Rerank(context.Background(), "q", []domain.Passage{
		{ID: "1", Text: "a"},
		{ID: "2", Text: "b"},
	}, 0)
	if err != nil {
		t.Fatalf("Rerank() error = %v", err)
	}
	if got[0].ID != "1" || got[1].ID != "2" {
		t.Fatalf("tie broke retrieval order: %s, %s", got[0].ID, got[1].ID)
	}
}

func TestRerankerFailureIsTyped(t *testing.T) {
	model := &rerankModelFake{errOn: "b"}
	reranker := NewReranker(model)

	_, err := reranker.Rerank(context.Background(), "q", []domain.Passage{
		{ID: "1", Text: "a"},
		{ID: "2", Text: "b"},
	}, 0)
	if err == nil {
		t.Fatal("expected error")
	}
	if !domain.IsKind(err, domain.ErrRerank) {
		t.Fatalf("expected ErrRerank, got %v", err)
	}
}

func TestRerankerEmptyInput(t *testing.T) {
	reranker := NewReranker(&rerankModelFake{})
	got, err := reranker.Rerank(context.Background(), "q", nil, 5)
	if err != nil || got != nil {
		t.Fatalf("expected nil, nil; got %v, %v", got, err)
	}
}
