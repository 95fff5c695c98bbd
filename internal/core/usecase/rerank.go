package usecase

import (
	"context"
	"sort"

	"github.com/vessellink/veddy/internal/core/domain"
	"github.com/vessellink/veddy/internal/core/ports"
)

// Reranker rescores retrieval candidates with a cross-encoder model.
type Reranker struct {
	model ports.RerankModel
}

func NewReranker(model ports.RerankModel) *Reranker {
	return &Reranker{model: model}
}

// Rerank scores every query/passage pair independently, sorts by the new
// score descending and keeps the topK best. Ties keep retrieval order. The
// input slice is not modified; any scoring failure fails the whole pass so
// the caller can fall back to retrieval order.
func (r *Reranker) Rerank(ctx context.Context, query string, passages []domain.Passage, topK int) ([]domain.Passage, error) {
	if len(passages) == 0 {
		return nil, nil
	}

	out := make([]domain.Passage, len(passages))
	copy(out, passages)
	for i := range out {
		score, err := r.model.Score(ctx, query, out[i].Text)
		if err != nil {
			return nil, domain.WrapError(domain.ErrRerank, "rerank passages", err)
		}
		s := score
		out[i].RerankScore = &s
	}

	sort.SliceStable(out, func(i, j int) bool {
		return *out[i].RerankScore > *out[j].RerankScore
	})

	if topK > 0 && topK < len(out) {
		out = out[:topK]
	}
	return out, nil
}
