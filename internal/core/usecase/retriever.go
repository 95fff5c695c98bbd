package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vessellink/veddy/internal/core/domain"
	"github.com/vessellink/veddy/internal/core/ports"
)

// NoDocumentsContext is the context block used when retrieval finds nothing
// or is degraded by an upstream failure.
const NoDocumentsContext = "관련 문서를 찾을 수 없습니다."

type RetrieverConfig struct {
	MatchCount     int
	MatchThreshold float64
	EfSearch       int
	RerankEnabled  bool
	RerankTopK     int
	FullTextWeight float64
	SemanticWeight float64
	// TopicQualifier is appended to every per-topic query to keep multi-topic
	// search anchored to the product domain.
	TopicQualifier string
}

// RetrievalResult carries the formatted context block plus everything the
// caller needs for observability.
type RetrievalResult struct {
	Context        string
	Passages       []domain.Passage
	RerankFallback bool
	// URLTiers counts how passage URLs were resolved: direct field,
	// metadata blob, parent document lookup.
	URLTiers [3]int
}

// Retriever runs hybrid search and prepares the generation context.
type Retriever struct {
	embedder ports.Embedder
	store    ports.SearchStore
	reranker *Reranker
	cfg      RetrieverConfig
}

func NewRetriever(embedder ports.Embedder, store ports.SearchStore, reranker *Reranker, cfg RetrieverConfig) *Retriever {
	if cfg.MatchCount <= 0 {
		cfg.MatchCount = 30
	}
	if cfg.MatchThreshold <= 0 {
		cfg.MatchThreshold = 0.3
	}
	if cfg.EfSearch <= 0 {
		cfg.EfSearch = 50
	}
	if cfg.RerankTopK <= 0 {
		cfg.RerankTopK = 5
	}
	return &Retriever{
		embedder: embedder,
		store:    store,
		reranker: reranker,
		cfg:      cfg,
	}
}

// Search retrieves passages for one query and formats the context block.
// An empty result set is not an error.
func (r *Retriever) Search(ctx context.Context, query string) (*RetrievalResult, error) {
	queryVector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, domain.WrapError(domain.ErrRetrieval, "embed query", err)
	}

	// Over-fetch when reranking so the cross-encoder has candidates to drop.
	matchCount := r.cfg.MatchCount
	if r.rerankActive() {
		matchCount *= 2
	}

	passages, err := r.store.HybridSearch(ctx, query, queryVector, matchCount, r.cfg.FullTextWeight, r.cfg.SemanticWeight)
	if err != nil {
		// The lexical half needs the fusion function; pure vector search is
		// the simpler path and may still be up.
		passages, err = r.store.VectorSearch(ctx, queryVector, matchCount, r.cfg.MatchThreshold, r.cfg.EfSearch)
		if err != nil {
			return nil, domain.WrapError(domain.ErrRetrieval, "vector search", err)
		}
	}
	if len(passages) == 0 {
		return &RetrievalResult{Context: NoDocumentsContext}, nil
	}

	result := &RetrievalResult{}
	if r.rerankActive() && len(passages) > 1 {
		reranked, rerankErr := r.reranker.Rerank(ctx, query, passages, r.cfg.RerankTopK)
		if rerankErr != nil {
			// Keep retrieval order, just truncated.
			if len(passages) > r.cfg.RerankTopK {
				passages = passages[:r.cfg.RerankTopK]
			}
			result.RerankFallback = true
		} else {
			passages = reranked
		}
	}

	result.URLTiers = r.resolveURLs(ctx, passages)
	result.Passages = passages
	result.Context = formatContext(passages)
	return result, nil
}

// SearchTopics retrieves each comparison subject separately and assembles a
// sectioned context block so the model sees both sides.
func (r *Retriever) SearchTopics(ctx context.Context, topics []string) (*RetrievalResult, error) {
	merged := &RetrievalResult{}
	sections := make([]string, 0, len(topics))
	for _, topic := range topics {
		query := topic
		if r.cfg.TopicQualifier != "" {
			query += " " + r.cfg.TopicQualifier
		}
		part, err := r.Search(ctx, query)
		if err != nil {
			return nil, err
		}
		sections = append(sections, fmt.Sprintf("### 【%s】\n%s", topic, part.Context))
		merged.Passages = append(merged.Passages, part.Passages...)
		merged.RerankFallback = merged.RerankFallback || part.RerankFallback
		for i := range merged.URLTiers {
			merged.URLTiers[i] += part.URLTiers[i]
		}
	}
	merged.Context = strings.Join(sections, "\n\n---\n\n")
	return merged, nil
}

func (r *Retriever) rerankActive() bool {
	return r.cfg.RerankEnabled && r.reranker != nil
}

// resolveURLs fills missing passage URLs in three tiers: the stored column,
// the passage metadata blob, then the parent document metadata. Parent
// lookups are memoized per call; a passage that stays unresolved is left
// without a URL.
func (r *Retriever) resolveURLs(ctx context.Context, passages []domain.Passage) [3]int {
	var tiers [3]int
	memo := make(map[string]string)
	for i := range passages {
		if passages[i].URL != "" {
			tiers[0]++
			continue
		}
		if url := urlFromMetadata(passages[i].Metadata); url != "" {
			passages[i].URL = url
			tiers[1]++
			continue
		}
		docID := passages[i].DocumentID
		if docID == "" {
			continue
		}
		url, seen := memo[docID]
		if !seen {
			fetched, err := r.store.DocumentURL(ctx, docID)
			if err != nil {
				fetched = ""
			}
			url = fetched
			memo[docID] = url
		}
		if url != "" {
			passages[i].URL = url
			tiers[2]++
		}
	}
	return tiers
}

// urlFromMetadata digs a URL out of the metadata blob, which may arrive as a
// JSON object or as a JSON string wrapping one.
func urlFromMetadata(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var meta map[string]any
	if err := json.Unmarshal(raw, &meta); err != nil {
		var wrapped string
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return ""
		}
		if err := json.Unmarshal([]byte(wrapped), &meta); err != nil {
			return ""
		}
	}
	for _, key := range []string{"url", "page_url", "source_url"} {
		if value, ok := meta[key].(string); ok && value != "" {
			return value
		}
	}
	return ""
}

// formatContext renders passages into the block the prompt templates expect.
// URLs are passed through verbatim.
func formatContext(passages []domain.Passage) string {
	blocks := make([]string, 0, len(passages))
	for i, p := range passages {
		var b strings.Builder
		title := p.Title
		if title == "" {
			title = "제목 없음"
		}
		fmt.Fprintf(&b, "[문서 %d] %s\n", i+1, title)
		if p.RerankScore != nil {
			fmt.Fprintf(&b, "리랭크 점수: %.4f\n", *p.RerankScore)
		} else {
			fmt.Fprintf(&b, "유사도: %.4f\n", p.Similarity)
		}
		fmt.Fprintf(&b, "내용:\n%s", p.Text)
		if p.Source != "" {
			fmt.Fprintf(&b, "\n📍 출처: %s", p.Source)
		}
		if p.URL != "" {
			fmt.Fprintf(&b, "\n🔗 URL: %s", p.URL)
		}
		blocks = append(blocks, b.String())
	}
	return strings.Join(blocks, "\n\n---\n\n")
}
