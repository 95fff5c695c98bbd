package config

import "testing"

func TestLoadRetrievalDefaults(t *testing.T) {
	t.Setenv("MATCH_COUNT", "")
	t.Setenv("FULL_TEXT_WEIGHT", "")
	t.Setenv("SEMANTIC_WEIGHT", "")
	t.Setenv("RERANK_ENABLED", "")
	t.Setenv("RERANK_TOP_K", "")
	t.Setenv("HNSW_EF_SEARCH", "")

	cfg := Load()
	if cfg.MatchCount != 30 {
		t.Fatalf("expected default match count 30, got %d", cfg.MatchCount)
	}
	if cfg.FullTextWeight != 0.4 || cfg.SemanticWeight != 0.6 {
		t.Fatalf("expected default weights 0.4/0.6, got %v/%v", cfg.FullTextWeight, cfg.SemanticWeight)
	}
	if !cfg.RerankEnabled || cfg.RerankTopK != 5 {
		t.Fatalf("expected reranking on with top k 5, got %v/%d", cfg.RerankEnabled, cfg.RerankTopK)
	}
	if cfg.HNSWEfSearch != 50 {
		t.Fatalf("expected default ef_search 50, got %d", cfg.HNSWEfSearch)
	}
}

func TestLoadChunkingDefaults(t *testing.T) {
	t.Setenv("CHUNK_TOKENS", "")
	t.Setenv("CHUNK_OVERLAP", "")
	t.Setenv("CHUNK_MIN_TOKENS", "")

	cfg := Load()
	if cfg.ChunkTokens != 400 || cfg.ChunkOverlap != 50 || cfg.ChunkMin != 30 {
		t.Fatalf("unexpected chunking defaults: %d/%d/%d", cfg.ChunkTokens, cfg.ChunkOverlap, cfg.ChunkMin)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("MATCH_COUNT", "50")
	t.Setenv("FULL_TEXT_WEIGHT", "0.3")
	t.Setenv("RERANK_ENABLED", "false")
	t.Setenv("GENERATION_TIMEOUT_SECONDS", "90")
	t.Setenv("OPENAI_TEMPERATURE", "0.2")

	cfg := Load()
	if cfg.MatchCount != 50 {
		t.Fatalf("expected match count 50, got %d", cfg.MatchCount)
	}
	if cfg.FullTextWeight != 0.3 {
		t.Fatalf("expected full text weight 0.3, got %v", cfg.FullTextWeight)
	}
	if cfg.RerankEnabled {
		t.Fatal("expected reranking disabled")
	}
	if cfg.GenerationTimeoutSeconds != 90 {
		t.Fatalf("expected generation timeout 90, got %d", cfg.GenerationTimeoutSeconds)
	}
	if cfg.OpenAITemperature != 0.2 {
		t.Fatalf("expected temperature 0.2, got %v", cfg.OpenAITemperature)
	}
}

func TestLoadFallsBackOnBadValues(t *testing.T) {
	t.Setenv("MATCH_COUNT", "many")
	t.Setenv("SEMANTIC_WEIGHT", "heavy")
	t.Setenv("RERANK_ENABLED", "maybe")

	cfg := Load()
	if cfg.MatchCount != 30 {
		t.Fatalf("expected fallback match count 30, got %d", cfg.MatchCount)
	}
	if cfg.SemanticWeight != 0.6 {
		t.Fatalf("expected fallback semantic weight 0.6, got %v", cfg.SemanticWeight)
	}
	if !cfg.RerankEnabled {
		t.Fatal("expected fallback rerank enabled")
	}
}
