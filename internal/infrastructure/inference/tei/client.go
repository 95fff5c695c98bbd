// Package tei talks to text-embeddings-inference servers: one serving the
// embedding model and one serving the cross-encoder reranker.
package tei

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/vessellink/veddy/internal/infrastructure/resilience"
)

type Client struct {
	embedURL   string
	rerankURL  string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(embedURL, rerankURL string, executor *resilience.Executor) *Client {
	return &Client{
		embedURL:   strings.TrimRight(embedURL, "/"),
		rerankURL:  strings.TrimRight(rerankURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		executor:   executor,
	}
}

func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"inputs":   texts,
		"truncate": true,
	}
	var vectors [][]float32
	err := c.execute(ctx, "tei.embed", func(callCtx context.Context) error {
		vectors = nil
		return c.postJSON(callCtx, c.embedURL+"/embed", request, &vectors, "embed")
	})
	if err != nil {
		return nil, wrapTemporaryIfNeeded("embed texts", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embed texts: got %d vectors for %d inputs", len(vectors), len(texts))
	}
	return vectors, nil
}

func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

// Score runs the cross-encoder on one query/passage pair.
func (c *Client) Score(ctx context.Context, query, text string) (float64, error) {
	request := map[string]any{
		"query":    query,
		"texts":    []string{text},
		"truncate": true,
	}
	var results []struct {
		Index int     `json:"index"`
		Score float64 `json:"score"`
	}
	err := c.execute(ctx, "tei.rerank", func(callCtx context.Context) error {
		results = nil
		return c.postJSON(callCtx, c.rerankURL+"/rerank", request, &results, "rerank")
	})
	if err != nil {
		return 0, wrapTemporaryIfNeeded("score pair", err)
	}
	if len(results) == 0 {
		return 0, fmt.Errorf("empty rerank result")
	}
	return results[0].Score, nil
}

func (c *Client) execute(ctx context.Context, operation string, fn func(context.Context) error) error {
	if c.executor == nil {
		return fn(ctx)
	}
	return c.executor.Execute(ctx, operation, fn, classifyInferenceError)
}
