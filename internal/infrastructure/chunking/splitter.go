package chunking

import (
	"fmt"
	"strings"

	"github.com/vessellink/veddy/internal/core/domain"
	"github.com/vessellink/veddy/internal/core/ports"
)

// TokenSplitter cuts text into fixed token windows that overlap by a fixed
// amount. Windows start every chunkTokens-overlap tokens; the last window may
// be short. Windows below minTokens or blank after trimming are dropped, but
// never change the stepping of later windows.
type TokenSplitter struct {
	tokenizer   ports.Tokenizer
	chunkTokens int
	overlap     int
	minTokens   int
}

func NewTokenSplitter(tokenizer ports.Tokenizer, chunkTokens, overlap, minTokens int) (*TokenSplitter, error) {
	if chunkTokens <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkTokens)
	}
	if overlap < 0 || overlap >= chunkTokens {
		return nil, fmt.Errorf("overlap %d must be in [0, %d)", overlap, chunkTokens)
	}
	if minTokens < 0 {
		return nil, fmt.Errorf("min chunk size must not be negative, got %d", minTokens)
	}
	return &TokenSplitter{
		tokenizer:   tokenizer,
		chunkTokens: chunkTokens,
		overlap:     overlap,
		minTokens:   minTokens,
	}, nil
}

func (s *TokenSplitter) Chunk(text string) []domain.Chunk {
	tokens := s.tokenizer.Encode(text)
	if len(tokens) == 0 {
		return nil
	}

	step := s.chunkTokens - s.overlap
	out := make([]domain.Chunk, 0, len(tokens)/step+1)
	for start := 0; start < len(tokens); start += step {
		end := start + s.chunkTokens
		if end > len(tokens) {
			end = len(tokens)
		}
		window := tokens[start:end]
		if len(window) >= s.minTokens {
			piece := strings.TrimSpace(s.tokenizer.Decode(window))
			if piece != "" {
				out = append(out, domain.Chunk{Text: piece, TokenCount: len(window)})
			}
		}
		if end == len(tokens) {
			break
		}
	}
	return out
}
