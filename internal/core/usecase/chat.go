package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vessellink/veddy/internal/core/domain"
	"github.com/vessellink/veddy/internal/core/ports"
)

// ChatUseCase runs the full question answering pipeline: history, intent
// detection, retrieval, mode selection, generation and persistence.
type ChatUseCase struct {
	detector     *ComparisonDetector
	retriever    *Retriever
	streamer     *Streamer
	messages     ports.MessageStore
	historyLimit int
}

func NewChatUseCase(
	detector *ComparisonDetector,
	retriever *Retriever,
	streamer *Streamer,
	messages ports.MessageStore,
	historyLimit int,
) *ChatUseCase {
	if historyLimit <= 0 {
		historyLimit = 15
	}
	return &ChatUseCase{
		detector:     detector,
		retriever:    retriever,
		streamer:     streamer,
		messages:     messages,
		historyLimit: historyLimit,
	}
}

func (uc *ChatUseCase) Respond(ctx context.Context, req ports.ChatRequest, onToken func(token string) error) (*ports.ChatResult, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "chat respond", errors.New("empty query"))
	}

	history := uc.loadHistory(ctx, req)
	intent := uc.detector.Detect(query, history)
	mode := domain.SelectMode(req.TableMode, intent.IsComparison)

	retrieval, degraded, err := uc.retrieve(ctx, query, intent)
	if err != nil {
		return nil, err
	}

	answer, err := uc.streamer.Generate(ctx, mode, PromptVars{
		Query:   query,
		Context: retrieval.Context,
		History: history,
		Topics:  intent.Topics,
	}, onToken)
	if err != nil {
		// Interrupted or failed answers are never persisted.
		return nil, err
	}

	result := &ports.ChatResult{
		Answer:            answer,
		Mode:              mode,
		Intent:            intent,
		Passages:          retrieval.Passages,
		RetrievalDegraded: degraded,
		RerankFallback:    retrieval.RerankFallback,
		URLTiers:          retrieval.URLTiers,
	}
	uc.persist(ctx, req, intent, answer, result)
	return result, nil
}

func (uc *ChatUseCase) loadHistory(ctx context.Context, req ports.ChatRequest) string {
	if req.History != "" {
		return req.History
	}
	if uc.messages == nil || req.UserID == "" {
		return ""
	}
	recent, err := uc.messages.ListRecent(ctx, req.UserID, uc.historyLimit)
	if err != nil {
		// Missing history degrades the answer, it does not fail the request.
		return ""
	}
	return historyBlock(recent)
}

// retrieve fetches context for the query, falling back to the no-documents
// context when retrieval itself fails. Client disconnects still abort.
func (uc *ChatUseCase) retrieve(ctx context.Context, query string, intent domain.ComparisonIntent) (*RetrievalResult, bool, error) {
	var (
		retrieval *RetrievalResult
		err       error
	)
	if intent.IsComparison {
		retrieval, err = uc.retriever.SearchTopics(ctx, intent.Topics)
	} else {
		retrieval, err = uc.retriever.Search(ctx, query)
	}
	if err == nil {
		return retrieval, false, nil
	}
	if ctx.Err() != nil {
		return nil, false, domain.WrapError(domain.ErrClientGone, "retrieve context", ctx.Err())
	}
	return &RetrievalResult{Context: NoDocumentsContext}, true, nil
}

func (uc *ChatUseCase) persist(ctx context.Context, req ports.ChatRequest, intent domain.ComparisonIntent, answer string, result *ports.ChatResult) {
	if uc.messages == nil || req.UserID == "" {
		return
	}
	msg := &domain.Message{
		ID:             uuid.NewString(),
		UserID:         req.UserID,
		Query:          req.Query,
		Answer:         answer,
		TableMode:      req.TableMode,
		ComparisonMode: intent.IsComparison,
		Topics:         intent.Topics,
		CreatedAt:      time.Now().UTC(),
	}
	if err := uc.messages.SaveMessage(context.WithoutCancel(ctx), msg); err != nil {
		result.PersistFailed = true
	}
}

// historyBlock renders recent exchanges chronologically as Q/A pairs, with
// questions capped at 100 runes and answers at 1000.
func historyBlock(messages []domain.Message) string {
	if len(messages) == 0 {
		return ""
	}
	blocks := make([]string, 0, len(messages))
	for _, m := range messages {
		blocks = append(blocks, fmt.Sprintf("Q: %s\nA: %s", truncateRunes(m.Query, 100), truncateRunes(m.Answer, 1000)))
	}
	return strings.Join(blocks, "\n\n")
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
