package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/vessellink/veddy/internal/core/domain"
	"github.com/vessellink/veddy/internal/core/ports"
)

type messageStoreFake struct {
	saved   []*domain.Message
	recent  []domain.Message
	saveErr error
	listErr error
}

func (f *messageStoreFake) SaveMessage(_ context.Context, msg *domain.Message) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, msg)
	return nil
}

func (f *messageStoreFake) ListRecent(context.Context, string, int) ([]domain.Message, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.recent, nil
}

func newChatFixture(t *testing.T, store *searchStoreFake, model *chatModelFake, messages *messageStoreFake) *ChatUseCase {
	t.Helper()
	retriever := NewRetriever(&embedderFake{}, store, nil, RetrieverConfig{MatchCount: 30, TopicQualifier: "베슬링크"})
	streamer := NewStreamer(model, mustPrompts(t), time.Minute)
	return NewChatUseCase(NewComparisonDetector(), retriever, streamer, messages, 15)
}

func TestChatRespondHappyPath(t *testing.T) {
	store := &searchStoreFake{passages: []domain.Passage{{ID: "1", Title: "규정", Text: "본문", URL: "https://wiki/1"}}}
	model := &chatModelFake{deltas: []string{"답변입니다. ", "📚 참고 문서:\n- 규정"}}
	messages := &messageStoreFake{}
	uc := newChatFixture(t, store, model, messages)

	result, err := uc.Respond(context.Background(), ports.ChatRequest{UserID: "u1", Query: "IMO DCS 보고 기한은?"}, nil)
	if err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	if result.Mode != domain.ModeNormal {
		t.Fatalf("mode = %s, want normal", result.Mode)
	}
	if !strings.Contains(result.Answer, "답변입니다.") {
		t.Fatalf("unexpected answer: %q", result.Answer)
	}
	if len(result.Passages) != 1 {
		t.Fatalf("expected passages on result, got %d", len(result.Passages))
	}
	if len(messages.saved) != 1 {
		t.Fatalf("expected 1 persisted message, got %d", len(messages.saved))
	}
	if messages.saved[0].Answer != result.Answer || messages.saved[0].UserID != "u1" {
		t.Fatalf("persisted message mismatch: %+v", messages.saved[0])
	}
}

func TestChatRespondComparisonFromHistory(t *testing.T) {
	store := &searchStoreFake{passages: []domain.Passage{{ID: "1", Title: "규정", Text: "본문"}}}
	model := &chatModelFake{deltas: []string{"비교 답변 📚 참고 문서: 규정"}}
	messages := &messageStoreFake{recent: []domain.Message{
		{Query: "IMO DCS란?", Answer: "연료유 데이터 수집 제도입니다."},
		{Query: "EU MRV란?", Answer: "유럽연합 배출량 모니터링 제도입니다."},
	}}
	uc := newChatFixture(t, store, model, messages)

	result, err := uc.Respond(context.Background(), ports.ChatRequest{UserID: "u1", Query: "둘의 차이를 표로 보여줘", TableMode: true}, nil)
	if err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	if !result.Intent.IsComparison {
		t.Fatal("expected comparison intent from history")
	}
	if result.Mode != domain.ModeComparisonTable {
		t.Fatalf("mode = %s, want comparison_table", result.Mode)
	}
	if len(messages.saved) != 1 || !messages.saved[0].ComparisonMode {
		t.Fatalf("persisted message should record comparison mode: %+v", messages.saved)
	}
}

func TestChatRespondWithoutCallbackInvokesModel(t *testing.T) {
	store := &searchStoreFake{passages: []domain.Passage{{ID: "1", Text: "본문"}}}
	model := &chatModelFake{deltas: []string{"답변 📚 참고 문서: x"}}
	uc := newChatFixture(t, store, model, &messageStoreFake{})

	result, err := uc.Respond(context.Background(), ports.ChatRequest{UserID: "u1", Query: "질문"}, nil)
	if err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	if model.invokeCalls != 1 || model.streamCalls != 0 {
		t.Fatalf("invoke calls = %d, stream calls = %d; want 1, 0", model.invokeCalls, model.streamCalls)
	}
	if !strings.Contains(result.Answer, "답변") {
		t.Fatalf("unexpected answer: %q", result.Answer)
	}
}

func TestChatRespondTableFlagOnly(t *testing.T) {
	store := &searchStoreFake{passages: []domain.Passage{{ID: "1", Text: "본문"}}}
	model := &chatModelFake{deltas: []string{"표 답변 📚 참고 문서: x"}}
	uc := newChatFixture(t, store, model, &messageStoreFake{})

	result, err := uc.Respond(context.Background(), ports.ChatRequest{UserID: "u1", Query: "보고 절차 정리해줘", TableMode: true}, nil)
	if err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	if result.Mode != domain.ModeTable {
		t.Fatalf("mode = %s, want table", result.Mode)
	}
}

func TestChatRespondDegradesOnRetrievalFailure(t *testing.T) {
	store := &searchStoreFake{
		searchErr: errors.New("search rpc down"),
		vectorErr: errors.New("index down"),
	}
	model := &chatModelFake{deltas: []string{"문서를 찾지 못했습니다. 📚 참고 문서: 없음"}}
	messages := &messageStoreFake{}
	uc := newChatFixture(t, store, model, messages)

	result, err := uc.Respond(context.Background(), ports.ChatRequest{UserID: "u1", Query: "IMO DCS 기한?"}, nil)
	if err != nil {
		t.Fatalf("retrieval failure must not fail the request, got %v", err)
	}
	if !result.RetrievalDegraded {
		t.Fatal("expected degraded retrieval flag")
	}
	if len(messages.saved) != 1 {
		t.Fatalf("degraded answers still persist, got %d", len(messages.saved))
	}
}

func TestChatRespondTimeoutSkipsPersist(t *testing.T) {
	store := &searchStoreFake{passages: []domain.Passage{{ID: "1", Text: "본문"}}}
	model := &chatModelFake{deltas: []string{"a", "b"}, delay: 200 * time.Millisecond}
	messages := &messageStoreFake{}
	retriever := NewRetriever(&embedderFake{}, store, nil, RetrieverConfig{MatchCount: 30})
	streamer := NewStreamer(model, mustPrompts(t), 50*time.Millisecond)
	uc := NewChatUseCase(NewComparisonDetector(), retriever, streamer, messages, 15)

	_, err := uc.Respond(context.Background(), ports.ChatRequest{UserID: "u1", Query: "질문"}, nil)
	if !domain.IsKind(err, domain.ErrGenerationTimeout) {
		t.Fatalf("expected ErrGenerationTimeout, got %v", err)
	}
	if len(messages.saved) != 0 {
		t.Fatalf("interrupted answer must not be persisted, got %d", len(messages.saved))
	}
}

func TestChatRespondEmptyQuery(t *testing.T) {
	uc := newChatFixture(t, &searchStoreFake{}, &chatModelFake{}, &messageStoreFake{})
	_, err := uc.Respond(context.Background(), ports.ChatRequest{UserID: "u1", Query: "   "}, nil)
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestChatRespondPersistFailureIsSoft(t *testing.T) {
	store := &searchStoreFake{passages: []domain.Passage{{ID: "1", Text: "본문"}}}
	model := &chatModelFake{deltas: []string{"답변 📚 참고 문서: x"}}
	messages := &messageStoreFake{saveErr: errors.New("insert failed")}
	uc := newChatFixture(t, store, model, messages)

	result, err := uc.Respond(context.Background(), ports.ChatRequest{UserID: "u1", Query: "질문"}, nil)
	if err != nil {
		t.Fatalf("persist failure must not fail the request, got %v", err)
	}
	if !result.PersistFailed {
		t.Fatal("expected persist failure flag")
	}
}

func TestHistoryBlockTruncation(t *testing.T) {
	long := strings.Repeat("가", 1200)
	block := historyBlock([]domain.Message{{Query: strings.Repeat("q", 150), Answer: long}})
	if !strings.Contains(block, strings.Repeat("q", 100)+"...") {
		t.Error("question not truncated at 100 runes")
	}
	if strings.Contains(block, strings.Repeat("가", 1001)) {
		t.Error("answer not truncated at 1000 runes")
	}
	if !strings.HasPrefix(block, "Q: ") || !strings.Contains(block, "\nA: ") {
		t.Errorf("unexpected block shape: %q", block[:20])
	}
}
