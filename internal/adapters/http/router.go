// Package httpadapter exposes the chat and document APIs over HTTP: a JSON
// query endpoint, an SSE streaming endpoint for the web client and the Teams
// webhook for the bot channel.
package httpadapter

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/vessellink/veddy/internal/core/domain"
	"github.com/vessellink/veddy/internal/core/ports"
	"github.com/vessellink/veddy/internal/observability/metrics"
)

// ChannelStreamSender is the buffered delivery loop for one Teams reply.
type ChannelStreamSender interface {
	Start(ctx context.Context, notice string) error
	Append(token string)
	Run(ctx context.Context)
	Finish(ctx context.Context, text string) error
	Frames() int
}

type Options struct {
	Service             string
	StreamRatePerSecond int
	StreamBurst         int
	RateLimitRPS        int
	RateLimitBurst      int
	MaxInFlight         int
	BackpressureWait    time.Duration
	// TeamsAggregate switches the Teams webhook from the buffered stream to a
	// single aggregated reply activity.
	TeamsAggregate bool
}

type Router struct {
	chat            ports.ChatService
	ingest          ports.DocumentIngestor
	repo            ports.DocumentRepository
	newStreamSender func(conv ports.ChannelConversation) ChannelStreamSender
	transport       ports.ChannelTransport
	metrics         *metrics.HTTPServerMetrics
	logger          *slog.Logger
	options         Options
}

func NewRouter(
	chat ports.ChatService,
	ingest ports.DocumentIngestor,
	repo ports.DocumentRepository,
	newStreamSender func(conv ports.ChannelConversation) ChannelStreamSender,
	transport ports.ChannelTransport,
	serverMetrics *metrics.HTTPServerMetrics,
	logger *slog.Logger,
	options Options,
) *Router {
	if options.Service == "" {
		options.Service = "api"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		chat:            chat,
		ingest:          ingest,
		repo:            repo,
		newStreamSender: newStreamSender,
		transport:       transport,
		metrics:         serverMetrics,
		logger:          logger,
		options:         options,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/documents", rt.uploadDocument)
	mux.HandleFunc("/v1/documents/", rt.getDocumentByID)
	mux.HandleFunc("/v1/chat/query", rt.chatQuery)
	mux.HandleFunc("/v1/chat/stream", rt.chatStream)
	mux.HandleFunc("/v1/teams/messages", rt.teamsMessages)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.options.MaxInFlight, rt.options.BackpressureWait)
	handler = rateLimitMiddleware(handler, rt.options.RateLimitRPS, rt.options.RateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(rt.options.Service, handler)
	}
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	doc, err := rt.ingest.Upload(
		r.Context(),
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		r.FormValue("title"),
		file,
	)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) getDocumentByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/documents/")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document id is required"})
		return
	}

	doc, err := rt.repo.GetByID(r.Context(), id)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

type chatRequestBody struct {
	UserID    string `json:"user_id"`
	Query     string `json:"query"`
	TableMode bool   `json:"table_mode"`
	History   string `json:"history"`
}

type chatSource struct {
	Title string  `json:"title"`
	URL   string  `json:"url,omitempty"`
	Score float64 `json:"score"`
}

type chatResponseBody struct {
	Answer         string       `json:"answer"`
	Mode           string       `json:"mode"`
	Comparison     bool         `json:"comparison"`
	Topics         []string     `json:"topics,omitempty"`
	Sources        []chatSource `json:"sources"`
	Degraded       bool         `json:"degraded,omitempty"`
	RerankFallback bool         `json:"rerank_fallback,omitempty"`
}

func decodeChatRequest(r *http.Request) (ports.ChatRequest, bool) {
	var body chatRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return ports.ChatRequest{}, false
	}
	if strings.TrimSpace(body.Query) == "" {
		return ports.ChatRequest{}, false
	}
	return ports.ChatRequest{
		UserID:    body.UserID,
		Query:     body.Query,
		TableMode: body.TableMode,
		History:   body.History,
	}, true
}

// chatQuery answers one question without streaming.
func (rt *Router) chatQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	req, ok := decodeChatRequest(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}

	start := time.Now()
	result, err := rt.chat.Respond(r.Context(), req, nil)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": apologyForError(err)})
		return
	}
	rt.recordChatResult("query", result, time.Since(start))

	writeJSON(w, http.StatusOK, chatResponseBody{
		Answer:         result.Answer,
		Mode:           string(result.Mode),
		Comparison:     result.Intent.IsComparison,
		Topics:         result.Intent.Topics,
		Sources:        sourcesFromPassages(result.Passages),
		Degraded:       result.RetrievalDegraded,
		RerankFallback: result.RerankFallback,
	})
}

func sourcesFromPassages(passages []domain.Passage) []chatSource {
	sources := make([]chatSource, 0, len(passages))
	for _, p := range passages {
		sources = append(sources, chatSource{
			Title: p.Title,
			URL:   p.URL,
			Score: p.Score(),
		})
	}
	return sources
}

func (rt *Router) recordChatResult(channel string, result *ports.ChatResult, elapsed time.Duration) {
	if rt.metrics == nil || result == nil {
		return
	}
	service := rt.options.Service
	rt.metrics.RecordChatObservation(service, channel, string(result.Mode), len(result.Passages), elapsed)
	if result.Intent.IsComparison {
		rt.metrics.RecordComparisonDetected(service, result.Intent.Method)
	}
	if result.RerankFallback {
		rt.metrics.RecordRerankFallback(service)
	}
	if result.RetrievalDegraded {
		rt.metrics.RecordRetrievalDegraded(service)
	}
	if result.PersistFailed {
		rt.metrics.RecordPersistFailed(service)
	}
	rt.metrics.RecordURLBackfill(service, result.URLTiers)
}

func (rt *Router) recordStreamOutcome(channel, outcome string) {
	if rt.metrics == nil {
		return
	}
	rt.metrics.RecordStreamOutcome(rt.options.Service, channel, outcome)
}

// apologyForError maps a pipeline failure to the user-facing Korean message.
func apologyForError(err error) string {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return "질문을 입력해 주세요."
	case domain.IsKind(err, domain.ErrGenerationTimeout):
		return "죄송합니다. 응답 생성 시간이 초과되었습니다. 잠시 후 다시 시도해 주세요."
	case domain.IsKind(err, domain.ErrTemporary):
		return "죄송합니다. 일시적인 오류가 발생했습니다. 잠시 후 다시 시도해 주세요."
	default:
		return "죄송합니다. 답변 생성 중 오류가 발생했습니다."
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
