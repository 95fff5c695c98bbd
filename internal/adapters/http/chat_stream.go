package httpadapter

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/vessellink/veddy/internal/core/domain"
)

// streamFrame is one SSE data payload on /v1/chat/stream.
type streamFrame struct {
	Type    string       `json:"type"`
	Content string       `json:"content,omitempty"`
	Message string       `json:"message,omitempty"`
	Answer  string       `json:"answer,omitempty"`
	Mode    string       `json:"mode,omitempty"`
	Sources []chatSource `json:"sources,omitempty"`
}

// chatStream answers one question over SSE. Tokens are re-sliced into
// single-rune frames and paced by a per-request limiter so the browser renders
// a steady typing effect regardless of provider chunk sizes. The client going
// away aborts generation; nothing is written after that.
func (rt *Router) chatStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	req, ok := decodeChatRequest(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming is not supported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	perSecond := rt.options.StreamRatePerSecond
	if perSecond <= 0 {
		perSecond = 200
	}
	burst := rt.options.StreamBurst
	if burst <= 0 {
		burst = 50
	}
	limiter := rate.NewLimiter(rate.Limit(perSecond), burst)

	start := time.Now()
	runeCount := 0
	frames := 0
	onToken := func(token string) error {
		for _, rn := range token {
			runeCount++
			// The write below does not fail on a closed connection until the
			// buffer drains, so poll the request context periodically.
			if runeCount%100 == 0 && r.Context().Err() != nil {
				return domain.WrapError(domain.ErrClientGone, "stream tokens", r.Context().Err())
			}
			if err := limiter.Wait(r.Context()); err != nil {
				return domain.WrapError(domain.ErrClientGone, "stream tokens", err)
			}
			if err := writeSSE(w, streamFrame{Type: "token", Content: string(rn)}); err != nil {
				return domain.WrapError(domain.ErrClientGone, "stream tokens", err)
			}
			frames++
			flusher.Flush()
		}
		return nil
	}

	result, err := rt.chat.Respond(r.Context(), req, onToken)
	if err != nil {
		if domain.IsKind(err, domain.ErrClientGone) {
			rt.recordStreamOutcome("web", "cancelled")
			return
		}
		outcome := "error"
		if domain.IsKind(err, domain.ErrGenerationTimeout) {
			outcome = "timeout"
		}
		rt.recordStreamOutcome("web", outcome)
		rt.logger.Error("chat stream failed", "request_id", requestIDFromContext(r.Context()), "error", err)
		_ = writeSSE(w, streamFrame{Type: "error", Message: apologyForError(err)})
		flusher.Flush()
		return
	}

	// Token frames carry the raw stream; the reformat pass (paragraph breaks,
	// references section) only exists on the final answer, so the done frame
	// ships it for the client to swap in.
	_ = writeSSE(w, streamFrame{
		Type:    "done",
		Answer:  result.Answer,
		Mode:    string(result.Mode),
		Sources: sourcesFromPassages(result.Passages),
	})
	frames++
	flusher.Flush()

	rt.recordStreamOutcome("web", "done")
	rt.recordChatResult("web", result, time.Since(start))
	if rt.metrics != nil {
		rt.metrics.RecordStreamFrames(rt.options.Service, "web", frames)
	}
}

func writeSSE(w http.ResponseWriter, frame streamFrame) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", payload)
	return err
}
