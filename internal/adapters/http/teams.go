package httpadapter

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/vessellink/veddy/internal/core/domain"
	"github.com/vessellink/veddy/internal/core/ports"
)

const searchingNotice = "검색 중입니다..."

var tableKeywords = []string{"표로", "표 형식", "표형식", "테이블로", "table"}

// teamsActivity is the inbound Bot Framework activity envelope.
type teamsActivity struct {
	Type string `json:"type"`
	Text string `json:"text"`
	From struct {
		ID string `json:"id"`
	} `json:"from"`
	Conversation struct {
		ID string `json:"id"`
	} `json:"conversation"`
	ServiceURL string `json:"serviceUrl"`
}

// teamsMessages handles the bot webhook. The answer is not returned in the
// webhook response; it is pushed back through the connector, either as a
// stream of activities while generation runs or as one aggregated message.
func (rt *Router) teamsMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if rt.newStreamSender == nil && rt.transport == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "teams channel is not configured"})
		return
	}

	var activity teamsActivity
	if err := json.NewDecoder(r.Body).Decode(&activity); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid activity"})
		return
	}
	if activity.Type != "message" || strings.TrimSpace(activity.Text) == "" {
		writeJSON(w, http.StatusOK, map[string]string{})
		return
	}
	if activity.ServiceURL == "" || activity.Conversation.ID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "conversation address is required"})
		return
	}

	query := strings.TrimSpace(activity.Text)
	req := ports.ChatRequest{
		UserID:    activity.From.ID,
		Query:     query,
		TableMode: wantsTable(query),
	}
	conv := ports.ChannelConversation{
		ServiceURL:     activity.ServiceURL,
		ConversationID: activity.Conversation.ID,
	}

	if rt.transport != nil && (rt.options.TeamsAggregate || rt.newStreamSender == nil) {
		rt.teamsAggregateReply(w, r, req, conv)
		return
	}

	sender := rt.newStreamSender(conv)
	ctx := r.Context()
	if err := sender.Start(ctx, searchingNotice); err != nil {
		rt.logger.Error("teams stream start failed", "request_id", requestIDFromContext(ctx), "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "channel delivery failed"})
		return
	}

	flushCtx, stopFlush := context.WithCancel(ctx)
	go sender.Run(flushCtx)

	start := time.Now()
	result, err := rt.chat.Respond(ctx, req, func(token string) error {
		sender.Append(token)
		return nil
	})
	stopFlush()

	if err != nil {
		outcome := "error"
		if domain.IsKind(err, domain.ErrGenerationTimeout) {
			outcome = "timeout"
		}
		rt.recordStreamOutcome("teams", outcome)
		rt.logger.Error("teams chat failed", "request_id", requestIDFromContext(ctx), "error", err)
		// The final frame must close the stream even on failure, so the
		// channel message does not stay stuck on the typing indicator.
		if finishErr := sender.Finish(context.WithoutCancel(ctx), apologyForError(err)); finishErr != nil {
			rt.logger.Error("teams stream finish failed", "request_id", requestIDFromContext(ctx), "error", finishErr)
		}
		writeJSON(w, http.StatusOK, map[string]string{})
		return
	}

	if finishErr := sender.Finish(ctx, result.Answer); finishErr != nil {
		rt.logger.Error("teams stream finish failed", "request_id", requestIDFromContext(ctx), "error", finishErr)
	}

	rt.recordStreamOutcome("teams", "done")
	rt.recordChatResult("teams", result, time.Since(start))
	if rt.metrics != nil {
		rt.metrics.RecordStreamFrames(rt.options.Service, "teams", sender.Frames())
	}
	writeJSON(w, http.StatusOK, map[string]string{})
}

// teamsAggregateReply answers with a single message activity instead of a
// stream. Generation runs without a token callback, so the model is invoked
// in one shot.
func (rt *Router) teamsAggregateReply(w http.ResponseWriter, r *http.Request, req ports.ChatRequest, conv ports.ChannelConversation) {
	ctx := r.Context()
	start := time.Now()

	result, err := rt.chat.Respond(ctx, req, nil)
	if err != nil {
		rt.logger.Error("teams chat failed", "request_id", requestIDFromContext(ctx), "error", err)
		reply := ports.ChannelActivity{Type: "message", Text: apologyForError(err)}
		if _, sendErr := rt.transport.SendActivity(context.WithoutCancel(ctx), conv, reply); sendErr != nil {
			rt.logger.Error("teams reply failed", "request_id", requestIDFromContext(ctx), "error", sendErr)
		}
		writeJSON(w, http.StatusOK, map[string]string{})
		return
	}

	reply := ports.ChannelActivity{Type: "message", Text: result.Answer}
	if _, sendErr := rt.transport.SendActivity(ctx, conv, reply); sendErr != nil {
		rt.logger.Error("teams reply failed", "request_id", requestIDFromContext(ctx), "error", sendErr)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "channel delivery failed"})
		return
	}

	rt.recordChatResult("teams", result, time.Since(start))
	writeJSON(w, http.StatusOK, map[string]string{})
}

func wantsTable(text string) bool {
	lowered := strings.ToLower(text)
	for _, keyword := range tableKeywords {
		if strings.Contains(lowered, keyword) {
			return true
		}
	}
	return false
}
