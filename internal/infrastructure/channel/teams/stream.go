package teams

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vessellink/veddy/internal/core/domain"
	"github.com/vessellink/veddy/internal/core/ports"
)

const (
	activityTyping  = "typing"
	activityMessage = "message"

	streamTypeInformative = "informative"
	streamTypeStreaming   = "streaming"
	streamTypeFinal       = "final"
)

// StreamSender buffers generated tokens and flushes the cumulative text to a
// Teams conversation on a fixed interval. Teams renders each streaming frame
// as a full replacement, so frames always carry the whole snapshot. The final
// frame is sent exactly once; after it the sender ignores further flushes.
type StreamSender struct {
	transport ports.ChannelTransport
	conv      ports.ChannelConversation
	session   *domain.StreamSession
	interval  time.Duration
	logger    *slog.Logger

	mu       sync.Mutex
	streamID string
	lastLen  int
	frames   int
	done     bool
}

func NewStreamSender(transport ports.ChannelTransport, conv ports.ChannelConversation, session *domain.StreamSession, interval time.Duration, logger *slog.Logger) *StreamSender {
	if interval <= 0 {
		interval = 1500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamSender{
		transport: transport,
		conv:      conv,
		session:   session,
		interval:  interval,
		logger:    logger,
	}
}

// Start sends the informative opening frame and records the channel-assigned
// activity id that threads every later frame of this stream.
func (s *StreamSender) Start(ctx context.Context, notice string) error {
	id, err := s.transport.SendActivity(ctx, s.conv, ports.ChannelActivity{
		Type:       activityTyping,
		Text:       notice,
		Sequence:   s.session.NextSeq(),
		StreamType: streamTypeInformative,
	})
	if err != nil {
		return fmt.Errorf("send stream start: %w", err)
	}

	s.mu.Lock()
	s.streamID = id
	s.frames++
	s.mu.Unlock()
	return nil
}

// Append records a generated token for the next flush. Safe to call from the
// generation goroutine while Run is flushing.
func (s *StreamSender) Append(token string) {
	s.session.Append(token)
}

// Run flushes on the configured interval until ctx is cancelled.
func (s *StreamSender) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.flush(ctx)
		}
	}
}

func (s *StreamSender) flush(ctx context.Context) {
	s.mu.Lock()
	if s.done || s.streamID == "" {
		s.mu.Unlock()
		return
	}
	text := s.session.Snapshot()
	if len(text) == s.lastLen {
		s.mu.Unlock()
		return
	}
	s.lastLen = len(text)
	streamID := s.streamID
	s.mu.Unlock()

	_, err := s.transport.SendActivity(ctx, s.conv, ports.ChannelActivity{
		Type:       activityTyping,
		Text:       text,
		StreamID:   streamID,
		Sequence:   s.session.NextSeq(),
		StreamType: streamTypeStreaming,
	})
	if err != nil {
		s.logger.Warn("teams stream flush failed", "error", err)
		return
	}

	s.mu.Lock()
	s.frames++
	s.mu.Unlock()
}

// Finish sends the single final frame carrying the complete text. Later calls
// are no-ops, so a delivery error path and a success path cannot both close
// the stream.
func (s *StreamSender) Finish(ctx context.Context, text string) error {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return nil
	}
	s.done = true
	streamID := s.streamID
	s.mu.Unlock()

	_, err := s.transport.SendActivity(ctx, s.conv, ports.ChannelActivity{
		Type:       activityMessage,
		Text:       text,
		StreamID:   streamID,
		Sequence:   s.session.NextSeq(),
		StreamType: streamTypeFinal,
	})
	if err != nil {
		return fmt.Errorf("send stream final: %w", err)
	}

	s.mu.Lock()
	s.frames++
	s.mu.Unlock()
	return nil
}

// Frames reports how many frames were delivered so far.
func (s *StreamSender) Frames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}
