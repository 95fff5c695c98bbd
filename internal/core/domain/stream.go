package domain

import (
	"strings"
	"sync"
)

// StreamSession tracks one in-flight generation: the accumulated text,
// the next frame sequence number and whether the client went away.
// Safe for use from the producing and delivering goroutines.
type StreamSession struct {
	ID string

	mu        sync.Mutex
	text      strings.Builder
	seq       int
	cancelled bool
}

func NewStreamSession(id string) *StreamSession {
	return &StreamSession{ID: id}
}

func (s *StreamSession) Append(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.text.WriteString(token)
}

// Snapshot returns everything accumulated so far.
func (s *StreamSession) Snapshot() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text.String()
}

// NextSeq hands out monotonically increasing sequence numbers starting at 1.
func (s *StreamSession) NextSeq() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq
}

func (s *StreamSession) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = true
}

func (s *StreamSession) Cancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}
