package bridge

import (
	"sync"

	"github.com/rawbytedev/msgstream/pkg/stream"
)

// Storage collects streams between commits.
type Storage struct {
	mu      sync.Mutex
	streams []*stream.ReadOnly
}

func (s *Storage) Add(ro *stream.ReadOnly) {
	s.mu.Lock()
	s.streams = append(s.streams, ro)
	s.mu.Unlock()
	pendingStreams.Inc()
}

// Consume takes every pending stream, in arrival order.
func (s *Storage) Consume() []*stream.ReadOnly {
	s.mu.Lock()
	out := s.streams
	s.streams = nil
	s.mu.Unlock()
	pendingStreams.Sub(float64(len(out)))
	return out
}

func (s *Storage) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.streams)
}
