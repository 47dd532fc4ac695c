package telegram

import "sync"

// maxSeenFiles bounds the proxy allow-list. Links older than this many
// attachments stop resolving.
const maxSeenFiles = 4096

// seenFiles is a fixed-size set of file ids; the oldest id is evicted first.
// A nil *seenFiles holds nothing.
type seenFiles struct {
	mu   sync.Mutex
	ring []string
	next int
	ids  map[string]struct{}
}

func newSeenFiles(n int) *seenFiles {
	if n <= 0 {
		n = 1
	}
	return &seenFiles{ring: make([]string, n), ids: make(map[string]struct{}, n)}
}

func (s *seenFiles) Add(id string) {
	if s == nil || id == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; ok {
		return
	}
	if old := s.ring[s.next]; old != "" {
		delete(s.ids, old)
	}
	s.ring[s.next] = id
	s.ids[id] = struct{}{}
	s.next = (s.next + 1) % len(s.ring)
}

func (s *seenFiles) Has(id string) bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}
