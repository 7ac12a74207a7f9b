// Package memory holds per-session conversation state keyed by thread id.
// State lives only in process memory: a thread is created on first append,
// mutated by every later append under the same id, and destroyed at process
// exit. Nothing is ever persisted or restored.
package memory

import (
	"sort"
	"sync"

	"github.com/anthropics/triad/internal/llm"
)

// Store maps thread ids to ordered, role-tagged conversation histories. One
// store is shared by all stages; each thread is mutated only by the stage
// that owns its id, but the map itself is locked against misuse.
type Store struct {
	mu      sync.Mutex
	threads map[string][]llm.Message
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{threads: make(map[string][]llm.Message)}
}

// Append adds messages to the thread, creating it on first use.
func (s *Store) Append(threadID string, msgs ...llm.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads[threadID] = append(s.threads[threadID], msgs...)
}

// History returns a copy of the thread's messages in order. An unknown
// thread yields an empty history.
func (s *Store) History(threadID string) []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.threads[threadID]
	out := make([]llm.Message, len(msgs))
	copy(out, msgs)
	return out
}

// Len returns the number of messages in the thread.
func (s *Store) Len(threadID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.threads[threadID])
}

// Reset removes the thread entirely.
func (s *Store) Reset(threadID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.threads, threadID)
}

// Threads returns the known thread ids in sorted order.
func (s *Store) Threads() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.threads))
	for id := range s.threads {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
