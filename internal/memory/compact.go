package memory

import (
	"fmt"

	"github.com/anthropics/triad/internal/llm"
)

// Compact bounds a thread's history once a long reasoning loop has bloated
// it. The first message must survive compaction because it carries the task
// statement; the keepRecent most recent messages survive because they hold
// the loop's working context. Everything between collapses into one marker
// message. Returns the number of messages dropped.
func (s *Store) Compact(threadID string, keepRecent int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.threads[threadID]
	if keepRecent < 1 || len(msgs) <= keepRecent+1 {
		return 0
	}

	head := msgs[0]
	tail := msgs[len(msgs)-keepRecent:]
	dropped := len(msgs) - 1 - keepRecent

	compacted := make([]llm.Message, 0, keepRecent+2)
	compacted = append(compacted, head)
	compacted = append(compacted, llm.Message{
		Role:    llm.RoleUser,
		Content: fmt.Sprintf("[%d earlier messages compacted]", dropped),
	})
	compacted = append(compacted, tail...)

	s.threads[threadID] = compacted
	return dropped
}
