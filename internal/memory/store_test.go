package memory

import (
	"testing"

	"github.com/anthropics/triad/internal/llm"
)

func TestStoreCreatedOnFirstAppend(t *testing.T) {
	s := NewStore()

	if got := s.Len("planning_session"); got != 0 {
		t.Fatalf("Len before append = %d, want 0", got)
	}

	s.Append("planning_session", llm.Message{Role: llm.RoleUser, Content: "plan this"})
	if got := s.Len("planning_session"); got != 1 {
		t.Fatalf("Len after append = %d, want 1", got)
	}
}

func TestStoreOrdersMessages(t *testing.T) {
	s := NewStore()
	s.Append("t", llm.Message{Role: llm.RoleUser, Content: "first"})
	s.Append("t",
		llm.Message{Role: llm.RoleAssistant, Content: "second"},
		llm.Message{Role: llm.RoleTool, Content: "third"},
	)

	h := s.History("t")
	if len(h) != 3 {
		t.Fatalf("History len = %d, want 3", len(h))
	}
	for i, want := range []string{"first", "second", "third"} {
		if h[i].Content != want {
			t.Errorf("History[%d] = %q, want %q", i, h[i].Content, want)
		}
	}
}

func TestStoreThreadIsolation(t *testing.T) {
	s := NewStore()
	s.Append("a", llm.Message{Role: llm.RoleUser, Content: "for a"})
	s.Append("b", llm.Message{Role: llm.RoleUser, Content: "for b"})

	if got := s.Len("a"); got != 1 {
		t.Errorf("Len(a) = %d, want 1", got)
	}
	if h := s.History("b"); len(h) != 1 || h[0].Content != "for b" {
		t.Errorf("History(b) = %+v, want only its own message", h)
	}
}

func TestStoreHistoryIsACopy(t *testing.T) {
	s := NewStore()
	s.Append("t", llm.Message{Role: llm.RoleUser, Content: "original"})

	h := s.History("t")
	h[0].Content = "mutated"

	if got := s.History("t")[0].Content; got != "original" {
		t.Fatalf("stored message = %q, caller mutation leaked into the store", got)
	}
}

func TestStoreReset(t *testing.T) {
	s := NewStore()
	s.Append("t", llm.Message{Role: llm.RoleUser, Content: "x"})
	s.Reset("t")

	if got := s.Len("t"); got != 0 {
		t.Fatalf("Len after Reset = %d, want 0", got)
	}
	if ids := s.Threads(); len(ids) != 0 {
		t.Fatalf("Threads after Reset = %v, want empty", ids)
	}
}

func TestStoreThreadsSorted(t *testing.T) {
	s := NewStore()
	for _, id := range []string{"validation_session", "planning_session", "implementation_session"} {
		s.Append(id, llm.Message{Role: llm.RoleUser, Content: "x"})
	}

	got := s.Threads()
	want := []string{"implementation_session", "planning_session", "validation_session"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Threads = %v, want %v", got, want)
		}
	}
}
