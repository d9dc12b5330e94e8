package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingSink struct {
	mu       sync.Mutex
	failures int // fail this many calls before succeeding
	calls    int
	written  []string
}

func (s *recordingSink) LogExecution(_ context.Context, exec *Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failures > 0 {
		s.failures--
		return errors.New("connection refused")
	}
	s.written = append(s.written, exec.ID)
	return nil
}

func TestAuditWriter_DrainsOnFlush(t *testing.T) {
	sink := &recordingSink{}
	w := NewAuditWriter(sink, 10)
	w.Start()

	for _, id := range []string{"a", "b", "c"} {
		w.Log(&Execution{ID: id})
	}
	w.Flush(5 * time.Second)

	if len(sink.written) != 3 {
		t.Fatalf("written = %v, want 3 records", sink.written)
	}
	for i, id := range []string{"a", "b", "c"} {
		if sink.written[i] != id {
			t.Errorf("written[%d] = %q, want %q", i, sink.written[i], id)
		}
	}
}

func TestAuditWriter_Retries(t *testing.T) {
	sink := &recordingSink{failures: 2}
	w := NewAuditWriter(sink, 10)
	w.backoff = time.Millisecond
	w.Start()

	w.Log(&Execution{ID: "retry-me"})
	w.Flush(5 * time.Second)

	if sink.calls != 3 {
		t.Errorf("calls = %d, want 3", sink.calls)
	}
	if len(sink.written) != 1 || sink.written[0] != "retry-me" {
		t.Errorf("written = %v", sink.written)
	}
}

func TestAuditWriter_GivesUp(t *testing.T) {
	sink := &recordingSink{failures: 100}
	w := NewAuditWriter(sink, 10)
	w.backoff = time.Millisecond
	w.Start()

	w.Log(&Execution{ID: "doomed"})
	w.Flush(5 * time.Second)

	if sink.calls != 4 {
		t.Errorf("calls = %d, want 4 (1 + 3 retries)", sink.calls)
	}
	if len(sink.written) != 0 {
		t.Errorf("written = %v, want none", sink.written)
	}
}

func TestAuditWriter_DropsWhenFull(t *testing.T) {
	sink := &recordingSink{}
	w := NewAuditWriter(sink, 1) // not started: nothing drains the buffer
	w.Log(&Execution{ID: "kept"})
	w.Log(&Execution{ID: "dropped"})

	if len(w.ch) != 1 {
		t.Errorf("buffered = %d, want 1", len(w.ch))
	}
}

func TestTruncateForDB(t *testing.T) {
	if got := truncateForDB("abcdef", 3); got != "abc" {
		t.Errorf("truncateForDB = %q", got)
	}
	if got := truncateForDB("ab", 3); got != "ab" {
		t.Errorf("truncateForDB = %q", got)
	}
}
