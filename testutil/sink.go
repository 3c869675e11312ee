package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/c360/gazestream/message"
)

// RecordingSink stores every delivered record.
type RecordingSink struct {
	mu      sync.Mutex
	records []message.Record
}

// Deliver implements tcp.Sink.
func (s *RecordingSink) Deliver(r message.Record) {
	s.mu.Lock()
	s.records = append(s.records, r)
	s.mu.Unlock()
}

// Records returns a copy of the delivered records.
func (s *RecordingSink) Records() []message.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]message.Record, len(s.records))
	copy(out, s.records)
	return out
}

// Count returns the number of delivered records.
func (s *RecordingSink) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// WaitFor blocks until at least n records arrived or fails the test.
func (s *RecordingSink) WaitFor(t testing.TB, n int, timeout time.Duration) []message.Record {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s.Count() >= n {
			return s.Records()
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("got %d records, want %d within %s", s.Count(), n, timeout)
	return nil
}
