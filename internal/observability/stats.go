// Package observability provides operation statistics tracking for command reporting and performance monitoring.
package observability

import (
	"sort"
	"sync"
	"time"
)

// OpStats tracks per-operation counters across a process lifetime.
type OpStats struct {
	mu     sync.RWMutex
	ops    map[string]*OpRecord
	window time.Duration
}

// OpRecord holds the accumulated counters for one operation name.
type OpRecord struct {
	Name     string
	Count    int64
	Failures int64
	Bytes    int64
	Elapsed  time.Duration
	LastAt   time.Time
}

// NewOpStats creates a new operation statistics tracker.
// window: time duration for pruning idle entries (e.g., 1 hour)
func NewOpStats(window time.Duration) *OpStats {
	return &OpStats{
		ops:    make(map[string]*OpRecord),
		window: window,
	}
}

// Record accumulates one completed operation.
// op: the operation name (e.g., "backup.run")
// elapsed: the operation's wall-clock duration
// failed: whether the operation ended in an error
// This method is O(1) and thread-safe.
func (s *OpStats) Record(op string, elapsed time.Duration, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.ops[op]
	if !exists {
		rec = &OpRecord{Name: op}
		s.ops[op] = rec
	}

	rec.Count++
	if failed {
		rec.Failures++
	}
	rec.Elapsed += elapsed
	rec.LastAt = time.Now()
}

// AddBytes credits payload bytes to an operation, such as the size of a
// written backup artifact.
// This method is O(1) and thread-safe.
func (s *OpStats) AddBytes(op string, n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.ops[op]
	if !exists {
		rec = &OpRecord{Name: op}
		s.ops[op] = rec
	}

	rec.Bytes += n
	rec.LastAt = time.Now()
}

// Top returns the top N operations by count.
// Returns a copy of the records sorted by count (descending).
func (s *OpStats) Top(n int) []OpRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n <= 0 || len(s.ops) == 0 {
		return []OpRecord{}
	}

	recs := s.copyRecords()
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].Count > recs[j].Count
	})

	if n > len(recs) {
		n = len(recs)
	}
	return recs[:n]
}

// Snapshot returns every record sorted by operation name, so repeated
// dumps of the same state agree.
func (s *OpStats) Snapshot() []OpRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := s.copyRecords()
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].Name < recs[j].Name
	})
	return recs
}

// copyRecords copies every record so callers cannot mutate tracked state.
// Callers hold at least a read lock.
func (s *OpStats) copyRecords() []OpRecord {
	recs := make([]OpRecord, 0, len(s.ops))
	for _, r := range s.ops {
		recs = append(recs, *r)
	}
	return recs
}

// Prune removes entries where time.Since(LastAt) > window.
// This should be called periodically in long-running processes.
func (s *OpStats) Prune() {
	s.mu.Lock()
	defer s.mu.Unlock()

	threshold := time.Now().Add(-s.window)
	for op, rec := range s.ops {
		if rec.LastAt.Before(threshold) {
			delete(s.ops, op)
		}
	}
}
