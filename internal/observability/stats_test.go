// Package observability provides operation statistics tracking for command reporting and performance monitoring.
package observability

import (
	"sync"
	"testing"
	"time"
)

// TestRecordConcurrent tests concurrent Record calls for race conditions.
func TestRecordConcurrent(t *testing.T) {
	stats := NewOpStats(1 * time.Hour)
	var wg sync.WaitGroup
	numGoroutines := 10
	recordsPerGoroutine := 100

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < recordsPerGoroutine; j++ {
				stats.Record("backup.run", time.Millisecond, false)
				stats.Record("query.exec", time.Millisecond, false)
				stats.Record("restore", time.Millisecond, true)
			}
		}()
	}

	wg.Wait()

	top := stats.Top(10)
	if len(top) != 3 {
		t.Errorf("expected 3 operations, got %d", len(top))
	}

	expected := int64(numGoroutines * recordsPerGoroutine)
	for _, rec := range top {
		if rec.Count != expected {
			t.Errorf("expected count %d for %s, got %d", expected, rec.Name, rec.Count)
		}
	}
}

// TestTopOrdering tests that Top returns results sorted by count.
func TestTopOrdering(t *testing.T) {
	stats := NewOpStats(1 * time.Hour)

	for i := 0; i < 10; i++ {
		stats.Record("query.exec", time.Millisecond, false)
	}
	for i := 0; i < 5; i++ {
		stats.Record("backup.run", time.Second, false)
	}
	for i := 0; i < 20; i++ {
		stats.Record("table.inspect", time.Microsecond, false)
	}

	top := stats.Top(3)
	if len(top) != 3 {
		t.Fatalf("expected 3 operations, got %d", len(top))
	}

	// Should be ordered: table.inspect (20), query.exec (10), backup.run (5)
	if top[0].Name != "table.inspect" || top[0].Count != 20 {
		t.Errorf("expected table.inspect with count 20, got %s with %d", top[0].Name, top[0].Count)
	}
	if top[1].Name != "query.exec" || top[1].Count != 10 {
		t.Errorf("expected query.exec with count 10, got %s with %d", top[1].Name, top[1].Count)
	}
	if top[2].Name != "backup.run" || top[2].Count != 5 {
		t.Errorf("expected backup.run with count 5, got %s with %d", top[2].Name, top[2].Count)
	}
}

// TestRecordTracksFailuresAndElapsed tests the failure and duration counters.
func TestRecordTracksFailuresAndElapsed(t *testing.T) {
	stats := NewOpStats(1 * time.Hour)

	for i := 0; i < 5; i++ {
		stats.Record("backup.run", 10*time.Millisecond, false)
	}
	for i := 0; i < 3; i++ {
		stats.Record("backup.run", 10*time.Millisecond, true)
	}

	top := stats.Top(1)
	if len(top) != 1 {
		t.Fatalf("expected 1 operation, got %d", len(top))
	}

	rec := top[0]
	if rec.Count != 8 {
		t.Errorf("expected count 8, got %d", rec.Count)
	}
	if rec.Failures != 3 {
		t.Errorf("expected 3 failures, got %d", rec.Failures)
	}
	if rec.Elapsed != 80*time.Millisecond {
		t.Errorf("expected 80ms cumulative elapsed, got %v", rec.Elapsed)
	}
}

// TestAddBytesAccumulates tests that AddBytes credits payload bytes.
func TestAddBytesAccumulates(t *testing.T) {
	stats := NewOpStats(1 * time.Hour)

	stats.Record("backup.run", time.Second, false)
	stats.AddBytes("backup.run", 4096)
	stats.AddBytes("backup.run", 1024)

	top := stats.Top(1)
	if len(top) != 1 {
		t.Fatalf("expected 1 operation, got %d", len(top))
	}
	if top[0].Bytes != 5120 {
		t.Errorf("expected 5120 bytes, got %d", top[0].Bytes)
	}
	if top[0].Count != 1 {
		t.Errorf("AddBytes must not change the count, got %d", top[0].Count)
	}
}

// TestSnapshotSortedByName tests that Snapshot output is deterministic.
func TestSnapshotSortedByName(t *testing.T) {
	stats := NewOpStats(1 * time.Hour)
	stats.Record("restore", time.Millisecond, false)
	stats.Record("backup.run", time.Millisecond, false)
	stats.Record("query.exec", time.Millisecond, false)

	snap := stats.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("expected 3 records, got %d", len(snap))
	}
	want := []string{"backup.run", "query.exec", "restore"}
	for i, name := range want {
		if snap[i].Name != name {
			t.Errorf("snapshot[%d] = %s, want %s", i, snap[i].Name, name)
		}
	}
}

// TestSnapshotIsACopy tests that mutating a snapshot does not affect tracked state.
func TestSnapshotIsACopy(t *testing.T) {
	stats := NewOpStats(1 * time.Hour)
	stats.Record("verify", time.Millisecond, false)

	snap := stats.Snapshot()
	snap[0].Count = 999

	if got := stats.Snapshot()[0].Count; got != 1 {
		t.Errorf("tracked count = %d after mutating a snapshot, want 1", got)
	}
}

// TestPruneRemovesIdleEntries tests that Prune removes entries older than the window.
func TestPruneRemovesIdleEntries(t *testing.T) {
	window := 100 * time.Millisecond
	stats := NewOpStats(window)

	stats.Record("query.exec", time.Millisecond, false)

	if len(stats.Snapshot()) != 1 {
		t.Fatalf("expected 1 record before prune")
	}

	time.Sleep(window + 50*time.Millisecond)
	stats.Prune()

	if got := len(stats.Snapshot()); got != 0 {
		t.Errorf("expected 0 records after prune, got %d", got)
	}
}

// TestTopEmpty tests Top with no data.
func TestTopEmpty(t *testing.T) {
	stats := NewOpStats(1 * time.Hour)
	if top := stats.Top(10); len(top) != 0 {
		t.Errorf("expected 0 operations, got %d", len(top))
	}
}

// TestTopLimitExceedsData tests Top when n exceeds available data.
func TestTopLimitExceedsData(t *testing.T) {
	stats := NewOpStats(1 * time.Hour)
	stats.Record("backup.run", time.Millisecond, false)
	stats.Record("restore", time.Millisecond, false)

	if top := stats.Top(100); len(top) != 2 {
		t.Errorf("expected 2 operations, got %d", len(top))
	}
}
