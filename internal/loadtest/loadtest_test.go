package loadtest

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"
)

func createStore(t *testing.T, total, itemsPer int, syncedPct float64) *TestStore {
	t.Helper()
	ts, err := CreateTestStore(context.Background(), filepath.Join(t.TempDir(), "offline.db"), total, itemsPer, syncedPct)
	if err != nil {
		t.Fatalf("Failed to create test store: %v", err)
	}
	t.Cleanup(func() { ts.Close() })
	return ts
}

// TestCreateTestStore verifies the seeded backlog has the requested shape.
func TestCreateTestStore(t *testing.T) {
	ts := createStore(t, 100, 5, 0.7)

	if len(ts.ExternalIDs) != 100 {
		t.Errorf("Expected 100 inspections, got %d", len(ts.ExternalIDs))
	}
	if len(ts.SyncedIDs) != 70 {
		t.Errorf("Expected 70 synced inspections, got %d", len(ts.SyncedIDs))
	}
	if len(ts.PendingIDs)+len(ts.SyncedIDs) != ts.Total {
		t.Errorf("Pending (%d) + Synced (%d) != %d", len(ts.PendingIDs), len(ts.SyncedIDs), ts.Total)
	}

	n, err := ts.DB.CountPendingSync()
	if err != nil {
		t.Fatalf("CountPendingSync() failed: %v", err)
	}
	if n != len(ts.PendingIDs) {
		t.Errorf("CountPendingSync() = %d, want %d", n, len(ts.PendingIDs))
	}

	items, err := ts.DB.GetInspectionItems(ts.ExternalIDs[0])
	if err != nil {
		t.Fatalf("GetInspectionItems() failed: %v", err)
	}
	if len(items) != 5 {
		t.Errorf("Expected 5 items, got %d", len(items))
	}
}

func TestCreateTestStore_InvalidPercent(t *testing.T) {
	if _, err := CreateTestStore(context.Background(), filepath.Join(t.TempDir(), "offline.db"), 10, 1, 1.5); err == nil {
		t.Error("CreateTestStore() should reject a synced percentage above 1")
	}
}

// TestConcurrentQueries_Small verifies basic concurrent query functionality.
func TestConcurrentQueries_Small(t *testing.T) {
	ts := createStore(t, 100, 3, 0.5)

	stats, err := ts.RunConcurrentQueries(context.Background(), 10, 5)
	if err != nil {
		t.Fatalf("Concurrent queries failed: %v", err)
	}
	if stats.Errors > 0 {
		t.Errorf("Got %d errors during queries", stats.Errors)
	}
	if stats.TotalQueries != 50 {
		t.Errorf("Expected 50 total queries, got %d", stats.TotalQueries)
	}
	if stats.Min > stats.P50 || stats.P50 > stats.P99 || stats.P99 > stats.Max {
		t.Errorf("Percentiles out of order: %+v", stats)
	}

	stats.PrintStats(io.Discard)
}

func TestVerifyCandidateSet(t *testing.T) {
	ts := createStore(t, 60, 2, 0.5)

	if err := ts.VerifyCandidateSet(context.Background(), 4, 300*time.Millisecond); err != nil {
		t.Fatalf("VerifyCandidateSet() failed: %v", err)
	}

	n, err := ts.DB.CountPendingSync()
	if err != nil {
		t.Fatalf("CountPendingSync() failed: %v", err)
	}
	if n < len(ts.PendingIDs) {
		t.Errorf("pending count dropped to %d, started at %d", n, len(ts.PendingIDs))
	}
}

func TestComputeLatencyStats(t *testing.T) {
	var durations []time.Duration
	for i := 100; i >= 1; i-- {
		durations = append(durations, time.Duration(i)*time.Millisecond)
	}

	stats := computeLatencyStats(durations)
	if stats.Min != time.Millisecond || stats.Max != 100*time.Millisecond {
		t.Errorf("Min/Max = %v/%v", stats.Min, stats.Max)
	}
	if stats.P50 != 51*time.Millisecond {
		t.Errorf("P50 = %v, want 51ms", stats.P50)
	}
	if stats.Mean != 50500*time.Microsecond {
		t.Errorf("Mean = %v, want 50.5ms", stats.Mean)
	}
	if got := computeLatencyStats(nil); got.TotalQueries != 0 {
		t.Errorf("empty stats = %+v", got)
	}
}

func TestGetStats(t *testing.T) {
	ts := createStore(t, 20, 1, 0.75)
	stats := ts.GetStats()
	if stats["pending_inspections"] != 5 {
		t.Errorf("pending_inspections = %v, want 5", stats["pending_inspections"])
	}
	if stats["pending_percent"] != float64(25) {
		t.Errorf("pending_percent = %v, want 25", stats["pending_percent"])
	}
}
