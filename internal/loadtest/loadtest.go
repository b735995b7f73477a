// Package loadtest exercises the offline store under concurrent access.
//
// It seeds a store with a realistic backlog (most inspections already
// synced, the rest waiting in PENDING_SYNC or SYNC_ERROR) and measures how
// fast the candidate-set query answers while readers and a capture writer
// share the database, as happens when the daemon, the dashboard and the
// CLI run against the same file.
package loadtest

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"sort"
	gosync "sync"
	"time"

	"github.com/sanorte/vistorias/internal/offline/db"
	"github.com/sanorte/vistorias/internal/offline/schema"
)

// TestStore is a populated store for load testing.
type TestStore struct {
	DB            *db.DB
	ExternalIDs   []string
	PendingIDs    []string
	SyncedIDs     []string
	Total         int
	ItemsPerInsp  int
	SyncedPercent float64
}

// LatencyStats captures query latency.
type LatencyStats struct {
	Min          time.Duration
	Max          time.Duration
	Mean         time.Duration
	P50          time.Duration
	P95          time.Duration
	P99          time.Duration
	TotalQueries int
	Errors       int
}

// CreateTestStore creates a store at path holding total inspections with
// itemsPer answered items each. syncedPct of them (0.0-1.0) are SYNCED;
// the rest are split between PENDING_SYNC and SYNC_ERROR.
func CreateTestStore(ctx context.Context, path string, total, itemsPer int, syncedPct float64) (*TestStore, error) {
	if syncedPct < 0 || syncedPct > 1 {
		return nil, fmt.Errorf("synced percentage must be within 0.0-1.0, got %v", syncedPct)
	}

	store, err := db.OpenAndInit(ctx, path)
	if err != nil {
		return nil, err
	}

	ts := &TestStore{
		DB:            store,
		ExternalIDs:   make([]string, 0, total),
		Total:         total,
		ItemsPerInsp:  itemsPer,
		SyncedPercent: syncedPct,
	}

	numSynced := int(float64(total) * syncedPct)
	for i, rec := range generateInspections(total, numSynced) {
		if err := store.CreateInspectionContext(ctx, rec); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to insert inspection %d: %w", i, err)
		}
		if err := store.ReplaceInspectionItemsContext(ctx, rec.ExternalID, generateItems(rec.ExternalID, itemsPer, i)); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to insert items of %s: %w", rec.ExternalID, err)
		}

		ts.ExternalIDs = append(ts.ExternalIDs, rec.ExternalID)
		if rec.SyncState.NeedsSync() {
			ts.PendingIDs = append(ts.PendingIDs, rec.ExternalID)
		} else {
			ts.SyncedIDs = append(ts.SyncedIDs, rec.ExternalID)
		}
	}

	return ts, nil
}

// Close closes the store.
func (ts *TestStore) Close() error {
	if ts.DB != nil {
		return ts.DB.Close()
	}
	return nil
}

// RunConcurrentQueries runs readers goroutines that each load the candidate
// set queriesPer times, and returns the aggregated latency.
func (ts *TestStore) RunConcurrentQueries(ctx context.Context, readers, queriesPer int) (*LatencyStats, error) {
	var wg gosync.WaitGroup
	results := make(chan []time.Duration, readers)
	errs := make(chan error, readers)

	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func(reader int) {
			defer wg.Done()

			durations := make([]time.Duration, 0, queriesPer)
			for j := 0; j < queriesPer; j++ {
				start := time.Now()
				_, err := ts.DB.GetInspectionsToSyncContext(ctx)
				durations = append(durations, time.Since(start))
				if err != nil {
					errs <- fmt.Errorf("reader %d query %d failed: %w", reader, j, err)
					break
				}
			}
			results <- durations
		}(i)
	}

	wg.Wait()
	close(results)
	close(errs)

	var all []time.Duration
	for d := range results {
		all = append(all, d...)
	}
	errorCount := 0
	for range errs {
		errorCount++
	}

	if len(all) == 0 {
		return nil, fmt.Errorf("no queries completed")
	}
	stats := computeLatencyStats(all)
	stats.Errors = errorCount
	return stats, nil
}

// VerifyCandidateSet runs readers against the candidate set while one
// writer moves synced inspections back to PENDING_SYNC, as an edit after
// sync does. Every snapshot a reader sees must hold only inspections that
// need syncing, and the set must never shrink since the writer only adds.
func (ts *TestStore) VerifyCandidateSet(ctx context.Context, readers int, duration time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	var wg gosync.WaitGroup
	errs := make(chan error, readers+1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		pending := schema.SyncStatePending
		rng := rand.New(rand.NewSource(7))
		for _, i := range rng.Perm(len(ts.SyncedIDs)) {
			if ctx.Err() != nil {
				return
			}
			_, err := ts.DB.UpdateInspectionContext(ctx, ts.SyncedIDs[i], db.InspectionPatch{SyncState: &pending})
			if err != nil && ctx.Err() == nil {
				errs <- fmt.Errorf("writer failed: %w", err)
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()

	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func(reader int) {
			defer wg.Done()

			last := 0
			for ctx.Err() == nil {
				list, err := ts.DB.GetInspectionsToSyncContext(ctx)
				if err != nil {
					if ctx.Err() == nil {
						errs <- fmt.Errorf("reader %d failed: %w", reader, err)
					}
					return
				}
				for _, rec := range list {
					if !rec.SyncState.NeedsSync() {
						errs <- fmt.Errorf("reader %d saw %s in state %s", reader, rec.ExternalID, rec.SyncState)
						return
					}
				}
				if len(list) < last {
					errs <- fmt.Errorf("reader %d saw the candidate set shrink from %d to %d", reader, last, len(list))
					return
				}
				last = len(list)
				time.Sleep(time.Millisecond)
			}
		}(i)
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		return err
	}
	return nil
}

// GetStats returns statistics about the seeded store.
func (ts *TestStore) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"total_inspections":   ts.Total,
		"items_per":           ts.ItemsPerInsp,
		"pending_inspections": len(ts.PendingIDs),
		"synced_inspections":  len(ts.SyncedIDs),
		"pending_percent":     float64(len(ts.PendingIDs)) / float64(ts.Total) * 100,
	}
}

// generateInspections builds total inspections of which the first synced
// are SYNCED. Creation times are staggered over the last month.
func generateInspections(total, synced int) []*schema.Inspection {
	out := make([]*schema.Inspection, total)
	base := time.Now().UTC().Add(-30 * 24 * time.Hour)
	teams := []string{"team-a", "team-b", "team-c"}

	for i := 0; i < total; i++ {
		rec := schema.NewInspection(fmt.Sprintf("cl-%d", i%4), teams[i%len(teams)])
		rec.CreatedByUserID = fmt.Sprintf("user-%d", i%10)
		rec.ServiceDescription = fmt.Sprintf("Load test inspection %d", i)
		rec.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		rec.UpdatedAt = rec.CreatedAt

		finalized := rec.CreatedAt.Add(10 * time.Minute)
		score := 100 - i%40
		rec.Status = schema.StatusFinalized
		if score < 100 {
			rec.Status = schema.StatusNeedsAdjustment
		}
		rec.ScorePercent = &score
		rec.FinalizedAt = &finalized

		switch {
		case i < synced:
			syncedAt := finalized.Add(time.Hour)
			rec.SyncState = schema.SyncStateSynced
			rec.SyncedAt = &syncedAt
			rec.ServerID = fmt.Sprintf("srv-%05d", i)
		case i%5 == 0:
			rec.SyncState = schema.SyncStateError
			rec.SyncErrorMessage = "rejected by server"
		default:
			rec.SyncState = schema.SyncStatePending
		}
		out[i] = rec
	}
	return out
}

func generateItems(externalID string, n, seed int) []*schema.InspectionItem {
	answers := []schema.Answer{
		schema.AnswerConforme, schema.AnswerConforme, schema.AnswerConforme,
		schema.AnswerNaoConforme, schema.AnswerNaoAplicavel,
	}
	items := make([]*schema.InspectionItem, n)
	for j := 0; j < n; j++ {
		items[j] = schema.NewInspectionItem(externalID, fmt.Sprintf("c%d", j+1), answers[(seed+j)%len(answers)])
	}
	return items
}

func computeLatencyStats(durations []time.Duration) *LatencyStats {
	if len(durations) == 0 {
		return &LatencyStats{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}

	return &LatencyStats{
		Min:          sorted[0],
		Max:          sorted[len(sorted)-1],
		Mean:         sum / time.Duration(len(sorted)),
		P50:          sorted[len(sorted)*50/100],
		P95:          sorted[len(sorted)*95/100],
		P99:          sorted[len(sorted)*99/100],
		TotalQueries: len(sorted),
	}
}

// PrintStats writes the latency statistics to w.
func (s *LatencyStats) PrintStats(w io.Writer) {
	fmt.Fprintf(w, "Latency Statistics:\n")
	fmt.Fprintf(w, "  Total Queries: %d\n", s.TotalQueries)
	fmt.Fprintf(w, "  Errors:        %d\n", s.Errors)
	fmt.Fprintf(w, "  Min:           %v\n", s.Min)
	fmt.Fprintf(w, "  P50 (Median):  %v\n", s.P50)
	fmt.Fprintf(w, "  Mean:          %v\n", s.Mean)
	fmt.Fprintf(w, "  P95:           %v\n", s.P95)
	fmt.Fprintf(w, "  P99:           %v\n", s.P99)
	fmt.Fprintf(w, "  Max:           %v\n", s.Max)
}
