package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/sanorte/vistorias/internal/loadtest"
	"github.com/sanorte/vistorias/internal/ui"
)

var benchCmd = &cobra.Command{
	Use:     "bench",
	GroupID: "maint",
	Short:   "Load test the offline store",
	Long: `Seed a throwaway offline store and measure the candidate-set query
while concurrent readers run, then check that readers only ever see
inspections needing sync while a writer requeues synced ones.

Nothing is written to the configured store.

Examples:
  vistoria bench
  vistoria bench --inspections 5000 --readers 20 --json`,
	Run: runBench,
}

func init() {
	benchCmd.Flags().Int("inspections", 1000, "Number of inspections to seed")
	benchCmd.Flags().Int("items", 10, "Answered items per inspection")
	benchCmd.Flags().Float64("synced", 0.8, "Fraction of inspections already synced (0.0-1.0)")
	benchCmd.Flags().Int("readers", 8, "Concurrent readers")
	benchCmd.Flags().Int("queries", 20, "Queries per reader")
	benchCmd.Flags().Duration("verify", 2*time.Second, "Duration of the read/write consistency check (0 skips it)")
	benchCmd.Flags().Bool("json", false, "Output results as JSON")
	rootCmd.AddCommand(benchCmd)
}

func runBench(cmd *cobra.Command, args []string) {
	inspections, _ := cmd.Flags().GetInt("inspections")
	items, _ := cmd.Flags().GetInt("items")
	synced, _ := cmd.Flags().GetFloat64("synced")
	readers, _ := cmd.Flags().GetInt("readers")
	queries, _ := cmd.Flags().GetInt("queries")
	verify, _ := cmd.Flags().GetDuration("verify")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	if inspections <= 0 || readers <= 0 || queries <= 0 {
		fmt.Fprintf(os.Stderr, "Error: --inspections, --readers and --queries must be positive\n")
		os.Exit(1)
	}

	dir, err := os.MkdirTemp("", "vistoria-bench-")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer os.RemoveAll(dir)

	ctx := context.Background()
	if !jsonOutput {
		fmt.Printf("%s Seeding %d inspections (%d items each, %.0f%% synced)...\n",
			ui.RenderAccent("⏳"), inspections, items, synced*100)
	}
	ts, err := loadtest.CreateTestStore(ctx, filepath.Join(dir, "bench.db"), inspections, items, synced)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer ts.Close()

	start := time.Now()
	stats, err := ts.RunConcurrentQueries(ctx, readers, queries)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	elapsed := time.Since(start)

	var verifyErr error
	if verify > 0 {
		verifyErr = ts.VerifyCandidateSet(ctx, readers, verify)
	}

	if jsonOutput {
		output := map[string]interface{}{
			"store": ts.GetStats(),
			"latency": map[string]interface{}{
				"min_us":  stats.Min.Microseconds(),
				"p50_us":  stats.P50.Microseconds(),
				"mean_us": stats.Mean.Microseconds(),
				"p95_us":  stats.P95.Microseconds(),
				"p99_us":  stats.P99.Microseconds(),
				"max_us":  stats.Max.Microseconds(),
			},
			"throughput": map[string]interface{}{
				"qps":     float64(stats.TotalQueries) / elapsed.Seconds(),
				"queries": stats.TotalQueries,
				"errors":  stats.Errors,
			},
			"consistent": verifyErr == nil,
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(output)
	} else {
		fmt.Println()
		stats.PrintStats(os.Stdout)
		fmt.Printf("  Throughput:    %.0f queries/s\n\n", float64(stats.TotalQueries)/elapsed.Seconds())
		switch {
		case verify <= 0:
		case verifyErr != nil:
			fmt.Printf("%s Consistency check failed: %v\n", ui.RenderFail("✗"), verifyErr)
		default:
			fmt.Printf("%s Candidate set stayed consistent for %v\n", ui.RenderPass("✓"), verify)
		}
	}

	if stats.Errors > 0 || verifyErr != nil {
		_ = ts.Close()
		_ = os.RemoveAll(dir)
		os.Exit(1)
	}
}
