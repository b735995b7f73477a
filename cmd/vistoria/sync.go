package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sanorte/vistorias/internal/connectivity"
	"github.com/sanorte/vistorias/internal/metrics"
	"github.com/sanorte/vistorias/internal/offline/schema"
	"github.com/sanorte/vistorias/internal/sync"
	"github.com/sanorte/vistorias/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Run one sync pass",
	Long: `Submit every PENDING_SYNC and SYNC_ERROR inspection to the server.

A pass:
  1. Uploads media that only has a local preview
  2. Sends the whole batch in one request
  3. Records SYNCED or SYNC_ERROR per inspection
  4. Purges SYNCED inspections older than sync.retention_days`,
	Run: func(cmd *cobra.Command, args []string) {
		offline, _ := cmd.Flags().GetBool("offline")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		e := openEnv(ctx)
		defer e.Close()

		syncer, err := e.syncer(offline, metrics.Observer{})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Syncing inspections...\n", ui.RenderAccent("🔄"))
		res, err := syncer.SyncAll(ctx)
		if err != nil {
			reportSyncError(err)
			os.Exit(1)
		}

		if res.Candidates == 0 {
			fmt.Printf("%s Nothing to sync\n", ui.RenderPass("✓"))
			return
		}

		rows := make([][]string, 0, len(res.Outcomes))
		for _, o := range res.Outcomes {
			rows = append(rows, []string{o.ExternalID, ui.RenderSyncState(o.State), o.ServerID, o.Message})
		}
		fmt.Println()
		fmt.Print(ui.Table([]string{"INSPECTION", "STATE", "SERVER ID", "MESSAGE"}, rows))
		fmt.Println()

		mark := ui.RenderPass("✓")
		if res.Failed > 0 {
			mark = ui.RenderWarn("⚠")
		}
		fmt.Printf("%s Sync complete in %v\n", mark, res.Duration.Round(time.Millisecond))
		fmt.Printf("   Synced: %d\n", res.Synced)
		fmt.Printf("   Failed: %d\n", res.Failed)
		fmt.Printf("   Media uploaded: %d\n", res.Uploaded)
		if res.Purged > 0 {
			fmt.Printf("   Purged: %d\n", res.Purged)
		}
	},
}

// syncer builds the sync engine from the configuration. offline forces
// every pass to fail with sync.ErrOffline.
func (e *env) syncer(offline bool, observers ...sync.Observer) (sync.Syncer, error) {
	client, err := e.remoteClient()
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, fmt.Errorf("remote.base_url is not configured")
	}

	online := e.checker()
	if offline {
		online = connectivity.NewStatic(false)
	}
	return sync.New(e.store, client, sync.Options{
		Connectivity:  online,
		RetentionDays: e.cfg.Sync.RetentionDays,
		StaleGrace:    e.cfg.Sync.StaleGrace,
		Logger:        e.cfg.Logger("[sync] "),
		Observers:     observers,
	}), nil
}

func reportSyncError(err error) {
	switch {
	case errors.Is(err, sync.ErrOffline):
		fmt.Fprintf(os.Stderr, "%s Offline: nothing was sent. Pending inspections stay queued.\n", ui.RenderWarn("⚠"))
	case errors.Is(err, sync.ErrSyncInProgress):
		fmt.Fprintf(os.Stderr, "%s Another sync pass is running\n", ui.RenderWarn("⚠"))
	case sync.IsUserActionRequired(err):
		fmt.Fprintf(os.Stderr, "%s Session expired: update remote.token and try again\n", ui.RenderFail("✗"))
	default:
		fmt.Fprintf(os.Stderr, "Error during sync: %v\n", err)
	}
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show offline store status",
	Long: `Display the number of inspections per sync state, the pending count
and the time of the last successful pass.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		e := openEnv(ctx)
		defer e.Close()

		counts, err := e.store.GetCountsContext(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error getting counts: %v\n", err)
			os.Exit(1)
		}
		pending, err := e.store.CountPendingSyncContext(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error counting pending inspections: %v\n", err)
			os.Exit(1)
		}
		last, err := e.store.LastSyncAt(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading last sync time: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("\n%s Offline Store Status\n\n", ui.RenderAccent("📊"))
		fmt.Printf("Location: %s\n", e.store.Path())

		states := []schema.SyncState{schema.SyncStatePending, schema.SyncStateSyncing, schema.SyncStateSynced, schema.SyncStateError}
		rows := make([][]string, 0, len(states))
		for _, s := range states {
			rows = append(rows, []string{ui.RenderSyncState(s), strconv.Itoa(counts[s])})
		}
		fmt.Println()
		fmt.Print(ui.Table([]string{"STATE", "COUNT"}, rows))
		fmt.Println()

		if pending > 0 {
			fmt.Printf("Pending: %s\n", ui.RenderWarn(strconv.Itoa(pending)))
		} else {
			fmt.Printf("Pending: %s\n", ui.RenderPass("0"))
		}
		if last.IsZero() {
			fmt.Printf("Last sync: %s\n", ui.RenderMuted("never"))
		} else {
			fmt.Printf("Last sync: %s\n", last.Local().Format("2006-01-02 15:04:05"))
		}
		fmt.Println()
	},
}

var purgeCmd = &cobra.Command{
	Use:     "purge",
	GroupID: "maint",
	Short:   "Remove old synced inspections",
	Long: `Delete SYNCED inspections whose sync time is older than --days, with
their items, evidences and signature. Inspections that still need syncing
are never removed.`,
	Run: func(cmd *cobra.Command, args []string) {
		days, _ := cmd.Flags().GetInt("days")
		if days < 0 {
			fmt.Fprintf(os.Stderr, "Error: --days must be >= 0\n")
			os.Exit(1)
		}

		ctx := context.Background()
		e := openEnv(ctx)
		defer e.Close()

		n, err := e.store.PurgeSyncedOlderThanDaysContext(ctx, days)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error purging: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Purged %d synced inspections older than %d days\n", ui.RenderPass("✓"), n, days)
	},
}

var recoverCmd = &cobra.Command{
	Use:     "recover",
	GroupID: "maint",
	Short:   "Requeue inspections left SYNCING by an interrupted pass",
	Run: func(cmd *cobra.Command, args []string) {
		grace, _ := cmd.Flags().GetDuration("grace")

		ctx := context.Background()
		e := openEnv(ctx)
		defer e.Close()

		if !cmd.Flags().Changed("grace") {
			grace = e.cfg.Sync.StaleGrace
		}
		n, err := e.store.ResetStaleSyncingContext(ctx, grace)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error recovering: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Requeued %d inspections\n", ui.RenderPass("✓"), n)
	},
}

func init() {
	syncCmd.Flags().Bool("offline", false, "Behave as if there were no connectivity")
	purgeCmd.Flags().Int("days", 7, "Retention in days")
	recoverCmd.Flags().Duration("grace", 2*time.Minute, "Minimum age of a SYNCING record")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(purgeCmd)
	rootCmd.AddCommand(recoverCmd)
}
