package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sanorte/vistorias/internal/backup"
	"github.com/sanorte/vistorias/internal/offline/db"
	"github.com/sanorte/vistorias/internal/offline/schema"
	"github.com/sanorte/vistorias/internal/ui"
)

var exportCmd = &cobra.Command{
	Use:     "export <file.jsonl>",
	GroupID: "data",
	Short:   "Export inspections as JSONL",
	Long: `Write inspections with their items, evidences and signature to a JSONL
file, one inspection per line. By default only inspections that still need
syncing are exported, which is what moving work to another device needs.

Local previews are referenced by path, not copied.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		all, _ := cmd.Flags().GetBool("all")
		state, _ := cmd.Flags().GetString("state")
		since, _ := cmd.Flags().GetString("since")

		filter := db.ListInspectionsFilter{SyncState: schema.SyncState(strings.ToUpper(state))}
		if filter.SyncState != "" && !filter.SyncState.IsValid() {
			fmt.Fprintf(os.Stderr, "Error: unknown sync state %q\n", state)
			os.Exit(1)
		}
		t, err := ui.ParseSince(since, time.Now())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		filter.UpdatedSince = t

		ctx := context.Background()
		e := openEnv(ctx)
		defer e.Close()

		var n int
		if all || filter.SyncState != "" {
			n, err = backup.ExportFile(ctx, e.store, args[0], filter)
		} else {
			n, err = exportPending(ctx, e.store, args[0], filter)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error exporting: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Exported %d inspections to %s\n", ui.RenderPass("✓"), n, args[0])
	},
}

// exportPending exports PENDING_SYNC and SYNC_ERROR inspections into one
// file.
func exportPending(ctx context.Context, store *db.DB, path string, filter db.ListInspectionsFilter) (int, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	total := 0
	for _, s := range []schema.SyncState{schema.SyncStatePending, schema.SyncStateError} {
		filter.SyncState = s
		n, err := backup.Export(ctx, store, f, filter)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, f.Close()
}

var importCmd = &cobra.Command{
	Use:     "import <file.jsonl>",
	GroupID: "data",
	Short:   "Import inspections from a JSONL export",
	Long: `Load inspections written by 'vistoria export'. Inspections already in
the store are skipped unless --overwrite is given. Imported inspections keep
their sync state, so unsynced work is picked up by the next pass.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		overwrite, _ := cmd.Flags().GetBool("overwrite")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		f, err := os.Open(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()

		ctx := context.Background()
		e := openEnv(ctx)
		defer e.Close()

		res, err := backup.Import(ctx, e.store, f, backup.ImportOptions{Overwrite: overwrite, DryRun: dryRun})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error importing: %v\n", err)
			os.Exit(1)
		}

		verb := "Imported"
		if dryRun {
			verb = "Would import"
		}
		fmt.Printf("%s %s %d inspections\n", ui.RenderPass("✓"), verb, res.Imported)
		if res.Skipped > 0 {
			fmt.Printf("   Skipped (already present): %d\n", res.Skipped)
		}
		if len(res.Errors) > 0 {
			fmt.Printf("%s %d failed:\n", ui.RenderWarn("⚠"), len(res.Errors))
			for _, msg := range res.Errors {
				fmt.Printf("   - %s\n", msg)
			}
			os.Exit(1)
		}
	},
}

func init() {
	exportCmd.Flags().Bool("all", false, "Export every inspection, synced ones included")
	exportCmd.Flags().String("state", "", "Export only this sync state")
	exportCmd.Flags().String("since", "", `Only inspections updated since ("7d", "2026-03-01", "yesterday")`)

	importCmd.Flags().Bool("overwrite", false, "Replace inspections that already exist")
	importCmd.Flags().Bool("dry-run", false, "Validate and count without writing")

	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}
