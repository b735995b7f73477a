package main

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sanorte/vistorias/internal/inspection"
	"github.com/sanorte/vistorias/internal/offline/db"
	"github.com/sanorte/vistorias/internal/offline/schema"
	"github.com/sanorte/vistorias/internal/ui"
)

var inspectionCmd = &cobra.Command{
	Use:     "inspection",
	Aliases: []string{"insp"},
	GroupID: "data",
	Short:   "Create, answer and inspect inspections",
}

var inspectionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List inspections in the offline store",
	Run: func(cmd *cobra.Command, args []string) {
		state, _ := cmd.Flags().GetString("state")
		status, _ := cmd.Flags().GetString("status")
		since, _ := cmd.Flags().GetString("since")
		mine, _ := cmd.Flags().GetBool("mine")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := db.ListInspectionsFilter{
			SyncState: schema.SyncState(strings.ToUpper(state)),
			Status:    schema.Status(strings.ToUpper(status)),
			Limit:     limit,
		}
		if filter.SyncState != "" && !filter.SyncState.IsValid() {
			fmt.Fprintf(os.Stderr, "Error: unknown sync state %q\n", state)
			os.Exit(1)
		}
		if filter.Status != "" && !filter.Status.IsValid() {
			fmt.Fprintf(os.Stderr, "Error: unknown status %q\n", status)
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

		if mine {
			filter.CreatedByUserID = e.cfg.User.ID
		}

		list, err := e.store.ListInspectionsContext(ctx, filter)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing inspections: %v\n", err)
			os.Exit(1)
		}
		if len(list) == 0 {
			fmt.Println("No inspections found")
			return
		}

		rows := make([][]string, 0, len(list))
		for _, rec := range list {
			score := "-"
			if rec.ScorePercent != nil {
				score = strconv.Itoa(*rec.ScorePercent) + "%"
			}
			rows = append(rows, []string{
				rec.ExternalID,
				rec.ChecklistID,
				ui.RenderStatus(rec.Status),
				score,
				ui.RenderSyncState(rec.SyncState),
				rec.UpdatedAt.Local().Format("2006-01-02 15:04"),
			})
		}
		fmt.Print(ui.Table([]string{"ID", "CHECKLIST", "STATUS", "SCORE", "SYNC", "UPDATED"}, rows))
	},
}

var inspectionShowCmd = &cobra.Command{
	Use:   "show <externalId>",
	Short: "Show an inspection with its items and media",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		e := openEnv(ctx)
		defer e.Close()

		d, err := e.service().Get(ctx, args[0])
		if err != nil {
			exitLookup(args[0], err)
		}
		rec := d.Inspection

		fmt.Printf("\n%s %s\n\n", ui.RenderAccent("Inspection"), rec.ExternalID)
		fmt.Printf("Checklist: %s\n", rec.ChecklistID)
		fmt.Printf("Team: %s\n", rec.TeamID)
		if rec.ServiceDescription != "" {
			fmt.Printf("Service: %s\n", rec.ServiceDescription)
		}
		if rec.LocationDescription != "" {
			fmt.Printf("Location: %s\n", rec.LocationDescription)
		}
		fmt.Printf("Status: %s\n", ui.RenderStatus(rec.Status))
		if rec.ScorePercent != nil {
			fmt.Printf("Score: %d%%\n", *rec.ScorePercent)
		}
		fmt.Printf("Sync: %s\n", ui.RenderSyncState(rec.SyncState))
		if rec.ServerID != "" {
			fmt.Printf("Server ID: %s\n", rec.ServerID)
		}
		if rec.SyncErrorMessage != "" {
			fmt.Printf("Sync error: %s\n", ui.RenderFail(rec.SyncErrorMessage))
		}

		if len(d.Items) > 0 {
			rows := make([][]string, 0, len(d.Items))
			for _, it := range d.Items {
				resolved := ""
				if it.IsResolved() {
					resolved = ui.RenderPass("resolved")
				}
				rows = append(rows, []string{it.ChecklistItemID, it.Answer.String(), it.Notes, resolved})
			}
			fmt.Println()
			fmt.Print(ui.Table([]string{"ITEM", "ANSWER", "NOTES", ""}, rows))
		}

		if len(d.Evidences) > 0 {
			fmt.Printf("\nEvidences:\n")
			for _, ev := range d.Evidences {
				where := ui.RenderWarn("local " + ev.LocalPath)
				if ev.Media().IsDurable() {
					where = ui.RenderPass(ev.URL)
				}
				fmt.Printf("  %s  %s  %s\n", ev.ID, ev.FileName, where)
			}
		}
		if d.Signature != nil {
			fmt.Printf("\nSigned by %s", d.Signature.SignerName)
			if d.Signature.SignerRoleLabel != "" {
				fmt.Printf(" (%s)", d.Signature.SignerRoleLabel)
			}
			fmt.Printf(" at %s\n", d.Signature.SignedAt.Local().Format("2006-01-02 15:04"))
		}
		fmt.Println()
	},
}

var inspectionNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Start a draft inspection",
	Run: func(cmd *cobra.Command, args []string) {
		checklistID, _ := cmd.Flags().GetString("checklist")
		teamID, _ := cmd.Flags().GetString("team")
		module, _ := cmd.Flags().GetString("module")
		service, _ := cmd.Flags().GetString("service")
		location, _ := cmd.Flags().GetString("location")
		collaborators, _ := cmd.Flags().GetStringSlice("collaborator")

		ctx := context.Background()
		e := openEnv(ctx)
		defer e.Close()

		rec, err := e.service().CreateDraft(ctx, checklistID, teamID, inspection.Header{
			Module:              module,
			CollaboratorIDs:     collaborators,
			ServiceDescription:  service,
			LocationDescription: location,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Created draft %s\n", ui.RenderPass("✓"), rec.ExternalID)
	},
}

var inspectionAnswerCmd = &cobra.Command{
	Use:   "answer <externalId> <item>=<ANSWER>[:notes]...",
	Short: "Record answers on a draft",
	Long: `Record answers on a draft inspection. ANSWER is CONFORME, NAO_CONFORME
or NAO_APLICAVEL. Items not named keep their previous answer.

  vistoria inspection answer 1f3c... c1=CONFORME "c2=NAO_CONFORME:sem capacete"`,
	Args: cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		answers, err := parseAnswers(args[1:])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		ctx := context.Background()
		e := openEnv(ctx)
		defer e.Close()

		svc := e.service()
		d, err := svc.Get(ctx, args[0])
		if err != nil {
			exitLookup(args[0], err)
		}
		merged := mergeAnswers(d.Items, answers)

		if _, err := svc.SetAnswers(ctx, args[0], merged); err != nil {
			exitLookup(args[0], err)
		}
		fmt.Printf("%s Recorded %d answers\n", ui.RenderPass("✓"), len(answers))
	},
}

// parseAnswers reads item=ANSWER[:notes] arguments.
func parseAnswers(args []string) ([]inspection.Answer, error) {
	out := make([]inspection.Answer, 0, len(args))
	for _, arg := range args {
		item, rest, ok := strings.Cut(arg, "=")
		if !ok || item == "" {
			return nil, fmt.Errorf("invalid answer %q, want item=ANSWER", arg)
		}
		value, notes, _ := strings.Cut(rest, ":")
		a := schema.Answer(strings.ToUpper(strings.TrimSpace(value)))
		if !a.IsValid() {
			return nil, fmt.Errorf("invalid answer %q for item %s", value, item)
		}
		out = append(out, inspection.Answer{ChecklistItemID: item, Answer: a, Notes: notes})
	}
	return out, nil
}

// mergeAnswers keeps existing answers that the new set does not mention.
func mergeAnswers(existing []*schema.InspectionItem, answers []inspection.Answer) []inspection.Answer {
	named := make(map[string]bool, len(answers))
	for _, a := range answers {
		named[a.ChecklistItemID] = true
	}
	merged := make([]inspection.Answer, 0, len(existing)+len(answers))
	for _, it := range existing {
		if !named[it.ChecklistItemID] {
			merged = append(merged, inspection.Answer{ChecklistItemID: it.ChecklistItemID, Answer: it.Answer, Notes: it.Notes})
		}
	}
	return append(merged, answers...)
}

var inspectionFinalizeCmd = &cobra.Command{
	Use:   "finalize <externalId>",
	Short: "Score a draft and queue it for sync",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		e := openEnv(ctx)
		defer e.Close()

		rec, err := e.service().Finalize(ctx, args[0])
		var rejected *inspection.FinalizeRejectedError
		if errors.As(err, &rejected) {
			fmt.Fprintf(os.Stderr, "%s Cannot finalize %s:\n", ui.RenderFail("✗"), args[0])
			for _, msg := range rejected.Validation.Messages() {
				fmt.Fprintf(os.Stderr, "   - %s\n", msg)
			}
			os.Exit(1)
		}
		if err != nil {
			exitLookup(args[0], err)
		}

		fmt.Printf("%s %s %s with score %d%%\n", ui.RenderPass("✓"), rec.ExternalID, ui.RenderStatus(rec.Status), *rec.ScorePercent)
	},
}

var inspectionResolveCmd = &cobra.Command{
	Use:   "resolve <externalId> <item>",
	Short: "Record the remediation of a non-conforming item",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		notes, _ := cmd.Flags().GetString("notes")
		evidence, _ := cmd.Flags().GetString("evidence")

		ctx := context.Background()
		e := openEnv(ctx)
		defer e.Close()

		rec, err := e.service().ResolveItem(ctx, args[0], args[1], inspection.Resolution{Notes: notes, EvidencePath: evidence})
		if err != nil {
			exitLookup(args[0], err)
		}
		fmt.Printf("%s Item %s resolved, inspection is %s\n", ui.RenderPass("✓"), args[1], ui.RenderStatus(rec.Status))
	},
}

var inspectionAttachCmd = &cobra.Command{
	Use:   "attach <externalId> <item> <photo>",
	Short: "Attach a photo to an answered item",
	Args:  cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		f, err := os.Open(args[2])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()

		ctx := context.Background()
		e := openEnv(ctx)
		defer e.Close()

		name := filepath.Base(args[2])
		ev, err := e.service().AttachEvidence(ctx, args[0], inspection.Photo{
			ChecklistItemID: args[1],
			FileName:        name,
			MimeType:        mime.TypeByExtension(filepath.Ext(name)),
			Data:            f,
		})
		if err != nil {
			exitLookup(args[0], err)
		}
		if ev.Media().IsDurable() {
			fmt.Printf("%s Uploaded %s\n", ui.RenderPass("✓"), ev.URL)
		} else {
			fmt.Printf("%s Stored %s locally, it will upload on the next sync\n", ui.RenderWarn("⚠"), name)
		}
	},
}

var inspectionSignCmd = &cobra.Command{
	Use:   "sign <externalId> <signature.png>",
	Short: "Record the signature of an inspection",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		signer, _ := cmd.Flags().GetString("signer")
		role, _ := cmd.Flags().GetString("role")

		f, err := os.Open(args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()

		ctx := context.Background()
		e := openEnv(ctx)
		defer e.Close()

		if _, err := e.service().SaveSignature(ctx, args[0], signer, role, f); err != nil {
			exitLookup(args[0], err)
		}
		fmt.Printf("%s Signature by %s recorded\n", ui.RenderPass("✓"), signer)
	},
}

var inspectionDeleteCmd = &cobra.Command{
	Use:   "delete <externalId>",
	Short: "Delete an inspection and everything it owns",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		yes, _ := cmd.Flags().GetBool("yes")

		ctx := context.Background()
		e := openEnv(ctx)
		defer e.Close()

		svc := e.service()
		d, err := svc.Get(ctx, args[0])
		if err != nil {
			exitLookup(args[0], err)
		}

		if !yes {
			desc := "Items, evidences and the signature are removed too."
			if d.Inspection.SyncState.NeedsSync() {
				desc = "This inspection was never synced and will be lost. " + desc
			}
			ok, err := ui.Confirm(fmt.Sprintf("Delete inspection %s?", args[0]), desc)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			if !ok {
				fmt.Println("Cancelled")
				return
			}
		}

		if err := svc.Delete(ctx, args[0]); err != nil {
			exitLookup(args[0], err)
		}
		fmt.Printf("%s Deleted %s\n", ui.RenderPass("✓"), args[0])
	},
}

// exitLookup reports an error about one inspection and exits.
func exitLookup(externalID string, err error) {
	if errors.Is(err, db.ErrNotFound) {
		fmt.Fprintf(os.Stderr, "Error: inspection %s not found\n", externalID)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(1)
}

func init() {
	inspectionListCmd.Flags().String("state", "", "Filter by sync state (PENDING_SYNC, SYNCING, SYNCED, SYNC_ERROR)")
	inspectionListCmd.Flags().String("status", "", "Filter by status (DRAFT, FINALIZED, NEEDS_ADJUSTMENT, RESOLVED)")
	inspectionListCmd.Flags().String("since", "", `Only inspections updated since ("7d", "2026-03-01", "yesterday")`)
	inspectionListCmd.Flags().Bool("mine", false, "Only inspections created by user.id")
	inspectionListCmd.Flags().Int("limit", 0, "Maximum number of rows (0 = all)")

	inspectionNewCmd.Flags().String("checklist", "", "Checklist ID (required)")
	inspectionNewCmd.Flags().String("team", "", "Team ID (required)")
	inspectionNewCmd.Flags().String("module", "", "Module")
	inspectionNewCmd.Flags().String("service", "", "Service description")
	inspectionNewCmd.Flags().String("location", "", "Location description")
	inspectionNewCmd.Flags().StringSlice("collaborator", nil, "Collaborator ID (repeatable)")
	_ = inspectionNewCmd.MarkFlagRequired("checklist")
	_ = inspectionNewCmd.MarkFlagRequired("team")

	inspectionResolveCmd.Flags().String("notes", "", "Resolution notes")
	inspectionResolveCmd.Flags().String("evidence", "", "Path of the resolution evidence")

	inspectionSignCmd.Flags().String("signer", "", "Signer name (required)")
	inspectionSignCmd.Flags().String("role", "", "Signer role")
	_ = inspectionSignCmd.MarkFlagRequired("signer")

	inspectionDeleteCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")

	inspectionCmd.AddCommand(inspectionListCmd)
	inspectionCmd.AddCommand(inspectionShowCmd)
	inspectionCmd.AddCommand(inspectionNewCmd)
	inspectionCmd.AddCommand(inspectionAnswerCmd)
	inspectionCmd.AddCommand(inspectionFinalizeCmd)
	inspectionCmd.AddCommand(inspectionResolveCmd)
	inspectionCmd.AddCommand(inspectionAttachCmd)
	inspectionCmd.AddCommand(inspectionSignCmd)
	inspectionCmd.AddCommand(inspectionDeleteCmd)
	rootCmd.AddCommand(inspectionCmd)
}
