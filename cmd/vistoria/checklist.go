package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sanorte/vistorias/internal/offline/schema"
	"github.com/sanorte/vistorias/internal/ui"
)

var checklistCmd = &cobra.Command{
	Use:     "checklist",
	GroupID: "data",
	Short:   "Manage the cached checklist definitions",
}

var checklistImportCmd = &cobra.Command{
	Use:   "import <file.yaml|file.json>",
	Short: "Replace the checklist cache from a file",
	Long: `Replace the cached checklist definitions with the ones in a YAML or
JSON file. The file holds a single checklist or a "checklists" list:

  checklists:
    - id: cl-1
      name: Canteiro
      active: true
      sections:
        - id: s1
          name: EPI
          active: true
          items:
            - id: c1
              title: Capacete
              active: true
              requiresPhotoOnNonConformity: true`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		list, err := schema.ReadChecklistFile(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		ctx := context.Background()
		e := openEnv(ctx)
		defer e.Close()

		if err := e.store.CacheChecklistsContext(ctx, list); err != nil {
			fmt.Fprintf(os.Stderr, "Error caching checklists: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Cached %d checklists from %s\n", ui.RenderPass("✓"), len(list), args[0])
	},
}

var checklistListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached checklists",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		e := openEnv(ctx)
		defer e.Close()

		list, err := e.store.ListChecklistsContext(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing checklists: %v\n", err)
			os.Exit(1)
		}
		if len(list) == 0 {
			fmt.Printf("%s No checklists cached. Run 'vistoria checklist import <file>'\n", ui.RenderWarn("⚠"))
			return
		}

		rows := make([][]string, 0, len(list))
		for _, c := range list {
			active := ui.RenderPass("yes")
			if !c.Active {
				active = ui.RenderMuted("no")
			}
			rows = append(rows, []string{c.ID, c.Name, c.Module, strconv.Itoa(len(c.ActiveItems())), active})
		}
		fmt.Print(ui.Table([]string{"ID", "NAME", "MODULE", "ITEMS", "ACTIVE"}, rows))
	},
}

func init() {
	checklistCmd.AddCommand(checklistImportCmd)
	checklistCmd.AddCommand(checklistListCmd)
	rootCmd.AddCommand(checklistCmd)
}
