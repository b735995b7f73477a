package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sanorte/vistorias/internal/config"
	"github.com/sanorte/vistorias/internal/ui"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "maint",
	Short:   "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the default values",
	Run: func(cmd *cobra.Command, args []string) {
		force, _ := cmd.Flags().GetBool("force")

		path, err := config.WriteDefault(configDir, force)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			if !force {
				fmt.Fprintf(os.Stderr, "Use --force to overwrite\n")
			}
			os.Exit(1)
		}
		fmt.Printf("%s Wrote %s\n", ui.RenderPass("✓"), path)
		fmt.Printf("   Set remote.base_url and remote.token before syncing\n")
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(configDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		token := ui.RenderMuted("(unset)")
		if cfg.Remote.Token != "" {
			token = ui.RenderMuted("(set)")
		}
		rows := [][]string{
			{"db.path", cfg.DB.Path},
			{"media.dir", cfg.Media.Dir},
			{"user.id", cfg.User.ID},
			{"remote.base_url", cfg.Remote.BaseURL},
			{"remote.token", token},
			{"remote.timeout", cfg.Remote.Timeout.String()},
			{"connectivity.probe_url", cfg.Connectivity.ProbeURL},
			{"sync.retention_days", fmt.Sprint(cfg.Sync.RetentionDays)},
			{"sync.stale_grace", cfg.Sync.StaleGrace.String()},
			{"daemon.interval", cfg.Daemon.Interval.String()},
			{"daemon.probe_interval", cfg.Daemon.ProbeInterval.String()},
			{"daemon.debounce", cfg.Daemon.Debounce.String()},
			{"dashboard.port", fmt.Sprint(cfg.Dashboard.Port)},
			{"log.file", cfg.Log.File},
		}
		fmt.Print(ui.Table([]string{"KEY", "VALUE"}, rows))
	},
}

func init() {
	configInitCmd.Flags().Bool("force", false, "Overwrite an existing config file")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
