// Command vistoria manages the offline inspection store and syncs it with
// the inspection server.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sanorte/vistorias/internal/config"
	"github.com/sanorte/vistorias/internal/connectivity"
	"github.com/sanorte/vistorias/internal/inspection"
	"github.com/sanorte/vistorias/internal/offline/db"
	"github.com/sanorte/vistorias/internal/remote"
)

var configDir string

var rootCmd = &cobra.Command{
	Use:   "vistoria",
	Short: "Offline-first quality inspections",
	Long: `vistoria keeps quality inspections in a local SQLite store while the
device is offline and reconciles them with the inspection server once
connectivity returns.

Settings come from .vistoria/config.toml, a .env file and VISTORIA_*
environment variables. Run 'vistoria config init' to write the defaults.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "dir", config.DefaultDir, "Configuration directory")

	rootCmd.AddGroup(
		&cobra.Group{ID: "sync", Title: "Sync:"},
		&cobra.Group{ID: "data", Title: "Inspections:"},
		&cobra.Group{ID: "maint", Title: "Maintenance:"},
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// env is everything a command needs, opened from the configuration.
type env struct {
	cfg   *config.Config
	store *db.DB
}

// openEnv loads the configuration and opens the offline store, exiting on
// failure. Callers must Close it.
func openEnv(ctx context.Context) *env {
	cfg, err := config.Load(configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	store, err := db.OpenAndInit(ctx, cfg.DB.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening offline store: %v\n", err)
		os.Exit(1)
	}
	return &env{cfg: cfg, store: store}
}

func (e *env) Close() {
	_ = e.store.Close()
	_ = e.cfg.Close()
}

// remoteClient returns the server client, or nil when no base URL is set.
func (e *env) remoteClient() (*remote.Client, error) {
	if e.cfg.Remote.BaseURL == "" {
		return nil, nil
	}
	return remote.New(remote.Config{
		BaseURL: e.cfg.Remote.BaseURL,
		Token:   e.cfg.Remote.Token,
		Timeout: e.cfg.Remote.Timeout,
	})
}

// checker returns the configured connectivity probe. Without a probe URL the
// device counts as online.
func (e *env) checker() connectivity.Checker {
	if e.cfg.Connectivity.ProbeURL == "" {
		return connectivity.NewStatic(true)
	}
	return connectivity.NewHTTPProbe(e.cfg.Connectivity.ProbeURL, e.cfg.Connectivity.Timeout)
}

// service returns an inspection service. Capture-time uploads are enabled
// when a server is configured.
func (e *env) service() *inspection.Service {
	opts := inspection.Options{
		MediaDir:     e.cfg.Media.Dir,
		Connectivity: e.checker(),
		UserID:       e.cfg.User.ID,
		Logger:       e.cfg.Logger("[inspection] "),
	}
	client, err := e.remoteClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: media uploads disabled: %v\n", err)
	} else if client != nil {
		opts.Media = client
	}
	return inspection.New(e.store, opts)
}
