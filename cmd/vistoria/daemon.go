package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sanorte/vistorias/internal/daemon"
	"github.com/sanorte/vistorias/internal/dashboard"
	"github.com/sanorte/vistorias/internal/metrics"
	"github.com/sanorte/vistorias/internal/sync"
	"github.com/sanorte/vistorias/internal/ui"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Run the sync daemon in the foreground",
	Long: `Run sync passes in the background until interrupted.

The daemon will:
  1. Requeue inspections left SYNCING by a crash
  2. Run a pass right away if anything is pending
  3. Run a pass when connectivity comes back
  4. Run a pass when the offline store is written
  5. Run a pass every daemon.interval

With --dashboard-port (or dashboard.port) a WebSocket dashboard serves the
pending count and pass progress on ws://127.0.0.1:<port>/ws, plus /health
and Prometheus metrics on /metrics.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		e := openEnv(ctx)
		defer e.Close()

		port := e.cfg.Dashboard.Port
		if cmd.Flags().Changed("dashboard-port") {
			port, _ = cmd.Flags().GetInt("dashboard-port")
		}

		metrics.Register()
		observers := []sync.Observer{metrics.Observer{}}
		onPending := []func(int){metrics.SetPending}

		var server *dashboard.Server
		if port > 0 {
			server = dashboard.NewServer(&dashboard.Config{
				Port:   port,
				Logger: e.cfg.Logger("[dashboard] "),
			})
			handler := dashboard.NewHandler(server, e.store, e.cfg.Logger("[dashboard] "))
			observers = append(observers, handler)
			onPending = append(onPending, handler.OnPending)

			if err := server.Start(); err != nil {
				fmt.Fprintf(os.Stderr, "Error: failed to start dashboard: %v\n", err)
				os.Exit(1)
			}
			handler.RefreshStats(ctx)
		}

		syncer, err := e.syncer(false, observers...)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		d, err := daemon.NewWithConfig(e.store, syncer, e.checker(), &daemon.Config{
			Interval:      e.cfg.Daemon.Interval,
			ProbeInterval: e.cfg.Daemon.ProbeInterval,
			Debounce:      e.cfg.Daemon.Debounce,
			StaleGrace:    e.cfg.Sync.StaleGrace,
			OnPending: func(n int) {
				for _, fn := range onPending {
					fn(n)
				}
			},
			Logger: e.cfg.Logger("[daemon] "),
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating daemon: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Starting sync daemon...\n", ui.RenderAccent("🚀"))
		fmt.Printf("   Store: %s\n", e.store.Path())
		fmt.Printf("   Server: %s\n", e.cfg.Remote.BaseURL)
		if server != nil {
			fmt.Printf("   Dashboard: http://%s\n", server.GetAddr())
		}
		fmt.Printf("\nPress Ctrl+C to stop\n\n")

		// Start blocks until ctx is cancelled.
		if err := d.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Daemon stopped with error: %v\n", err)
			os.Exit(1)
		}

		if server != nil {
			if err := server.Stop(); err != nil {
				fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
				os.Exit(1)
			}
		}
	},
}

func init() {
	daemonCmd.Flags().IntP("dashboard-port", "p", 0, "Serve the status dashboard on this port (0 disables)")

	rootCmd.AddCommand(daemonCmd)
}
