package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/crewsync/crewsync/internal/daemon"
	"github.com/crewsync/crewsync/internal/relay"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "sync",
	Short:   "Run the background sync daemon",
	Long: `Run the sync daemon in the foreground.

The daemon probes the API periodically and syncs pending changes:
  - once at startup
  - whenever connectivity is restored
  - shortly after the local database is written (debounced)
  - every sync interval as a safety net

With --relay (or relay.enabled in the config) sync status is streamed to
WebSocket clients:
  ws://127.0.0.1:8765/ws

Background passes are skipped while the connection is marked constrained.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("relay") {
			cfg.Relay.Enabled, _ = cmd.Flags().GetBool("relay")
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		a, err := openDefaultApp(ctx, true)
		if err != nil {
			return err
		}
		defer a.Close()

		if a.prober != nil {
			go a.prober.Run(ctx)
		}

		if cfg.Relay.Enabled {
			srv := relay.NewServer(relay.Config{Addr: cfg.Relay.Addr, Logger: log})
			for _, e := range a.engines() {
				srv.Attach(e.Broadcaster())
			}
			if err := srv.Start(); err != nil {
				return fmt.Errorf("failed to start relay: %w", err)
			}
			defer func() {
				if err := srv.Stop(); err != nil {
					log.Warn("relay shutdown", zap.Error(err))
				}
			}()
			fmt.Fprintf(cmd.OutOrStdout(), "Status relay: ws://%s/ws\n", srv.Addr())
		}

		d, err := daemon.New(a.syncers(), a.monitor, daemon.Config{
			DBPath:           cfg.Store.Path,
			DebounceInterval: cfg.Sync.Debounce,
			SyncInterval:     cfg.Sync.Interval,
			Logger:           log,
		})
		if err != nil {
			return err
		}

		state := "online"
		if !a.monitor.IsConnected() {
			state = "offline"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Syncing %s (%s) from %s\nPress Ctrl+C to stop...\n",
			a.client.BaseURL(), state, cfg.Store.Path)

		return d.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().Bool("relay", false, "stream sync status over WebSocket")
	rootCmd.AddCommand(serveCmd)
}
