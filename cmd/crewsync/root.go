package main

import (
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/crewsync/crewsync/internal/config"
	"github.com/crewsync/crewsync/internal/logger"
	"github.com/crewsync/crewsync/internal/ui"
)

var (
	configPath   string
	forceOffline bool
	noColor      bool
	verbose      bool

	cfg       *config.Config
	log       = zap.NewNop()
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "crewsync",
	Short: "Offline-first sync for workers, work hours and leave requests",
	Long: `crewsync keeps a local SQLite cache of workers, work-hour entries and
leave requests. Changes made without a connection are queued and pushed to
the crew management API once it is reachable again.`,
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded

		logCfg := logger.Config{
			Level:      cfg.Log.Level,
			Format:     cfg.Log.Format,
			Output:     cfg.Log.Output,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
		}
		if verbose {
			logCfg.Level = "debug"
		}
		l, closer, err := logger.New(logCfg)
		if err != nil {
			return err
		}
		log, logCloser = l, closer

		ui.Init(noColor)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = log.Sync()
		if logCloser != nil {
			_ = logCloser.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: ./crewsync.toml or user config dir)")
	rootCmd.PersistentFlags().BoolVar(&forceOffline, "offline", false, "treat the API as unreachable; changes are queued")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddGroup(
		&cobra.Group{ID: "data", Title: "Data:"},
		&cobra.Group{ID: "sync", Title: "Sync:"},
		&cobra.Group{ID: "setup", Title: "Setup:"},
	)
}
