package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/crewsync/crewsync/internal/entity"
	"github.com/crewsync/crewsync/internal/store"
	"github.com/crewsync/crewsync/internal/ui"
)

var exportCmd = &cobra.Command{
	Use:     "export <file.jsonl>",
	GroupID: "setup",
	Short:   "Export the local cache, pending changes included, as JSONL",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		names, _ := cmd.Flags().GetStringSlice("entity")
		entities := entity.All
		if len(names) > 0 {
			entities = make([]string, 0, len(names))
			for _, n := range names {
				entities = append(entities, normalizeEntity(n))
			}
		}

		db, err := store.Open(cfg.Store.Path, cfg.Store.BusyTimeout, store.WithLogger(log))
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.InitSchema(cmd.Context()); err != nil {
			return err
		}

		res, err := db.ExportJSONL(cmd.Context(), args[0], entities...)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s exported %d records to %s\n", ui.RenderSuccess("✓"), res.Records, res.Path)
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:     "import <file.jsonl>",
	GroupID: "setup",
	Short:   "Restore records from a JSONL export",
	Long: `Restore records written by export. Records keep their sync state, so
changes that were pending when exported are pushed by the next sync.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := store.Open(cfg.Store.Path, cfg.Store.BusyTimeout, store.WithLogger(log))
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.InitSchema(cmd.Context()); err != nil {
			return err
		}

		res, err := db.ImportJSONL(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s imported %d records, skipped %d\n", ui.RenderSuccess("✓"), res.Imported, res.Skipped)
		for _, e := range res.Errors {
			fmt.Fprintln(cmd.OutOrStdout(), ui.RenderWarn("  "+e))
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringSlice("entity", nil, "limit to entities")
	rootCmd.AddCommand(exportCmd, importCmd)
}
