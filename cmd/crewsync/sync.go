package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/crewsync/crewsync/internal/status"
	"github.com/crewsync/crewsync/internal/store"
	"github.com/crewsync/crewsync/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Push pending local changes to the API",
	Long: `Run one sync pass per entity. Pending records are submitted in the order
they were written; a pass stops at the first failure and the record stays
queued for the next pass.

Records that were abandoned after too many failed attempts can be requeued
with --retry-failed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		entities, _ := cmd.Flags().GetStringSlice("entity")
		retry, _ := cmd.Flags().GetBool("retry-failed")

		ctx := cmd.Context()
		a, err := openDefaultApp(ctx, true)
		if err != nil {
			return err
		}
		defer a.Close()

		engines, err := a.selectEngines(entities)
		if err != nil {
			return err
		}

		var failed []error
		for _, e := range engines {
			if retry {
				n, err := e.RetryFailed(ctx)
				if err != nil {
					return err
				}
				if n > 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "%s requeued %d failed %s\n", ui.RenderAccent("↻"), n, e.Entity())
				}
			}

			last := watchLast(ctx, e.Broadcaster())
			res, err := e.Synchronizer().Pass(ctx)
			st := last()
			if err != nil {
				failed = append(failed, err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), ui.StatusBadge(st))
			if res.Created+res.Updated+res.Deleted > 0 {
				fmt.Fprintln(cmd.OutOrStdout(), ui.RenderMuted(fmt.Sprintf(
					"  created %d, updated %d, deleted %d", res.Created, res.Updated, res.Deleted)))
			}
			if res.Requeued > 0 || res.Abandoned > 0 {
				fmt.Fprintln(cmd.OutOrStdout(), ui.RenderWarn(fmt.Sprintf(
					"  %d still pending, %d moved to failed", res.Requeued, res.Abandoned)))
			}
		}
		return errors.Join(failed...)
	},
}

// watchLast subscribes to b and returns a function yielding the most recent
// status seen so far.
func watchLast(ctx context.Context, b *status.Broadcaster) func() status.Status {
	ctx, cancel := context.WithCancel(ctx)
	ch, unsubscribe := b.Subscribe(ctx)
	last := status.New(b.Entity(), status.Idle)
	return func() status.Status {
		defer cancel()
		defer unsubscribe()
		for {
			select {
			case st, ok := <-ch:
				if !ok {
					return last
				}
				last = st
			default:
				return last
			}
		}
	}
}

type pendingView struct {
	Entity   string          `json:"entity"`
	Key      string          `json:"key"`
	ServerID *int64          `json:"server_id,omitempty"`
	Deleted  bool            `json:"deleted,omitempty"`
	State    string          `json:"state"`
	Retries  int             `json:"retries"`
	Error    string          `json:"error,omitempty"`
	Modified time.Time       `json:"modified"`
	Payload  json.RawMessage `json:"payload"`
}

func toPendingViews(recs []store.Record) []pendingView {
	out := make([]pendingView, 0, len(recs))
	for _, r := range recs {
		out = append(out, pendingView{
			Entity:   r.Entity,
			Key:      r.LocalKey,
			ServerID: r.ServerID,
			Deleted:  r.Deleted,
			State:    string(r.SyncState),
			Retries:  r.RetryCount,
			Error:    r.SyncError,
			Modified: r.LastModifiedAt,
			Payload:  r.Payload,
		})
	}
	return out
}

var pendingCmd = &cobra.Command{
	Use:     "pending",
	GroupID: "sync",
	Short:   "List local changes waiting to be synced",
	RunE: func(cmd *cobra.Command, args []string) error {
		entities, _ := cmd.Flags().GetStringSlice("entity")
		output, _ := cmd.Flags().GetString("output")
		showFailed, _ := cmd.Flags().GetBool("failed")
		if err := validateOutput(output); err != nil {
			return err
		}

		ctx := cmd.Context()
		a, err := openDefaultApp(ctx, false)
		if err != nil {
			return err
		}
		defer a.Close()

		engines, err := a.selectEngines(entities)
		if err != nil {
			return err
		}

		var recs []store.Record
		for _, e := range engines {
			var batch []store.Record
			if showFailed {
				batch, err = store.NewTracker(a.db.Table(e.Entity())).FailedChanges(ctx)
			} else {
				batch, err = e.PendingChanges(ctx)
			}
			if err != nil {
				return err
			}
			recs = append(recs, batch...)
		}

		return writeOutput(cmd.OutOrStdout(), output, toPendingViews(recs), func() string {
			return ui.PendingTable(recs)
		})
	},
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show connectivity and cached record counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		if err := validateOutput(output); err != nil {
			return err
		}

		ctx := cmd.Context()
		a, err := openDefaultApp(ctx, true)
		if err != nil {
			return err
		}
		defer a.Close()

		counts, err := a.db.Counts(ctx)
		if err != nil {
			return err
		}

		view := struct {
			API         string              `json:"api"`
			Connected   bool                `json:"connected"`
			Constrained bool                `json:"constrained"`
			Store       string              `json:"store"`
			Entities    []store.EntityCount `json:"entities"`
		}{
			API:         a.client.BaseURL(),
			Connected:   a.monitor.IsConnected(),
			Constrained: a.monitor.IsConstrained(),
			Store:       a.db.Path(),
			Entities:    counts,
		}

		return writeOutput(cmd.OutOrStdout(), output, view, func() string {
			conn := ui.RenderSuccess("online")
			switch {
			case !view.Connected:
				conn = ui.RenderWarn("offline")
			case view.Constrained:
				conn = ui.RenderWarn("online (constrained, background sync paused)")
			}
			rows := make([][]string, 0, len(counts))
			for _, c := range counts {
				rows = append(rows, []string{c.Entity,
					fmt.Sprint(c.Synced), fmt.Sprint(c.Pending), fmt.Sprint(c.Failed)})
			}
			return fmt.Sprintf("API    %s  %s\nStore  %s\n\n%s",
				view.API, conn, view.Store,
				ui.Table([]string{"ENTITY", "SYNCED", "PENDING", "FAILED"}, rows))
		})
	},
}

func init() {
	syncCmd.Flags().StringSlice("entity", nil, "limit to entities (workers, work_entries, leave_requests)")
	syncCmd.Flags().Bool("retry-failed", false, "requeue records abandoned after too many attempts")

	pendingCmd.Flags().StringSlice("entity", nil, "limit to entities")
	pendingCmd.Flags().StringP("output", "o", outputTable, "output format: table, json, yaml")
	pendingCmd.Flags().Bool("failed", false, "list abandoned records instead of pending ones")

	statusCmd.Flags().StringP("output", "o", outputTable, "output format: table, json, yaml")

	rootCmd.AddCommand(syncCmd, pendingCmd, statusCmd)
}
