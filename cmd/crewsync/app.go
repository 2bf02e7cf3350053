package main

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/crewsync/crewsync/internal/config"
	"github.com/crewsync/crewsync/internal/connectivity"
	"github.com/crewsync/crewsync/internal/daemon"
	"github.com/crewsync/crewsync/internal/entity"
	"github.com/crewsync/crewsync/internal/offline"
	"github.com/crewsync/crewsync/internal/remote"
	"github.com/crewsync/crewsync/internal/status"
	"github.com/crewsync/crewsync/internal/store"
)

// engine is the entity-independent view of a repository used by the sync
// commands.
type engine interface {
	Entity() string
	HasPendingChanges(ctx context.Context) (bool, error)
	SyncPendingChanges(ctx context.Context) error
	PendingChanges(ctx context.Context) ([]store.Record, error)
	RetryFailed(ctx context.Context) (int64, error)
	Synchronizer() *offline.Synchronizer
	Broadcaster() *status.Broadcaster
}

// app wires the store, connectivity, remote client and repositories.
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	db      *store.DB
	monitor *connectivity.Monitor
	prober  *connectivity.Prober
	client  *remote.Client

	workers *offline.Repository[entity.Worker]
	entries *offline.Repository[entity.WorkEntry]
	leaves  *offline.Repository[entity.LeaveRequest]
}

type appOptions struct {
	// probe checks reachability once before returning.
	probe bool
}

func openApp(ctx context.Context, c *config.Config, l *zap.Logger, offlineOnly bool, opts appOptions) (*app, error) {
	db, err := store.Open(c.Store.Path, c.Store.BusyTimeout, store.WithLogger(l))
	if err != nil {
		return nil, err
	}
	if err := db.InitSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	client, err := remote.NewClient(remote.Config{
		BaseURL:     c.Remote.BaseURL,
		Token:       c.Remote.Token,
		Timeout:     c.Remote.Timeout,
		ListRetries: c.Remote.ListRetries,
		Logger:      l,
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	monitor := connectivity.NewMonitor(c.Connectivity.Initial && !offlineOnly, l)
	monitor.SetConstrained(c.Connectivity.Constrained)

	a := &app{
		cfg:     c,
		log:     l,
		db:      db,
		monitor: monitor,
		client:  client,
	}
	if !offlineOnly {
		a.prober = connectivity.NewProber(monitor, c.Connectivity.ProbeURL,
			c.Connectivity.ProbeInterval, c.Connectivity.ProbeTimeout, l)
		if opts.probe {
			a.prober.Probe(ctx)
		}
	}

	repoOpts := []offline.RepositoryOption{
		offline.WithLogger(l),
		offline.WithMaxSubmitAttempts(c.Sync.MaxSubmitAttempts),
	}
	a.workers = offline.NewRepository(entity.WorkerKind(), offline.Remote[entity.Worker](client.Workers()), db, monitor, repoOpts...)
	a.entries = offline.NewRepository(entity.WorkEntryKind(), offline.Remote[entity.WorkEntry](client.WorkEntries()), db, monitor, repoOpts...)
	a.leaves = offline.NewRepository(entity.LeaveRequestKind(), offline.Remote[entity.LeaveRequest](client.LeaveRequests()), db, monitor, repoOpts...)
	return a, nil
}

// openDefaultApp opens the app from the loaded global configuration.
func openDefaultApp(ctx context.Context, probe bool) (*app, error) {
	return openApp(ctx, cfg, log, forceOffline, appOptions{probe: probe})
}

func (a *app) Close() error {
	return a.db.Close()
}

func (a *app) engines() []engine {
	return []engine{a.workers, a.entries, a.leaves}
}

// selectEngines returns the engines named in names, or all of them.
func (a *app) selectEngines(names []string) ([]engine, error) {
	all := a.engines()
	if len(names) == 0 {
		return all, nil
	}
	byName := make(map[string]engine, len(all))
	for _, e := range all {
		byName[e.Entity()] = e
	}

	var out []engine
	var unknown []string
	for _, n := range names {
		e, ok := byName[normalizeEntity(n)]
		if !ok {
			unknown = append(unknown, n)
			continue
		}
		out = append(out, e)
	}
	if len(unknown) > 0 {
		known := make([]string, 0, len(byName))
		for n := range byName {
			known = append(known, n)
		}
		sort.Strings(known)
		return nil, fmt.Errorf("unknown entity %v (known: %v)", unknown, known)
	}
	return out, nil
}

func (a *app) syncers() []daemon.Syncer {
	out := make([]daemon.Syncer, 0, 3)
	for _, e := range a.engines() {
		out = append(out, e)
	}
	return out
}

func normalizeEntity(name string) string {
	switch name {
	case "worker", "workers":
		return entity.Workers
	case "hours", "work-entries", "work_entries", "entries":
		return entity.WorkEntries
	case "leave", "leave-requests", "leave_requests":
		return entity.LeaveRequests
	default:
		return name
	}
}

// reportWrite tells the user whether a write reached the server or is queued.
func reportWrite(a *app, what string, id *int64) string {
	switch {
	case id != nil:
		return fmt.Sprintf("%s saved (id %d)", what, *id)
	case !a.monitor.IsConnected():
		return fmt.Sprintf("%s saved offline; it will sync when the API is reachable", what)
	default:
		return fmt.Sprintf("%s saved; sync pending", what)
	}
}
