// Package daemon runs sync passes in the background.
//
// The daemon:
//  1. Syncs every entity on startup
//  2. Syncs again whenever connectivity is regained
//  3. Watches the database file so writes by other processes (the CLI)
//     are pushed after a short debounce
//  4. Runs a periodic pass as a safety net
//
// Passes for different entities run concurrently; passes for one entity are
// serialized by its synchronizer.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Syncer runs sync passes for one entity.
type Syncer interface {
	Entity() string
	HasPendingChanges(ctx context.Context) (bool, error)
	SyncPendingChanges(ctx context.Context) error
}

// ConnectivitySource delivers connectivity changes.
type ConnectivitySource interface {
	Subscribe(ctx context.Context) <-chan bool
}

// Config holds configuration for the daemon.
type Config struct {
	// DBPath is watched for changes. Empty disables watching.
	DBPath string

	// DebounceInterval is how long writes must be quiet before a pass runs.
	DebounceInterval time.Duration

	// SyncInterval is the period of the safety-net pass. Zero disables it.
	SyncInterval time.Duration

	Logger *zap.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		DebounceInterval: 500 * time.Millisecond,
		SyncInterval:     5 * time.Minute,
		Logger:           zap.NewNop(),
	}
}

// Daemon orchestrates background sync passes.
type Daemon struct {
	syncers []Syncer
	conn    ConnectivitySource
	config  Config
	logger  *zap.Logger

	watcher *DBWatcher

	changedAt   time.Time
	changedAtMu sync.Mutex

	passes   int
	passesMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a daemon for syncers. Use Start() to begin.
func New(syncers []Syncer, conn ConnectivitySource, config Config) (*Daemon, error) {
	if len(syncers) == 0 {
		return nil, errors.New("at least one syncer is required")
	}
	if conn == nil {
		return nil, errors.New("connectivity source cannot be nil")
	}
	def := DefaultConfig()
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = def.DebounceInterval
	}
	if config.Logger == nil {
		config.Logger = def.Logger
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Daemon{
		syncers: syncers,
		conn:    conn,
		config:  config,
		logger:  config.Logger.Named("daemon"),
		ctx:     ctx,
		cancel:  cancel,
	}
	if config.DBPath != "" {
		w, err := NewDBWatcher(config.DBPath)
		if err != nil {
			cancel()
			return nil, err
		}
		d.watcher = w
	}
	return d, nil
}

// Start runs the initial pass and the background loops. It blocks until
// ctx is cancelled, then stops the daemon.
func (d *Daemon) Start(ctx context.Context) error {
	stop := context.AfterFunc(ctx, d.cancel)
	defer stop()
	d.logger.Info("starting daemon", zap.Int("entities", len(d.syncers)))

	if err := d.SyncAll(d.ctx); err != nil {
		d.logger.Warn("initial sync incomplete", zap.Error(err))
	}

	if d.watcher != nil {
		if err := d.watcher.Start(); err != nil {
			d.cancel()
			return fmt.Errorf("failed to watch database: %w", err)
		}
		d.wg.Add(2)
		go d.watchFileEvents()
		go d.processChanges()
	}

	d.wg.Add(1)
	go d.watchConnectivity()

	if d.config.SyncInterval > 0 {
		d.wg.Add(1)
		go d.periodicSync()
	}

	<-d.ctx.Done()
	return d.Stop()
}

// Stop shuts the daemon down and waits for running passes to finish.
func (d *Daemon) Stop() error {
	d.cancel()
	var err error
	if d.watcher != nil {
		err = d.watcher.Stop()
	}
	d.wg.Wait()
	d.logger.Info("daemon stopped")
	return err
}

// SyncAll runs one pass per entity concurrently and returns the joined
// failures. A failed entity does not stop the others.
func (d *Daemon) SyncAll(ctx context.Context) error {
	d.passesMu.Lock()
	d.passes++
	d.passesMu.Unlock()

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for _, s := range d.syncers {
		s := s
		g.Go(func() error {
			if err := s.SyncPendingChanges(ctx); err != nil {
				d.logger.Warn("sync pass failed", zap.String("entity", s.Entity()), zap.Error(err))
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", s.Entity(), err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// SyncPending runs passes only for entities with pending changes.
func (d *Daemon) SyncPending(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	var (
		mu    sync.Mutex
		ready []Syncer
	)
	for _, s := range d.syncers {
		s := s
		g.Go(func() error {
			pending, err := s.HasPendingChanges(gctx)
			if err != nil {
				return fmt.Errorf("%s: %w", s.Entity(), err)
			}
			if pending {
				mu.Lock()
				ready = append(ready, s)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if len(ready) == 0 {
		return nil
	}

	var errs []error
	var sg errgroup.Group
	for _, s := range ready {
		s := s
		sg.Go(func() error {
			if err := s.SyncPendingChanges(ctx); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", s.Entity(), err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = sg.Wait()
	return errors.Join(errs...)
}

// Passes returns how many SyncAll rounds have run.
func (d *Daemon) Passes() int {
	d.passesMu.Lock()
	defer d.passesMu.Unlock()
	return d.passes
}

func (d *Daemon) watchConnectivity() {
	defer d.wg.Done()

	for connected := range d.conn.Subscribe(d.ctx) {
		if !connected {
			d.logger.Info("connectivity lost")
			continue
		}
		d.logger.Info("connectivity regained, syncing")
		if err := d.SyncAll(d.ctx); err != nil {
			d.logger.Warn("sync after reconnect incomplete", zap.Error(err))
		}
	}
}

func (d *Daemon) watchFileEvents() {
	defer d.wg.Done()

	events, errs := d.watcher.Events(), d.watcher.Errors()
	for {
		select {
		case <-d.ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			d.logger.Debug("database event", zap.String("path", ev.Path), zap.Stringer("op", ev.Op))
			d.changedAtMu.Lock()
			d.changedAt = time.Now()
			d.changedAtMu.Unlock()
		case err, ok := <-errs:
			if !ok {
				return
			}
			d.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

// processChanges runs a pass once writes have been quiet for the debounce
// interval and something is pending. A failing pass itself writes to the
// database, so failures back off before the next change-triggered pass.
func (d *Daemon) processChanges() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval / 2)
	defer ticker.Stop()

	policy := changeBackoff(d.config.DebounceInterval)
	var retryAt time.Time
	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			if now.Before(retryAt) {
				continue
			}

			d.changedAtMu.Lock()
			changed := d.changedAt
			due := !changed.IsZero() && now.Sub(changed) >= d.config.DebounceInterval
			if due {
				d.changedAt = time.Time{}
			}
			d.changedAtMu.Unlock()

			if !due {
				continue
			}
			if err := d.SyncPending(d.ctx); err != nil {
				wait := policy.NextBackOff()
				retryAt = time.Now().Add(wait)
				d.logger.Warn("sync after change incomplete",
					zap.Error(err),
					zap.Duration("backoff", wait))
				continue
			}
			policy.Reset()
			retryAt = time.Time{}
		}
	}
}

const maxChangeBackoff = 2 * time.Minute

// changeBackoff spaces change-triggered passes after failures: four debounce
// intervals first, doubling up to maxChangeBackoff, never giving up.
func changeBackoff(debounce time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 4 * debounce
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = maxChangeBackoff
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func (d *Daemon) periodicSync() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			if err := d.SyncAll(d.ctx); err != nil {
				d.logger.Warn("periodic sync incomplete", zap.Error(err))
			}
		}
	}
}
