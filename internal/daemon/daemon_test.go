package daemon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewsync/crewsync/internal/connectivity"
)

type fakeSyncer struct {
	entity string

	mu      sync.Mutex
	pending bool
	passes  int
	err     error
	delay   time.Duration
}

func (f *fakeSyncer) Entity() string { return f.entity }

func (f *fakeSyncer) HasPendingChanges(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending, nil
}

func (f *fakeSyncer) SyncPendingChanges(context.Context) error {
	f.mu.Lock()
	delay := f.delay
	f.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.passes++
	if f.err != nil {
		return f.err
	}
	f.pending = false
	return nil
}

func (f *fakeSyncer) Passes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.passes
}

func (f *fakeSyncer) setPending(p bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = p
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, connectivity.NewMonitor(true, nil), Config{})
	assert.Error(t, err)
	_, err = New([]Syncer{&fakeSyncer{entity: "workers"}}, nil, Config{})
	assert.Error(t, err)
}

func TestSyncAll_RunsEntitiesConcurrently(t *testing.T) {
	a := &fakeSyncer{entity: "workers", delay: 100 * time.Millisecond}
	b := &fakeSyncer{entity: "work_entries", delay: 100 * time.Millisecond}
	c := &fakeSyncer{entity: "leave_requests", delay: 100 * time.Millisecond}

	d, err := New([]Syncer{a, b, c}, connectivity.NewMonitor(true, nil), Config{})
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, d.SyncAll(context.Background()))
	assert.Less(t, time.Since(start), 250*time.Millisecond)
	assert.Equal(t, 1, a.Passes())
	assert.Equal(t, 1, b.Passes())
	assert.Equal(t, 1, c.Passes())
	assert.Equal(t, 1, d.Passes())
}

func TestSyncAll_FailureDoesNotStopOthers(t *testing.T) {
	boom := errors.New("HTTP 503")
	a := &fakeSyncer{entity: "workers", err: boom}
	b := &fakeSyncer{entity: "work_entries"}

	d, err := New([]Syncer{a, b}, connectivity.NewMonitor(true, nil), Config{})
	require.NoError(t, err)

	err = d.SyncAll(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "workers")
	assert.Equal(t, 1, b.Passes())
}

func TestSyncPending_OnlyPendingEntities(t *testing.T) {
	a := &fakeSyncer{entity: "workers", pending: true}
	b := &fakeSyncer{entity: "work_entries"}

	d, err := New([]Syncer{a, b}, connectivity.NewMonitor(true, nil), Config{})
	require.NoError(t, err)

	require.NoError(t, d.SyncPending(context.Background()))
	assert.Equal(t, 1, a.Passes())
	assert.Equal(t, 0, b.Passes())

	require.NoError(t, d.SyncPending(context.Background()))
	assert.Equal(t, 1, a.Passes())
}

func TestStart_SyncsOnStartupAndReconnect(t *testing.T) {
	s := &fakeSyncer{entity: "workers"}
	monitor := connectivity.NewMonitor(false, nil)

	d, err := New([]Syncer{s}, monitor, Config{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	require.Eventually(t, func() bool { return s.Passes() == 1 }, time.Second, 5*time.Millisecond)

	// Give the connectivity loop a moment to subscribe.
	time.Sleep(50 * time.Millisecond)
	monitor.Set(true)
	require.Eventually(t, func() bool { return s.Passes() == 2 }, time.Second, 5*time.Millisecond)

	monitor.Set(false)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 2, s.Passes())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("daemon did not stop")
	}
}

func TestStart_SyncsAfterDatabaseWrite(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "crew.db")
	require.NoError(t, os.WriteFile(dbPath, nil, 0o600))

	s := &fakeSyncer{entity: "workers"}
	d, err := New([]Syncer{s}, connectivity.NewMonitor(true, nil), Config{
		DBPath:           dbPath,
		DebounceInterval: 40 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = d.Start(ctx) }()

	require.Eventually(t, func() bool { return s.Passes() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	// A write with nothing pending does not trigger a pass.
	require.NoError(t, os.WriteFile(dbPath+"-wal", []byte("x"), 0o600))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, s.Passes())

	s.setPending(true)
	require.NoError(t, os.WriteFile(dbPath+"-wal", []byte("xy"), 0o600))
	require.Eventually(t, func() bool { return s.Passes() == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestStart_PeriodicSync(t *testing.T) {
	s := &fakeSyncer{entity: "workers"}
	d, err := New([]Syncer{s}, connectivity.NewMonitor(true, nil), Config{SyncInterval: 30 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = d.Start(ctx) }()

	require.Eventually(t, func() bool { return s.Passes() >= 3 }, 2*time.Second, 10*time.Millisecond)
}

func TestStop_BeforeStart(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "crew.db")
	d, err := New([]Syncer{&fakeSyncer{entity: "workers"}}, connectivity.NewMonitor(true, nil), Config{DBPath: dbPath})
	require.NoError(t, err)
	assert.NoError(t, d.Stop())
}

func TestChangeBackoff(t *testing.T) {
	b := changeBackoff(10 * time.Second)
	assert.Equal(t, 40*time.Second, b.NextBackOff())
	assert.Equal(t, 80*time.Second, b.NextBackOff())
	assert.Equal(t, maxChangeBackoff, b.NextBackOff())
	assert.Equal(t, maxChangeBackoff, b.NextBackOff(), "never stops")

	b.Reset()
	assert.Equal(t, 40*time.Second, b.NextBackOff())
}
