package daemon

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitEvent(t *testing.T, w *DBWatcher, want EventOp, path string) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-w.Events():
			if ev.Op == want && ev.Path == path {
				return
			}
		case <-timeout:
			t.Fatalf("no %s event for %s", want, path)
		}
	}
}

func TestDBWatcher_Events(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "crew.db")

	w, err := NewDBWatcher(dbPath)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()
	assert.True(t, w.IsRunning())

	wal := dbPath + "-wal"
	require.NoError(t, os.WriteFile(wal, []byte("a"), 0o600))
	waitEvent(t, w, OpCreate, wal)

	require.NoError(t, os.Remove(wal))
	waitEvent(t, w, OpDelete, wal)
}

func TestDBWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	w, err := NewDBWatcher(filepath.Join(dir, "crew.db"))
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "crew.db-shm"), []byte("x"), 0o600))

	select {
	case ev := <-w.Events():
		t.Fatalf("unexpected event %s %s", ev.Op, ev.Path)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestDBWatcher_StartTwiceAndStop(t *testing.T) {
	w, err := NewDBWatcher(filepath.Join(t.TempDir(), "crew.db"))
	require.NoError(t, err)
	require.NoError(t, w.Start())
	assert.Error(t, w.Start())

	require.NoError(t, w.Stop())
	assert.False(t, w.IsRunning())

	_, ok := <-w.Events()
	assert.False(t, ok, "events channel closed after stop")
}

func TestEventOp_String(t *testing.T) {
	assert.Equal(t, "create", OpCreate.String())
	assert.Equal(t, "modify", OpModify.String())
	assert.Equal(t, "delete", OpDelete.String())
	assert.Equal(t, "unknown", EventOp(42).String())
}
