package ui

import (
	"errors"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"

	"github.com/crewsync/crewsync/internal/status"
	"github.com/crewsync/crewsync/internal/store"
)

func init() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

func TestStatusBadge(t *testing.T) {
	assert.Contains(t, StatusBadge(status.New("workers", status.Synced)), "✓ synced")
	assert.Contains(t, StatusBadge(status.New("workers", status.Offline)), "offline")
	assert.Contains(t, StatusBadge(status.New("workers", status.Idle)), "idle")

	failed := StatusBadge(status.NewFailed("leave_requests", errors.New("HTTP 503")))
	assert.Contains(t, failed, "leave_requests")
	assert.Contains(t, failed, "failed: HTTP 503")
}

func TestPendingTable(t *testing.T) {
	assert.Equal(t, "no pending changes", PendingTable(nil))

	recs := []store.Record{
		{Entity: "workers", LocalKey: "anna@example.dk", SyncState: store.StatePending, LastModifiedAt: time.Now()},
		{Entity: "workers", LocalKey: "bo@example.dk", ServerID: store.ServerIDPtr(7), SyncState: store.StatePending,
			RetryCount: 2, SyncError: "remote update workers: server: HTTP 500", LastModifiedAt: time.Now()},
		{Entity: "work_entries", LocalKey: "k1", ServerID: store.ServerIDPtr(3), Deleted: true, SyncState: store.StatePending},
	}
	out := PendingTable(recs)
	assert.Contains(t, out, "ENTITY")
	assert.Contains(t, out, "anna@example.dk")
	assert.Contains(t, out, "create")
	assert.Contains(t, out, "update")
	assert.Contains(t, out, "delete")
	assert.Contains(t, out, "remote update workers: server: HTTP 5")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
	assert.Equal(t, "a b", truncate("a\nb", 5))
}
