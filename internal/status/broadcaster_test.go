package status

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recv(t *testing.T, ch <-chan Status) Status {
	t.Helper()
	select {
	case s, ok := <-ch:
		require.True(t, ok, "channel closed")
		return s
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for status")
		return Status{}
	}
}

func TestBroadcaster_FanOut(t *testing.T) {
	b := NewBroadcaster("workers")
	ctx := context.Background()

	a, cancelA := b.Subscribe(ctx)
	defer cancelA()
	c, cancelC := b.Subscribe(ctx)
	defer cancelC()

	b.Publish(New("workers", Syncing))

	assert.Equal(t, Syncing, recv(t, a).State)
	assert.Equal(t, Syncing, recv(t, c).State)
	assert.Equal(t, 2, b.SubscriberCount())
}

func TestBroadcaster_FillsEntityAndTime(t *testing.T) {
	b := NewBroadcaster("leave_requests")
	ch, cancel := b.Subscribe(context.Background())
	defer cancel()

	b.Publish(Status{State: Synced})

	s := recv(t, ch)
	assert.Equal(t, "leave_requests", s.Entity)
	assert.False(t, s.At.IsZero())
}

func TestBroadcaster_NoHistory(t *testing.T) {
	b := NewBroadcaster("workers")
	b.Publish(New("workers", Synced))

	ch, cancel := b.Subscribe(context.Background())
	defer cancel()

	select {
	case s := <-ch:
		t.Fatalf("late subscriber received %v", s)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcaster_SlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewBroadcaster("work_entries", WithBuffer(1))
	slow, cancelSlow := b.Subscribe(context.Background())
	defer cancelSlow()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish(New("work_entries", Syncing))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}

	// Only the buffered event survives.
	assert.Equal(t, Syncing, recv(t, slow).State)
	select {
	case <-slow:
		t.Fatal("expected dropped events")
	default:
	}
}

func TestBroadcaster_UnsubscribeClosesChannel(t *testing.T) {
	b := NewBroadcaster("workers")
	ch, cancel := b.Subscribe(context.Background())
	cancel()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)
	assert.Zero(t, b.SubscriberCount())

	// Publishing with no subscribers is fine.
	b.Publish(New("workers", Idle))
}

func TestBroadcaster_ContextCancelDetaches(t *testing.T) {
	b := NewBroadcaster("workers")
	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := b.Subscribe(ctx)

	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed after context cancel")
	}
	assert.Eventually(t, func() bool { return b.SubscriberCount() == 0 }, time.Second, 10*time.Millisecond)
}

func TestBroadcaster_Close(t *testing.T) {
	b := NewBroadcaster("workers")
	ch, cancel := b.Subscribe(context.Background())
	defer cancel()

	b.Close()
	_, ok := <-ch
	assert.False(t, ok)

	late, _ := b.Subscribe(context.Background())
	_, ok = <-late
	assert.False(t, ok)

	b.Publish(New("workers", Synced))
	b.Close()
}

func TestStatus_JSON(t *testing.T) {
	at := time.Date(2025, 5, 2, 10, 0, 0, 0, time.UTC)
	s := Status{Entity: "workers", State: Failed, Err: errors.New("server returned 500"), At: at}

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{"entity":"workers","state":"failed","error":"server returned 500","at":"2025-05-02T10:00:00Z"}`, string(data))

	var back Status
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, Failed, back.State)
	require.Error(t, back.Err)
	assert.Equal(t, "server returned 500", back.Err.Error())
	assert.Equal(t, "workers: failed(server returned 500)", back.String())
}

func TestState_Terminal(t *testing.T) {
	assert.False(t, Idle.Terminal())
	assert.False(t, Syncing.Terminal())
	assert.True(t, Synced.Terminal())
	assert.True(t, Offline.Terminal())
	assert.True(t, Failed.Terminal())
}
