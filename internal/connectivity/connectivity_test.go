package connectivity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitor_SetAndRead(t *testing.T) {
	m := NewMonitor(false, nil)
	assert.False(t, m.IsConnected())
	assert.False(t, m.ShouldAllowSync())

	m.Set(true)
	assert.True(t, m.IsConnected())
	assert.True(t, m.ShouldAllowSync())

	m.SetConstrained(true)
	assert.True(t, m.IsConnected())
	assert.False(t, m.ShouldAllowSync())
}

func TestMonitor_SubscribeReceivesChanges(t *testing.T) {
	m := NewMonitor(false, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := m.Subscribe(ctx)

	m.Set(false) // unchanged, no notification
	m.Set(true)

	select {
	case v := <-ch:
		assert.True(t, v)
	case <-time.After(time.Second):
		t.Fatal("no notification")
	}

	select {
	case v := <-ch:
		t.Fatalf("unexpected notification %v", v)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestMonitor_LatestReadingWins(t *testing.T) {
	m := NewMonitor(false, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := m.Subscribe(ctx)
	m.Set(true)
	m.Set(false)

	select {
	case v := <-ch:
		assert.False(t, v)
	case <-time.After(time.Second):
		t.Fatal("no notification")
	}
}

func TestMonitor_ConcurrentSetsDeliverFinalReading(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for round := 0; round < 20; round++ {
		m := NewMonitor(false, nil)
		ch := m.Subscribe(ctx)

		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				for j := 0; j < 50; j++ {
					m.Set((i+j)%2 == 0)
				}
			}(i)
		}
		wg.Wait()
		m.Set(true)
		m.Set(false)

		select {
		case got := <-ch:
			assert.Equal(t, m.IsConnected(), got, "round %d", round)
		default:
			t.Fatalf("round %d: no reading delivered", round)
		}
	}
}

func TestMonitor_SubscribeClosesOnCancel(t *testing.T) {
	m := NewMonitor(true, nil)
	ctx, cancel := context.WithCancel(context.Background())
	ch := m.Subscribe(ctx)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}

	// Changes after the subscriber left must not panic.
	m.Set(false)
}

func TestProber_Probe(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	m := NewMonitor(false, nil)
	p := NewProber(m, srv.URL, time.Hour, time.Second, nil)

	assert.True(t, p.Probe(context.Background()))
	assert.True(t, m.IsConnected())

	// A 404 still proves the host is reachable.
	status.Store(http.StatusNotFound)
	assert.True(t, p.Probe(context.Background()))

	status.Store(http.StatusServiceUnavailable)
	assert.False(t, p.Probe(context.Background()))
	assert.False(t, m.IsConnected())
}

func TestProber_UnreachableHost(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	m := NewMonitor(true, nil)
	p := NewProber(m, url, time.Hour, 200*time.Millisecond, nil)
	assert.False(t, p.Probe(context.Background()))
	assert.False(t, m.IsConnected())
}

func TestProber_RunStopsOnCancel(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	m := NewMonitor(false, nil)
	p := NewProber(m, srv.URL, 10*time.Millisecond, time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return hits.Load() >= 2 }, time.Second, 5*time.Millisecond)
	assert.True(t, m.IsConnected())

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}
