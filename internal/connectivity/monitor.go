// Package connectivity tracks whether the remote API is believed reachable.
//
// The monitor is an oracle, not a guarantee: a "connected" reading can be
// stale by the time a request is made, so callers must still handle remote
// failures.
package connectivity

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Monitor is a process-wide reachability signal with change notifications.
type Monitor struct {
	connected   atomic.Bool
	constrained atomic.Bool
	logger      *zap.Logger

	mu   sync.Mutex
	subs map[chan bool]struct{}
}

// NewMonitor returns a monitor with the given initial reading.
func NewMonitor(initial bool, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Monitor{
		logger: logger.Named("connectivity"),
		subs:   make(map[chan bool]struct{}),
	}
	m.connected.Store(initial)
	return m
}

// IsConnected reports the last known reachability.
func (m *Monitor) IsConnected() bool {
	return m.connected.Load()
}

// IsConstrained reports whether the link is metered or otherwise limited.
func (m *Monitor) IsConstrained() bool {
	return m.constrained.Load()
}

// ShouldAllowSync reports whether background sync passes may run: the
// network is reachable and not constrained.
func (m *Monitor) ShouldAllowSync() bool {
	return m.IsConnected() && !m.IsConstrained()
}

// Set records a new reading and notifies subscribers if it changed.
//
// The swap and the notification happen under one lock, so subscribers see
// changes in the order they were applied.
func (m *Monitor) Set(connected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connected.Swap(connected) == connected {
		return
	}
	m.logger.Info("connectivity changed", zap.Bool("connected", connected))
	m.notifyLocked(connected)
}

// SetConstrained records whether the link is constrained.
func (m *Monitor) SetConstrained(constrained bool) {
	if m.constrained.Swap(constrained) != constrained {
		m.logger.Info("network constraint changed", zap.Bool("constrained", constrained))
	}
}

// Subscribe returns a channel receiving every change of IsConnected until
// ctx is done. Each subscriber holds at most one undelivered reading; a newer
// reading replaces an older one that has not been received yet.
func (m *Monitor) Subscribe(ctx context.Context) <-chan bool {
	ch := make(chan bool, 1)

	m.mu.Lock()
	m.subs[ch] = struct{}{}
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.subs, ch)
		close(ch)
		m.mu.Unlock()
	}()

	return ch
}

func (m *Monitor) notifyLocked(connected bool) {
	for ch := range m.subs {
		select {
		case ch <- connected:
			continue
		default:
		}
		// Replace the stale reading.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- connected:
		default:
		}
	}
}
