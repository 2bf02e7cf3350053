package status

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 16

// Broadcaster multicasts Status events for one entity type.
//
// Publish never blocks: a subscriber whose buffer is full misses the event.
// Subscribers only see events published after they subscribed.
type Broadcaster struct {
	entity string
	buffer int
	logger *zap.Logger

	mu     sync.RWMutex
	subs   map[uint64]chan Status
	nextID uint64
	closed bool
}

// Option configures a Broadcaster.
type Option func(*Broadcaster)

// WithBuffer sets the per-subscriber channel capacity.
func WithBuffer(n int) Option {
	return func(b *Broadcaster) {
		if n > 0 {
			b.buffer = n
		}
	}
}

// WithLogger sets the logger used to report dropped events.
func WithLogger(logger *zap.Logger) Option {
	return func(b *Broadcaster) {
		if logger != nil {
			b.logger = logger.Named("status")
		}
	}
}

// NewBroadcaster creates a broadcaster for entity.
func NewBroadcaster(entity string, opts ...Option) *Broadcaster {
	b := &Broadcaster{
		entity: entity,
		buffer: DefaultBuffer,
		logger: zap.NewNop(),
		subs:   make(map[uint64]chan Status),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Entity returns the entity type this broadcaster reports on.
func (b *Broadcaster) Entity() string {
	return b.entity
}

// Publish delivers s to every current subscriber. An empty Entity or zero
// timestamp is filled in.
func (b *Broadcaster) Publish(s Status) {
	if s.Entity == "" {
		s.Entity = b.entity
	}
	if s.At.IsZero() {
		s.At = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for id, ch := range b.subs {
		select {
		case ch <- s:
		default:
			b.logger.Debug("subscriber buffer full, dropping status",
				zap.String("entity", b.entity),
				zap.Uint64("subscriber", id),
				zap.String("state", string(s.State)))
		}
	}
}

// Subscribe attaches a new subscriber. The returned channel is closed when
// ctx is done, when the returned cancel func is called, or when the
// broadcaster is closed.
func (b *Broadcaster) Subscribe(ctx context.Context) (<-chan Status, func()) {
	ch := make(chan Status, b.buffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	done := make(chan struct{})
	cancel := func() {
		once.Do(func() {
			close(done)
			b.remove(id)
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()

	return ch, cancel
}

func (b *Broadcaster) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// SubscriberCount returns the number of attached subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close detaches every subscriber. Later publishes are discarded.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
