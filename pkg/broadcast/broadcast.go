package broadcast

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by Broadcast after Close.
var ErrClosed = errors.New("broadcast: broadcaster is closed")

// Subscription receives the messages broadcast after it was created.
type Subscription[T any] struct {
	ch     chan T
	once   sync.Once
	parent *MemoryBroadcaster[T]
}

// C returns the receive channel. It is closed when the subscription ends.
func (s *Subscription[T]) C() <-chan T { return s.ch }

// Close ends the subscription. It is idempotent.
func (s *Subscription[T]) Close() {
	s.parent.unsubscribe(s)
}

func (s *Subscription[T]) close() {
	s.once.Do(func() { close(s.ch) })
}

// MemoryBroadcaster fans messages out to in-process subscribers. A
// subscriber whose buffer is full misses the message rather than blocking
// the sender; Dropped counts those misses. Safe for concurrent use.
type MemoryBroadcaster[T any] struct {
	mu          sync.RWMutex
	subscribers map[*Subscription[T]]struct{}
	bufferSize  int
	closed      bool
	dropped     atomic.Int64
}

// NewMemoryBroadcaster creates a broadcaster whose subscribers buffer up to
// bufferSize messages (at least 1).
func NewMemoryBroadcaster[T any](bufferSize int) *MemoryBroadcaster[T] {
	return &MemoryBroadcaster[T]{
		subscribers: make(map[*Subscription[T]]struct{}),
		bufferSize:  max(bufferSize, 1),
	}
}

// Subscribe registers a subscriber that lives until ctx is done, Close is
// called on it or the broadcaster closes.
func (b *MemoryBroadcaster[T]) Subscribe(ctx context.Context) *Subscription[T] {
	sub := &Subscription[T]{ch: make(chan T, b.bufferSize), parent: b}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		sub.close()
		return sub
	}
	b.subscribers[sub] = struct{}{}

	if ctx.Done() != nil {
		context.AfterFunc(ctx, func() { b.unsubscribe(sub) })
	}
	return sub
}

// Broadcast delivers msg to every subscriber without blocking.
func (b *MemoryBroadcaster[T]) Broadcast(_ context.Context, msg T) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrClosed
	}
	for sub := range b.subscribers {
		select {
		case sub.ch <- msg:
		default:
			b.dropped.Add(1)
		}
	}
	return nil
}

// Subscribers returns the number of live subscriptions.
func (b *MemoryBroadcaster[T]) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Dropped returns how many deliveries were skipped because a buffer was full.
func (b *MemoryBroadcaster[T]) Dropped() int64 {
	return b.dropped.Load()
}

// Close ends every subscription. Later Broadcast calls return ErrClosed.
func (b *MemoryBroadcaster[T]) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for sub := range b.subscribers {
		sub.close()
	}
	clear(b.subscribers)
	return nil
}

func (b *MemoryBroadcaster[T]) unsubscribe(sub *Subscription[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers, sub)
	sub.close()
}
