package events

import (
	"context"
	"sync"
)

// MemoryBus is an in-process Bus.
type MemoryBus struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
	closed      bool
}

var _ Bus = (*MemoryBus)(nil)

// NewMemoryBus creates an empty in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subscribers: make(map[chan Event]struct{})}
}

// Publish delivers ev to every subscriber whose buffer has room.
func (b *MemoryBus) Publish(ctx context.Context, ev Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	ev = stamp(ev)
	for ch := range b.subscribers {
		select {
		case ch <- ev:
		default: // Drop if channel full
		}
	}
	return nil
}

// Subscribe registers a subscriber until ctx is done.
func (b *MemoryBus) Subscribe(ctx context.Context) (<-chan Event, error) {
	ch := make(chan Event, SubscriberBuffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()

	context.AfterFunc(ctx, func() { b.unsubscribe(ch) })
	return ch, nil
}

// Subscribers returns the number of active subscribers.
func (b *MemoryBus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

func (b *MemoryBus) unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[ch]; ok {
		delete(b.subscribers, ch)
		close(ch)
	}
}

// Close closes every subscriber channel. Further publishes fail.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for ch := range b.subscribers {
		delete(b.subscribers, ch)
		close(ch)
	}
	return nil
}
