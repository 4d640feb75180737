// Package notify fans change notifications out to subscribers.
package notify

import (
	"context"
	"sync"

	"pkt.systems/pslog"
)

const defaultDepth = 256

// Bus delivers published values to every subscriber channel. Publish never
// blocks: a subscriber whose buffer is full misses the value.
type Bus[T any] struct {
	mu     sync.Mutex
	subs   map[chan T]struct{}
	log    pslog.Logger
	depth  int
	closed bool
}

// New constructs a Bus. depth <= 0 selects the default buffer size.
func New[T any](logger pslog.Logger, depth int) *Bus[T] {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	if depth <= 0 {
		depth = defaultDepth
	}
	return &Bus[T]{
		subs:  make(map[chan T]struct{}),
		log:   logger,
		depth: depth,
	}
}

// Subscribe registers a subscriber and returns its channel and a cancel func.
// The channel is closed by cancel or by Close.
func (b *Bus[T]) Subscribe() (<-chan T, func()) {
	ch := make(chan T, b.depth)
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	b.subs[ch] = struct{}{}
	count := len(b.subs)
	b.mu.Unlock()
	b.log.Debug("notify subscribe", "subs", count)

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			_, ok := b.subs[ch]
			delete(b.subs, ch)
			b.mu.Unlock()
			if ok {
				close(ch)
			}
		})
	}
}

// Publish sends v to all current subscribers.
func (b *Bus[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for ch := range b.subs {
		select {
		case ch <- v:
		default:
			b.log.Warn("notify subscriber full, dropping event", "depth", b.depth)
		}
	}
}

// Len returns the number of subscribers.
func (b *Bus[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close closes every subscriber channel. Later publishes are ignored.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		close(ch)
	}
	b.subs = map[chan T]struct{}{}
}
