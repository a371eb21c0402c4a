package changefeed

import (
	"context"
	"sync"
)

const defaultLocalBuffer = 256

// LocalHub is an in-process feed used when Redis is disabled. A subscriber
// that falls behind loses events instead of blocking the publisher.
type LocalHub struct {
	mu     sync.RWMutex
	subs   map[int]*localSub
	nextID int
	buffer int
}

type localSub struct {
	filter Filter
	ch     chan Event
}

// NewLocalHub creates an in-process hub
func NewLocalHub() *LocalHub {
	return &LocalHub{
		subs:   make(map[int]*localSub),
		buffer: defaultLocalBuffer,
	}
}

// Publish fans ev out to matching subscribers
func (h *LocalHub) Publish(_ context.Context, ev Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, s := range h.subs {
		if !s.filter.Match(ev) {
			continue
		}
		select {
		case s.ch <- ev:
		default:
		}
	}
	return nil
}

// Subscribe registers a filtered stream that ends with ctx
func (h *LocalHub) Subscribe(ctx context.Context, filter Filter) (*Subscription, error) {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	s := &localSub{filter: filter, ch: make(chan Event, h.buffer)}
	h.subs[id] = s
	h.mu.Unlock()

	done := make(chan struct{})
	sub := newSubscription(s.ch, func() error {
		h.mu.Lock()
		delete(h.subs, id)
		close(s.ch)
		h.mu.Unlock()
		close(done)
		return nil
	})

	go func() {
		select {
		case <-ctx.Done():
			_ = sub.Close()
		case <-done:
		}
	}()

	return sub, nil
}

// Subscribers returns the number of open subscriptions
func (h *LocalHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
