// Package events carries device events from the main loop to observers such
// as the metrics recorder.
package events

import (
	"log/slog"
	"sync"

	"github.com/micro-nova/musicbox-go/internal/models"
)

const subBufferSize = 32

type subscription struct {
	ch      chan models.Event
	types   map[models.EventType]bool // nil means every type
	dropped uint64
}

func (s *subscription) wants(t models.EventType) bool {
	return s.types == nil || s.types[t]
}

// Bus fans events out to subscribers without ever blocking the publisher:
// the main loop publishes, so a slow subscriber loses events instead.
type Bus struct {
	mu   sync.Mutex
	subs map[string]*subscription
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string]*subscription)}
}

// Subscribe registers id for the given event types, or for every type when
// none are given. Subscribing an existing id replaces its subscription.
// Call Unsubscribe when done.
func (b *Bus) Subscribe(id string, types ...models.EventType) <-chan models.Event {
	sub := &subscription{ch: make(chan models.Event, subBufferSize)}
	if len(types) > 0 {
		sub.types = make(map[models.EventType]bool, len(types))
		for _, t := range types {
			sub.types[t] = true
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if old, ok := b.subs[id]; ok {
		close(old.ch)
	}
	b.subs[id] = sub
	return sub.ch
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub, ok := b.subs[id]
	if !ok {
		return
	}
	delete(b.subs, id)
	close(sub.ch)
	if sub.dropped > 0 {
		slog.Debug("events: subscriber dropped events", "id", id, "dropped", sub.dropped)
	}
}

// Publish delivers ev to every interested subscriber. A nil Bus discards it.
func (b *Bus) Publish(ev models.Event) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		if !sub.wants(ev.Type) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			sub.dropped++
		}
	}
}
