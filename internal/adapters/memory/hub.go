package memory

import (
	"context"
	"log/slog"
	"sync"

	"github.com/samirrijal/shiftfence/internal/core/domain"
)

// DefaultSubscriberBuffer is the per-subscriber queue length of a Hub.
const DefaultSubscriberBuffer = 64

type subscription struct {
	principal domain.Principal
	kinds     map[domain.EventKind]bool
	ch        chan *domain.Event
	done      chan struct{}
	once      sync.Once
}

func (s *subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

// Hub is an in-process event bus. It implements ports.EventPublisher and
// ports.EventSubscriber. A subscriber whose queue is full misses the event;
// Publish never blocks on slow subscribers.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]*subscription
	nextID uint64
	buffer int
}

// NewHub creates a Hub with the given per-subscriber buffer.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	return &Hub{subs: make(map[uint64]*subscription), buffer: buffer}
}

// Publish delivers event to every subscriber allowed to see it.
func (h *Hub) Publish(ctx context.Context, event *domain.Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, sub := range h.subs {
		if !sub.kinds[event.Kind] || !domain.CanReceive(sub.principal, event) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			slog.WarnContext(ctx, "subscriber queue full, event dropped",
				"subscription", id, "user_id", sub.principal.UserID, "kind", event.Kind)
		}
	}
	return nil
}

// Subscribe registers handler for the kinds principal may receive. handler
// runs on a dedicated goroutine until the returned function is called or ctx
// is done.
func (h *Hub) Subscribe(ctx context.Context, principal domain.Principal, kinds []domain.EventKind, handler func(ctx context.Context, event *domain.Event)) (func(), error) {
	sub := &subscription{
		principal: principal,
		kinds:     make(map[domain.EventKind]bool),
		ch:        make(chan *domain.Event, h.buffer),
		done:      make(chan struct{}),
	}
	for _, k := range domain.AllowedKinds(principal, kinds) {
		sub.kinds[k] = true
	}

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs[id] = sub
	h.mu.Unlock()

	go func() {
		defer h.remove(id)
		for {
			select {
			case ev := <-sub.ch:
				select {
				case <-sub.done:
					return
				default:
				}
				handler(ctx, ev)
			case <-sub.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return sub.stop, nil
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.subs[id]; ok {
		sub.stop()
		delete(h.subs, id)
	}
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
