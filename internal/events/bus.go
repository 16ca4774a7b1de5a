// Package events fans ledger events out to in-process subscribers.
//
// Each subscriber owns a buffered queue drained by a single goroutine, so a
// subscriber sees events in the order they were published, which is the
// ledger's commit order.  Delivery is best effort: when a queue is full the
// event is dropped for that subscriber only, logged and counted.  A slow
// subscriber never blocks the ledger.
package events

import (
	"log/slog"
	"sync"

	"github.com/iliyamo/ticket-ledger/internal/metrics"
	"github.com/iliyamo/ticket-ledger/internal/model"
)

// DefaultBuffer is the per-subscriber queue length used when NewBus is
// given a non-positive size.
const DefaultBuffer = 1024

// Handler consumes one event.  It runs on the subscriber's goroutine.
type Handler func(model.Event)

type subscriber struct {
	name  string
	queue chan model.Event
	done  chan struct{}
}

// Bus is a publish/subscribe hub for ledger events.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uint64]*subscriber
	nextID uint64
	buffer int
	closed bool
	logger *slog.Logger
}

// NewBus returns an empty bus whose subscribers buffer up to buffer events.
func NewBus(logger *slog.Logger, buffer int) *Bus {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{subs: make(map[uint64]*subscriber), buffer: buffer, logger: logger}
}

// Subscribe registers h under name.  The returned cancel func stops
// delivery of new events and returns once h has handled every event that
// was already queued for it.
func (b *Bus) Subscribe(name string, h Handler) (cancel func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return func() {}
	}
	id := b.nextID
	b.nextID++
	s := &subscriber{name: name, queue: make(chan model.Event, b.buffer), done: make(chan struct{})}
	b.subs[id] = s
	go b.run(s, h)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			if _, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(s.queue)
			}
			b.mu.Unlock()
			<-s.done
		})
	}
}

func (b *Bus) run(s *subscriber, h Handler) {
	defer close(s.done)
	for ev := range s.queue {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("event subscriber panicked", "subscriber", s.name, "seq", ev.Seq, "panic", r)
				}
			}()
			h(ev)
		}()
	}
}

// Publish enqueues ev for every subscriber.  It never blocks.
func (b *Bus) Publish(ev model.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, s := range b.subs {
		select {
		case s.queue <- ev:
		default:
			metrics.TrackDropped(s.name)
			b.logger.Warn("event dropped, subscriber queue full", "subscriber", s.name, "kind", ev.Kind, "seq", ev.Seq)
		}
	}
}

// Close stops all subscribers after they drain what is already queued.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := make([]*subscriber, 0, len(b.subs))
	for id, s := range b.subs {
		subs = append(subs, s)
		close(s.queue)
		delete(b.subs, id)
	}
	b.mu.Unlock()
	for _, s := range subs {
		<-s.done
	}
}
