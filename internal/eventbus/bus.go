package eventbus

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"laundromat-backend/internal/event"
	"laundromat-backend/internal/obs"
)

// Bus fans committed machine events out to in-process consumers.
//
// Publish never blocks: each subscriber owns a buffered channel and a
// subscriber that falls behind loses events instead of stalling the
// scheduler tick.
type Bus struct {
	log  *zap.Logger
	mu   sync.RWMutex
	subs map[uint64]subscriber
	seq  atomic.Uint64
}

type subscriber struct {
	name string
	ch   chan event.Event
}

// New returns an empty bus.
func New(log *zap.Logger) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{log: log.With(zap.String("component", "eventbus")), subs: map[uint64]subscriber{}}
}

// Publish delivers e to every subscriber that has room for it.
func (b *Bus) Publish(e event.Event) {
	obs.EventsPublished.WithLabelValues(string(e.Kind)).Inc()

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		select {
		case s.ch <- e:
		default:
			obs.EventsDropped.WithLabelValues(s.name).Inc()
			b.log.Warn("subscriber full, event dropped",
				zap.String("subscriber", s.name),
				zap.String("kind", string(e.Kind)),
				zap.String("machine_id", e.MachineID))
		}
	}
}

// Subscribe registers a named consumer. The returned function unsubscribes
// and closes the channel; it is safe to call more than once.
func (b *Bus) Subscribe(name string, buffer int) (<-chan event.Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan event.Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = subscriber{name: name, ch: ch}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}
