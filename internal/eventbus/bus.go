package eventbus

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// DefaultBufferSize is the per-subscriber channel depth.
const DefaultBufferSize = 1000

// Delivery is one value read off a Subscription: either an Event, or (when
// Lagged is non-zero) a signal that this many events were dropped before
// this read.
type Delivery struct {
	Event  CacheItemEvent
	Lagged int64
}

// Subscription is a single subscriber's view of the bus.
type Subscription struct {
	bus    *Bus
	id     uint64
	filter Filter
	ch     chan CacheItemEvent
	lagged int64 // atomic; events dropped since the last successful read
}

// Recv blocks until the next Delivery or ctx is done. If events were
// dropped due to this subscriber lagging, the first Recv after the drop
// returns a Lagged delivery before resuming normal events.
func (s *Subscription) Recv(ctx context.Context) (Delivery, error) {
	if n := atomic.SwapInt64(&s.lagged, 0); n > 0 {
		return Delivery{Lagged: n}, nil
	}
	select {
	case e := <-s.ch:
		return Delivery{Event: e}, nil
	case <-ctx.Done():
		return Delivery{}, ctx.Err()
	}
}

// Close unsubscribes, releasing the subscription's buffer.
func (s *Subscription) Close() {
	s.bus.unsubscribe(s.id)
}

// Bus is a bounded broadcast of CacheItemEvents to many independent
// subscribers, none of which can block a publisher.
type Bus struct {
	log    *zap.Logger
	bufLen int

	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
}

// New builds an EventBus. log may be nil; bufLen<=0 uses DefaultBufferSize.
func New(log *zap.Logger, bufLen int) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	if bufLen <= 0 {
		bufLen = DefaultBufferSize
	}
	return &Bus{log: log, bufLen: bufLen, subs: make(map[uint64]*Subscription)}
}

// Subscribe registers a new subscriber matching filter.
func (b *Bus) Subscribe(filter Filter) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		bus:    b,
		id:     b.nextID,
		filter: filter,
		ch:     make(chan CacheItemEvent, b.bufLen),
	}
	b.subs[sub.id] = sub
	return sub
}

func (b *Bus) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}

// Publish broadcasts e to every matching subscriber. A full subscriber
// channel is never blocked on; instead the event is dropped for that
// subscriber and its lag counter is incremented. Publishing with zero
// subscribers is a no-op, logged at warn level.
func (b *Bus) Publish(e CacheItemEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.subs) == 0 {
		b.log.Warn("event published with no subscribers", zap.String("cache", e.CacheName), zap.String("kind", string(e.Kind)))
		return
	}

	for _, sub := range b.subs {
		if !sub.filter.Match(e) {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			atomic.AddInt64(&sub.lagged, 1)
		}
	}
}
