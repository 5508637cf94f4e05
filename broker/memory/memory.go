// Package memory provides the in-process implementation of broker.Broker
// backed by Go channels. It is the default backend: suitable for single-node
// gateways and for tests.
package memory

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/httpmcp/httpmcp-go/broker"
)

// Option configures the broker.
type Option func(*Broker)

// WithCapacity sets the per-subscriber buffer depth. Values below one fall
// back to broker.DefaultCapacity.
func WithCapacity(n int) Option {
	return func(b *Broker) {
		if n > 0 {
			b.capacity = n
		}
	}
}

// Broker implements broker.Broker with one bounded channel per subscriber.
type Broker struct {
	capacity int

	mu     sync.RWMutex
	subs   map[*subscription]struct{}
	closed bool
}

var _ broker.Broker = (*Broker)(nil)

// New creates an in-memory broker.
func New(opts ...Option) *Broker {
	b := &Broker{
		capacity: broker.DefaultCapacity,
		subs:     make(map[*subscription]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish implements broker.Broker. It never blocks: a subscriber whose
// buffer is full has its oldest pending event evicted and its lag counter
// bumped instead.
func (b *Broker) Publish(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ev := broker.Event{
		ID:   uuid.NewString(),
		Data: data,
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return "", broker.ErrClosed
	}

	for sub := range b.subs {
		sub.deliver(ev)
	}

	return ev.ID, nil
}

// Subscribe implements broker.Broker. lastEventID is accepted but ignored:
// no backlog is retained, so reconnecting clients resume from the next
// published event.
func (b *Broker) Subscribe(ctx context.Context, lastEventID string) (broker.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, broker.ErrClosed
	}

	sub := &subscription{
		b:    b,
		ch:   make(chan broker.Event, b.capacity),
		done: make(chan struct{}),
	}
	b.subs[sub] = struct{}{}

	return sub, nil
}

// Subscribers implements broker.Broker.
func (b *Broker) Subscribers(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0, broker.ErrClosed
	}
	return len(b.subs), nil
}

// Close implements broker.Broker. Active subscriptions observe io.EOF from
// their next call to Next.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for sub := range b.subs {
		sub.shutdown()
	}
	b.subs = make(map[*subscription]struct{})

	return nil
}

func (b *Broker) remove(sub *subscription) {
	b.mu.Lock()
	delete(b.subs, sub)
	b.mu.Unlock()
}

type subscription struct {
	b       *Broker
	ch      chan broker.Event
	skipped atomic.Int64

	closeOnce sync.Once
	done      chan struct{}
}

var _ broker.Subscription = (*subscription)(nil)

// deliver enqueues ev without ever blocking the publisher. On overflow the
// oldest pending event is evicted and counted against the subscriber's lag.
func (s *subscription) deliver(ev broker.Event) {
	select {
	case s.ch <- ev:
		return
	default:
	}

	select {
	case <-s.ch:
		s.skipped.Add(1)
	default:
	}

	select {
	case s.ch <- ev:
	default:
		s.skipped.Add(1)
	}
}

// Next implements broker.Subscription.
func (s *subscription) Next(ctx context.Context) (broker.Event, error) {
	if n := s.skipped.Swap(0); n > 0 {
		return broker.Event{}, &broker.LagError{Skipped: n}
	}

	select {
	case ev := <-s.ch:
		return ev, nil
	case <-ctx.Done():
		return broker.Event{}, ctx.Err()
	case <-s.done:
		// Drain anything that raced in before shutdown.
		select {
		case ev := <-s.ch:
			return ev, nil
		default:
			return broker.Event{}, io.EOF
		}
	}
}

// Close implements broker.Subscription.
func (s *subscription) Close() error {
	s.closeOnce.Do(func() {
		s.b.remove(s)
		close(s.done)
	})
	return nil
}

// shutdown is called with the broker lock held; it must not call back into
// the broker.
func (s *subscription) shutdown() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}
