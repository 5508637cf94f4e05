// Package redisbroker implements broker.Broker over Redis pub/sub so that a
// fleet of gateway instances can share one streaming delivery channel: a
// response computed on any instance fans out to the SSE connections held by
// all of them.
//
// Redis pub/sub is fire-and-forget, which matches the contract: nothing is
// retained, lastEventID is never replayed, and a subscriber that falls behind
// is subject to Redis' own client-output-buffer policy rather than this
// package's LagError signaling.
package redisbroker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/httpmcp/httpmcp-go/broker"
	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the pub/sub channel used when none is configured.
const DefaultChannel = "httpmcp:responses"

// Option configures the broker.
type Option func(*Broker)

// WithChannel overrides the pub/sub channel name. Distinct gateways sharing
// one Redis must use distinct channels.
func WithChannel(name string) Option {
	return func(b *Broker) {
		if name != "" {
			b.channel = name
		}
	}
}

// envelope is the wire form of one event on the Redis channel.
type envelope struct {
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

// Broker implements broker.Broker on a redis.UniversalClient. The client is
// borrowed, not owned: Close tears down subscriptions but leaves the client
// open for the caller.
type Broker struct {
	client  redis.UniversalClient
	channel string

	mu     sync.Mutex
	subs   map[*subscription]struct{}
	closed bool
}

var _ broker.Broker = (*Broker)(nil)

// New creates a Redis-backed broker.
func New(client redis.UniversalClient, opts ...Option) *Broker {
	b := &Broker{
		client:  client,
		channel: DefaultChannel,
		subs:    make(map[*subscription]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish implements broker.Broker.
func (b *Broker) Publish(ctx context.Context, data []byte) (string, error) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return "", broker.ErrClosed
	}

	env := envelope{ID: uuid.NewString(), Data: data}
	payload, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("marshal envelope: %w", err)
	}

	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return "", fmt.Errorf("publish to %q: %w", b.channel, err)
	}
	return env.ID, nil
}

// Subscribe implements broker.Broker. lastEventID is accepted but ignored;
// pub/sub keeps no backlog.
func (b *Broker) Subscribe(ctx context.Context, lastEventID string) (broker.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, broker.ErrClosed
	}

	ps := b.client.Subscribe(ctx, b.channel)
	// Force the SUBSCRIBE round-trip so a dead Redis fails here, not on the
	// first Next call.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe to %q: %w", b.channel, err)
	}

	sub := &subscription{b: b, ps: ps}
	b.subs[sub] = struct{}{}
	return sub, nil
}

// Subscribers implements broker.Broker. The count covers subscriptions on
// every connected gateway instance, which is exactly what the publish
// fallback decision needs.
func (b *Broker) Subscribers(ctx context.Context) (int, error) {
	counts, err := b.client.PubSubNumSub(ctx, b.channel).Result()
	if err != nil {
		return 0, fmt.Errorf("pubsub numsub %q: %w", b.channel, err)
	}
	return int(counts[b.channel]), nil
}

// Close implements broker.Broker.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	for sub := range b.subs {
		_ = sub.ps.Close()
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
	b  *Broker
	ps *redis.PubSub

	closeOnce sync.Once
}

var _ broker.Subscription = (*subscription)(nil)

// Next implements broker.Subscription.
func (s *subscription) Next(ctx context.Context) (broker.Event, error) {
	msg, err := s.ps.ReceiveMessage(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return broker.Event{}, ctx.Err()
		}
		// The PubSub was closed underneath us.
		return broker.Event{}, io.EOF
	}

	var env envelope
	if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
		return broker.Event{}, fmt.Errorf("decode envelope: %w", err)
	}
	return broker.Event{ID: env.ID, Data: env.Data}, nil
}

// Close implements broker.Subscription.
func (s *subscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.b.remove(s)
		err = s.ps.Close()
	})
	return err
}
