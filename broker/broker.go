// Package broker defines the streaming delivery channel: a multi-producer,
// multi-consumer broadcast that decouples request computation from response
// delivery. Every published event reaches every active subscription; there is
// no per-subscriber addressing.
package broker

import (
	"context"
	"errors"
	"fmt"
)

// DefaultCapacity is the per-subscriber buffer depth used when no explicit
// capacity is configured.
const DefaultCapacity = 100

// ErrClosed is returned by operations on a broker that has been shut down.
var ErrClosed = errors.New("broker: closed")

// Broker is the broadcast channel shared by all streaming connections for the
// lifetime of a server.
//
// Publish never blocks on slow consumers. A subscriber that falls more than
// the configured capacity behind loses its oldest pending events and is told
// so via a *LagError from Subscription.Next; it is never silently fed an
// incomplete stream.
type Broker interface {
	// Publish broadcasts data to every active subscription and returns the
	// generated event ID.
	Publish(ctx context.Context, data []byte) (eventID string, err error)

	// Subscribe registers a new subscription. lastEventID is the identifier of
	// the last event the client saw before reconnecting; it is accepted for
	// protocol compatibility but no backlog is kept, so nothing is replayed.
	Subscribe(ctx context.Context, lastEventID string) (Subscription, error)

	// Subscribers reports the number of currently active subscriptions.
	Subscribers(ctx context.Context) (int, error)

	// Close tears down the broker and every active subscription.
	Close() error
}

// Subscription is one consumer's handle on the broadcast. It is destroyed by
// Close or by the broker shutting down.
type Subscription interface {
	// Next blocks until an event is available, the context is done, or the
	// subscription is closed (io.EOF). When the subscriber has lagged, Next
	// returns a *LagError once, then resumes delivering the surviving events.
	Next(ctx context.Context) (Event, error)

	// Close releases the subscription. Safe to call more than once.
	Close() error
}

// Event is one broadcast message plus its delivery identifier.
type Event struct {
	// ID uniquely identifies the event; it becomes the SSE event id.
	ID string
	// Data is the JSON-encoded payload.
	Data []byte
}

// LagError reports that a subscriber fell behind and events were dropped for
// it. Delivery continues after the error is observed.
type LagError struct {
	// Skipped is the number of events this subscriber missed.
	Skipped int64
}

func (e *LagError) Error() string {
	return fmt.Sprintf("broker: subscriber lagged, %d events skipped", e.Skipped)
}
