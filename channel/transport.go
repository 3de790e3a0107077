// Package channel implements the cache channel transport: publish/subscribe
// over one logical topic used solely to carry invalidation events.
package channel

import (
	"context"
	"errors"
)

// ErrUnavailable is returned by Publish when the transport cannot reach the
// broker. The manager must treat a publish failure as a local-only-mutation
// fallback, not a fatal error.
var ErrUnavailable = errors.New("channel: unavailable")

// ErrAlreadySubscribed is returned by Subscribe if called twice on the same
// Transport.
var ErrAlreadySubscribed = errors.New("channel: already subscribed")

// Handler receives a raw event payload as published by some node (possibly
// this one; self-suppression is the protocol layer's job, not the
// transport's).
type Handler func(payload []byte)

// Transport is the channel capability consumed by the cache manager.
// Delivery is at-least-once and unordered across senders, ordered per
// sender.
type Transport interface {
	// Publish sends payload to every subscriber, including other processes.
	// Returns ErrUnavailable (wrapped) if the broker is unreachable.
	Publish(ctx context.Context, payload []byte) error
	// Subscribe starts a dedicated receiver that invokes handler for every
	// message, including this process's own publishes. May be called at
	// most once.
	Subscribe(handler Handler) error
	// Close stops the receiver and releases the transport's connection.
	// Idempotent.
	Close() error
}
