package channel

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisTransport publishes and subscribes over a single Redis pub/sub
// topic. go-redis's *redis.PubSub already reconnects the receive side
// automatically on a dropped connection, which satisfies the "reconnect
// automatic" requirement without any extra code here.
type RedisTransport struct {
	client redis.UniversalClient
	topic  string

	mu     sync.Mutex
	pubsub *redis.PubSub
	closed bool
	wg     sync.WaitGroup
}

// NewRedisTransport binds a transport to one topic on an already-pooled
// client. Construction of that client (and its pool) is out of scope here.
func NewRedisTransport(client redis.UniversalClient, topic string) *RedisTransport {
	return &RedisTransport{client: client, topic: topic}
}

func (t *RedisTransport) Publish(ctx context.Context, payload []byte) error {
	if err := t.client.Publish(ctx, t.topic, payload).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (t *RedisTransport) Subscribe(handler Handler) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pubsub != nil {
		return ErrAlreadySubscribed
	}
	t.pubsub = t.client.Subscribe(context.Background(), t.topic)
	ch := t.pubsub.Channel()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		for msg := range ch {
			handler([]byte(msg.Payload))
		}
	}()
	return nil
}

// Close unsubscribes and releases the dedicated pub/sub connection on every
// exit path: even if Unsubscribe errors, Close still closes the connection
// and waits for the receiver goroutine to drain, matching the teacher's
// Close().
func (t *RedisTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if t.pubsub == nil {
		return nil
	}
	if err := t.pubsub.Unsubscribe(context.Background()); err != nil {
		log.Err(err).Msg("channel: failed to unsubscribe cleanly")
	}
	err := t.pubsub.Close()
	t.wg.Wait()
	return err
}
