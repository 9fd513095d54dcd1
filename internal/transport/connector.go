package transport

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Message is one raw frame received from a channel.
type Message struct {
	Channel string
	Payload string
}

// PubSubConn is one live subscription connection. Implementations must allow
// Subscribe/Unsubscribe concurrently with a blocked ReceiveMessage.
type PubSubConn interface {
	// ReceiveMessage blocks until the next message arrives or the
	// connection breaks.
	ReceiveMessage(ctx context.Context) (Message, error)
	// Subscribe adds channels to the live subscription.
	Subscribe(ctx context.Context, channels ...string) error
	// Unsubscribe removes channels from the live subscription.
	Unsubscribe(ctx context.Context, channels ...string) error
	// Close tears the connection down.
	Close() error
}

// Connector establishes subscription connections. The production
// implementation wraps a Redis client; tests inject failing fakes to exercise
// the reconnect policy.
type Connector interface {
	Connect(ctx context.Context, channels []string) (PubSubConn, error)
}

// redisPubSub adapts *redis.PubSub to PubSubConn.
type redisPubSub struct {
	ps *redis.PubSub
}

func (r *redisPubSub) ReceiveMessage(ctx context.Context) (Message, error) {
	msg, err := r.ps.ReceiveMessage(ctx)
	if err != nil {
		return Message{}, err
	}
	return Message{Channel: msg.Channel, Payload: msg.Payload}, nil
}

func (r *redisPubSub) Subscribe(ctx context.Context, channels ...string) error {
	return r.ps.Subscribe(ctx, channels...)
}

func (r *redisPubSub) Unsubscribe(ctx context.Context, channels ...string) error {
	return r.ps.Unsubscribe(ctx, channels...)
}

func (r *redisPubSub) Close() error {
	return r.ps.Close()
}

// RedisConnector connects over an existing Redis client.
type RedisConnector struct {
	client redis.UniversalClient
}

// NewRedisConnector creates a Connector backed by the given Redis client.
func NewRedisConnector(client redis.UniversalClient) *RedisConnector {
	return &RedisConnector{client: client}
}

// Connect opens a Pub/Sub subscription for the given channels and verifies
// it is live before returning.
func (c *RedisConnector) Connect(ctx context.Context, channels []string) (PubSubConn, error) {
	ps := c.client.Subscribe(ctx, channels...)

	// Receive the subscription confirmation so a dead server surfaces here
	// rather than on the first ReceiveMessage.
	if len(channels) > 0 {
		if _, err := ps.Receive(ctx); err != nil {
			_ = ps.Close()
			return nil, err
		}
	}

	return &redisPubSub{ps: ps}, nil
}
