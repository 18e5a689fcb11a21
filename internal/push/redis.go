package push

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"ordersync/internal/config"
	"ordersync/internal/order"
)

// RedisSource streams notifications from redis pub/sub
type RedisSource struct {
	client *redis.Client
	prefix string
}

// NewRedisSource creates a redis source
func NewRedisSource(cfg config.RedisConfig) *RedisSource {
	prefix := cfg.ChannelPrefix
	if prefix == "" {
		prefix = "orders"
	}
	return &RedisSource{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		prefix: prefix,
	}
}

// Channels returns the pub/sub channels an actor listens on: the role-wide
// broadcast and the actor's own channel.
func Channels(prefix string, actor order.Actor) []string {
	role := prefix + ":" + string(actor.Role)
	return []string{role, role + ":" + actor.ID}
}

// Name identifies the transport
func (s *RedisSource) Name() string {
	return config.TransportRedis
}

// Stream subscribes and relays messages until the connection fails
func (s *RedisSource) Stream(ctx context.Context, actor order.Actor, h Handler) error {
	pubsub := s.client.Subscribe(ctx, Channels(s.prefix, actor)...)
	defer pubsub.Close()

	// a blocked receive does not watch ctx; closing the subscription ends it
	stop := context.AfterFunc(ctx, func() { pubsub.Close() })
	defer stop()

	// wait for the subscription confirmation
	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("redis subscribe: %w", err)
	}

	h.subscribed()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("redis receive: %w", err)
		}
		h.message([]byte(msg.Payload))
	}
}

// Close releases the redis connection pool
func (s *RedisSource) Close() error {
	return s.client.Close()
}
