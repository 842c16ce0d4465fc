package notify

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds redis backend parameters.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// RedisBackend publishes event payloads to a Redis pub/sub channel.
type RedisBackend struct {
	client  *redis.Client
	channel string
}

// NewRedisBackend creates a RedisBackend with the given config.
func NewRedisBackend(cfg RedisConfig) *RedisBackend {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	channel := cfg.Channel
	if channel == "" {
		channel = "bucketd:events"
	}
	return &RedisBackend{client: client, channel: channel}
}

func (b *RedisBackend) Name() string { return "redis" }

func (b *RedisBackend) Publish(ctx context.Context, payload []byte) error {
	return b.client.Publish(ctx, b.channel, payload).Err()
}

func (b *RedisBackend) Close() error {
	return b.client.Close()
}
