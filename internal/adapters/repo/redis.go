package repo

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"chat-automation/internal/domain"
	"chat-automation/internal/infra/metrics"
)

// Redis хранит каждую коллекцию под отдельным ключом.
type Redis struct {
	client *redis.Client
	prefix string
}

var _ domain.DocumentStore = (*Redis)(nil)

// NewRedis создаёт хранилище с префиксом ключей.
func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

// Load читает документ коллекции.
func (r *Redis) Load(ctx context.Context, collection string) ([]byte, error) {
	start := time.Now()
	data, err := r.client.Get(ctx, r.prefix+collection).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.ObserveNetworkRequest("redis", "get", collection, start, nil)
		return nil, nil
	}
	metrics.ObserveNetworkRequest("redis", "get", collection, start, err)
	return data, err
}

// Save переписывает документ коллекции.
func (r *Redis) Save(ctx context.Context, collection string, payload []byte) error {
	start := time.Now()
	err := r.client.Set(ctx, r.prefix+collection, payload, 0).Err()
	metrics.ObserveNetworkRequest("redis", "set", collection, start, err)
	return err
}
