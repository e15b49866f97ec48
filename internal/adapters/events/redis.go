package events

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"chat-automation/internal/domain"
	"chat-automation/internal/infra/metrics"
)

// RedisPublisher публикует события в канал Redis, чтобы их получили хабы всех экземпляров.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	log     zerolog.Logger
}

var _ domain.EventPublisher = (*RedisPublisher)(nil)

// NewRedisPublisher создаёт издателя для канала.
func NewRedisPublisher(client *redis.Client, channel string, log zerolog.Logger) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel, log: log}
}

// PublishBroadcastUpdate публикует событие прогресса.
func (p *RedisPublisher) PublishBroadcastUpdate(ctx context.Context, update domain.BroadcastUpdate) error {
	payload, err := encodeUpdate(update)
	if err != nil {
		return err
	}
	start := time.Now()
	err = p.client.Publish(ctx, p.channel, payload).Err()
	metrics.ObserveNetworkRequest("redis", "publish", p.channel, start, err)
	return err
}

// Subscribe пересылает события из канала в хаб до отмены контекста.
func (p *RedisPublisher) Subscribe(ctx context.Context, hub *Hub) {
	pubsub := p.client.Subscribe(ctx, p.channel)
	defer pubsub.Close()
	ch := pubsub.Channel()
	p.log.Info().Str("channel", p.channel).Msg("events: подписка на канал Redis")
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if err := hub.Relay(ctx, []byte(msg.Payload)); err != nil {
				return
			}
		}
	}
}
