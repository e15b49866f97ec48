package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"chat-automation/internal/domain"
)

// RedisInbound читает входящие сообщения из Redis list.
// Производитель кладёт записи через LPUSH, потребитель забирает BRPOP.
type RedisInbound struct {
	client *redis.Client
	key    string
}

var _ domain.InboundQueue = (*RedisInbound)(nil)

// NewRedisInbound создаёт очередь по указанному ключу.
func NewRedisInbound(client *redis.Client, key string) *RedisInbound {
	return &RedisInbound{client: client, key: key}
}

// Receive блокирующе читает сообщение. При неуспешном ack запись возвращается в хвост очереди.
func (q *RedisInbound) Receive(ctx context.Context) (domain.InboundEnvelope, domain.InboundAckFunc, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.InboundEnvelope{}, nil, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.InboundEnvelope{}, nil, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.InboundEnvelope{}, nil, err
		}
		if len(res) != 2 {
			return domain.InboundEnvelope{}, nil, errors.New("redis queue: unexpected response")
		}
		env, err := decodeEnvelope([]byte(res[1]))
		if err != nil {
			return domain.InboundEnvelope{}, nil, err
		}
		return env, q.requeueOnFailure(res[1]), nil
	}
}

func (q *RedisInbound) requeueOnFailure(payload string) domain.InboundAckFunc {
	return func(success bool) error {
		if success {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := q.client.RPush(ctx, q.key, payload).Err(); err != nil {
			return fmt.Errorf("requeue inbound: %w", err)
		}
		return nil
	}
}
