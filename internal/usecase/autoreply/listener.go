package autoreply

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"chat-automation/internal/domain"
)

const dedupeTTL = 24 * time.Hour

// Deduper выполняет fn не более одного раза для ключа в пределах ttl.
type Deduper interface {
	Once(ctx context.Context, key string, ttl time.Duration, fn func() error) error
}

// Listener читает входящие сообщения из очереди и передаёт их сервису.
type Listener struct {
	queue   domain.InboundQueue
	service *Service
	dedupe  Deduper
	log     zerolog.Logger
	backoff time.Duration
}

// NewListener создаёт обработчик очереди. dedupe может быть nil.
func NewListener(queue domain.InboundQueue, service *Service, dedupe Deduper, log zerolog.Logger) *Listener {
	return &Listener{queue: queue, service: service, dedupe: dedupe, log: log, backoff: time.Second}
}

// Run обрабатывает сообщения до отмены контекста.
func (l *Listener) Run(ctx context.Context) {
	for {
		env, ack, err := l.queue.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			l.log.Error().Err(err).Msg("inbound: ошибка чтения очереди")
			if sleepCtx(ctx, l.backoff) != nil {
				return
			}
			continue
		}

		msgLog := l.log.With().Str("session_id", env.SessionID).Str("message_id", env.Message.ID).Logger()
		if env.SessionID == "" {
			msgLog.Warn().Msg("inbound: сообщение без сессии, подтверждаем и пропускаем")
			l.ack(msgLog, ack, true)
			continue
		}

		// ответ с задержкой уходит в фоне, очередь не ждёт его
		handle := func() error {
			l.service.HandleInbound(ctx, env.SessionID, env.Message)
			return nil
		}
		if l.dedupe != nil && env.Message.ID != "" {
			if err := l.dedupe.Once(ctx, "inbound:"+env.SessionID+":"+env.Message.ID, dedupeTTL, handle); err != nil {
				msgLog.Warn().Err(err).Msg("inbound: не удалось проверить повтор, обрабатываем сообщение")
				_ = handle()
			}
		} else {
			_ = handle()
		}
		l.ack(msgLog, ack, true)
	}
}

func (l *Listener) ack(log zerolog.Logger, ack domain.InboundAckFunc, success bool) {
	if ack == nil {
		return
	}
	if err := ack(success); err != nil {
		log.Error().Err(err).Bool("success", success).Msg("inbound: не удалось подтвердить сообщение")
	}
}
