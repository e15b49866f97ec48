package broadcast

import (
	"context"
	"mime"
	"net/url"
	"path"
	"time"

	"chat-automation/internal/domain"
	"chat-automation/internal/infra/metrics"
)

const defaultMimeType = "application/octet-stream"

// run выполняет последовательный цикл одной рассылки. Пауза и отмена читаются в каждой точке пробуждения.
func (s *Service) run(ctx context.Context, id string, w *worker) {
	defer s.wg.Done()
	defer metrics.BroadcastRunning.Dec()

	logger := s.log.With().Str("broadcast_id", id).Logger()
	logger.Debug().Msg("broadcast: цикл запущен")
	if wait := s.remainingDelay(id); wait > 0 {
		logger.Debug().Dur("wait", wait).Msg("broadcast: дожидаемся паузы, прерванной остановкой")
		if err := s.sleep(ctx, wait, w.wake); err != nil {
			unlock := s.locks.Lock(id)
			s.detachLocked(id, w)
			unlock()
			return
		}
	}
	for {
		delay, more := s.step(ctx, id, w)
		if !more {
			logger.Debug().Msg("broadcast: цикл остановлен")
			return
		}
		if err := s.sleep(ctx, delay, w.wake); err != nil {
			unlock := s.locks.Lock(id)
			s.detachLocked(id, w)
			unlock()
			logger.Debug().Msg("broadcast: цикл прерван остановкой сервиса")
			return
		}
	}
}

// step обрабатывает одного получателя с позиции currentIndex.
// Возвращает паузу до следующего шага и признак продолжения.
func (s *Service) step(ctx context.Context, id string, w *worker) (delay time.Duration, more bool) {
	unlock := s.locks.Lock(id)
	b, ok := s.repo.Get(id)
	if ctx.Err() != nil || !ok || b.Status != domain.BroadcastRunning {
		s.detachLocked(id, w)
		unlock()
		return 0, false
	}
	b = b.Clone()

	if b.CurrentIndex >= len(b.Recipients) {
		now := s.now()
		b.Status = domain.BroadcastCompleted
		b.CompletedAt = &now
		s.persist(ctx, b)
		s.detachLocked(id, w)
		s.forgetPacing(id)
		unlock()
		s.publish(b)
		s.log.Info().Str("broadcast_id", id).Int("sent", b.Stats.Sent).Int("failed", b.Stats.Failed).Msg("broadcast: рассылка завершена")
		return 0, false
	}

	idx := b.CurrentIndex
	if b.Recipients[idx].Status != domain.RecipientPending {
		b.CurrentIndex++
		s.persist(ctx, b)
		unlock()
		return 0, true
	}
	unlock()

	sendErr := s.deliver(ctx, b, b.Recipients[idx].ChatID)
	unlock = s.locks.Lock(id)
	if sendErr != nil && ctx.Err() != nil {
		// остановка сервиса: получатель остаётся pending до Resume
		s.detachLocked(id, w)
		unlock()
		return 0, false
	}
	metrics.BroadcastMessages.WithLabelValues(metrics.Result(sendErr)).Inc()

	b, ok = s.repo.Get(id)
	if !ok {
		s.detachLocked(id, w)
		unlock()
		return 0, false
	}
	b = b.Clone()
	if b.CurrentIndex == idx && b.Recipients[idx].Status == domain.RecipientPending {
		now := s.now()
		rec := &b.Recipients[idx]
		if sendErr != nil {
			rec.Status = domain.RecipientFailed
			rec.Error = sendErr.Error()
			b.Stats.Failed++
		} else {
			rec.Status = domain.RecipientSent
			rec.SentAt = &now
			b.Stats.Sent++
		}
		b.Stats.Pending--
		b.CurrentIndex++
		s.persist(ctx, b)
	}
	unlock()

	if sendErr != nil {
		s.log.Warn().Err(sendErr).Str("broadcast_id", id).Int("index", idx).Msg("broadcast: получатель не доставлен")
	}
	s.publish(b)
	delay = s.nextDelay(idx + 1)
	s.holdUntil(id, delay)
	return delay, true
}

func (s *Service) deliver(ctx context.Context, b domain.Broadcast, chatID string) error {
	sess, err := s.sessions.Session(ctx, b.SessionID)
	if err != nil || !domain.Connected(sess) {
		return domain.Transportf("session %s is not connected", b.SessionID)
	}
	var res domain.SendResult
	switch b.MediaType {
	case domain.MediaImage:
		caption := b.Caption
		if caption == "" {
			caption = b.Message
		}
		res, err = sess.SendImage(ctx, chatID, b.MediaURL, caption, s.opts.TypingDelay)
	case domain.MediaDocument:
		filename := documentName(b.MediaURL)
		mimetype := mime.TypeByExtension(path.Ext(filename))
		if mimetype == "" {
			mimetype = defaultMimeType
		}
		res, err = sess.SendDocument(ctx, chatID, b.MediaURL, filename, mimetype, s.opts.TypingDelay)
	default:
		res, err = sess.SendText(ctx, chatID, b.Message, s.opts.TypingDelay)
	}
	if err != nil {
		return domain.Transportf("send failed: %v", err)
	}
	if !res.Success {
		reason := res.Message
		if reason == "" {
			reason = "send failed"
		}
		return domain.Transportf("%s", reason)
	}
	return nil
}

// documentName берёт имя файла из пути ссылки.
func documentName(raw string) string {
	p := raw
	if u, err := url.Parse(raw); err == nil {
		p = u.Path
	}
	name := path.Base(p)
	if name == "" || name == "." || name == "/" {
		return "document"
	}
	return name
}
