package schedule

import (
	"context"

	"chat-automation/internal/domain"
	"chat-automation/internal/infra/metrics"
)

// execute отправляет сообщение по срабатыванию триггера.
// Запись перечитывается под блокировкой: выключенная или завершённая запись не отправляется.
func (s *Service) execute(ctx context.Context, id string) {
	unlock := s.locks.Lock(id)
	defer unlock()

	msg, ok := s.repo.Get(id)
	if !ok || !msg.Enabled || msg.Status == domain.ScheduleStatusCompleted {
		return
	}
	logger := s.log.With().Str("schedule_id", id).Str("session_id", msg.SessionID).Logger()

	sendErr := s.send(ctx, msg)
	now := s.now()
	msg.UpdatedAt = &now
	metrics.ScheduleExecutions.WithLabelValues(string(msg.Repeat), metrics.Result(sendErr)).Inc()
	if sendErr != nil {
		msg.LastError = sendErr.Error()
		s.persist(ctx, msg)
		logger.Warn().Err(sendErr).Msg("scheduler: отправка не удалась")
		return
	}

	msg.ExecutionCount++
	msg.LastExecuted = &now
	msg.LastError = ""
	if msg.Repeat == domain.RepeatOnce {
		msg.Status = domain.ScheduleStatusCompleted
		msg.Enabled = false
		s.removeTrigger(id)
	}
	s.persist(ctx, msg)
	logger.Info().Int("executions", msg.ExecutionCount).Msg("scheduler: сообщение отправлено")
}

func (s *Service) send(ctx context.Context, msg domain.ScheduledMessage) error {
	sess, err := s.sessions.Session(ctx, msg.SessionID)
	if err != nil || !domain.Connected(sess) {
		return domain.Transportf("session %s is not connected", msg.SessionID)
	}
	res, err := sess.SendText(ctx, msg.ChatID, msg.Message, msg.TypingDelay())
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
