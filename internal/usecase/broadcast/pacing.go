package broadcast

import (
	"context"
	"math/rand"
	"time"
)

// Options задают темп рассылки.
type Options struct {
	MinDelay    time.Duration
	MaxDelay    time.Duration
	BatchSize   int
	BatchDelay  time.Duration
	TypingDelay time.Duration
}

// DefaultOptions возвращает темп по умолчанию: 3-8 секунд между сообщениями, пауза 30 секунд после каждых 10.
func DefaultOptions() Options {
	return Options{
		MinDelay:    3 * time.Second,
		MaxDelay:    8 * time.Second,
		BatchSize:   10,
		BatchDelay:  30 * time.Second,
		TypingDelay: time.Second,
	}
}

func (o Options) normalize() Options {
	def := DefaultOptions()
	if o.BatchSize <= 0 {
		o.BatchSize = def.BatchSize
	}
	if o.MinDelay < 0 {
		o.MinDelay = 0
	}
	if o.MaxDelay < o.MinDelay {
		o.MaxDelay = o.MinDelay
	}
	if o.BatchDelay < 0 {
		o.BatchDelay = 0
	}
	if o.TypingDelay < 0 {
		o.TypingDelay = 0
	}
	return o
}

// nextDelay возвращает паузу после обработки получателя с позицией processed (считая с 1).
func (s *Service) nextDelay(processed int) time.Duration {
	if processed%s.opts.BatchSize == 0 {
		return s.opts.BatchDelay
	}
	return s.jitter(s.opts.MinDelay, s.opts.MaxDelay)
}

func uniformDelay(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)+1))
}

// sleepWake ждёт d, отмену контекста или сигнал wake. Возвращает ошибку только при отмене контекста.
func sleepWake(ctx context.Context, d time.Duration, wake <-chan struct{}) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-wake:
		return nil
	case <-timer.C:
		return nil
	}
}
