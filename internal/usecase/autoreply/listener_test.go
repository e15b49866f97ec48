package autoreply

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"chat-automation/internal/domain"
)

type fakeQueue struct {
	items  []domain.InboundEnvelope
	acks   []bool
	cancel context.CancelFunc
}

func (q *fakeQueue) Receive(ctx context.Context) (domain.InboundEnvelope, domain.InboundAckFunc, error) {
	if len(q.items) == 0 {
		q.cancel()
		<-ctx.Done()
		return domain.InboundEnvelope{}, nil, ctx.Err()
	}
	env := q.items[0]
	q.items = q.items[1:]
	return env, func(success bool) error {
		q.acks = append(q.acks, success)
		return nil
	}, nil
}

type seenDeduper struct{ seen map[string]bool }

func (d *seenDeduper) Once(_ context.Context, key string, _ time.Duration, fn func() error) error {
	if d.seen[key] {
		return nil
	}
	d.seen[key] = true
	return fn()
}

func TestListenerProcessesAndDedupes(t *testing.T) {
	sess := &fakeSession{status: domain.ConnectionConnected}
	svc, _ := newTestService(t, sess)
	mustCreate(t, svc, CreateParams{Name: "all", Trigger: domain.RuleTrigger{Type: domain.TriggerAll}, Action: domain.RuleAction{Message: "pong"}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	msg := inbound("ping")
	queue := &fakeQueue{
		items: []domain.InboundEnvelope{
			{SessionID: "s1", Message: msg},
			{SessionID: "s1", Message: msg},
			{Message: msg},
		},
		cancel: cancel,
	}
	NewListener(queue, svc, &seenDeduper{seen: map[string]bool{}}, zerolog.Nop()).Run(ctx)
	svc.Wait()

	if got := len(sess.messages()); got != 1 {
		t.Fatalf("ожидали один ответ, получили %d", got)
	}
	if len(queue.acks) != 3 {
		t.Fatalf("ожидали три подтверждения, получили %d", len(queue.acks))
	}
	for i, ok := range queue.acks {
		if !ok {
			t.Fatalf("подтверждение %d должно быть успешным", i)
		}
	}
}

func TestListenerStopsOnCancel(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	queue := &fakeQueue{cancel: cancel}
	done := make(chan struct{})
	go func() {
		NewListener(queue, svc, nil, zerolog.Nop()).Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("обработчик не остановился")
	}
	if !errors.Is(ctx.Err(), context.Canceled) {
		t.Fatalf("ожидали отменённый контекст")
	}
}
