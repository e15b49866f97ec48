package schedule

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/rs/zerolog"

	"chat-automation/internal/adapters/repo"
	"chat-automation/internal/domain"
)

type fakeSession struct {
	mu     sync.Mutex
	status string
	sent   []string
	notify chan string
}

func (f *fakeSession) ConnectionStatus() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeSession) SendText(_ context.Context, chatID, text string, _ time.Duration) (domain.SendResult, error) {
	f.mu.Lock()
	f.sent = append(f.sent, chatID+":"+text)
	notify := f.notify
	f.mu.Unlock()
	if notify != nil {
		notify <- chatID
	}
	return domain.SendResult{Success: true}, nil
}

func (f *fakeSession) SendImage(context.Context, string, string, string, time.Duration) (domain.SendResult, error) {
	return domain.SendResult{}, errors.New("not supported")
}

func (f *fakeSession) SendDocument(context.Context, string, string, string, string, time.Duration) (domain.SendResult, error) {
	return domain.SendResult{}, errors.New("not supported")
}

func (f *fakeSession) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeGateway struct {
	sessions map[string]*fakeSession
}

func (g fakeGateway) Session(_ context.Context, id string) (domain.Session, error) {
	s, ok := g.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return s, nil
}

var baseNow = time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, sess *fakeSession) (*Service, *repo.Collection[domain.ScheduledMessage]) {
	t.Helper()
	records := repo.NewSchedules(repo.NewMemory(), zerolog.Nop())
	svc := NewService(records, fakeGateway{sessions: map[string]*fakeSession{"s1": sess}}, "UTC", zerolog.Nop())
	svc.now = func() time.Time { return baseNow }
	return svc, records
}

func TestCreateRejectsPastOnce(t *testing.T) {
	svc, _ := newTestService(t, &fakeSession{status: domain.ConnectionConnected})
	_, err := svc.Create(context.Background(), CreateParams{
		SessionID:   "s1",
		ChatID:      "c1",
		Message:     "hi",
		ScheduledAt: baseNow.Add(-time.Minute).Format(time.RFC3339),
		Repeat:      domain.RepeatOnce,
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("ожидали ошибку валидации, получили %v", err)
	}
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newTestService(t, &fakeSession{status: domain.ConnectionConnected})
	future := baseNow.Add(time.Hour).Format(time.RFC3339)
	cases := map[string]CreateParams{
		"no session":   {ChatID: "c1", Message: "hi", ScheduledAt: future},
		"bad repeat":   {SessionID: "s1", ChatID: "c1", Message: "hi", ScheduledAt: future, Repeat: "yearly"},
		"bad timezone": {SessionID: "s1", ChatID: "c1", Message: "hi", ScheduledAt: future, Timezone: "Mars/Base"},
		"bad time":     {SessionID: "s1", ChatID: "c1", Message: "hi", ScheduledAt: "tomorrow"},
	}
	for name, p := range cases {
		if _, err := svc.Create(context.Background(), p); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("%s: ожидали ошибку валидации, получили %v", name, err)
		}
	}
}

func TestCreateDefaults(t *testing.T) {
	svc, _ := newTestService(t, &fakeSession{status: domain.ConnectionConnected})
	msg, err := svc.Create(context.Background(), CreateParams{
		SessionID:   "s1",
		ChatID:      "c1",
		Message:     "hi",
		ScheduledAt: "2026-10-20 10:00",
		Timezone:    "europe/moscow",
	})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if msg.TypingTime != DefaultTypingTime || msg.Repeat != domain.RepeatOnce || msg.Status != domain.ScheduleStatusPending || !msg.Enabled {
		t.Fatalf("неожиданные значения по умолчанию: %+v", msg)
	}
	if msg.Timezone != "Europe/Moscow" {
		t.Fatalf("ожидали Europe/Moscow, получили %s", msg.Timezone)
	}
	if want := time.Date(2026, 10, 20, 7, 0, 0, 0, time.UTC); !msg.ScheduledAt.Equal(want) {
		t.Fatalf("ожидали %s, получили %s", want, msg.ScheduledAt.UTC())
	}
	if !svc.hasTrigger(msg.ID) {
		t.Fatalf("ожидали установленный триггер")
	}
}

func TestExecuteOnceCompletes(t *testing.T) {
	sess := &fakeSession{status: domain.ConnectionConnected}
	svc, records := newTestService(t, sess)
	msg, err := svc.Create(context.Background(), CreateParams{
		SessionID:   "s1",
		ChatID:      "c1",
		Message:     "hi",
		ScheduledAt: baseNow.Add(time.Hour).Format(time.RFC3339),
	})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	svc.execute(context.Background(), msg.ID)
	got, _ := records.Get(msg.ID)
	if got.Status != domain.ScheduleStatusCompleted || got.Enabled || got.ExecutionCount != 1 || got.LastExecuted == nil {
		t.Fatalf("неожиданное состояние после отправки: %+v", got)
	}
	if svc.hasTrigger(msg.ID) {
		t.Fatalf("триггер должен быть снят")
	}

	svc.execute(context.Background(), msg.ID)
	if sess.sentCount() != 1 {
		t.Fatalf("ожидали одну отправку, получили %d", sess.sentCount())
	}

	if _, err := svc.Update(context.Background(), msg.ID, UpdateParams{}); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("ожидали конфликт, получили %v", err)
	}
	if _, err := svc.Toggle(context.Background(), msg.ID); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("ожидали конфликт, получили %v", err)
	}
}

func TestExecuteDisconnectedRecordsError(t *testing.T) {
	sess := &fakeSession{status: "disconnected"}
	svc, records := newTestService(t, sess)
	msg, err := svc.Create(context.Background(), CreateParams{
		SessionID:   "s1",
		ChatID:      "c1",
		Message:     "hi",
		ScheduledAt: baseNow.Add(time.Hour).Format(time.RFC3339),
		Repeat:      domain.RepeatDaily,
	})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	svc.execute(context.Background(), msg.ID)

	got, _ := records.Get(msg.ID)
	if got.LastError == "" {
		t.Fatalf("ожидали lastError")
	}
	if got.Status != domain.ScheduleStatusPending || got.ExecutionCount != 0 || !got.Enabled {
		t.Fatalf("статус не должен меняться: %+v", got)
	}
	if sess.sentCount() != 0 {
		t.Fatalf("не ожидали отправок")
	}
	if !svc.hasTrigger(msg.ID) {
		t.Fatalf("периодический триггер должен остаться")
	}
}

func TestExecuteDailyKeepsPending(t *testing.T) {
	sess := &fakeSession{status: domain.ConnectionConnected}
	svc, records := newTestService(t, sess)
	msg, err := svc.Create(context.Background(), CreateParams{
		SessionID:   "s1",
		ChatID:      "c1",
		Message:     "hi",
		ScheduledAt: baseNow.Add(-24 * time.Hour).Format(time.RFC3339),
		Repeat:      domain.RepeatDaily,
	})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	svc.execute(context.Background(), msg.ID)
	svc.execute(context.Background(), msg.ID)

	got, _ := records.Get(msg.ID)
	if got.ExecutionCount != 2 || got.Status != domain.ScheduleStatusPending || got.LastError != "" {
		t.Fatalf("неожиданное состояние: %+v", got)
	}
}

func TestToggleAndDelete(t *testing.T) {
	svc, records := newTestService(t, &fakeSession{status: domain.ConnectionConnected})
	msg, err := svc.Create(context.Background(), CreateParams{
		SessionID:   "s1",
		ChatID:      "c1",
		Message:     "hi",
		ScheduledAt: baseNow.Add(time.Hour).Format(time.RFC3339),
		Repeat:      domain.RepeatWeekly,
	})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	off, err := svc.Toggle(context.Background(), msg.ID)
	if err != nil || off.Enabled || svc.hasTrigger(msg.ID) {
		t.Fatalf("ожидали выключенную запись без триггера: %+v, %v", off, err)
	}
	on, err := svc.Toggle(context.Background(), msg.ID)
	if err != nil || !on.Enabled || !svc.hasTrigger(msg.ID) {
		t.Fatalf("ожидали включённую запись с триггером: %+v, %v", on, err)
	}
	if err := svc.Delete(context.Background(), msg.ID); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if _, ok := records.Get(msg.ID); ok || svc.hasTrigger(msg.ID) {
		t.Fatalf("запись и триггер должны быть удалены")
	}
	if err := svc.Delete(context.Background(), msg.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("ожидали not found, получили %v", err)
	}
}

func TestStartCatchesUpOverdueOnce(t *testing.T) {
	sess := &fakeSession{status: domain.ConnectionConnected, notify: make(chan string, 1)}
	svc, records := newTestService(t, sess)
	overdue := domain.ScheduledMessage{
		ID:          "overdue",
		SessionID:   "s1",
		ChatID:      "c1",
		Message:     "late",
		ScheduledAt: baseNow.Add(-time.Hour),
		Repeat:      domain.RepeatOnce,
		Timezone:    "UTC",
		Enabled:     true,
		Status:      domain.ScheduleStatusPending,
		CreatedAt:   baseNow.Add(-2 * time.Hour),
	}
	if err := records.Put(context.Background(), overdue); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop()

	select {
	case chat := <-sess.notify:
		if chat != "c1" {
			t.Fatalf("ожидали c1, получили %s", chat)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("просроченное сообщение не отправлено")
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got, _ := records.Get("overdue"); got.Status == domain.ScheduleStatusCompleted {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("ожидали статус completed")
}

func TestGetAllFiltersAndSorts(t *testing.T) {
	svc, records := newTestService(t, &fakeSession{})
	for i, status := range []domain.ScheduleStatus{domain.ScheduleStatusPending, domain.ScheduleStatusCompleted, domain.ScheduleStatusPending} {
		_ = records.Put(context.Background(), domain.ScheduledMessage{
			ID:        string(rune('a' + i)),
			SessionID: "s1",
			Status:    status,
			CreatedAt: baseNow.Add(time.Duration(i) * time.Minute),
		})
	}
	items, total := svc.GetAll(Filter{Status: domain.ScheduleStatusPending}, domain.Page{})
	if total != 2 || len(items) != 2 {
		t.Fatalf("ожидали 2 записи, получили %d/%d", len(items), total)
	}
	if items[0].ID != "c" || items[1].ID != "a" {
		t.Fatalf("ожидали сортировку по убыванию createdAt: %s, %s", items[0].ID, items[1].ID)
	}
}

func TestUpdateToOnceRequiresFutureTime(t *testing.T) {
	sess := &fakeSession{status: domain.ConnectionConnected}
	svc, records := newTestService(t, sess)
	msg, err := svc.Create(context.Background(), CreateParams{
		SessionID:   "s1",
		ChatID:      "c1",
		Message:     "hi",
		ScheduledAt: baseNow.Add(time.Hour).Format(time.RFC3339),
		Repeat:      domain.RepeatDaily,
	})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	svc.now = func() time.Time { return baseNow.Add(48 * time.Hour) }

	once := domain.RepeatOnce
	if _, err := svc.Update(context.Background(), msg.ID, UpdateParams{Repeat: &once}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("ожидали ошибку валидации при переводе в once с прошедшим временем, получили %v", err)
	}
	svc.catchUp.Wait()
	if sess.sentCount() != 0 {
		t.Fatalf("ожидали, что отправки не будет, получили %d", sess.sentCount())
	}
	stored, _ := records.Get(msg.ID)
	if stored.Repeat != domain.RepeatDaily || stored.Status != domain.ScheduleStatusPending {
		t.Fatalf("запись не должна была измениться: %+v", stored)
	}

	later := baseNow.Add(72 * time.Hour).Format(time.RFC3339)
	updated, err := svc.Update(context.Background(), msg.ID, UpdateParams{Repeat: &once, ScheduledAt: &later})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if updated.Repeat != domain.RepeatOnce || !svc.hasTrigger(msg.ID) {
		t.Fatalf("ожидали разовую запись с триггером: %+v", updated)
	}

	name := "renamed"
	if _, err := svc.Update(context.Background(), msg.ID, UpdateParams{Name: &name}); err != nil {
		t.Fatalf("изменение имени не должно проверять время: %v", err)
	}
}
