package repo

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"chat-automation/internal/domain"
)

func TestCollectionRewritesWholeDocument(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	schedules := NewSchedules(store, zerolog.Nop())

	for _, id := range []string{"a", "b", "c"} {
		if err := schedules.Put(ctx, domain.ScheduledMessage{ID: id, CreatedAt: time.Now()}); err != nil {
			t.Fatalf("не ожидали ошибку: %v", err)
		}
	}
	if err := schedules.Delete(ctx, "b"); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	raw, _ := store.Load(ctx, CollectionSchedules)
	var saved []domain.ScheduledMessage
	if err := json.Unmarshal(raw, &saved); err != nil {
		t.Fatalf("документ должен быть JSON-списком: %v", err)
	}
	if len(saved) != 2 || saved[0].ID != "a" || saved[1].ID != "c" {
		t.Fatalf("неожиданный документ: %+v", saved)
	}
}

func TestCollectionLoadRestoresOrder(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	first := NewRules(store, zerolog.Nop())
	_ = first.Put(ctx, domain.AutoReplyRule{ID: "r1", Name: "one"})
	_ = first.Put(ctx, domain.AutoReplyRule{ID: "r2", Name: "two"})
	_ = first.Put(ctx, domain.AutoReplyRule{ID: "r1", Name: "one-updated"})

	second := NewRules(store, zerolog.Nop())
	if err := second.Load(ctx); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	all := second.All()
	if len(all) != 2 || all[0].ID != "r1" || all[1].ID != "r2" {
		t.Fatalf("неожиданный порядок: %+v", all)
	}
	if rule, _ := second.Get("r1"); rule.Name != "one-updated" {
		t.Fatalf("ожидали обновлённую запись, получили %q", rule.Name)
	}
}

func TestCollectionKeepsMemoryOnFlushError(t *testing.T) {
	store := NewMemory()
	store.Fail = errors.New("disk full")
	broadcasts := NewBroadcasts(store, zerolog.Nop())

	err := broadcasts.Put(context.Background(), domain.Broadcast{ID: "b1"})
	if err == nil {
		t.Fatal("ожидали ошибку сохранения")
	}
	if _, ok := broadcasts.Get("b1"); !ok {
		t.Fatal("запись должна остаться в памяти")
	}
}

func TestCollectionLoadEmpty(t *testing.T) {
	broadcasts := NewBroadcasts(NewMemory(), zerolog.Nop())
	if err := broadcasts.Load(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(broadcasts.All()) != 0 {
		t.Fatal("ожидали пустую коллекцию")
	}
}
