package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"chat-automation/internal/domain"
	"chat-automation/internal/infra/metrics"
)

// Имена коллекций в хранилище.
const (
	CollectionSchedules  = "schedules"
	CollectionRules      = "rules"
	CollectionBroadcasts = "broadcasts"
)

// Collection держит записи в памяти и переписывает коллекцию целиком при каждом изменении.
// Память остаётся источником истины: ошибка сохранения возвращается вызывающему,
// но изменение не откатывается.
type Collection[T any] struct {
	name  string
	store domain.DocumentStore
	id    func(T) string
	log   zerolog.Logger

	mu    sync.RWMutex
	order []string
	items map[string]T
}

var _ domain.Records[domain.Broadcast] = (*Collection[domain.Broadcast])(nil)

// NewCollection создаёт пустую коллекцию. Перед использованием вызовите Load.
func NewCollection[T any](name string, store domain.DocumentStore, id func(T) string, log zerolog.Logger) *Collection[T] {
	return &Collection[T]{
		name:  name,
		store: store,
		id:    id,
		log:   log.With().Str("collection", name).Logger(),
		items: make(map[string]T),
	}
}

// NewSchedules создаёт коллекцию запланированных сообщений.
func NewSchedules(store domain.DocumentStore, log zerolog.Logger) *Collection[domain.ScheduledMessage] {
	return NewCollection(CollectionSchedules, store, func(m domain.ScheduledMessage) string { return m.ID }, log)
}

// NewRules создаёт коллекцию правил автоответа.
func NewRules(store domain.DocumentStore, log zerolog.Logger) *Collection[domain.AutoReplyRule] {
	return NewCollection(CollectionRules, store, func(r domain.AutoReplyRule) string { return r.ID }, log)
}

// NewBroadcasts создаёт коллекцию рассылок.
func NewBroadcasts(store domain.DocumentStore, log zerolog.Logger) *Collection[domain.Broadcast] {
	return NewCollection(CollectionBroadcasts, store, func(b domain.Broadcast) string { return b.ID }, log)
}

// Load читает коллекцию из хранилища, заменяя содержимое памяти.
func (c *Collection[T]) Load(ctx context.Context) error {
	payload, err := c.store.Load(ctx, c.name)
	if err != nil {
		return fmt.Errorf("загрузка %s: %w", c.name, err)
	}
	var records []T
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &records); err != nil {
			return fmt.Errorf("разбор %s: %w", c.name, err)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order = c.order[:0]
	c.items = make(map[string]T, len(records))
	for _, rec := range records {
		key := c.id(rec)
		if _, dup := c.items[key]; !dup {
			c.order = append(c.order, key)
		}
		c.items[key] = rec
	}
	c.log.Debug().Int("records", len(records)).Msg("repo: коллекция загружена")
	return nil
}

// All возвращает записи в порядке добавления.
func (c *Collection[T]) All() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]T, 0, len(c.order))
	for _, key := range c.order {
		out = append(out, c.items[key])
	}
	return out
}

// Get возвращает запись по идентификатору.
func (c *Collection[T]) Get(id string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.items[id]
	return rec, ok
}

// Put вставляет или заменяет запись и сохраняет коллекцию.
func (c *Collection[T]) Put(ctx context.Context, rec T) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := c.id(rec)
	if _, ok := c.items[key]; !ok {
		c.order = append(c.order, key)
	}
	c.items[key] = rec
	return c.flushLocked(ctx)
}

// Delete удаляет запись и сохраняет коллекцию. Отсутствующая запись не считается ошибкой.
func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[id]; !ok {
		return nil
	}
	delete(c.items, id)
	for i, key := range c.order {
		if key == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return c.flushLocked(ctx)
}

func (c *Collection[T]) flushLocked(ctx context.Context) error {
	records := make([]T, 0, len(c.order))
	for _, key := range c.order {
		records = append(records, c.items[key])
	}
	payload, err := json.Marshal(records)
	if err == nil {
		err = c.store.Save(ctx, c.name, payload)
	}
	if err != nil {
		metrics.PersistenceFlushErrors.WithLabelValues(c.name).Inc()
		return fmt.Errorf("сохранение %s: %w", c.name, err)
	}
	return nil
}
