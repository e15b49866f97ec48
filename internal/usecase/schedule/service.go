package schedule

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"chat-automation/internal/domain"
	"chat-automation/internal/infra/keylock"
)

// DefaultTypingTime задаёт имитацию набора в мс, если typingTime не указан.
const DefaultTypingTime = 2000

// CreateParams содержит данные нового запланированного сообщения.
type CreateParams struct {
	Name        string        `json:"name"`
	SessionID   string        `json:"sessionId"`
	ChatID      string        `json:"chatId"`
	Message     string        `json:"message"`
	ScheduledAt string        `json:"scheduledAt"`
	Repeat      domain.Repeat `json:"repeat"`
	TypingTime  *int          `json:"typingTime"`
	Timezone    string        `json:"timezone"`
}

// UpdateParams описывает частичное изменение. nil означает «не менять».
type UpdateParams struct {
	Name        *string        `json:"name"`
	SessionID   *string        `json:"sessionId"`
	ChatID      *string        `json:"chatId"`
	Message     *string        `json:"message"`
	ScheduledAt *string        `json:"scheduledAt"`
	Repeat      *domain.Repeat `json:"repeat"`
	TypingTime  *int           `json:"typingTime"`
	Timezone    *string        `json:"timezone"`
	Enabled     *bool          `json:"enabled"`
}

// Filter ограничивает выборку списка.
type Filter struct {
	SessionID string
	Status    domain.ScheduleStatus
}

// Service управляет запланированными сообщениями и их триггерами.
type Service struct {
	repo      domain.Records[domain.ScheduledMessage]
	sessions  domain.SessionGateway
	log       zerolog.Logger
	defaultTZ string
	now       func() time.Time

	cron    *cron.Cron
	baseCtx context.Context
	locks   keylock.Map

	mu      sync.Mutex
	entries map[string]cron.EntryID
	catchUp sync.WaitGroup
}

// NewService создаёт планировщик. defaultTZ используется, если timezone не указан.
func NewService(repo domain.Records[domain.ScheduledMessage], sessions domain.SessionGateway, defaultTZ string, log zerolog.Logger) *Service {
	if strings.TrimSpace(defaultTZ) == "" {
		defaultTZ = "UTC"
	}
	clog := cronLogger{log: log}
	return &Service{
		repo:      repo,
		sessions:  sessions,
		log:       log,
		defaultTZ: defaultTZ,
		now:       time.Now,
		cron:      cron.New(cron.WithLogger(clog), cron.WithChain(cron.Recover(clog))),
		baseCtx:   context.Background(),
		entries:   make(map[string]cron.EntryID),
	}
}

// Start восстанавливает триггеры включённых незавершённых записей и запускает планировщик.
// Просроченные разовые записи отправляются сразу.
func (s *Service) Start(ctx context.Context) {
	s.baseCtx = ctx
	restored := 0
	for _, msg := range s.repo.All() {
		if !msg.Enabled || msg.Status == domain.ScheduleStatusCompleted {
			continue
		}
		if err := s.install(msg); err != nil {
			s.log.Warn().Err(err).Str("schedule_id", msg.ID).Msg("scheduler: не удалось восстановить триггер")
			continue
		}
		restored++
	}
	s.cron.Start()
	s.log.Info().Int("restored", restored).Msg("scheduler: запущен")
}

// Stop останавливает планировщик и ждёт завершения выполняющихся отправок.
func (s *Service) Stop() {
	<-s.cron.Stop().Done()
	s.catchUp.Wait()
	s.log.Info().Msg("scheduler: остановлен")
}

// Create проверяет данные, сохраняет запись и ставит триггер.
func (s *Service) Create(ctx context.Context, p CreateParams) (domain.ScheduledMessage, error) {
	if strings.TrimSpace(p.SessionID) == "" || strings.TrimSpace(p.ChatID) == "" ||
		strings.TrimSpace(p.Message) == "" || strings.TrimSpace(p.ScheduledAt) == "" {
		return domain.ScheduledMessage{}, domain.Validationf("sessionId, chatId, message and scheduledAt are required")
	}
	repeat := p.Repeat
	if repeat == "" {
		repeat = domain.RepeatOnce
	}
	if !repeat.Valid() {
		return domain.ScheduledMessage{}, domain.Validationf("repeat must be one of once, daily, weekly, monthly")
	}
	tzRaw := p.Timezone
	if strings.TrimSpace(tzRaw) == "" {
		tzRaw = s.defaultTZ
	}
	tz, loc, err := resolveLocation(tzRaw)
	if err != nil {
		return domain.ScheduledMessage{}, domain.Validationf("invalid timezone %q", tzRaw)
	}
	at, err := parseScheduledAt(p.ScheduledAt, loc)
	if err != nil {
		return domain.ScheduledMessage{}, domain.Validationf("invalid scheduledAt %q", p.ScheduledAt)
	}
	now := s.now()
	if repeat == domain.RepeatOnce && !at.After(now) {
		return domain.ScheduledMessage{}, domain.Validationf("scheduledAt must be in the future")
	}
	typing := DefaultTypingTime
	if p.TypingTime != nil {
		if *p.TypingTime < 0 {
			return domain.ScheduledMessage{}, domain.Validationf("typingTime must not be negative")
		}
		typing = *p.TypingTime
	}

	msg := domain.ScheduledMessage{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(p.Name),
		SessionID:   strings.TrimSpace(p.SessionID),
		ChatID:      strings.TrimSpace(p.ChatID),
		Message:     p.Message,
		ScheduledAt: at,
		Repeat:      repeat,
		TypingTime:  typing,
		Timezone:    tz,
		Enabled:     true,
		Status:      domain.ScheduleStatusPending,
		CreatedAt:   now,
	}
	if msg.Name == "" {
		msg.Name = "Scheduled message"
	}

	unlock := s.locks.Lock(msg.ID)
	defer unlock()
	if err := s.install(msg); err != nil {
		return domain.ScheduledMessage{}, err
	}
	s.persist(ctx, msg)
	s.log.Info().Str("schedule_id", msg.ID).Str("repeat", string(repeat)).Time("scheduled_at", at).Msg("scheduler: сообщение запланировано")
	return msg, nil
}

// Get возвращает запись по идентификатору.
func (s *Service) Get(id string) (domain.ScheduledMessage, error) {
	msg, ok := s.repo.Get(id)
	if !ok {
		return domain.ScheduledMessage{}, domain.NotFoundf("scheduled message %s not found", id)
	}
	return msg, nil
}

// GetAll возвращает записи по фильтру, новые первыми, и общее число подходящих.
func (s *Service) GetAll(f Filter, page domain.Page) ([]domain.ScheduledMessage, int) {
	var out []domain.ScheduledMessage
	for _, msg := range s.repo.All() {
		if f.SessionID != "" && msg.SessionID != f.SessionID {
			continue
		}
		if f.Status != "" && msg.Status != f.Status {
			continue
		}
		out = append(out, msg)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return domain.Paginate(out, page), len(out)
}

// Update меняет запись и переустанавливает триггер. Завершённые записи не меняются.
func (s *Service) Update(ctx context.Context, id string, p UpdateParams) (domain.ScheduledMessage, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	msg, ok := s.repo.Get(id)
	if !ok {
		return domain.ScheduledMessage{}, domain.NotFoundf("scheduled message %s not found", id)
	}
	if msg.Status == domain.ScheduleStatusCompleted {
		return domain.ScheduledMessage{}, domain.Conflictf("scheduled message %s is already completed", id)
	}

	if p.Name != nil {
		msg.Name = strings.TrimSpace(*p.Name)
	}
	for _, field := range []struct {
		val  *string
		dst  *string
		name string
	}{
		{p.SessionID, &msg.SessionID, "sessionId"},
		{p.ChatID, &msg.ChatID, "chatId"},
		{p.Message, &msg.Message, "message"},
	} {
		if field.val == nil {
			continue
		}
		if strings.TrimSpace(*field.val) == "" {
			return domain.ScheduledMessage{}, domain.Validationf("%s must not be empty", field.name)
		}
		*field.dst = *field.val
	}
	if p.Repeat != nil {
		if !p.Repeat.Valid() {
			return domain.ScheduledMessage{}, domain.Validationf("repeat must be one of once, daily, weekly, monthly")
		}
		msg.Repeat = *p.Repeat
	}
	if p.TypingTime != nil {
		if *p.TypingTime < 0 {
			return domain.ScheduledMessage{}, domain.Validationf("typingTime must not be negative")
		}
		msg.TypingTime = *p.TypingTime
	}
	if p.Timezone != nil {
		tz, _, err := resolveLocation(*p.Timezone)
		if err != nil {
			return domain.ScheduledMessage{}, domain.Validationf("invalid timezone %q", *p.Timezone)
		}
		msg.Timezone = tz
	}
	now := s.now()
	if p.ScheduledAt != nil {
		_, loc, err := resolveLocation(msg.Timezone)
		if err != nil {
			return domain.ScheduledMessage{}, domain.Validationf("invalid timezone %q", msg.Timezone)
		}
		at, err := parseScheduledAt(*p.ScheduledAt, loc)
		if err != nil {
			return domain.ScheduledMessage{}, domain.Validationf("invalid scheduledAt %q", *p.ScheduledAt)
		}
		msg.ScheduledAt = at
	}
	// разовая запись с прошедшим временем сработала бы сразу через догоняющую отправку
	if (p.Repeat != nil || p.ScheduledAt != nil) && msg.Repeat == domain.RepeatOnce && !msg.ScheduledAt.After(now) {
		return domain.ScheduledMessage{}, domain.Validationf("scheduledAt must be in the future")
	}
	if p.Enabled != nil {
		msg.Enabled = *p.Enabled
	}
	msg.UpdatedAt = &now

	if err := s.install(msg); err != nil {
		return domain.ScheduledMessage{}, err
	}
	s.persist(ctx, msg)
	return msg, nil
}

// Delete снимает триггер и удаляет запись.
func (s *Service) Delete(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	if _, ok := s.repo.Get(id); !ok {
		return domain.NotFoundf("scheduled message %s not found", id)
	}
	s.removeTrigger(id)
	if err := s.repo.Delete(ctx, id); err != nil {
		s.log.Error().Err(err).Str("schedule_id", id).Msg("scheduler: удаление не сохранено, состояние в памяти актуально")
	}
	return nil
}

// Toggle включает или выключает запись. Завершённую запись включить нельзя.
func (s *Service) Toggle(ctx context.Context, id string) (domain.ScheduledMessage, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	msg, ok := s.repo.Get(id)
	if !ok {
		return domain.ScheduledMessage{}, domain.NotFoundf("scheduled message %s not found", id)
	}
	if msg.Status == domain.ScheduleStatusCompleted {
		return domain.ScheduledMessage{}, domain.Conflictf("scheduled message %s is already completed", id)
	}
	now := s.now()
	msg.Enabled = !msg.Enabled
	msg.UpdatedAt = &now
	if err := s.install(msg); err != nil {
		return domain.ScheduledMessage{}, err
	}
	s.persist(ctx, msg)
	return msg, nil
}

// install ставит триггер для включённой незавершённой записи и снимает его в остальных случаях.
// Вызывается под блокировкой записи.
func (s *Service) install(msg domain.ScheduledMessage) error {
	s.removeTrigger(msg.ID)
	if !msg.Enabled || msg.Status == domain.ScheduleStatusCompleted {
		return nil
	}
	_, loc, err := resolveLocation(msg.Timezone)
	if err != nil {
		return domain.Validationf("invalid timezone %q", msg.Timezone)
	}
	trigger, err := DeriveTrigger(msg.ScheduledAt, msg.Repeat, loc)
	if err != nil {
		return err
	}
	id := msg.ID
	if msg.Repeat == domain.RepeatOnce && !msg.ScheduledAt.After(s.now()) {
		s.log.Info().Str("schedule_id", id).Msg("scheduler: разовое сообщение просрочено, отправляем сразу")
		s.catchUp.Add(1)
		go func() {
			defer s.catchUp.Done()
			s.execute(s.baseCtx, id)
		}()
		return nil
	}
	entryID := s.cron.Schedule(trigger.Schedule, cron.FuncJob(func() { s.execute(s.baseCtx, id) }))
	s.mu.Lock()
	s.entries[id] = entryID
	s.mu.Unlock()
	s.log.Debug().Str("schedule_id", id).Str("trigger", trigger.Expr).Msg("scheduler: триггер установлен")
	return nil
}

func (s *Service) removeTrigger(id string) {
	s.mu.Lock()
	entryID, ok := s.entries[id]
	delete(s.entries, id)
	s.mu.Unlock()
	if ok {
		s.cron.Remove(entryID)
	}
}

func (s *Service) hasTrigger(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[id]
	return ok
}

func (s *Service) persist(ctx context.Context, msg domain.ScheduledMessage) {
	if err := s.repo.Put(ctx, msg); err != nil {
		s.log.Error().Err(err).Str("schedule_id", msg.ID).Msg("scheduler: запись не сохранена, состояние в памяти актуально")
	}
}
