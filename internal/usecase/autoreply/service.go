package autoreply

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"chat-automation/internal/domain"
	"chat-automation/internal/infra/keylock"
	"chat-automation/internal/infra/metrics"
)

// Service сопоставляет входящие сообщения с правилами и управляет правилами.
type Service struct {
	repo     domain.Records[domain.AutoReplyRule]
	sessions domain.SessionGateway
	log      zerolog.Logger
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error

	locks keylock.Map
	regex regexCache

	// ответы с задержкой живут дольше запроса и останавливаются вместе с сервисом
	ctx     context.Context
	cancel  context.CancelFunc
	replies sync.WaitGroup
}

// NewService создаёт сервис автоответов.
func NewService(repo domain.Records[domain.AutoReplyRule], sessions domain.SessionGateway, log zerolog.Logger) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		repo:     repo,
		sessions: sessions,
		log:      log,
		now:      time.Now,
		sleep:    sleepCtx,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Stop отменяет ожидающие ответы и ждёт завершения отправок.
func (s *Service) Stop() {
	s.cancel()
	s.replies.Wait()
}

// Wait ждёт отправки всех запланированных ответов.
func (s *Service) Wait() {
	s.replies.Wait()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ProcessMessage возвращает действие первого подходящего правила или nil.
// Правила перебираются по убыванию приоритета; при совпадении обновляются matchCount и lastMatchedAt.
func (s *Service) ProcessMessage(ctx context.Context, sessionID string, msg domain.InboundMessage) *domain.ReplyAction {
	if msg.FromMe || msg.StatusBroadcast() {
		return nil
	}
	text := msg.Text()
	if text == "" {
		return nil
	}
	now := s.now()

	var candidates []domain.AutoReplyRule
	for _, rule := range s.repo.All() {
		if rule.Enabled && rule.AppliesTo(sessionID) {
			candidates = append(candidates, rule)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Priority > candidates[j].Priority })

	for _, rule := range candidates {
		if !matchConditions(rule.Conditions, msg, now) {
			continue
		}
		if !s.matchTrigger(rule.Trigger, text) {
			continue
		}
		s.recordMatch(ctx, rule.ID, now)
		metrics.AutoReplyMatches.WithLabelValues(rule.Trigger.Type).Inc()
		s.log.Debug().Str("rule_id", rule.ID).Str("session_id", sessionID).Str("chat_id", msg.ChatID).Msg("autoreply: правило сработало")
		return &domain.ReplyAction{
			RuleID:   rule.ID,
			RuleName: rule.Name,
			Type:     rule.Action.Type,
			ChatID:   msg.ChatID,
			Message:  substitute(rule.Action.Message, msg, now),
			Delay:    rule.Action.Delay,
		}
	}
	return nil
}

func (s *Service) recordMatch(ctx context.Context, id string, at time.Time) {
	unlock := s.locks.Lock(id)
	defer unlock()
	rule, ok := s.repo.Get(id)
	if !ok {
		return
	}
	rule.MatchCount++
	rule.LastMatchedAt = &at
	s.persist(ctx, rule)
}

// HandleInbound сопоставляет сообщение с правилами и планирует ответ.
// Задержка и отправка выполняются в фоне, вызывающий получает действие сразу.
// Возвращает nil, если ни одно правило не сработало.
func (s *Service) HandleInbound(ctx context.Context, sessionID string, msg domain.InboundMessage) *domain.ReplyAction {
	action := s.ProcessMessage(ctx, sessionID, msg)
	if action == nil {
		return nil
	}
	if s.ctx.Err() != nil {
		s.log.Warn().Str("rule_id", action.RuleID).Msg("autoreply: сервис остановлен, ответ не запланирован")
		return action
	}
	s.replies.Add(1)
	go s.deliver(sessionID, *action)
	return action
}

func (s *Service) deliver(sessionID string, action domain.ReplyAction) {
	defer s.replies.Done()
	logger := s.log.With().Str("rule_id", action.RuleID).Str("session_id", sessionID).Logger()
	if err := s.sleep(s.ctx, time.Duration(action.Delay)*time.Second); err != nil {
		logger.Debug().Msg("autoreply: ответ отменён остановкой сервиса")
		return
	}
	err := s.reply(s.ctx, sessionID, action)
	metrics.AutoReplyReplies.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		logger.Warn().Err(err).Msg("autoreply: ответ не отправлен")
	}
}

func (s *Service) reply(ctx context.Context, sessionID string, action domain.ReplyAction) error {
	sess, err := s.sessions.Session(ctx, sessionID)
	if err != nil || !domain.Connected(sess) {
		return domain.Transportf("session %s is not connected", sessionID)
	}
	res, err := sess.SendText(ctx, action.ChatID, action.Message, 0)
	if err != nil {
		return domain.Transportf("send failed: %v", err)
	}
	if !res.Success {
		return domain.Transportf("send failed: %s", res.Message)
	}
	return nil
}

// CreateParams содержит данные нового правила.
type CreateParams struct {
	Name       string                `json:"name"`
	SessionID  string                `json:"sessionId"`
	Trigger    domain.RuleTrigger    `json:"trigger"`
	Conditions domain.RuleConditions `json:"conditions"`
	Action     domain.RuleAction     `json:"action"`
	Priority   int                   `json:"priority"`
	Enabled    *bool                 `json:"enabled"`
}

// UpdateParams описывает частичное изменение правила.
type UpdateParams struct {
	Name       *string                `json:"name"`
	SessionID  *string                `json:"sessionId"`
	Trigger    *domain.RuleTrigger    `json:"trigger"`
	Conditions *domain.RuleConditions `json:"conditions"`
	Action     *domain.RuleAction     `json:"action"`
	Priority   *int                   `json:"priority"`
	Enabled    *bool                  `json:"enabled"`
}

// Create проверяет и сохраняет правило.
func (s *Service) Create(ctx context.Context, p CreateParams) (domain.AutoReplyRule, error) {
	rule := domain.AutoReplyRule{
		ID:         uuid.NewString(),
		Name:       strings.TrimSpace(p.Name),
		SessionID:  strings.TrimSpace(p.SessionID),
		Trigger:    p.Trigger,
		Conditions: p.Conditions,
		Action:     p.Action,
		Priority:   p.Priority,
		Enabled:    true,
		CreatedAt:  s.now(),
	}
	if p.Enabled != nil {
		rule.Enabled = *p.Enabled
	}
	if err := normalizeRule(&rule); err != nil {
		return domain.AutoReplyRule{}, err
	}
	s.persist(ctx, rule)
	s.log.Info().Str("rule_id", rule.ID).Str("trigger", rule.Trigger.Type).Msg("autoreply: правило создано")
	return rule, nil
}

// Update применяет изменения к правилу.
func (s *Service) Update(ctx context.Context, id string, p UpdateParams) (domain.AutoReplyRule, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	rule, ok := s.repo.Get(id)
	if !ok {
		return domain.AutoReplyRule{}, domain.NotFoundf("rule %s not found", id)
	}
	if p.Name != nil {
		rule.Name = strings.TrimSpace(*p.Name)
	}
	if p.SessionID != nil {
		rule.SessionID = strings.TrimSpace(*p.SessionID)
	}
	if p.Trigger != nil {
		rule.Trigger = *p.Trigger
	}
	if p.Conditions != nil {
		rule.Conditions = *p.Conditions
	}
	if p.Action != nil {
		rule.Action = *p.Action
	}
	if p.Priority != nil {
		rule.Priority = *p.Priority
	}
	if p.Enabled != nil {
		rule.Enabled = *p.Enabled
	}
	if err := normalizeRule(&rule); err != nil {
		return domain.AutoReplyRule{}, err
	}
	now := s.now()
	rule.UpdatedAt = &now
	s.persist(ctx, rule)
	return rule, nil
}

// Toggle включает или выключает правило.
func (s *Service) Toggle(ctx context.Context, id string) (domain.AutoReplyRule, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	rule, ok := s.repo.Get(id)
	if !ok {
		return domain.AutoReplyRule{}, domain.NotFoundf("rule %s not found", id)
	}
	now := s.now()
	rule.Enabled = !rule.Enabled
	rule.UpdatedAt = &now
	s.persist(ctx, rule)
	return rule, nil
}

// Delete удаляет правило.
func (s *Service) Delete(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	if _, ok := s.repo.Get(id); !ok {
		return domain.NotFoundf("rule %s not found", id)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		s.log.Error().Err(err).Str("rule_id", id).Msg("autoreply: удаление не сохранено, состояние в памяти актуально")
	}
	return nil
}

// Get возвращает правило по идентификатору.
func (s *Service) Get(id string) (domain.AutoReplyRule, error) {
	rule, ok := s.repo.Get(id)
	if !ok {
		return domain.AutoReplyRule{}, domain.NotFoundf("rule %s not found", id)
	}
	return rule, nil
}

// GetAll возвращает правила по убыванию приоритета, затем по убыванию даты создания.
// Пустой sessionID возвращает все правила, иначе правила этой сессии и общие.
func (s *Service) GetAll(sessionID string, page domain.Page) ([]domain.AutoReplyRule, int) {
	var out []domain.AutoReplyRule
	for _, rule := range s.repo.All() {
		if sessionID != "" && !rule.AppliesTo(sessionID) {
			continue
		}
		out = append(out, rule)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return domain.Paginate(out, page), len(out)
}

func normalizeRule(rule *domain.AutoReplyRule) error {
	if rule.Name == "" {
		return domain.Validationf("name is required")
	}
	if strings.TrimSpace(rule.Action.Message) == "" {
		return domain.Validationf("action.message is required")
	}
	if rule.SessionID == "" {
		rule.SessionID = domain.AllSessions
	}
	switch rule.Trigger.Type {
	case domain.TriggerAll, domain.TriggerFirstMessage:
	case domain.TriggerKeyword:
		if len(rule.Trigger.Keywords) == 0 {
			return domain.Validationf("trigger.keywords is required for keyword trigger")
		}
	case domain.TriggerRegex:
		if rule.Trigger.Pattern == "" {
			return domain.Validationf("trigger.pattern is required for regex trigger")
		}
	case "":
		return domain.Validationf("trigger.type is required")
	default:
		return domain.Validationf("unknown trigger type %q", rule.Trigger.Type)
	}
	switch rule.Trigger.MatchType {
	case "":
		rule.Trigger.MatchType = domain.MatchContains
	case domain.MatchContains, domain.MatchExact, domain.MatchStartsWith, domain.MatchEndsWith:
	default:
		return domain.Validationf("unknown matchType %q", rule.Trigger.MatchType)
	}
	switch rule.Conditions.ChatType {
	case "":
		rule.Conditions.ChatType = domain.ChatTypeAll
	case domain.ChatTypeAll, domain.ChatTypePersonal, domain.ChatTypeGroup:
	default:
		return domain.Validationf("unknown chatType %q", rule.Conditions.ChatType)
	}
	if rule.Conditions.TimeRange.Enabled {
		if _, ok := parseClock(rule.Conditions.TimeRange.Start); !ok {
			return domain.Validationf("timeRange.start must be HH:MM")
		}
		if _, ok := parseClock(rule.Conditions.TimeRange.End); !ok {
			return domain.Validationf("timeRange.end must be HH:MM")
		}
	}
	if rule.Action.Type == "" {
		rule.Action.Type = domain.ActionReply
	}
	if rule.Action.Delay < 0 {
		return domain.Validationf("action.delay must not be negative")
	}
	return nil
}

func (s *Service) persist(ctx context.Context, rule domain.AutoReplyRule) {
	if err := s.repo.Put(ctx, rule); err != nil {
		s.log.Error().Err(err).Str("rule_id", rule.ID).Msg("autoreply: правило не сохранено, состояние в памяти актуально")
	}
}
