package broadcast

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

// CreateParams содержит данные новой рассылки.
type CreateParams struct {
	Name       string   `json:"name"`
	SessionID  string   `json:"sessionId"`
	Message    string   `json:"message"`
	MediaURL   string   `json:"mediaUrl"`
	MediaType  string   `json:"mediaType"`
	Caption    string   `json:"caption"`
	Recipients []string `json:"recipients"`
}

// Filter ограничивает выборку списка.
type Filter struct {
	SessionID string
	Status    domain.BroadcastStatus
}

type worker struct {
	wake chan struct{}
}

// Service управляет рассылками и их циклами отправки.
type Service struct {
	repo      domain.Records[domain.Broadcast]
	sessions  domain.SessionGateway
	publisher domain.EventPublisher
	log       zerolog.Logger
	opts      Options

	now    func() time.Time
	jitter func(min, max time.Duration) time.Duration
	sleep  func(ctx context.Context, d time.Duration, wake <-chan struct{}) error

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	locks  keylock.Map

	mu      sync.Mutex
	workers map[string]*worker
	// время, раньше которого нельзя отправлять следующему получателю; переживает паузу
	notBefore map[string]time.Time
}

// NewService создаёт обработчик рассылок. publisher может быть nil.
func NewService(repo domain.Records[domain.Broadcast], sessions domain.SessionGateway, publisher domain.EventPublisher, opts Options, log zerolog.Logger) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		repo:      repo,
		sessions:  sessions,
		publisher: publisher,
		log:       log,
		opts:      opts.normalize(),
		now:       time.Now,
		jitter:    uniformDelay,
		sleep:     sleepWake,
		ctx:       ctx,
		cancel:    cancel,
		workers:   make(map[string]*worker),
		notBefore: make(map[string]time.Time),
	}
}

// Create проверяет данные и сохраняет рассылку в статусе created.
func (s *Service) Create(ctx context.Context, p CreateParams) (domain.Broadcast, error) {
	sessionID := strings.TrimSpace(p.SessionID)
	if sessionID == "" {
		return domain.Broadcast{}, domain.Validationf("sessionId is required")
	}
	recipients := normalizeRecipients(p.Recipients)
	if len(recipients) == 0 {
		return domain.Broadcast{}, domain.Validationf("recipients must contain at least one chat id")
	}
	mediaURL := strings.TrimSpace(p.MediaURL)
	if strings.TrimSpace(p.Message) == "" && mediaURL == "" {
		return domain.Broadcast{}, domain.Validationf("message or mediaUrl is required")
	}
	mediaType := strings.TrimSpace(p.MediaType)
	switch mediaType {
	case "":
		if mediaURL != "" {
			mediaType = domain.MediaImage
		}
	case domain.MediaImage, domain.MediaDocument:
		if mediaURL == "" {
			return domain.Broadcast{}, domain.Validationf("mediaUrl is required for mediaType %s", mediaType)
		}
	default:
		return domain.Broadcast{}, domain.Validationf("mediaType must be image or document")
	}

	name := strings.TrimSpace(p.Name)
	if name == "" {
		name = "Broadcast"
	}
	b := domain.Broadcast{
		ID:         uuid.NewString(),
		Name:       name,
		SessionID:  sessionID,
		Message:    p.Message,
		MediaURL:   mediaURL,
		MediaType:  mediaType,
		Caption:    p.Caption,
		Recipients: make([]domain.Recipient, 0, len(recipients)),
		Status:     domain.BroadcastCreated,
		Stats:      domain.BroadcastStats{Total: len(recipients), Pending: len(recipients)},
		CreatedAt:  s.now(),
	}
	for _, chatID := range recipients {
		b.Recipients = append(b.Recipients, domain.Recipient{ChatID: chatID, Status: domain.RecipientPending})
	}
	s.persist(ctx, b)
	s.log.Info().Str("broadcast_id", b.ID).Int("recipients", len(recipients)).Msg("broadcast: рассылка создана")
	return b, nil
}

func normalizeRecipients(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, chatID := range raw {
		chatID = strings.TrimSpace(chatID)
		if chatID == "" {
			continue
		}
		if _, dup := seen[chatID]; dup {
			continue
		}
		seen[chatID] = struct{}{}
		out = append(out, chatID)
	}
	return out
}

// Start запускает или возобновляет рассылку. Сессия должна быть подключена.
func (s *Service) Start(ctx context.Context, id string) (domain.Broadcast, error) {
	unlock := s.locks.Lock(id)
	b, ok := s.repo.Get(id)
	if !ok {
		unlock()
		return domain.Broadcast{}, domain.NotFoundf("broadcast %s not found", id)
	}
	switch b.Status {
	case domain.BroadcastRunning:
		unlock()
		return domain.Broadcast{}, domain.Conflictf("broadcast %s is already running", id)
	case domain.BroadcastCompleted, domain.BroadcastCancelled:
		unlock()
		return domain.Broadcast{}, domain.Conflictf("broadcast %s is already %s", id, b.Status)
	}
	sess, err := s.sessions.Session(ctx, b.SessionID)
	if err != nil || !domain.Connected(sess) {
		unlock()
		return domain.Broadcast{}, domain.Transportf("session %s is not connected", b.SessionID)
	}

	now := s.now()
	b.Status = domain.BroadcastRunning
	if b.StartedAt == nil {
		b.StartedAt = &now
	}
	s.persist(ctx, b)
	s.spawnLocked(id)
	unlock()

	s.publish(b)
	s.log.Info().Str("broadcast_id", id).Int("current_index", b.CurrentIndex).Msg("broadcast: рассылка запущена")
	return b.Clone(), nil
}

// Pause останавливает цикл после текущего получателя.
func (s *Service) Pause(ctx context.Context, id string) (domain.Broadcast, error) {
	return s.transition(ctx, id, domain.BroadcastPaused, func(b domain.Broadcast) error {
		if b.Status != domain.BroadcastRunning {
			return domain.Conflictf("broadcast %s is not running", id)
		}
		return nil
	})
}

// Cancel завершает рассылку без возможности возобновления.
func (s *Service) Cancel(ctx context.Context, id string) (domain.Broadcast, error) {
	return s.transition(ctx, id, domain.BroadcastCancelled, func(b domain.Broadcast) error {
		if b.Status.Terminal() {
			return domain.Conflictf("broadcast %s is already %s", id, b.Status)
		}
		return nil
	})
}

func (s *Service) transition(ctx context.Context, id string, to domain.BroadcastStatus, check func(domain.Broadcast) error) (domain.Broadcast, error) {
	unlock := s.locks.Lock(id)
	b, ok := s.repo.Get(id)
	if !ok {
		unlock()
		return domain.Broadcast{}, domain.NotFoundf("broadcast %s not found", id)
	}
	if err := check(b); err != nil {
		unlock()
		return domain.Broadcast{}, err
	}
	b.Status = to
	s.persist(ctx, b)
	s.wakeLocked(id)
	if to.Terminal() {
		s.forgetPacing(id)
	}
	unlock()

	s.publish(b)
	s.log.Info().Str("broadcast_id", id).Str("status", string(to)).Msg("broadcast: статус изменён")
	return b.Clone(), nil
}

// Delete удаляет рассылку, если она не выполняется.
func (s *Service) Delete(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()
	b, ok := s.repo.Get(id)
	if !ok {
		return domain.NotFoundf("broadcast %s not found", id)
	}
	if b.Status == domain.BroadcastRunning {
		return domain.Conflictf("broadcast %s is running", id)
	}
	s.forgetPacing(id)
	if err := s.repo.Delete(ctx, id); err != nil {
		s.log.Error().Err(err).Str("broadcast_id", id).Msg("broadcast: удаление не сохранено, состояние в памяти актуально")
	}
	return nil
}

// Get возвращает рассылку по идентификатору.
func (s *Service) Get(id string) (domain.Broadcast, error) {
	b, ok := s.repo.Get(id)
	if !ok {
		return domain.Broadcast{}, domain.NotFoundf("broadcast %s not found", id)
	}
	return b.Clone(), nil
}

// GetAll возвращает рассылки по фильтру, новые первыми, и общее число подходящих.
func (s *Service) GetAll(f Filter, page domain.Page) ([]domain.Broadcast, int) {
	var out []domain.Broadcast
	for _, b := range s.repo.All() {
		if f.SessionID != "" && b.SessionID != f.SessionID {
			continue
		}
		if f.Status != "" && b.Status != f.Status {
			continue
		}
		out = append(out, b.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return domain.Paginate(out, page), len(out)
}

// Resume поднимает циклы рассылок, сохранённых в статусе running.
func (s *Service) Resume() int {
	resumed := 0
	for _, b := range s.repo.All() {
		if b.Status != domain.BroadcastRunning {
			continue
		}
		unlock := s.locks.Lock(b.ID)
		s.spawnLocked(b.ID)
		unlock()
		resumed++
		s.log.Info().Str("broadcast_id", b.ID).Int("current_index", b.CurrentIndex).Msg("broadcast: рассылка возобновлена после перезапуска")
	}
	return resumed
}

// Stop прерывает циклы в точке ожидания и ждёт их завершения. Статус running сохраняется для Resume.
func (s *Service) Stop() {
	s.cancel()
	s.wg.Wait()
}

// Wait ждёт завершения всех текущих циклов.
func (s *Service) Wait() {
	s.wg.Wait()
}

// spawnLocked запускает цикл, если он ещё не работает. Вызывается под блокировкой рассылки.
func (s *Service) spawnLocked(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, running := s.workers[id]; running {
		return
	}
	w := &worker{wake: make(chan struct{}, 1)}
	s.workers[id] = w
	s.wg.Add(1)
	metrics.BroadcastRunning.Inc()
	go s.run(s.ctx, id, w)
}

func (s *Service) wakeLocked(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.workers[id]; ok {
		select {
		case w.wake <- struct{}{}:
		default:
		}
	}
}

func (s *Service) detachLocked(id string, w *worker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.workers[id] == w {
		delete(s.workers, id)
	}
}

// holdUntil запоминает, когда цикл может отправить следующее сообщение.
func (s *Service) holdUntil(id string, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notBefore[id] = s.now().Add(delay)
}

// remainingDelay возвращает остаток паузы, прерванной остановкой цикла.
func (s *Service) remainingDelay(id string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.notBefore[id]
	if !ok {
		return 0
	}
	return at.Sub(s.now())
}

func (s *Service) forgetPacing(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.notBefore, id)
}

func (s *Service) persist(ctx context.Context, b domain.Broadcast) {
	if err := s.repo.Put(ctx, b.Clone()); err != nil {
		s.log.Error().Err(err).Str("broadcast_id", b.ID).Msg("broadcast: рассылка не сохранена, состояние в памяти актуально")
	}
}

func (s *Service) publish(b domain.Broadcast) {
	if s.publisher == nil {
		return
	}
	update := domain.BroadcastUpdate{
		BroadcastID:  b.ID,
		Name:         b.Name,
		Status:       b.Status,
		Stats:        b.Stats,
		CurrentIndex: b.CurrentIndex,
		Total:        b.Stats.Total,
		CompletedAt:  b.CompletedAt,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.publisher.PublishBroadcastUpdate(ctx, update); err != nil {
		s.log.Warn().Err(err).Str("broadcast_id", b.ID).Msg("broadcast: не удалось отправить событие")
	}
}
