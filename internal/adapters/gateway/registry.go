package gateway

import (
	"context"
	"sync"

	"chat-automation/internal/domain"
)

// Registry ищет сессию среди статически подключённых, затем во внешнем шлюзе.
type Registry struct {
	mu       sync.RWMutex
	static   map[string]domain.Session
	fallback domain.SessionGateway
}

var _ domain.SessionGateway = (*Registry)(nil)

// NewRegistry создаёт реестр. fallback может быть nil.
func NewRegistry(fallback domain.SessionGateway) *Registry {
	return &Registry{static: make(map[string]domain.Session), fallback: fallback}
}

// Register добавляет сессию под идентификатором.
func (r *Registry) Register(sessionID string, s domain.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.static[sessionID] = s
}

// Session возвращает сессию или domain.ErrSessionNotFound.
func (r *Registry) Session(ctx context.Context, sessionID string) (domain.Session, error) {
	r.mu.RLock()
	s, ok := r.static[sessionID]
	r.mu.RUnlock()
	if ok {
		return s, nil
	}
	if r.fallback == nil {
		return nil, domain.ErrSessionNotFound
	}
	return r.fallback.Session(ctx, sessionID)
}
