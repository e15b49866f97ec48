package repo

import (
	"context"
	"sync"

	"chat-automation/internal/domain"
)

// Memory хранит документы в памяти процесса, для тестов и STORE_DRIVER=memory.
type Memory struct {
	mu   sync.Mutex
	docs map[string][]byte
	// Fail, если задан, возвращается из Save.
	Fail error
}

var _ domain.DocumentStore = (*Memory)(nil)

// NewMemory создаёт пустое хранилище.
func NewMemory() *Memory {
	return &Memory{docs: make(map[string][]byte)}
}

// Load возвращает копию документа.
func (m *Memory) Load(_ context.Context, collection string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[collection]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), doc...), nil
}

// Save сохраняет копию документа.
func (m *Memory) Save(_ context.Context, collection string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	m.docs[collection] = append([]byte(nil), payload...)
	return nil
}
