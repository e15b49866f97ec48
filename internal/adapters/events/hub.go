package events

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/rs/zerolog"

	"chat-automation/internal/domain"
)

// Hub раздаёт события всем подключённым websocket-клиентам.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	done       chan struct{}
	connected  atomic.Int64
	log        zerolog.Logger
}

var _ domain.EventPublisher = (*Hub)(nil)

// NewHub создаёт хаб. Перед использованием запустите Run.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		log:        log,
	}
}

// Run обслуживает регистрацию клиентов и рассылку до отмены контекста.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.connected.Store(0)
			return
		case c := <-h.register:
			h.clients[c] = true
			h.connected.Store(int64(len(h.clients)))
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				h.connected.Store(int64(len(h.clients)))
			}
		case message := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- message:
				default:
					// медленный клиент отключается
					delete(h.clients, c)
					close(c.send)
				}
			}
			h.connected.Store(int64(len(h.clients)))
		}
	}
}

// Connected возвращает число подключённых клиентов.
func (h *Hub) Connected() int {
	return int(h.connected.Load())
}

// PublishBroadcastUpdate отправляет событие прогресса локальным клиентам.
func (h *Hub) PublishBroadcastUpdate(ctx context.Context, update domain.BroadcastUpdate) error {
	payload, err := encodeUpdate(update)
	if err != nil {
		return err
	}
	return h.Relay(ctx, payload)
}

// Relay ставит готовое событие в очередь рассылки.
func (h *Hub) Relay(ctx context.Context, payload []byte) error {
	select {
	case h.broadcast <- payload:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ServeWS подключает websocket-клиента.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("events: не удалось открыть websocket")
		return
	}
	c := &client{hub: h, conn: conn, send: make(chan []byte, 64)}
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	case <-r.Context().Done():
		_ = conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}

func encodeUpdate(update domain.BroadcastUpdate) ([]byte, error) {
	payload, err := json.Marshal(domain.Event{Type: domain.EventBroadcastUpdate, Data: update})
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return payload, nil
}
