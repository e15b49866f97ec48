package domain

import (
	"context"
	"errors"
	"time"
)

// ConnectionConnected обозначает сессию, через которую можно отправлять сообщения.
const ConnectionConnected = "connected"

// ErrSessionNotFound возвращается шлюзом для неизвестной сессии.
var ErrSessionNotFound = errors.New("session not found")

// SendResult описывает ответ транспорта на отправку.
type SendResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Session представляет подключение к чат-транспорту.
type Session interface {
	ConnectionStatus() string
	SendText(ctx context.Context, chatID, text string, typingDelay time.Duration) (SendResult, error)
	SendImage(ctx context.Context, chatID, url, caption string, typingDelay time.Duration) (SendResult, error)
	SendDocument(ctx context.Context, chatID, url, filename, mimetype string, typingDelay time.Duration) (SendResult, error)
}

// SessionGateway выдаёт сессию по идентификатору.
type SessionGateway interface {
	Session(ctx context.Context, sessionID string) (Session, error)
}

// Connected сообщает, можно ли отправлять через сессию.
func Connected(s Session) bool {
	return s != nil && s.ConnectionStatus() == ConnectionConnected
}

// DocumentStore хранит коллекции целиком, как JSON-документы.
// Load возвращает nil без ошибки, если коллекция ещё не сохранялась.
type DocumentStore interface {
	Load(ctx context.Context, collection string) ([]byte, error)
	Save(ctx context.Context, collection string, payload []byte) error
}

// Records хранит коллекцию записей одного типа целиком в памяти.
type Records[T any] interface {
	All() []T
	Get(id string) (T, bool)
	Put(ctx context.Context, rec T) error
	Delete(ctx context.Context, id string) error
}

// BroadcastUpdate описывает событие прогресса рассылки.
type BroadcastUpdate struct {
	BroadcastID  string          `json:"broadcastId"`
	Name         string          `json:"name"`
	Status       BroadcastStatus `json:"status"`
	Stats        BroadcastStats  `json:"stats"`
	CurrentIndex int             `json:"currentIndex"`
	Total        int             `json:"total"`
	CompletedAt  *time.Time      `json:"completedAt,omitempty"`
}

// EventBroadcastUpdate задаёт имя события прогресса рассылки.
const EventBroadcastUpdate = "broadcast.update"

// Event оборачивает событие для подписчиков-операторов.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// EventPublisher доставляет события подписанным клиентам.
type EventPublisher interface {
	PublishBroadcastUpdate(ctx context.Context, update BroadcastUpdate) error
}

// InboundEnvelope связывает входящее сообщение с сессией, в которую оно пришло.
type InboundEnvelope struct {
	SessionID string         `json:"sessionId"`
	Message   InboundMessage `json:"message"`
}

// InboundAckFunc подтверждает обработку или возвращает сообщение в очередь.
type InboundAckFunc func(success bool) error

// InboundQueue выдаёт входящие сообщения.
type InboundQueue interface {
	Receive(ctx context.Context) (InboundEnvelope, InboundAckFunc, error)
}
