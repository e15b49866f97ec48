package events

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"chat-automation/internal/domain"
)

func TestHubDeliversBroadcastUpdate(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub(zerolog.Nop())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("не ожидали ошибку подключения: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Connected() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("клиент не зарегистрирован")
		}
		time.Sleep(5 * time.Millisecond)
	}

	update := domain.BroadcastUpdate{
		BroadcastID:  "b1",
		Status:       domain.BroadcastRunning,
		Stats:        domain.BroadcastStats{Total: 3, Sent: 1, Pending: 2},
		CurrentIndex: 1,
		Total:        3,
	}
	if err := hub.PublishBroadcastUpdate(ctx, update); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("не ожидали ошибку чтения: %v", err)
	}
	var event struct {
		Type string                 `json:"type"`
		Data domain.BroadcastUpdate `json:"data"`
	}
	if err := json.Unmarshal(data, &event); err != nil {
		t.Fatalf("не ожидали ошибку разбора: %v", err)
	}
	if event.Type != domain.EventBroadcastUpdate || event.Data.BroadcastID != "b1" || event.Data.Stats.Sent != 1 {
		t.Fatalf("неожиданное событие: %+v", event)
	}
}

func TestRelayRespectsContext(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	for i := 0; i < cap(hub.broadcast); i++ {
		hub.broadcast <- nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := hub.Relay(ctx, []byte("x")); err == nil {
		t.Fatalf("ожидали ошибку при переполненной очереди")
	}
}
