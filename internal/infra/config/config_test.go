package config

import (
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse()
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if cfg.Store.Driver != "file" {
		t.Fatalf("ожидали file по умолчанию, получили %q", cfg.Store.Driver)
	}
	if cfg.Broadcast.BatchSize != 10 || cfg.Broadcast.BatchDelay != 30*time.Second {
		t.Fatalf("неожиданные параметры пачек: %+v", cfg.Broadcast)
	}
	if cfg.Broadcast.MinDelay != 3*time.Second || cfg.Broadcast.MaxDelay != 8*time.Second {
		t.Fatalf("неожиданные задержки: %+v", cfg.Broadcast)
	}
}

func TestParseTelegramSessions(t *testing.T) {
	t.Setenv("TELEGRAM_SESSIONS", "support=111:AAA,sales=222:BBB,broken")
	t.Setenv("BROADCAST_BATCH_SIZE", "25")
	cfg, err := Parse()
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	tokens := cfg.TelegramTokens()
	if tokens["support"] != "111:AAA" || tokens["sales"] != "222:BBB" {
		t.Fatalf("неожиданные токены: %v", tokens)
	}
	if len(tokens) != 2 {
		t.Fatalf("ожидали, что некорректная запись будет пропущена: %v", tokens)
	}
	if cfg.Broadcast.BatchSize != 25 {
		t.Fatalf("ожидали 25, получили %d", cfg.Broadcast.BatchSize)
	}
}
