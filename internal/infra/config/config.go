package config

import (
	"log"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию движка автоматизации.
type AppConfig struct {
	AppEnv      string `envconfig:"APP_ENV" default:"dev"`
	TZ          string `envconfig:"TZ" default:"UTC"`
	HTTPAddr    string `envconfig:"HTTP_ADDR" default:":8080"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`
	APIToken    string `envconfig:"API_TOKEN"`

	Store struct {
		Driver    string `envconfig:"STORE_DRIVER" default:"file"`
		DataDir   string `envconfig:"DATA_DIR" default:"./data"`
		KeyPrefix string `envconfig:"REDIS_KEY_PREFIX" default:"automation:"`
	} `envconfig:""`

	PGDSN     string `envconfig:"PG_DSN"`
	RedisAddr string `envconfig:"REDIS_ADDR"`

	Gateway struct {
		URL              string        `envconfig:"GATEWAY_URL"`
		Token            string        `envconfig:"GATEWAY_TOKEN"`
		Timeout          time.Duration `envconfig:"GATEWAY_TIMEOUT" default:"30s"`
		TelegramSessions []string      `envconfig:"TELEGRAM_SESSIONS"`
	} `envconfig:""`

	Broadcast struct {
		MinDelay    time.Duration `envconfig:"BROADCAST_MIN_DELAY" default:"3s"`
		MaxDelay    time.Duration `envconfig:"BROADCAST_MAX_DELAY" default:"8s"`
		BatchSize   int           `envconfig:"BROADCAST_BATCH_SIZE" default:"10"`
		BatchDelay  time.Duration `envconfig:"BROADCAST_BATCH_DELAY" default:"30s"`
		TypingDelay time.Duration `envconfig:"BROADCAST_TYPING_DELAY" default:"1s"`
	} `envconfig:""`

	Inbound struct {
		Driver    string `envconfig:"INBOUND_DRIVER" default:"none"`
		RabbitURL string `envconfig:"RABBITMQ_URL"`
		Queue     string `envconfig:"INBOUND_QUEUE" default:"inbound_messages"`
	} `envconfig:""`

	EventsChannel string `envconfig:"EVENTS_CHANNEL" default:"broadcast.update"`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	cfg, err := Parse()
	if err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}

// Parse читает конфиг из окружения и возвращает ошибку вместо завершения процесса.
func Parse() (AppConfig, error) {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// TelegramTokens разбирает TELEGRAM_SESSIONS вида "support=123:AAA,sales=456:BBB".
// Токен бота сам содержит двоеточие, поэтому сессия отделяется знаком "=".
func (c AppConfig) TelegramTokens() map[string]string {
	tokens := make(map[string]string, len(c.Gateway.TelegramSessions))
	for _, item := range c.Gateway.TelegramSessions {
		session, token, ok := strings.Cut(strings.TrimSpace(item), "=")
		if !ok || session == "" || token == "" {
			continue
		}
		tokens[session] = token
	}
	return tokens
}
