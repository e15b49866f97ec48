package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"chat-automation/internal/adapters/events"
	"chat-automation/internal/adapters/gateway"
	"chat-automation/internal/adapters/httpapi"
	"chat-automation/internal/adapters/repo"
	"chat-automation/internal/domain"
	"chat-automation/internal/infra/cache"
	"chat-automation/internal/infra/config"
	"chat-automation/internal/infra/db"
	httpinfra "chat-automation/internal/infra/http"
	applog "chat-automation/internal/infra/log"
	"chat-automation/internal/infra/metrics"
	"chat-automation/internal/infra/queue"
	"chat-automation/internal/usecase/autoreply"
	"chat-automation/internal/usecase/broadcast"
	"chat-automation/internal/usecase/schedule"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		client, err := cache.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Fatal().Err(err).Msg("engine: нет подключения к Redis")
		}
		defer client.Close()
		redisClient = client
	}

	store, closeStore, err := openStore(ctx, cfg, redisClient)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("engine: хранилище недоступно")
	}
	defer closeStore()

	storeLog := logger.With().Str("component", "repo").Logger()
	schedules := repo.NewSchedules(store, storeLog)
	rules := repo.NewRules(store, storeLog)
	broadcasts := repo.NewBroadcasts(store, storeLog)
	for _, load := range []func(context.Context) error{schedules.Load, rules.Load, broadcasts.Load} {
		if err := load(ctx); err != nil {
			logger.Fatal().Err(err).Msg("engine: не удалось загрузить данные")
		}
	}

	sessions, err := buildGateway(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("engine: не удалось настроить шлюз сессий")
	}

	hub := events.NewHub(logger.With().Str("component", "events").Logger())
	go hub.Run(ctx)
	var publisher domain.EventPublisher = hub
	if redisClient != nil {
		redisPub := events.NewRedisPublisher(redisClient, cfg.EventsChannel, logger.With().Str("component", "events").Logger())
		go redisPub.Subscribe(ctx, hub)
		publisher = redisPub
	}

	scheduleService := schedule.NewService(schedules, sessions, cfg.TZ, logger.With().Str("component", "scheduler").Logger())
	ruleService := autoreply.NewService(rules, sessions, logger.With().Str("component", "autoreply").Logger())
	broadcastService := broadcast.NewService(broadcasts, sessions, publisher, broadcast.Options{
		MinDelay:    cfg.Broadcast.MinDelay,
		MaxDelay:    cfg.Broadcast.MaxDelay,
		BatchSize:   cfg.Broadcast.BatchSize,
		BatchDelay:  cfg.Broadcast.BatchDelay,
		TypingDelay: cfg.Broadcast.TypingDelay,
	}, logger.With().Str("component", "broadcast").Logger())

	scheduleService.Start(ctx)
	if n := broadcastService.Resume(); n > 0 {
		logger.Info().Int("count", n).Msg("engine: возобновлены рассылки")
	}

	inbound, err := inboundQueue(cfg, redisClient)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Inbound.Driver).Msg("engine: очередь входящих недоступна")
	}
	if closer, ok := inbound.(interface{ Close() error }); ok {
		defer closer.Close()
	}
	listenerDone := make(chan struct{})
	if inbound != nil {
		var dedupe autoreply.Deduper
		if redisClient != nil {
			dedupe = cache.NewRedis(redisClient, cfg.Store.KeyPrefix)
		}
		listener := autoreply.NewListener(inbound, ruleService, dedupe, logger.With().Str("component", "inbound").Logger())
		go func() {
			defer close(listenerDone)
			listener.Run(ctx)
		}()
	} else {
		close(listenerDone)
	}

	server := httpinfra.NewServer(logger.With().Str("component", "http").Logger())
	server.Router.With(httpinfra.BearerAuth(cfg.APIToken)).Get("/ws", hub.ServeWS)
	server.Router.With(httpinfra.BearerAuth(cfg.APIToken)).Mount("/api", httpapi.New(scheduleService, ruleService, broadcastService, logger.With().Str("component", "httpapi").Logger()).Routes())

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)
	go func() {
		if err := server.Start(cfg.HTTPAddr); err != nil {
			logger.Error().Err(err).Msg("engine: http сервер остановлен")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("engine: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("engine: http сервер завершился с ошибкой")
	}
	<-listenerDone
	ruleService.Stop()
	scheduleService.Stop()
	broadcastService.Stop()
	logger.Info().Msg("engine: остановлен")
}

// openStore выбирает хранилище коллекций по STORE_DRIVER.
func openStore(ctx context.Context, cfg config.AppConfig, redisClient *redis.Client) (domain.DocumentStore, func(), error) {
	noop := func() {}
	switch cfg.Store.Driver {
	case "file", "":
		store, err := repo.NewFileStore(cfg.Store.DataDir)
		return store, noop, err
	case "memory":
		return repo.NewMemory(), noop, nil
	case "postgres":
		pool, err := db.Connect(ctx, cfg.PGDSN)
		if err != nil {
			return nil, noop, err
		}
		store := repo.NewPostgres(pool)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, noop, fmt.Errorf("migrate: %w", err)
		}
		return store, pool.Close, nil
	case "redis":
		if redisClient == nil {
			return nil, noop, fmt.Errorf("REDIS_ADDR is required for redis store")
		}
		return repo.NewRedis(redisClient, cfg.Store.KeyPrefix), noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// buildGateway подключает Telegram-сессии и внешний шлюз сессий.
func buildGateway(cfg config.AppConfig, logger zerolog.Logger) (*gateway.Registry, error) {
	var fallback domain.SessionGateway
	if cfg.Gateway.URL != "" {
		httpGateway, err := gateway.NewHTTP(cfg.Gateway.URL, cfg.Gateway.Token, gateway.WithTimeout(cfg.Gateway.Timeout))
		if err != nil {
			return nil, err
		}
		fallback = httpGateway
	}
	registry := gateway.NewRegistry(fallback)
	for name, token := range cfg.TelegramTokens() {
		sess, err := gateway.ConnectTelegram(name, token)
		if err != nil {
			return nil, fmt.Errorf("telegram session %s: %w", name, err)
		}
		registry.Register(name, sess)
		logger.Info().Str("session_id", name).Msg("engine: подключена Telegram-сессия")
	}
	return registry, nil
}

// inboundQueue выбирает источник входящих по INBOUND_DRIVER. nil означает только webhook.
func inboundQueue(cfg config.AppConfig, redisClient *redis.Client) (domain.InboundQueue, error) {
	switch cfg.Inbound.Driver {
	case "none", "":
		return nil, nil
	case "rabbitmq":
		rabbit, err := queue.NewRabbitInbound(cfg.Inbound.RabbitURL, cfg.Inbound.Queue)
		if err != nil {
			return nil, err
		}
		return rabbit, nil
	case "redis":
		if redisClient == nil {
			return nil, fmt.Errorf("REDIS_ADDR is required for redis inbound queue")
		}
		return queue.NewRedisInbound(redisClient, cfg.Store.KeyPrefix+cfg.Inbound.Queue), nil
	default:
		return nil, fmt.Errorf("unknown inbound driver %q", cfg.Inbound.Driver)
	}
}
