package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	ScheduleExecutions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "schedule_executions_total",
		Help: "Срабатывания запланированных сообщений",
	}, []string{"repeat", "result"})

	AutoReplyMatches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "autoreply_matches_total",
		Help: "Сработавшие правила автоответа по типу триггера",
	}, []string{"trigger"})

	AutoReplyReplies = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "autoreply_replies_total",
		Help: "Отправленные автоответы",
	}, []string{"result"})

	BroadcastMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "broadcast_messages_total",
		Help: "Сообщения рассылок по результату",
	}, []string{"result"})

	BroadcastRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "broadcast_running",
		Help: "Количество активных циклов рассылки",
	})

	PersistenceFlushErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "persistence_flush_errors_total",
		Help: "Ошибки сохранения коллекций",
	}, []string{"collection"})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 30, 60},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		ScheduleExecutions,
		AutoReplyMatches,
		AutoReplyReplies,
		BroadcastMessages,
		BroadcastRunning,
		PersistenceFlushErrors,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// Result переводит ошибку в метку результата.
func Result(err error) string {
	if err != nil {
		return "failed"
	}
	return "success"
}
