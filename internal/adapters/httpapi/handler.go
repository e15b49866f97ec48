package httpapi

import (
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"chat-automation/internal/usecase/autoreply"
	"chat-automation/internal/usecase/broadcast"
	"chat-automation/internal/usecase/schedule"
)

// Handler обслуживает операторский API движка.
type Handler struct {
	schedules  *schedule.Service
	rules      *autoreply.Service
	broadcasts *broadcast.Service
	log        zerolog.Logger
}

// New создаёт обработчики API.
func New(schedules *schedule.Service, rules *autoreply.Service, broadcasts *broadcast.Service, log zerolog.Logger) *Handler {
	return &Handler{schedules: schedules, rules: rules, broadcasts: broadcasts, log: log}
}

// Routes возвращает роутер, который монтируется на /api.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/schedules", func(r chi.Router) {
		r.Post("/", h.createSchedule)
		r.Get("/", h.listSchedules)
		r.Get("/{id}", h.getSchedule)
		r.Patch("/{id}", h.updateSchedule)
		r.Delete("/{id}", h.deleteSchedule)
		r.Post("/{id}/toggle", h.toggleSchedule)
	})

	r.Route("/rules", func(r chi.Router) {
		r.Post("/", h.createRule)
		r.Get("/", h.listRules)
		r.Get("/{id}", h.getRule)
		r.Patch("/{id}", h.updateRule)
		r.Delete("/{id}", h.deleteRule)
		r.Post("/{id}/toggle", h.toggleRule)
	})

	r.Route("/broadcasts", func(r chi.Router) {
		r.Post("/", h.createBroadcast)
		r.Get("/", h.listBroadcasts)
		r.Get("/{id}", h.getBroadcast)
		r.Delete("/{id}", h.deleteBroadcast)
		r.Post("/{id}/start", h.startBroadcast)
		r.Post("/{id}/pause", h.pauseBroadcast)
		r.Post("/{id}/cancel", h.cancelBroadcast)
	})

	r.Post("/sessions/{sessionId}/inbound", h.inbound)
	return r
}
