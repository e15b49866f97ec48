package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"chat-automation/internal/domain"
	httpinfra "chat-automation/internal/infra/http"
)

const maxBodyBytes = 1 << 20

// envelope задаёт единый формат ответа API.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Total   *int   `json:"total,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, envelope{Success: true, Message: message, Data: data})
}

func writeList(w http.ResponseWriter, data any, total int) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data, Total: &total})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Success: false, Message: msg})
}

// statusFor сопоставляет вид ошибки с HTTP-статусом.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrTransport):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Str("request_id", httpinfra.RequestID(r)).Str("path", r.URL.Path).Msg("httpapi: внутренняя ошибка")
		writeError(w, status, "internal error")
		return
	}
	lvl := zerolog.DebugLevel
	if status == http.StatusBadGateway {
		lvl = zerolog.WarnLevel
	}
	h.log.WithLevel(lvl).Err(err).Str("request_id", httpinfra.RequestID(r)).Int("status", status).Msg("httpapi: запрос отклонён")
	writeError(w, status, err.Error())
}

func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		return domain.Validationf("invalid request body: %v", err)
	}
	return nil
}

// pageFrom читает limit и offset из строки запроса.
func pageFrom(r *http.Request) (domain.Page, error) {
	var page domain.Page
	q := r.URL.Query()
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return domain.Page{}, domain.Validationf("limit must be a non-negative integer")
		}
		page.Limit = n
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return domain.Page{}, domain.Validationf("offset must be a non-negative integer")
		}
		page.Offset = n
	}
	return page.Normalize(), nil
}
