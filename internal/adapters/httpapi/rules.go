package httpapi

import (
	"net/http"

	chi "github.com/go-chi/chi/v5"

	"chat-automation/internal/domain"
	"chat-automation/internal/usecase/autoreply"
)

func (h *Handler) createRule(w http.ResponseWriter, r *http.Request) {
	var req autoreply.CreateParams
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	rule, err := h.rules.Create(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, "created", rule)
}

func (h *Handler) listRules(w http.ResponseWriter, r *http.Request) {
	page, err := pageFrom(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	items, total := h.rules.GetAll(r.URL.Query().Get("sessionId"), page)
	writeList(w, items, total)
}

func (h *Handler) getRule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.rules.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", rule)
}

func (h *Handler) updateRule(w http.ResponseWriter, r *http.Request) {
	var req autoreply.UpdateParams
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	rule, err := h.rules.Update(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "updated", rule)
}

func (h *Handler) deleteRule(w http.ResponseWriter, r *http.Request) {
	if err := h.rules.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "deleted"})
}

func (h *Handler) toggleRule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.rules.Toggle(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toggledMessage(rule.Enabled), rule)
}

// inbound принимает входящее сообщение от транспорта. Ответ по правилу уходит в фоне
// после задержки, вебхук получает сработавшее действие сразу.
func (h *Handler) inbound(w http.ResponseWriter, r *http.Request) {
	var msg domain.InboundMessage
	if err := decode(w, r, &msg); err != nil {
		h.fail(w, r, err)
		return
	}
	action := h.rules.HandleInbound(r.Context(), chi.URLParam(r, "sessionId"), msg)
	if action == nil {
		writeJSON(w, http.StatusOK, envelope{Success: true, Message: "no rule matched"})
		return
	}
	writeData(w, http.StatusAccepted, "reply scheduled", action)
}

func toggledMessage(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}
