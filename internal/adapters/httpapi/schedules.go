package httpapi

import (
	"net/http"

	chi "github.com/go-chi/chi/v5"

	"chat-automation/internal/domain"
	"chat-automation/internal/usecase/schedule"
)

func (h *Handler) createSchedule(w http.ResponseWriter, r *http.Request) {
	var req schedule.CreateParams
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	msg, err := h.schedules.Create(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, "created", msg)
}

func (h *Handler) listSchedules(w http.ResponseWriter, r *http.Request) {
	page, err := pageFrom(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	filter := schedule.Filter{
		SessionID: r.URL.Query().Get("sessionId"),
		Status:    domain.ScheduleStatus(r.URL.Query().Get("status")),
	}
	items, total := h.schedules.GetAll(filter, page)
	writeList(w, items, total)
}

func (h *Handler) getSchedule(w http.ResponseWriter, r *http.Request) {
	msg, err := h.schedules.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", msg)
}

func (h *Handler) updateSchedule(w http.ResponseWriter, r *http.Request) {
	var req schedule.UpdateParams
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	msg, err := h.schedules.Update(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "updated", msg)
}

func (h *Handler) deleteSchedule(w http.ResponseWriter, r *http.Request) {
	if err := h.schedules.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "deleted"})
}

func (h *Handler) toggleSchedule(w http.ResponseWriter, r *http.Request) {
	msg, err := h.schedules.Toggle(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toggledMessage(msg.Enabled), msg)
}
