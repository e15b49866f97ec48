package httpapi

import (
	"context"
	"net/http"

	chi "github.com/go-chi/chi/v5"

	"chat-automation/internal/domain"
	"chat-automation/internal/usecase/broadcast"
)

func (h *Handler) createBroadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcast.CreateParams
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	b, err := h.broadcasts.Create(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, "created", b)
}

func (h *Handler) listBroadcasts(w http.ResponseWriter, r *http.Request) {
	page, err := pageFrom(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	filter := broadcast.Filter{
		SessionID: r.URL.Query().Get("sessionId"),
		Status:    domain.BroadcastStatus(r.URL.Query().Get("status")),
	}
	items, total := h.broadcasts.GetAll(filter, page)
	writeList(w, items, total)
}

func (h *Handler) getBroadcast(w http.ResponseWriter, r *http.Request) {
	b, err := h.broadcasts.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", b)
}

func (h *Handler) deleteBroadcast(w http.ResponseWriter, r *http.Request) {
	if err := h.broadcasts.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "deleted"})
}

func (h *Handler) startBroadcast(w http.ResponseWriter, r *http.Request) {
	h.broadcastAction(w, r, "started", h.broadcasts.Start)
}

func (h *Handler) pauseBroadcast(w http.ResponseWriter, r *http.Request) {
	h.broadcastAction(w, r, "paused", h.broadcasts.Pause)
}

func (h *Handler) cancelBroadcast(w http.ResponseWriter, r *http.Request) {
	h.broadcastAction(w, r, "cancelled", h.broadcasts.Cancel)
}

func (h *Handler) broadcastAction(w http.ResponseWriter, r *http.Request, message string, action func(context.Context, string) (domain.Broadcast, error)) {
	b, err := action(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, message, b)
}
