package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/matrimony-api/internal/application/admin"
)

// AdminHandler handles moderation flags and client error reports.
type AdminHandler struct {
	svc admin.Service
}

func NewAdminHandler(svc admin.Service) *AdminHandler { return &AdminHandler{svc: svc} }

func (h *AdminHandler) ToggleCorrupted(w http.ResponseWriter, r *http.Request) {
	flags, err := h.svc.ToggleCorrupted(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, flags)
}

func (h *AdminHandler) Verify(w http.ResponseWriter, r *http.Request) {
	flags, err := h.svc.Verify(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, flags)
}

func (h *AdminHandler) Report(w http.ResponseWriter, r *http.Request) {
	var payload json.RawMessage
	if !decodeJSON(w, r, &payload) {
		return
	}
	if err := h.svc.Report(r.Context(), payload); err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "report sent"})
}
