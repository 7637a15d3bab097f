package handler

import (
	"net/http"

	"github.com/matrimony-api/internal/application/astrology"
)

// AstrologyHandler handles astrology reading submission and listing.
type AstrologyHandler struct {
	svc astrology.Service
}

func NewAstrologyHandler(svc astrology.Service) *AstrologyHandler {
	return &AstrologyHandler{svc: svc}
}

func (h *AstrologyHandler) Submit(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req astrology.SubmitRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	entry, err := h.svc.Submit(r.Context(), userID, req)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, entry)
}

func (h *AstrologyHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	entries, err := h.svc.List(r.Context(), userID)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"astrology": entries})
}
