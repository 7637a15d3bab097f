package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/matrimony-api/internal/application/profile"
	"github.com/matrimony-api/internal/domain"
)

// ProfileHandler handles profile and account endpoints.
type ProfileHandler struct {
	svc profile.Service
}

func NewProfileHandler(svc profile.Service) *ProfileHandler { return &ProfileHandler{svc: svc} }

func (h *ProfileHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	u, err := h.svc.Get(r.Context(), userID)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// Get returns another member's public card. Contact details are only
// available through the ledger.
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	targetID := chi.URLParam(r, "id")
	u, err := h.svc.Get(r.Context(), targetID)
	if err != nil {
		httpError(w, r, err)
		return
	}
	if targetID == userID {
		writeJSON(w, http.StatusOK, u)
		return
	}
	if u.IsHidden {
		writeError(w, http.StatusNotFound, "profile not found")
		return
	}
	writeJSON(w, http.StatusOK, u.Card())
}

func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req domain.UpdateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	u, err := h.svc.Update(r.Context(), userID, req)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

type discoverRequest struct {
	Page    int                   `json:"page"`
	Limit   int                   `json:"limit"`
	Filters domain.DiscoverFilter `json:"filters"`
}

func (h *ProfileHandler) Discover(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req discoverRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	page, err := h.svc.Discover(r.Context(), userID, req.Filters, req.Page, req.Limit)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *ProfileHandler) Hide(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req struct {
		UserID string `json:"user_id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.svc.Hide(r.Context(), userID, req.UserID); err != nil {
		httpError(w, r, err)
		return
	}
	msg := "user profile hidden"
	if req.UserID == "" {
		msg = "your profile is now hidden"
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: msg})
}

func (h *ProfileHandler) UploadImages(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	files, release, err := readUploads(r, "images")
	defer release()
	if err != nil {
		httpError(w, r, err)
		return
	}
	media, err := h.svc.UploadImages(r.Context(), userID, files)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"media": media})
}

func (h *ProfileHandler) Account(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	status, err := h.svc.AccountStatus(r.Context(), userID)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *ProfileHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), userID); err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "account deleted"})
}
