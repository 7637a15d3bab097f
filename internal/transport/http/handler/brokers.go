package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/matrimony-api/internal/application/broker"
	"github.com/matrimony-api/internal/domain"
	"github.com/matrimony-api/internal/pkg/validate"
	"github.com/matrimony-api/internal/transport/http/middleware"
)

// BrokerHandler handles broker registration, login and referral lookups.
type BrokerHandler struct {
	svc broker.Service
}

func NewBrokerHandler(svc broker.Service) *BrokerHandler { return &BrokerHandler{svc: svc} }

func (h *BrokerHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateBrokerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	b, err := h.svc.Register(r.Context(), req)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (h *BrokerHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sess, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *BrokerHandler) ValidateReferral(w http.ResponseWriter, r *http.Request) {
	valid, err := h.svc.ValidateReferral(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"valid": valid})
}

func (h *BrokerHandler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if err := h.svc.CheckAvailability(r.Context(), q.Get("email"), q.Get("phone")); err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "available"})
}

// UploadIDProofs serves both the public pre-registration upload and the
// authenticated broker route; only the latter attaches the files.
func (h *BrokerHandler) UploadIDProofs(w http.ResponseWriter, r *http.Request) {
	brokerID := ""
	if claims, ok := middleware.ClaimsFromContext(r.Context()); ok && claims.Role == domain.RoleBroker {
		brokerID = claims.UserID
	}
	files, release, err := readUploads(r, "images")
	defer release()
	if err != nil {
		httpError(w, r, err)
		return
	}
	media, err := h.svc.UploadIDProofs(r.Context(), brokerID, files)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"media": media})
}
