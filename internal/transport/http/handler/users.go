package handler

import (
	"net/http"

	"github.com/matrimony-api/internal/application/auth"
	"github.com/matrimony-api/internal/domain"
	"github.com/matrimony-api/internal/pkg/validate"
)

// UserHandler handles account creation.
type UserHandler struct {
	svc auth.Service
}

func NewUserHandler(svc auth.Service) *UserHandler { return &UserHandler{svc: svc} }

func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	payload, err := h.svc.PrepareRegistration(r.Context(), req)
	if err != nil {
		httpError(w, r, err)
		return
	}
	sess, err := h.svc.Register(r.Context(), *payload)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}
