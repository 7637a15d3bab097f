package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/matrimony-api/internal/application/auth"
)

// PasswordResetHandler handles the password reset flow endpoints.
type PasswordResetHandler struct {
	svc auth.Service
}

func NewPasswordResetHandler(svc auth.Service) *PasswordResetHandler {
	return &PasswordResetHandler{svc: svc}
}

type passwordResetRequest struct {
	Email       string `json:"email"`
	OTP         string `json:"otp"`
	NewPassword string `json:"new_password"`
}

func (h *PasswordResetHandler) Action(w http.ResponseWriter, r *http.Request) {
	var req passwordResetRequest
	switch chi.URLParam(r, "action") {
	case "request":
		if !decodeJSON(w, r, &req) {
			return
		}
		if err := h.svc.RequestPasswordReset(r.Context(), req.Email); err != nil {
			httpError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, MessageEnvelope{Message: "OTP sent"})
	case "verify":
		if !decodeJSON(w, r, &req) {
			return
		}
		if err := h.svc.VerifyResetOTP(r.Context(), req.Email, req.OTP); err != nil {
			httpError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, MessageEnvelope{Message: "OTP verified"})
	case "reset":
		if !decodeJSON(w, r, &req) {
			return
		}
		if err := h.svc.ResetPassword(r.Context(), req.Email, req.NewPassword); err != nil {
			httpError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, MessageEnvelope{Message: "password updated"})
	default:
		writeError(w, http.StatusBadRequest, "unknown action")
	}
}
