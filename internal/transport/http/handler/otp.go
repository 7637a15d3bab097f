package handler

import (
	"net/http"

	"github.com/matrimony-api/internal/application/auth"
)

// OTPHandler handles the registration OTP endpoints.
type OTPHandler struct {
	svc auth.Service
}

func NewOTPHandler(svc auth.Service) *OTPHandler { return &OTPHandler{svc: svc} }

func (h *OTPHandler) SendRegistration(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email  string `json:"email"`
		Mobile string `json:"mobile"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.svc.SendRegistrationOTP(r.Context(), req.Email, req.Mobile); err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "OTP sent to email and mobile"})
}

func (h *OTPHandler) VerifyRegistration(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email     string `json:"email"`
		EmailOTP  string `json:"email_otp"`
		MobileOTP string `json:"mobile_otp"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.svc.VerifyRegistrationOTP(r.Context(), req.Email, req.EmailOTP, req.MobileOTP); err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "OTP verified"})
}
