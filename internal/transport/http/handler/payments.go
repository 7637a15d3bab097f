package handler

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/matrimony-api/internal/application/payment"
	"github.com/matrimony-api/internal/pkg/validate"
)

// SignatureHeader carries the gateway's HMAC of the webhook body.
const SignatureHeader = "X-Razorpay-Signature"

// PaymentHandler handles order creation, status polling and the gateway webhook.
type PaymentHandler struct {
	svc payment.Service
}

func NewPaymentHandler(svc payment.Service) *PaymentHandler { return &PaymentHandler{svc: svc} }

func (h *PaymentHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req payment.OrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	order, err := h.svc.InitiateOrder(r.Context(), req)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (h *PaymentHandler) Status(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.PaymentStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Webhook needs the raw body because the signature covers its exact bytes.
func (h *PaymentHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := h.svc.HandleWebhook(r.Context(), body, r.Header.Get(SignatureHeader))
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusEnvelope{Status: result})
}
