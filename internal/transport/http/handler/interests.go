package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/matrimony-api/internal/application/ledger"
	"github.com/matrimony-api/internal/domain"
	"github.com/matrimony-api/internal/transport/http/middleware"
)

// pendingClearer drops the cached pending purchase once it has been applied.
type pendingClearer interface {
	ClearPending(ctx context.Context, purpose, email string) error
}

// InterestHandler handles the interest and credit ledger endpoints.
type InterestHandler struct {
	svc      ledger.Service
	payments pendingClearer
}

func NewInterestHandler(svc ledger.Service, payments pendingClearer) *InterestHandler {
	return &InterestHandler{svc: svc, payments: payments}
}

type targetRequest struct {
	UserID string `json:"user_id"`
}

func (h *InterestHandler) Send(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req targetRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if err := h.svc.SendInterest(r.Context(), userID, req.UserID); err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "interest sent"})
}

func (h *InterestHandler) Respond(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req struct {
		UserID string `json:"user_id"`
		Action string `json:"action"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.svc.RespondToInterest(r.Context(), userID, req.UserID, req.Action); err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "response recorded"})
}

func (h *InterestHandler) ViewContact(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req targetRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	card, err := h.svc.ViewContact(r.Context(), userID, req.UserID)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

// Purchase records a purchase the client confirmed directly. The pending
// record is cleared so the webhook path does not apply it again.
func (h *InterestHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req ledger.Purchase
	if !decodeJSON(w, r, &req) {
		return
	}
	err := h.svc.CreditPurchase(r.Context(), claims.UserID, req)
	if err != nil && !errors.Is(err, domain.ErrConflict) {
		httpError(w, r, err)
		return
	}
	if cerr := h.payments.ClearPending(r.Context(), domain.PurposeInterests, claims.Email); cerr != nil {
		slog.Warn("clear pending purchase", "user_id", claims.UserID, "err", cerr)
	}
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "credits added"})
}

func (h *InterestHandler) Balance(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	b, err := h.svc.Balance(r.Context(), userID)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *InterestHandler) Invitations(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	inv, err := h.svc.Invitations(r.Context(), userID)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"invitations": inv})
}

func (h *InterestHandler) Viewed(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	cards, err := h.svc.ViewedContacts(r.Context(), userID)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"contacts": cards})
}
