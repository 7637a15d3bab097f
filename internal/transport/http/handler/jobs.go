package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/matrimony-api/internal/application/astrology"
	"github.com/matrimony-api/internal/application/payment"
	"github.com/matrimony-api/internal/domain"
)

type brokerCompleter interface {
	Complete(ctx context.Context, email string) (*domain.Broker, error)
}

// JobHandler receives delayed-job callbacks. Handlers are idempotent; work
// that was already done is acknowledged with 200 so the queue stops retrying.
type JobHandler struct {
	payments  payment.Service
	astrology astrology.Service
	brokers   brokerCompleter
}

func NewJobHandler(payments payment.Service, astro astrology.Service, brokers brokerCompleter) *JobHandler {
	return &JobHandler{payments: payments, astrology: astro, brokers: brokers}
}

func (h *JobHandler) PaymentReconcile(w http.ResponseWriter, r *http.Request) {
	var op domain.PendingOperation
	if !decodeJSON(w, r, &op) {
		return
	}
	if err := h.payments.Reconcile(r.Context(), op); err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusEnvelope{Status: "reconciled"})
}

func (h *JobHandler) Astrology(w http.ResponseWriter, r *http.Request) {
	var j domain.AstrologyJob
	if !decodeJSON(w, r, &j) {
		return
	}
	h.finish(w, r, "astrology", h.astrology.Process(r.Context(), j))
}

func (h *JobHandler) BrokerCompletion(w http.ResponseWriter, r *http.Request) {
	var j domain.BrokerCompletionJob
	if !decodeJSON(w, r, &j) {
		return
	}
	_, err := h.brokers.Complete(r.Context(), j.Email)
	h.finish(w, r, "broker-completion", err)
}

func (h *JobHandler) finish(w http.ResponseWriter, r *http.Request, target string, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, StatusEnvelope{Status: "completed"})
	case errors.Is(err, domain.ErrAlreadyCompleted):
		slog.Info("job already completed", "target", target)
		writeJSON(w, http.StatusOK, StatusEnvelope{Status: "already_completed"})
	default:
		httpError(w, r, err)
	}
}
