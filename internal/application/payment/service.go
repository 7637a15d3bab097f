// Package payment bridges gateway orders and the operations they pay for.
// An initiated order leaves a short-lived pending record in the cache; the
// gateway webhook forwards that record to a delayed reconcile job, which
// completes the operation unless the client already did so synchronously.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/matrimony-api/internal/application/job"
	"github.com/matrimony-api/internal/domain"
)

// Webhook outcomes reported back to the gateway.
const (
	ResultIgnored = "ignored"
	ResultQueued  = "queued"
)

type Service interface {
	InitiateOrder(ctx context.Context, req OrderRequest) (*OrderHandle, error)
	HandleWebhook(ctx context.Context, body []byte, signature string) (string, error)
	Reconcile(ctx context.Context, op domain.PendingOperation) error
	ClearPending(ctx context.Context, purpose, email string) error
	PaymentStatus(ctx context.Context, orderID string) (*OrderStatus, error)
}

// Completer prepares and finishes the operation behind one payment purpose.
// PreparePending validates the client payload before an order is created and
// returns what may be cached (never a plaintext secret). CompletePending
// applies it once payment is confirmed and must be idempotent.
type Completer interface {
	PreparePending(ctx context.Context, email string, payload json.RawMessage) (json.RawMessage, error)
	CompletePending(ctx context.Context, op domain.PendingOperation) error
}

type gateway interface {
	CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string, notes map[string]string) (string, error)
	OrderStatus(ctx context.Context, orderID string) (string, error)
	VerifyWebhook(body []byte, signature string) error
}

type cache interface {
	GetJSON(ctx context.Context, key string, dst interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

type OrderRequest struct {
	Purpose string          `json:"purpose" validate:"required,purpose"`
	Email   string          `json:"email" validate:"required,email"`
	Amount  float64         `json:"amount" validate:"gt=0"`
	Payload json.RawMessage `json:"payload"`
}

// OrderHandle is what the client needs to open the gateway checkout.
type OrderHandle struct {
	OrderID  string `json:"order_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	KeyID    string `json:"key_id"`
}

type OrderStatus struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

type service struct {
	gateway        gateway
	cache          cache
	dispatcher     job.Dispatcher
	completers     map[string]Completer
	currency       string
	keyID          string
	pendingTTL     time.Duration
	reconcileDelay time.Duration
}

type ServiceDeps struct {
	Gateway        gateway
	Cache          cache
	Dispatcher     job.Dispatcher
	Completers     map[string]Completer
	Currency       string
	KeyID          string
	PendingTTL     time.Duration
	ReconcileDelay time.Duration
}

func NewService(deps ServiceDeps) Service {
	return &service{
		gateway:        deps.Gateway,
		cache:          deps.Cache,
		dispatcher:     deps.Dispatcher,
		completers:     deps.Completers,
		currency:       deps.Currency,
		keyID:          deps.KeyID,
		pendingTTL:     deps.PendingTTL,
		reconcileDelay: deps.ReconcileDelay,
	}
}

func (s *service) InitiateOrder(ctx context.Context, req OrderRequest) (*OrderHandle, error) {
	email := normalizeEmail(req.Email)
	c, ok := s.completers[req.Purpose]
	if !ok {
		return nil, fmt.Errorf("unknown purpose %q: %w", req.Purpose, domain.ErrBadRequest)
	}
	if email == "" || req.Amount <= 0 {
		return nil, fmt.Errorf("email and a positive amount are required: %w", domain.ErrBadRequest)
	}
	payload, err := c.PreparePending(ctx, email, req.Payload)
	if err != nil {
		return nil, err
	}

	amountMinor := int64(math.Round(req.Amount * 100))
	orderID, err := s.gateway.CreateOrder(ctx, amountMinor, s.currency, req.Purpose+"_"+email, map[string]string{
		"customer_email": email,
		"purpose":        req.Purpose,
	})
	if err != nil {
		return nil, err
	}

	op := domain.PendingOperation{
		Purpose: req.Purpose,
		Email:   email,
		OrderID: orderID,
		Amount:  req.Amount,
		Payload: payload,
	}
	if err := s.cache.SetJSON(ctx, domain.PendingKey(req.Purpose, email), op, s.pendingTTL); err != nil {
		return nil, err
	}
	slog.Info("order initiated", "order_id", orderID, "purpose", req.Purpose)
	return &OrderHandle{OrderID: orderID, Amount: amountMinor, Currency: s.currency, KeyID: s.keyID}, nil
}

// webhookEvent is the subset of the gateway event the reconciler reads.
type webhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID      string          `json:"id"`
				OrderID string          `json:"order_id"`
				Notes   json.RawMessage `json:"notes"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// HandleWebhook forwards a confirmed payment to a delayed reconcile job. It
// never mutates users itself. Missing notes, an expired pending record or an
// order mismatch are answered with ResultIgnored; cache and publish failures
// are returned so the gateway re-delivers.
func (s *service) HandleWebhook(ctx context.Context, body []byte, signature string) (string, error) {
	if err := s.gateway.VerifyWebhook(body, signature); err != nil {
		return "", fmt.Errorf("webhook signature: %w", domain.ErrUnauthorized)
	}
	var ev webhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return "", fmt.Errorf("malformed webhook: %w", domain.ErrBadRequest)
	}
	if ev.Event != "" && ev.Event != "payment.captured" && ev.Event != "order.paid" {
		return ResultIgnored, nil
	}

	entity := ev.Payload.Payment.Entity
	notes := decodeNotes(entity.Notes)
	email := normalizeEmail(notes["customer_email"])
	if email == "" || entity.OrderID == "" {
		slog.Info("webhook without customer email, ignoring", "order_id", entity.OrderID)
		return ResultIgnored, nil
	}

	purposes := domain.Purposes
	if p := notes["purpose"]; p != "" {
		purposes = []string{p}
	}
	for _, purpose := range purposes {
		var op domain.PendingOperation
		found, err := s.cache.GetJSON(ctx, domain.PendingKey(purpose, email), &op)
		if err != nil {
			return "", err
		}
		if !found || op.OrderID != entity.OrderID {
			continue
		}
		op.PaymentID = entity.ID
		if err := s.dispatcher.Schedule(ctx, domain.JobPaymentReconcile, op, s.reconcileDelay); err != nil {
			return "", err
		}
		slog.Info("payment reconcile queued", "order_id", op.OrderID, "purpose", purpose)
		return ResultQueued, nil
	}
	slog.Info("no pending operation for webhook", "order_id", entity.OrderID)
	return ResultIgnored, nil
}

// Reconcile completes a forwarded pending operation. It is a no-op when the
// pending record is gone (completed synchronously or expired) and absorbs
// the completer's duplicate detection.
func (s *service) Reconcile(ctx context.Context, op domain.PendingOperation) error {
	c, ok := s.completers[op.Purpose]
	if !ok {
		return fmt.Errorf("unknown purpose %q: %w", op.Purpose, domain.ErrBadRequest)
	}
	key := domain.PendingKey(op.Purpose, op.Email)
	var current domain.PendingOperation
	found, err := s.cache.GetJSON(ctx, key, &current)
	if err != nil {
		return err
	}
	if !found || current.OrderID != op.OrderID {
		slog.Info("pending operation already handled", "order_id", op.OrderID, "purpose", op.Purpose)
		return nil
	}

	err = c.CompletePending(ctx, op)
	switch {
	case err == nil:
		slog.Info("payment reconciled", "order_id", op.OrderID, "purpose", op.Purpose)
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrAlreadyCompleted):
		slog.Info("payment already applied", "order_id", op.OrderID, "purpose", op.Purpose)
	default:
		return err
	}
	if err := s.cache.Del(ctx, key); err != nil {
		slog.Warn("clear pending operation", "key", key, "err", err)
	}
	return nil
}

func (s *service) ClearPending(ctx context.Context, purpose, email string) error {
	if !domain.ValidPurpose(purpose) {
		return fmt.Errorf("unknown purpose %q: %w", purpose, domain.ErrBadRequest)
	}
	return s.cache.Del(ctx, domain.PendingKey(purpose, normalizeEmail(email)))
}

func (s *service) PaymentStatus(ctx context.Context, orderID string) (*OrderStatus, error) {
	status, err := s.gateway.OrderStatus(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return &OrderStatus{OrderID: orderID, Status: status}, nil
}

// decodeNotes accepts the notes object in any shape the gateway sends it,
// including an empty array, and keeps the string values.
func decodeNotes(raw json.RawMessage) map[string]string {
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return map[string]string{}
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
