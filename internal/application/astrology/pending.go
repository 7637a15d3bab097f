package astrology

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/matrimony-api/internal/domain"
)

// PreparePending validates a reading request before its order is created.
func (s *service) PreparePending(ctx context.Context, email string, payload json.RawMessage) (json.RawMessage, error) {
	var req SubmitRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("invalid astrology payload: %w", domain.ErrBadRequest)
	}
	if err := checkRequest(req); err != nil {
		return nil, err
	}
	if _, err := s.store.GetByEmail(ctx, email); err != nil {
		return nil, err
	}
	req.OrderID, req.PaymentID, req.Amount = "", "", 0
	return json.Marshal(req)
}

// CompletePending submits a reading whose payment was confirmed by webhook.
func (s *service) CompletePending(ctx context.Context, op domain.PendingOperation) error {
	var req SubmitRequest
	if err := json.Unmarshal(op.Payload, &req); err != nil {
		return fmt.Errorf("invalid astrology payload: %w", domain.ErrBadRequest)
	}
	u, err := s.store.GetByEmail(ctx, op.Email)
	if err != nil {
		return err
	}
	req.OrderID, req.PaymentID, req.Amount = op.OrderID, op.PaymentID, op.Amount
	_, err = s.Submit(ctx, u.UserID, req)
	return err
}
