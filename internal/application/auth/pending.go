package auth

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/matrimony-api/internal/domain"
)

// PreparePending turns a registration form into the cacheable payload,
// hashing the password so the plaintext never reaches the cache.
func (s *service) PreparePending(ctx context.Context, email string, payload json.RawMessage) (json.RawMessage, error) {
	var req domain.CreateUserRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("invalid registration payload: %w", domain.ErrBadRequest)
	}
	if normalizeEmail(req.Email) != email {
		return nil, fmt.Errorf("payload email does not match order email: %w", domain.ErrBadRequest)
	}
	p, err := s.PrepareRegistration(ctx, req)
	if err != nil {
		return nil, err
	}
	return json.Marshal(p)
}

// CompletePending creates the account for a registration paid through the
// webhook path.
func (s *service) CompletePending(ctx context.Context, op domain.PendingOperation) error {
	var p domain.RegistrationPayload
	if err := json.Unmarshal(op.Payload, &p); err != nil {
		return fmt.Errorf("invalid registration payload: %w", domain.ErrBadRequest)
	}
	p.Email = op.Email
	p.OrderID, p.PaymentID, p.Amount = op.OrderID, op.PaymentID, op.Amount
	_, err := s.Register(ctx, p)
	return err
}
