package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/matrimony-api/internal/domain"
)

// pendingPurchase is what is cached while an interest purchase is being paid.
type pendingPurchase struct {
	Credits int    `json:"no_of_interest"`
	Note    string `json:"note,omitempty"`
}

// PreparePending checks that the buyer exists and the credit count is sane
// before an order is created for it.
func (s *service) PreparePending(ctx context.Context, email string, payload json.RawMessage) (json.RawMessage, error) {
	var p pendingPurchase
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("invalid purchase payload: %w", domain.ErrBadRequest)
	}
	if p.Credits <= 0 {
		return nil, fmt.Errorf("no_of_interest must be positive: %w", domain.ErrBadRequest)
	}
	if _, err := s.store.GetByEmail(ctx, email); err != nil {
		return nil, err
	}
	return json.Marshal(p)
}

// CompletePending credits a purchase confirmed by the payment webhook.
func (s *service) CompletePending(ctx context.Context, op domain.PendingOperation) error {
	var p pendingPurchase
	if err := json.Unmarshal(op.Payload, &p); err != nil {
		return fmt.Errorf("invalid purchase payload: %w", domain.ErrBadRequest)
	}
	u, err := s.store.GetByEmail(ctx, op.Email)
	if err != nil {
		return err
	}
	return s.CreditPurchase(ctx, u.UserID, Purchase{
		OrderID:   op.OrderID,
		PaymentID: op.PaymentID,
		Amount:    op.Amount,
		Credits:   p.Credits,
		Note:      p.Note,
	})
}
