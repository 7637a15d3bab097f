// Package ledger enforces the interest/credit rules: sending an interest costs
// one credit, viewing a contact costs five, and purchases add credits exactly
// once per order or payment id. Consumption is derived from list lengths and
// never stored separately.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/matrimony-api/internal/domain"
)

// maxAttempts bounds reload-and-retry after a lost optimistic-lock race.
const maxAttempts = 3

// Interest responses.
const (
	ActionAccept  = "accept"
	ActionDecline = "decline"
)

type Service interface {
	SendInterest(ctx context.Context, senderID, receiverID string) error
	ViewContact(ctx context.Context, viewerID, targetID string) (*domain.ContactCard, error)
	RespondToInterest(ctx context.Context, currentID, otherID, action string) error
	CreditPurchase(ctx context.Context, userID string, p Purchase) error
	Balance(ctx context.Context, userID string) (*Balance, error)
	Invitations(ctx context.Context, userID string) ([]Invitation, error)
	ViewedContacts(ctx context.Context, userID string) ([]domain.ContactCard, error)
	PreparePending(ctx context.Context, email string, payload json.RawMessage) (json.RawMessage, error)
	CompletePending(ctx context.Context, op domain.PendingOperation) error
}

type userStore interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetMany(ctx context.Context, userIDs []string) ([]domain.User, error)
	ConsumeCredit(ctx context.Context, userID, list, targetID string, version int64) error
	AppendInterest(ctx context.Context, userID, list, targetID string, unique bool) error
	CreditPurchase(ctx context.Context, userID string, txn domain.Transaction) error
}

type mailer interface {
	SendTemplate(ctx context.Context, to, templateID string, vars map[string]string) error
}

// Purchase describes confirmed payment for interest credits.
type Purchase struct {
	OrderID   string  `json:"order_id"`
	PaymentID string  `json:"payment_id"`
	Amount    float64 `json:"amount"`
	Credits   int     `json:"no_of_interest" validate:"gt=0"`
	Note      string  `json:"note"`
}

// Balance is a snapshot of a user's credits.
type Balance struct {
	Total     int `json:"total_no_of_interest"`
	Sent      int `json:"sent"`
	Viewed    int `json:"viewed"`
	Remaining int `json:"remaining"`
}

// Invitation is one counterpart of the user's interest lists. Contact details
// are only present once the interest is accepted.
type Invitation struct {
	UserID    string         `json:"id"`
	DisplayID string         `json:"display_id"`
	FullName  string         `json:"full_name"`
	Gender    string         `json:"gender"`
	Age       int            `json:"age"`
	Profile   domain.Profile `json:"profile"`
	Images    []domain.Image `json:"images"`
	Status    string         `json:"invitation_status"`
	Email     string         `json:"email,omitempty"`
	Mobile    string         `json:"mobile,omitempty"`
	AltMobile string         `json:"alternate_mob,omitempty"`
}

type service struct {
	store  userStore
	mailer mailer
	now    func() time.Time
}

type ServiceDeps struct {
	UserRepo userStore
	Mailer   mailer
}

func NewService(deps ServiceDeps) Service {
	return &service{store: deps.UserRepo, mailer: deps.Mailer, now: time.Now}
}

// SendInterest records an interest from sender to receiver and spends one
// credit. The sender side is the authoritative record; the receiver's
// received list is appended afterwards on a best-effort basis.
func (s *service) SendInterest(ctx context.Context, senderID, receiverID string) error {
	if senderID == receiverID {
		return fmt.Errorf("cannot send interest to yourself: %w", domain.ErrInvalidOperation)
	}
	receiver, err := s.store.Get(ctx, receiverID)
	if err != nil {
		return err
	}

	var sender *domain.User
	err = s.withRetry(ctx, senderID, func(u *domain.User) error {
		sender = u
		if domain.NewIDSet(u.Interests.Sent).Has(receiverID) {
			return fmt.Errorf("interest already sent: %w", domain.ErrConflict)
		}
		if u.Interests.Remaining() < domain.SendInterestCost {
			return fmt.Errorf("no interests remaining: %w", domain.ErrInsufficientCredit)
		}
		return s.store.ConsumeCredit(ctx, senderID, domain.ListSent, receiverID, u.Version)
	})
	if err != nil {
		return err
	}

	if err := s.store.AppendInterest(ctx, receiverID, domain.ListReceived, senderID, true); err != nil {
		slog.Error("append received interest", "sender_id", senderID, "receiver_id", receiverID, "err", err)
	}
	s.notify(ctx, receiver.Email, domain.TemplateNewInterest, map[string]string{
		"user_name":   receiver.FullName,
		"sender_name": sender.FullName,
	})
	return nil
}

// ViewContact unlocks the target's contact details for five credits.
func (s *service) ViewContact(ctx context.Context, viewerID, targetID string) (*domain.ContactCard, error) {
	if viewerID == targetID {
		return nil, fmt.Errorf("cannot view your own contact: %w", domain.ErrInvalidOperation)
	}
	target, err := s.store.Get(ctx, targetID)
	if err != nil {
		return nil, err
	}
	err = s.withRetry(ctx, viewerID, func(u *domain.User) error {
		if domain.NewIDSet(u.Interests.Viewed).Has(targetID) {
			return fmt.Errorf("contact already viewed: %w", domain.ErrConflict)
		}
		if u.Interests.Remaining() < domain.ViewContactCost {
			return fmt.Errorf("you need at least %d remaining interests: %w", domain.ViewContactCost, domain.ErrInsufficientCredit)
		}
		return s.store.ConsumeCredit(ctx, viewerID, domain.ListViewed, targetID, u.Version)
	})
	if err != nil {
		return nil, err
	}
	card := target.Contact()
	return &card, nil
}

// RespondToInterest accepts or declines an interest, recording it on both
// users. Repeated responses append again; duplicates are kept as stored.
func (s *service) RespondToInterest(ctx context.Context, currentID, otherID, action string) error {
	var list string
	switch action {
	case ActionAccept:
		list = domain.ListAccepted
	case ActionDecline:
		list = domain.ListDeclined
	default:
		return fmt.Errorf("action must be accept or decline: %w", domain.ErrInvalidOperation)
	}
	current, err := s.store.Get(ctx, currentID)
	if err != nil {
		return err
	}
	other, err := s.store.Get(ctx, otherID)
	if err != nil {
		return err
	}

	if err := s.store.AppendInterest(ctx, currentID, list, otherID, false); err != nil {
		return err
	}
	if err := s.store.AppendInterest(ctx, otherID, list, currentID, false); err != nil {
		return err
	}

	if action == ActionAccept {
		s.notify(ctx, other.Email, domain.TemplateAcceptedInterest, map[string]string{
			"user_name":    other.FullName,
			"current_user": current.FullName,
		})
	}
	return nil
}

// CreditPurchase adds purchased credits once per order/payment id.
func (s *service) CreditPurchase(ctx context.Context, userID string, p Purchase) error {
	if p.Credits <= 0 {
		return fmt.Errorf("no_of_interest must be positive: %w", domain.ErrBadRequest)
	}
	u, err := s.store.Get(ctx, userID)
	if err != nil {
		return err
	}
	if u.HasTransaction(p.OrderID, p.PaymentID) {
		return fmt.Errorf("transaction already recorded: %w", domain.ErrConflict)
	}
	txn := domain.Transaction{
		OrderID:      p.OrderID,
		PaymentID:    p.PaymentID,
		AmountPaid:   p.Amount,
		NoOfInterest: p.Credits,
		Note:         p.Note,
		DateOfTrans:  s.now().UTC(),
	}
	if err := s.store.CreditPurchase(ctx, userID, txn); err != nil {
		return err
	}
	slog.Info("credits purchased", "user_id", userID, "order_id", p.OrderID, "credits", p.Credits)
	s.notify(ctx, u.Email, domain.TemplatePurchaseInterest, map[string]string{
		"userName":     u.FullName,
		"orderId":      p.OrderID,
		"amount":       strconv.FormatFloat(p.Amount, 'f', -1, 64),
		"numInterests": strconv.Itoa(p.Credits),
	})
	return nil
}

func (s *service) Balance(ctx context.Context, userID string) (*Balance, error) {
	u, err := s.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Balance{
		Total:     u.Interests.TotalNoOfInterest,
		Sent:      len(u.Interests.Sent),
		Viewed:    len(u.Interests.Viewed),
		Remaining: u.Interests.Remaining(),
	}, nil
}

// Invitations lists every user the caller has exchanged interests with.
// Status precedence is accept, decline, sent, received.
func (s *service) Invitations(ctx context.Context, userID string) ([]Invitation, error) {
	u, err := s.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	in := u.Interests
	var ids []string
	ids = append(ids, in.Sent...)
	ids = append(ids, in.Received...)
	ids = append(ids, in.Accepted...)
	ids = append(ids, in.Declined...)
	others, err := s.store.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	accepted, declined, sent := domain.NewIDSet(in.Accepted), domain.NewIDSet(in.Declined), domain.NewIDSet(in.Sent)
	out := make([]Invitation, 0, len(others))
	for _, o := range others {
		inv := Invitation{
			UserID:    o.UserID,
			DisplayID: o.DisplayID,
			FullName:  o.FullName,
			Gender:    o.Gender,
			Age:       o.Age,
			Profile:   o.Profile,
			Images:    o.Images,
			Status:    domain.ListReceived,
		}
		switch {
		case accepted.Has(o.UserID):
			inv.Status = ActionAccept
			inv.Email, inv.Mobile, inv.AltMobile = o.Email, o.Mobile, o.AlternateMob
		case declined.Has(o.UserID):
			inv.Status = ActionDecline
		case sent.Has(o.UserID):
			inv.Status = domain.ListSent
		}
		out = append(out, inv)
	}
	return out, nil
}

// ViewedContacts returns the contact cards the user has unlocked.
func (s *service) ViewedContacts(ctx context.Context, userID string) ([]domain.ContactCard, error) {
	u, err := s.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	others, err := s.store.GetMany(ctx, u.Interests.Viewed)
	if err != nil {
		return nil, err
	}
	cards := make([]domain.ContactCard, 0, len(others))
	for i := range others {
		cards = append(cards, others[i].Contact())
	}
	return cards, nil
}

// withRetry loads the user and runs fn, reloading and re-running it when the
// store reports a stale write.
func (s *service) withRetry(ctx context.Context, userID string, fn func(u *domain.User) error) error {
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		var u *domain.User
		u, err = s.store.Get(ctx, userID)
		if err != nil {
			return err
		}
		err = fn(u)
		if !errors.Is(err, domain.ErrStaleWrite) {
			return err
		}
		slog.Debug("ledger write lost a race, retrying", "user_id", userID, "attempt", attempt+1)
	}
	return fmt.Errorf("too much contention on user ledger: %w", err)
}

func (s *service) notify(ctx context.Context, to, template string, vars map[string]string) {
	if to == "" {
		return
	}
	if err := s.mailer.SendTemplate(ctx, to, template, vars); err != nil {
		slog.Warn("notification email failed", "template", template, "err", err)
	}
}
