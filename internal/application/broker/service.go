// Package broker registers matchmaking agents. A broker becomes usable only
// after a delayed completion job assigns their referral id.
package broker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/matrimony-api/internal/application/job"
	"github.com/matrimony-api/internal/domain"
	"github.com/matrimony-api/internal/pkg/displayid"
	"github.com/matrimony-api/internal/pkg/id"
	"github.com/matrimony-api/internal/pkg/validate"
	"golang.org/x/crypto/bcrypt"
)

const (
	proofFolder     = "brokers"
	unassignedOwner = "unassigned"
	maxProofs       = 3
	referralRetries = 5
)

type Service interface {
	Register(ctx context.Context, req domain.CreateBrokerRequest) (*domain.Broker, error)
	Complete(ctx context.Context, email string) (*domain.Broker, error)
	ValidateReferral(ctx context.Context, referralID string) (bool, error)
	CheckAvailability(ctx context.Context, email, phone string) error
	Login(ctx context.Context, email, password string) (*Session, error)
	UploadIDProofs(ctx context.Context, brokerID string, files []domain.FileUpload) ([]domain.Image, error)
}

type brokerStore interface {
	Create(ctx context.Context, b *domain.Broker) error
	GetByEmail(ctx context.Context, email string) (*domain.Broker, error)
	GetByPhone(ctx context.Context, phone string) (*domain.Broker, error)
	GetByReferralID(ctx context.Context, referralID string) (*domain.Broker, error)
	AssignReferral(ctx context.Context, brokerID, referralID string) error
	AddIDProofs(ctx context.Context, brokerID string, proofs []domain.Image) error
}

type imageStore interface {
	PutImage(ctx context.Context, folder, owner, filename string, r io.Reader) (domain.Image, error)
}

type mailer interface {
	SendTemplate(ctx context.Context, to, templateID string, vars map[string]string) error
}

type tokenSigner interface {
	Sign(userID, email, role string) (string, error)
}

// Session is returned by broker login.
type Session struct {
	Token  string         `json:"token"`
	Broker *domain.Broker `json:"broker"`
}

type service struct {
	repo            brokerStore
	images          imageStore
	mailer          mailer
	signer          tokenSigner
	dispatcher      job.Dispatcher
	completionDelay time.Duration
	referral        func(name string) (string, error)
}

type ServiceDeps struct {
	BrokerRepo      brokerStore
	ImageStore      imageStore
	Mailer          mailer
	Signer          tokenSigner
	Dispatcher      job.Dispatcher
	CompletionDelay time.Duration
}

func NewService(deps ServiceDeps) Service {
	return &service{
		repo:            deps.BrokerRepo,
		images:          deps.ImageStore,
		mailer:          deps.Mailer,
		signer:          deps.Signer,
		dispatcher:      deps.Dispatcher,
		completionDelay: deps.CompletionDelay,
		referral:        displayid.Referral,
	}
}

func (s *service) Register(ctx context.Context, req domain.CreateBrokerRequest) (*domain.Broker, error) {
	if err := validate.Struct(&req); err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), domain.ErrBadRequest)
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	phone := strings.TrimSpace(req.Phone)
	if err := s.CheckAvailability(ctx, email, phone); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	b := &domain.Broker{
		BrokerID:     id.New(),
		Name:         strings.TrimSpace(req.Name),
		Email:        email,
		Phone:        phone,
		PasswordHash: string(hash),
		CompanyName:  req.CompanyName,
		Address:      req.Address,
		Note:         req.Note,
		Caste:        req.Caste,
		MotherTongue: req.MotherTongue,
		IDProofs:     req.IDProofs,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, b); err != nil {
		return nil, err
	}

	if err := s.mailer.SendTemplate(ctx, email, domain.TemplateBrokerRegistration, map[string]string{
		"userName":  b.Name,
		"paymentId": req.PaymentID,
		"amount":    strconv.FormatFloat(req.AmountPaid, 'f', -1, 64),
	}); err != nil {
		slog.Warn("broker registration email failed", "broker_id", b.BrokerID, "err", err)
	}
	if err := s.dispatcher.Schedule(ctx, domain.JobBrokerCompletion,
		domain.BrokerCompletionJob{Email: email}, s.completionDelay); err != nil {
		return nil, fmt.Errorf("schedule broker completion: %w", err)
	}
	slog.Info("broker registered", "broker_id", b.BrokerID)
	return b, nil
}

// Complete assigns the broker's referral id. A broker that already has one
// yields domain.ErrAlreadyCompleted so repeated deliveries are harmless.
func (s *service) Complete(ctx context.Context, email string) (*domain.Broker, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, fmt.Errorf("email is required: %w", domain.ErrBadRequest)
	}
	b, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if b.ReferralID != "" {
		return b, fmt.Errorf("broker %s: %w", b.BrokerID, domain.ErrAlreadyCompleted)
	}

	referralID, err := s.uniqueReferral(ctx, b.Name)
	if err != nil {
		return nil, err
	}
	if err := s.repo.AssignReferral(ctx, b.BrokerID, referralID); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return b, fmt.Errorf("broker %s: %w", b.BrokerID, domain.ErrAlreadyCompleted)
		}
		return nil, err
	}
	b.ReferralID = referralID

	if err := s.mailer.SendTemplate(ctx, email, domain.TemplateBrokerConfirmation, map[string]string{
		"userName":   b.Name,
		"referralId": referralID,
	}); err != nil {
		slog.Warn("broker confirmation email failed", "broker_id", b.BrokerID, "err", err)
	}
	slog.Info("broker completed", "broker_id", b.BrokerID, "referral_id", referralID)
	return b, nil
}

func (s *service) uniqueReferral(ctx context.Context, name string) (string, error) {
	for i := 0; i < referralRetries; i++ {
		ref, err := s.referral(name)
		if err != nil {
			return "", err
		}
		_, err = s.repo.GetByReferralID(ctx, ref)
		if errors.Is(err, domain.ErrNotFound) {
			return ref, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("could not allocate a free referral id: %w", domain.ErrConflict)
}

func (s *service) ValidateReferral(ctx context.Context, referralID string) (bool, error) {
	referralID = strings.ToUpper(strings.TrimSpace(referralID))
	if referralID == "" {
		return false, fmt.Errorf("referral id is required: %w", domain.ErrBadRequest)
	}
	_, err := s.repo.GetByReferralID(ctx, referralID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CheckAvailability fails with domain.ErrConflict when the email or phone
// belongs to an existing broker. Empty arguments are skipped.
func (s *service) CheckAvailability(ctx context.Context, email, phone string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	phone = strings.TrimSpace(phone)
	if email == "" && phone == "" {
		return fmt.Errorf("email or phone is required: %w", domain.ErrBadRequest)
	}
	if email != "" {
		if _, err := s.repo.GetByEmail(ctx, email); err == nil {
			return fmt.Errorf("email already exists: %w", domain.ErrConflict)
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
	}
	if phone != "" {
		if _, err := s.repo.GetByPhone(ctx, phone); err == nil {
			return fmt.Errorf("phone number already registered: %w", domain.ErrConflict)
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
	}
	return nil
}

func (s *service) Login(ctx context.Context, email, password string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	b, err := s.repo.GetByEmail(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("invalid credentials: %w", domain.ErrUnauthorized)
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(b.PasswordHash), []byte(password)) != nil {
		return nil, fmt.Errorf("invalid credentials: %w", domain.ErrUnauthorized)
	}
	if b.ReferralID == "" {
		return nil, fmt.Errorf("broker profile is still under review: %w", domain.ErrForbidden)
	}
	token, err := s.signer.Sign(b.BrokerID, b.Email, domain.RoleBroker)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, Broker: b}, nil
}

// UploadIDProofs stores up to three identity documents. Before registration
// brokerID is empty and the caller passes the returned references to
// Register; afterwards they are appended to the broker record.
func (s *service) UploadIDProofs(ctx context.Context, brokerID string, files []domain.FileUpload) ([]domain.Image, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("no images uploaded: %w", domain.ErrBadRequest)
	}
	if len(files) > maxProofs {
		return nil, fmt.Errorf("at most %d id proofs: %w", maxProofs, domain.ErrBadRequest)
	}
	owner := brokerID
	if owner == "" {
		owner = unassignedOwner
	}
	proofs := make([]domain.Image, 0, len(files))
	for _, f := range files {
		img, err := s.images.PutImage(ctx, proofFolder, owner, f.Name, f.Body)
		if err != nil {
			return nil, fmt.Errorf("upload %s: %w", f.Name, err)
		}
		proofs = append(proofs, img)
	}
	if brokerID != "" {
		if err := s.repo.AddIDProofs(ctx, brokerID, proofs); err != nil {
			return nil, err
		}
	}
	return proofs, nil
}
