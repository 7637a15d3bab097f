// Package auth owns account creation, login and the OTP flows around them.
// OTP codes and verification markers live only in the cache.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/matrimony-api/internal/domain"
	"github.com/matrimony-api/internal/pkg/displayid"
	"github.com/matrimony-api/internal/pkg/id"
	"github.com/matrimony-api/internal/pkg/otp"
	"github.com/matrimony-api/internal/pkg/validate"
	"golang.org/x/crypto/bcrypt"
)

// DynamoDB attribute names used in partial update maps.
const (
	fieldPasswordHash = "password_hash"
	fieldIsHidden     = "is_hidden"
)

// registerLockTTL bounds how long a registration holds the per-email claim.
const registerLockTTL = 30 * time.Second

// A display id claim outlives the write so the display_id index has caught up
// before another registration can pick the same id.
const (
	displayIDAttempts = 10
	displayIDClaimTTL = 10 * time.Minute
)

type Service interface {
	SendRegistrationOTP(ctx context.Context, email, mobile string) error
	VerifyRegistrationOTP(ctx context.Context, email, emailOTP, mobileOTP string) error
	RequestPasswordReset(ctx context.Context, email string) error
	VerifyResetOTP(ctx context.Context, email, code string) error
	ResetPassword(ctx context.Context, email, newPassword string) error
	PrepareRegistration(ctx context.Context, req domain.CreateUserRequest) (*domain.RegistrationPayload, error)
	Register(ctx context.Context, p domain.RegistrationPayload) (*Session, error)
	Login(ctx context.Context, email, password string) (*Session, error)
	PreparePending(ctx context.Context, email string, payload json.RawMessage) (json.RawMessage, error)
	CompletePending(ctx context.Context, op domain.PendingOperation) error
}

type userStore interface {
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByMobile(ctx context.Context, mobile string) (*domain.User, error)
	GetByDisplayID(ctx context.Context, displayID string) (*domain.User, error)
	Count(ctx context.Context) (int, error)
	Create(ctx context.Context, u *domain.User) error
	Update(ctx context.Context, userID string, updates map[string]interface{}) error
}

type cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, key string) error
	GetJSON(ctx context.Context, key string, dst interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error
}

type limiter interface {
	Allow(ctx context.Context, key string) bool
}

type mailer interface {
	SendTemplate(ctx context.Context, to, templateID string, vars map[string]string) error
}

type smsSender interface {
	SendSMS(ctx context.Context, to, message string) error
}

type tokenSigner interface {
	Sign(userID, email, role string) (string, error)
}

// Session is returned by register and login.
type Session struct {
	Token string       `json:"token"`
	User  *domain.User `json:"user"`
}

type service struct {
	users       userStore
	cache       cache
	limiter     limiter
	mailer      mailer
	sms         smsSender
	signer      tokenSigner
	otpTTL      time.Duration
	verifiedTTL time.Duration
	countryCode string
	now         func() time.Time
}

type ServiceDeps struct {
	UserRepo    userStore
	Cache       cache
	Limiter     limiter
	Mailer      mailer
	SMS         smsSender
	Signer      tokenSigner
	OTPTTL      time.Duration
	VerifiedTTL time.Duration
	CountryCode string
}

func NewService(deps ServiceDeps) Service {
	return &service{
		users:       deps.UserRepo,
		cache:       deps.Cache,
		limiter:     deps.Limiter,
		mailer:      deps.Mailer,
		sms:         deps.SMS,
		signer:      deps.Signer,
		otpTTL:      deps.OTPTTL,
		verifiedTTL: deps.VerifiedTTL,
		countryCode: deps.CountryCode,
		now:         time.Now,
	}
}

func otpKey(email string) string      { return "otp:" + email }
func verifiedKey(email string) string { return "otp_verified:" + email }
func lockKey(email string) string     { return "register_lock:" + email }
func displayIDKey(id string) string   { return "display_id:" + id }

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *service) SendRegistrationOTP(ctx context.Context, email, mobile string) error {
	email, mobile = normalizeEmail(email), strings.TrimSpace(mobile)
	if email == "" || mobile == "" {
		return fmt.Errorf("email and mobile are required: %w", domain.ErrBadRequest)
	}
	if err := s.ensureAvailable(ctx, email, mobile); err != nil {
		return err
	}
	if !s.limiter.Allow(ctx, "register:"+email) {
		return fmt.Errorf("too many OTP requests, try again later: %w", domain.ErrRateLimited)
	}

	emailOTP, err := otp.Generate()
	if err != nil {
		return err
	}
	mobileOTP, err := otp.Generate()
	if err != nil {
		return err
	}
	rec := domain.RegistrationOTP{EmailOTP: emailOTP, MobileOTP: mobileOTP, Mobile: mobile}
	if err := s.cache.SetJSON(ctx, otpKey(email), rec, s.otpTTL); err != nil {
		return err
	}
	if err := s.mailer.SendTemplate(ctx, email, domain.TemplateOTP, map[string]string{"otp": emailOTP}); err != nil {
		return fmt.Errorf("send email OTP: %w", err)
	}
	if err := s.sms.SendSMS(ctx, s.countryCode+mobile, "Your verification code is "+mobileOTP); err != nil {
		return fmt.Errorf("send mobile OTP: %w: %v", domain.ErrUpstream, err)
	}
	return nil
}

func (s *service) VerifyRegistrationOTP(ctx context.Context, email, emailOTP, mobileOTP string) error {
	email = normalizeEmail(email)
	var rec domain.RegistrationOTP
	found, err := s.cache.GetJSON(ctx, otpKey(email), &rec)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("OTP not found or expired: %w", domain.ErrBadRequest)
	}
	if !otp.Equal(rec.EmailOTP, emailOTP) {
		return fmt.Errorf("invalid email OTP: %w", domain.ErrBadRequest)
	}
	if !otp.Equal(rec.MobileOTP, mobileOTP) {
		return fmt.Errorf("invalid mobile OTP: %w", domain.ErrBadRequest)
	}
	return s.markVerified(ctx, email)
}

func (s *service) RequestPasswordReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return fmt.Errorf("email is required: %w", domain.ErrBadRequest)
	}
	if !s.limiter.Allow(ctx, "reset:"+email) {
		return fmt.Errorf("too many OTP requests, try again later: %w", domain.ErrRateLimited)
	}
	if _, err := s.users.GetByEmail(ctx, email); err != nil {
		return err
	}
	code, err := otp.Generate()
	if err != nil {
		return err
	}
	if err := s.cache.Set(ctx, otpKey(email), code, s.otpTTL); err != nil {
		return err
	}
	if err := s.mailer.SendTemplate(ctx, email, domain.TemplatePasswordReset, map[string]string{"otp": code}); err != nil {
		return fmt.Errorf("send reset OTP: %w", err)
	}
	return nil
}

func (s *service) VerifyResetOTP(ctx context.Context, email, code string) error {
	email = normalizeEmail(email)
	stored, found, err := s.cache.Get(ctx, otpKey(email))
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("OTP not found or expired: %w", domain.ErrBadRequest)
	}
	if !otp.Equal(stored, code) {
		return fmt.Errorf("invalid OTP: %w", domain.ErrBadRequest)
	}
	return s.markVerified(ctx, email)
}

// ResetPassword requires a verified marker from VerifyResetOTP and consumes it.
func (s *service) ResetPassword(ctx context.Context, email, newPassword string) error {
	email = normalizeEmail(email)
	if len(newPassword) < 8 || len(newPassword) > 72 {
		return fmt.Errorf("password must be 8 to 72 characters: %w", domain.ErrBadRequest)
	}
	_, verified, err := s.cache.Get(ctx, verifiedKey(email))
	if err != nil {
		return err
	}
	if !verified {
		return fmt.Errorf("OTP not verified: %w", domain.ErrUnauthorized)
	}
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := s.users.Update(ctx, u.UserID, map[string]interface{}{fieldPasswordHash: string(hash)}); err != nil {
		return err
	}
	if err := s.cache.Del(ctx, verifiedKey(email)); err != nil {
		slog.Warn("failed to delete OTP verified marker", "user_id", u.UserID, "err", err)
	}
	return nil
}

// PrepareRegistration validates req and replaces the password with its hash.
// The email must have passed VerifyRegistrationOTP within the verified TTL.
func (s *service) PrepareRegistration(ctx context.Context, req domain.CreateUserRequest) (*domain.RegistrationPayload, error) {
	if err := validate.Struct(&req); err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), domain.ErrBadRequest)
	}
	if req.Dob != "" {
		if _, err := time.Parse("2006-01-02", req.Dob); err != nil {
			return nil, fmt.Errorf("dob must be YYYY-MM-DD: %w", domain.ErrBadRequest)
		}
	}
	email := normalizeEmail(req.Email)
	_, verified, err := s.cache.Get(ctx, verifiedKey(email))
	if err != nil {
		return nil, err
	}
	if !verified {
		return nil, fmt.Errorf("OTP not verified: %w", domain.ErrUnauthorized)
	}
	if err := s.ensureAvailable(ctx, email, strings.TrimSpace(req.Mobile)); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return &domain.RegistrationPayload{
		Email:          email,
		PasswordHash:   string(hash),
		FullName:       strings.TrimSpace(req.FullName),
		Mobile:         strings.TrimSpace(req.Mobile),
		AlternateMob:   req.AlternateMob,
		Dob:            req.Dob,
		Gender:         req.Gender,
		MotherTongue:   req.MotherTongue,
		MaritalStatus:  req.MaritalStatus,
		ProfileCreator: req.ProfileCreator,
		SubCaste:       req.SubCaste,
		Qualification:  req.Qualification,
		Gotra:          req.Gotra,
		Images:         req.Images,
		OrderID:        req.OrderID,
		PaymentID:      req.PaymentID,
		Amount:         req.Amount,
		NoOfInterest:   req.NoOfInterest,
	}, nil
}

// Register creates the user described by p. It is reached both from the
// synchronous route and from payment reconciliation, so a per-email claim
// keeps the two from creating the account twice.
func (s *service) Register(ctx context.Context, p domain.RegistrationPayload) (*Session, error) {
	p.Email = normalizeEmail(p.Email)
	if p.Email == "" || p.PasswordHash == "" {
		return nil, fmt.Errorf("email and password are required: %w", domain.ErrBadRequest)
	}
	claimed, err := s.cache.SetNX(ctx, lockKey(p.Email), "1", registerLockTTL)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, fmt.Errorf("registration already in progress: %w", domain.ErrConflict)
	}
	defer func() {
		if err := s.cache.Del(ctx, lockKey(p.Email)); err != nil {
			slog.Warn("release registration claim", "err", err)
		}
	}()

	if err := s.ensureAvailable(ctx, p.Email, p.Mobile); err != nil {
		return nil, err
	}
	displayID, err := s.claimDisplayID(ctx, p.Email)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	u := &domain.User{
		UserID:       id.New(),
		DisplayID:    displayID,
		Email:        p.Email,
		Mobile:       p.Mobile,
		AlternateMob: p.AlternateMob,
		PasswordHash: p.PasswordHash,
		Role:         domain.RoleUser,
		FullName:     p.FullName,
		Gender:       p.Gender,
		Profile: domain.Profile{
			MaritalStatus:  p.MaritalStatus,
			MotherTongue:   p.MotherTongue,
			ProfileCreator: p.ProfileCreator,
			Gotra:          p.Gotra,
			SubCaste:       p.SubCaste,
			Qualification:  p.Qualification,
		},
		Images:       p.Images,
		Interests:    domain.NewInterests(p.NoOfInterest),
		HideProfiles: []string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if dob, err := time.Parse("2006-01-02", p.Dob); err == nil {
		u.Dob = &dob
		u.Age = domain.AgeAt(dob, now)
	}
	if p.OrderID != "" || p.PaymentID != "" {
		txn := domain.Transaction{
			OrderID:      p.OrderID,
			PaymentID:    p.PaymentID,
			AmountPaid:   p.Amount,
			NoOfInterest: p.NoOfInterest,
			Note:         "registration",
			DateOfTrans:  now,
		}
		u.Transactions = []domain.Transaction{txn}
		u.TxnRefs = txn.TxnRefs()
	}
	if err := s.users.Create(ctx, u); err != nil {
		if delErr := s.cache.Del(ctx, displayIDKey(displayID)); delErr != nil {
			slog.Warn("release display id claim", "display_id", displayID, "err", delErr)
		}
		return nil, err
	}
	for _, key := range []string{domain.PendingKey(domain.PurposeRegistration, p.Email), verifiedKey(p.Email)} {
		if err := s.cache.Del(ctx, key); err != nil {
			slog.Warn("clear registration key", "user_id", u.UserID, "key", key, "err", err)
		}
	}
	slog.Info("user registered", "user_id", u.UserID, "display_id", u.DisplayID)

	token, err := s.signer.Sign(u.UserID, u.Email, u.Role)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, User: u}, nil
}

// claimDisplayID starts from the id the user count implies and walks forward
// past ids that are stored or claimed by a concurrent registration.
func (s *service) claimDisplayID(ctx context.Context, email string) (string, error) {
	count, err := s.users.Count(ctx)
	if err != nil {
		return "", err
	}
	for i := 0; i < displayIDAttempts; i++ {
		candidate := displayid.FromCount(count + i)
		_, err := s.users.GetByDisplayID(ctx, candidate)
		if err == nil {
			continue
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return "", err
		}
		claimed, err := s.cache.SetNX(ctx, displayIDKey(candidate), email, displayIDClaimTTL)
		if err != nil {
			return "", err
		}
		if claimed {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("could not allocate a free display id: %w", domain.ErrConflict)
}

// Login checks credentials and un-hides a hidden profile.
func (s *service) Login(ctx context.Context, email, password string) (*Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("email and password are required: %w", domain.ErrBadRequest)
	}
	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("invalid credentials: %w", domain.ErrUnauthorized)
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, fmt.Errorf("invalid credentials: %w", domain.ErrUnauthorized)
	}
	if u.IsHidden {
		if err := s.users.Update(ctx, u.UserID, map[string]interface{}{fieldIsHidden: false}); err != nil {
			return nil, err
		}
		u.IsHidden = false
	}
	token, err := s.signer.Sign(u.UserID, u.Email, u.Role)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, User: u}, nil
}

// ensureAvailable fails with domain.ErrConflict when email or mobile is taken.
func (s *service) ensureAvailable(ctx context.Context, email, mobile string) error {
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return fmt.Errorf("email already registered: %w", domain.ErrConflict)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	if mobile == "" {
		return nil
	}
	if _, err := s.users.GetByMobile(ctx, mobile); err == nil {
		return fmt.Errorf("mobile number already registered: %w", domain.ErrConflict)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	return nil
}

func (s *service) markVerified(ctx context.Context, email string) error {
	if err := s.cache.Del(ctx, otpKey(email)); err != nil {
		slog.Warn("failed to delete OTP", "err", err)
	}
	return s.cache.Set(ctx, verifiedKey(email), "1", s.verifiedTTL)
}
