package auth

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/matrimony-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- mocks ---

type mockUserStore struct{ mock.Mock }

func (m *mockUserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserStore) GetByMobile(ctx context.Context, mobile string) (*domain.User, error) {
	args := m.Called(ctx, mobile)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserStore) GetByDisplayID(ctx context.Context, displayID string) (*domain.User, error) {
	args := m.Called(ctx, displayID)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserStore) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}
func (m *mockUserStore) Create(ctx context.Context, u *domain.User) error {
	return m.Called(ctx, u).Error(0)
}
func (m *mockUserStore) Update(ctx context.Context, userID string, updates map[string]interface{}) error {
	return m.Called(ctx, userID, updates).Error(0)
}

// memCache is an in-memory stand-in for the Redis cache.
type memCache struct{ data map[string]string }

func newMemCache() *memCache { return &memCache{data: map[string]string{}} }

func (c *memCache) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := c.data[key]
	return v, ok, nil
}
func (c *memCache) Set(_ context.Context, key, value string, _ time.Duration) error {
	c.data[key] = value
	return nil
}
func (c *memCache) SetNX(_ context.Context, key, value string, _ time.Duration) (bool, error) {
	if _, ok := c.data[key]; ok {
		return false, nil
	}
	c.data[key] = value
	return true, nil
}
func (c *memCache) Del(_ context.Context, key string) error {
	delete(c.data, key)
	return nil
}
func (c *memCache) GetJSON(_ context.Context, key string, dst interface{}) (bool, error) {
	v, ok := c.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal([]byte(v), dst)
}
func (c *memCache) SetJSON(_ context.Context, key string, v interface{}, _ time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.data[key] = string(b)
	return nil
}

type stubLimiter struct{ allow bool }

func (l stubLimiter) Allow(context.Context, string) bool { return l.allow }

type mockMailer struct{ mock.Mock }

func (m *mockMailer) SendTemplate(ctx context.Context, to, templateID string, vars map[string]string) error {
	return m.Called(ctx, to, templateID, vars).Error(0)
}

type mockSMSSender struct{ mock.Mock }

func (m *mockSMSSender) SendSMS(ctx context.Context, phone, msg string) error {
	return m.Called(ctx, phone, msg).Error(0)
}

type mockSigner struct{ mock.Mock }

func (m *mockSigner) Sign(userID, email, role string) (string, error) {
	args := m.Called(userID, email, role)
	return args.String(0), args.Error(1)
}

// --- builder ---

type fixture struct {
	users  *mockUserStore
	cache  *memCache
	mailer *mockMailer
	sms    *mockSMSSender
	signer *mockSigner
	svc    Service
}

func newFixture(allow bool) *fixture {
	f := &fixture{
		users:  &mockUserStore{},
		cache:  newMemCache(),
		mailer: &mockMailer{},
		sms:    &mockSMSSender{},
		signer: &mockSigner{},
	}
	f.svc = NewService(ServiceDeps{
		UserRepo:    f.users,
		Cache:       f.cache,
		Limiter:     stubLimiter{allow: allow},
		Mailer:      f.mailer,
		SMS:         f.sms,
		Signer:      f.signer,
		OTPTTL:      5 * time.Minute,
		VerifiedTTL: 10 * time.Minute,
		CountryCode: "+91",
	})
	return f
}

func (f *fixture) noAccounts() {
	f.users.On("GetByEmail", mock.Anything, mock.Anything).Return(nil, domain.ErrNotFound)
	f.users.On("GetByMobile", mock.Anything, mock.Anything).Return(nil, domain.ErrNotFound)
}

func (f *fixture) freeDisplayIDs() {
	f.users.On("GetByDisplayID", mock.Anything, mock.Anything).Return(nil, domain.ErrNotFound)
}

// verified stands in for a completed VerifyRegistrationOTP.
func (f *fixture) verified(email string) {
	f.cache.data["otp_verified:"+email] = "1"
}

// --- SendRegistrationOTP ---

func TestSendRegistrationOTP_HappyPath(t *testing.T) {
	f := newFixture(true)
	f.noAccounts()
	f.mailer.On("SendTemplate", mock.Anything, "a@b.com", domain.TemplateOTP, mock.Anything).Return(nil)
	f.sms.On("SendSMS", mock.Anything, "+919876543210", mock.Anything).Return(nil)

	err := f.svc.SendRegistrationOTP(context.Background(), " A@B.com ", "9876543210")

	require.NoError(t, err)
	var rec domain.RegistrationOTP
	found, _ := f.cache.GetJSON(context.Background(), "otp:a@b.com", &rec)
	require.True(t, found)
	assert.Len(t, rec.EmailOTP, 6)
	assert.Len(t, rec.MobileOTP, 6)
	assert.Equal(t, "9876543210", rec.Mobile)
	f.mailer.AssertExpectations(t)
	f.sms.AssertExpectations(t)
}

func TestSendRegistrationOTP_EmailTaken(t *testing.T) {
	f := newFixture(true)
	f.users.On("GetByEmail", mock.Anything, "a@b.com").Return(&domain.User{UserID: "u1"}, nil)

	err := f.svc.SendRegistrationOTP(context.Background(), "a@b.com", "9876543210")
	assert.True(t, errors.Is(err, domain.ErrConflict))
}

func TestSendRegistrationOTP_MobileTaken(t *testing.T) {
	f := newFixture(true)
	f.users.On("GetByEmail", mock.Anything, "a@b.com").Return(nil, domain.ErrNotFound)
	f.users.On("GetByMobile", mock.Anything, "9876543210").Return(&domain.User{UserID: "u1"}, nil)

	err := f.svc.SendRegistrationOTP(context.Background(), "a@b.com", "9876543210")
	assert.True(t, errors.Is(err, domain.ErrConflict))
}

func TestSendRegistrationOTP_RateLimited(t *testing.T) {
	f := newFixture(false)
	f.noAccounts()

	err := f.svc.SendRegistrationOTP(context.Background(), "a@b.com", "9876543210")
	assert.True(t, errors.Is(err, domain.ErrRateLimited))
	f.mailer.AssertNotCalled(t, "SendTemplate", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSendRegistrationOTP_MissingFields(t *testing.T) {
	f := newFixture(true)
	err := f.svc.SendRegistrationOTP(context.Background(), "", "9876543210")
	assert.True(t, errors.Is(err, domain.ErrBadRequest))
}

// --- VerifyRegistrationOTP ---

func TestVerifyRegistrationOTP(t *testing.T) {
	seed := func(f *fixture) {
		_ = f.cache.SetJSON(context.Background(), "otp:a@b.com",
			domain.RegistrationOTP{EmailOTP: "111111", MobileOTP: "222222", Mobile: "9876543210"}, time.Minute)
	}

	t.Run("both codes match", func(t *testing.T) {
		f := newFixture(true)
		seed(f)
		require.NoError(t, f.svc.VerifyRegistrationOTP(context.Background(), "a@b.com", "111111", "222222"))
		_, otpLeft := f.cache.data["otp:a@b.com"]
		assert.False(t, otpLeft)
		assert.Equal(t, "1", f.cache.data["otp_verified:a@b.com"])
	})

	t.Run("wrong mobile code", func(t *testing.T) {
		f := newFixture(true)
		seed(f)
		err := f.svc.VerifyRegistrationOTP(context.Background(), "a@b.com", "111111", "999999")
		assert.True(t, errors.Is(err, domain.ErrBadRequest))
		_, otpLeft := f.cache.data["otp:a@b.com"]
		assert.True(t, otpLeft)
	})

	t.Run("expired", func(t *testing.T) {
		f := newFixture(true)
		err := f.svc.VerifyRegistrationOTP(context.Background(), "a@b.com", "111111", "222222")
		assert.True(t, errors.Is(err, domain.ErrBadRequest))
	})
}

// --- password reset ---

func TestRequestPasswordReset_UnknownEmail(t *testing.T) {
	f := newFixture(true)
	f.users.On("GetByEmail", mock.Anything, "x@x.com").Return(nil, domain.ErrNotFound)

	err := f.svc.RequestPasswordReset(context.Background(), "x@x.com")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestPasswordReset_FullFlow(t *testing.T) {
	f := newFixture(true)
	user := &domain.User{UserID: "u1", Email: "a@b.com"}
	f.users.On("GetByEmail", mock.Anything, "a@b.com").Return(user, nil)
	f.mailer.On("SendTemplate", mock.Anything, "a@b.com", domain.TemplatePasswordReset, mock.Anything).Return(nil)
	f.users.On("Update", mock.Anything, "u1", mock.MatchedBy(func(m map[string]interface{}) bool {
		h, ok := m[fieldPasswordHash].(string)
		return ok && bcrypt.CompareHashAndPassword([]byte(h), []byte("newpassword123")) == nil
	})).Return(nil)

	ctx := context.Background()
	require.NoError(t, f.svc.RequestPasswordReset(ctx, "a@b.com"))
	code := f.cache.data["otp:a@b.com"]
	require.Len(t, code, 6)

	assert.True(t, errors.Is(f.svc.VerifyResetOTP(ctx, "a@b.com", "000000x"), domain.ErrBadRequest))
	require.NoError(t, f.svc.VerifyResetOTP(ctx, "a@b.com", code))
	require.NoError(t, f.svc.ResetPassword(ctx, "a@b.com", "newpassword123"))

	// The verified marker is single use.
	err := f.svc.ResetPassword(ctx, "a@b.com", "newpassword123")
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
	f.users.AssertNumberOfCalls(t, "Update", 1)
}

func TestResetPassword_WithoutVerification(t *testing.T) {
	f := newFixture(true)
	err := f.svc.ResetPassword(context.Background(), "a@b.com", "newpassword123")
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
}

func TestResetPassword_ShortPassword(t *testing.T) {
	f := newFixture(true)
	err := f.svc.ResetPassword(context.Background(), "a@b.com", "short")
	assert.True(t, errors.Is(err, domain.ErrBadRequest))
}

// --- registration ---

func validRequest() domain.CreateUserRequest {
	return domain.CreateUserRequest{
		Email:        "New@Example.com",
		Password:     "password123",
		FullName:     "Asha Rao",
		Mobile:       "9876543210",
		Dob:          "1995-06-15",
		Gender:       "female",
		NoOfInterest: 10,
	}
}

func TestPrepareRegistration_HashesPassword(t *testing.T) {
	f := newFixture(true)
	f.noAccounts()
	f.verified("new@example.com")

	p, err := f.svc.PrepareRegistration(context.Background(), validRequest())

	require.NoError(t, err)
	assert.Equal(t, "new@example.com", p.Email)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte("password123")))
	raw, _ := json.Marshal(p)
	assert.NotContains(t, string(raw), "password123")
}

func TestPrepareRegistration_Invalid(t *testing.T) {
	f := newFixture(true)
	req := validRequest()
	req.Email = "not-an-email"
	_, err := f.svc.PrepareRegistration(context.Background(), req)
	assert.True(t, errors.Is(err, domain.ErrBadRequest))

	req = validRequest()
	req.Dob = "15/06/1995"
	_, err = f.svc.PrepareRegistration(context.Background(), req)
	assert.True(t, errors.Is(err, domain.ErrBadRequest))
}

func TestPrepareRegistration_RequiresVerifiedOTP(t *testing.T) {
	f := newFixture(true)
	f.noAccounts()

	_, err := f.svc.PrepareRegistration(context.Background(), validRequest())

	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
	f.users.AssertNotCalled(t, "GetByEmail", mock.Anything, mock.Anything)
}

func TestPrepareRegistration_AfterVerifyRegistrationOTP(t *testing.T) {
	f := newFixture(true)
	f.noAccounts()
	_ = f.cache.SetJSON(context.Background(), "otp:new@example.com",
		domain.RegistrationOTP{EmailOTP: "111111", MobileOTP: "222222", Mobile: "9876543210"}, time.Minute)

	require.NoError(t, f.svc.VerifyRegistrationOTP(context.Background(), "new@example.com", "111111", "222222"))
	p, err := f.svc.PrepareRegistration(context.Background(), validRequest())

	require.NoError(t, err)
	assert.Equal(t, "new@example.com", p.Email)
}

func TestRegister_HappyPath(t *testing.T) {
	f := newFixture(true)
	f.noAccounts()
	f.freeDisplayIDs()
	f.verified("new@example.com")
	f.users.On("Count", mock.Anything).Return(41, nil)
	var created *domain.User
	f.users.On("Create", mock.Anything, mock.AnythingOfType("*domain.User")).
		Run(func(args mock.Arguments) { created = args.Get(1).(*domain.User) }).Return(nil)
	f.signer.On("Sign", mock.Anything, "new@example.com", domain.RoleUser).Return("bearer-token", nil)
	f.cache.data[domain.PendingKey(domain.PurposeRegistration, "new@example.com")] = "{}"

	p, err := f.svc.PrepareRegistration(context.Background(), validRequest())
	require.NoError(t, err)
	p.OrderID, p.PaymentID, p.Amount = "order_1", "pay_1", 499
	sess, err := f.svc.Register(context.Background(), *p)

	require.NoError(t, err)
	assert.Equal(t, "bearer-token", sess.Token)
	require.NotNil(t, created)
	assert.NotEmpty(t, created.UserID)
	assert.Equal(t, "AA042", created.DisplayID)
	assert.Equal(t, domain.RoleUser, created.Role)
	assert.Equal(t, 10, created.Interests.TotalNoOfInterest)
	assert.NotNil(t, created.Interests.Sent)
	require.Len(t, created.Transactions, 1)
	assert.Equal(t, "order_1", created.Transactions[0].OrderID)
	assert.True(t, created.HasTransaction("order_1", ""))
	require.NotNil(t, created.Dob)
	assert.Greater(t, created.Age, 20)
	assert.Equal(t, map[string]string{"display_id:AA042": "new@example.com"}, f.cache.data,
		"pending key, verified marker and registration claim are cleared")

	// The verified marker is consumed, so a second account needs a fresh OTP.
	_, err = f.svc.PrepareRegistration(context.Background(), validRequest())
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
}

// registerUser runs Register with the user store reporting count accounts.
func registerUser(t *testing.T, f *fixture, count int, email string) (*domain.User, error) {
	t.Helper()
	f.users.On("Count", mock.Anything).Return(count, nil).Once()
	var created *domain.User
	f.users.On("Create", mock.Anything, mock.MatchedBy(func(u *domain.User) bool { return u.Email == email })).
		Run(func(args mock.Arguments) { created = args.Get(1).(*domain.User) }).Return(nil).Once()
	f.signer.On("Sign", mock.Anything, email, domain.RoleUser).Return("t", nil).Once()

	_, err := f.svc.Register(context.Background(), domain.RegistrationPayload{Email: email, PasswordHash: "h"})
	return created, err
}

func TestRegister_SkipsDisplayIDOfExistingUser(t *testing.T) {
	f := newFixture(true)
	f.noAccounts()
	// Three users held AA001..AA003 and the first was deleted, so the
	// count points back at AA003.
	f.users.On("GetByDisplayID", mock.Anything, "AA003").Return(&domain.User{UserID: "u3", Email: "c@x.io"}, nil)
	f.users.On("GetByDisplayID", mock.Anything, "AA004").Return(nil, domain.ErrNotFound)

	created, err := registerUser(t, f, 2, "d@x.io")

	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, "AA004", created.DisplayID)
}

func TestRegister_ConcurrentRegistrationsGetDistinctDisplayIDs(t *testing.T) {
	f := newFixture(true)
	f.noAccounts()
	f.freeDisplayIDs()

	// Neither Create is visible to Count yet.
	first, err := registerUser(t, f, 5, "a@x.io")
	require.NoError(t, err)
	second, err := registerUser(t, f, 5, "b@x.io")
	require.NoError(t, err)

	assert.Equal(t, "AA006", first.DisplayID)
	assert.Equal(t, "AA007", second.DisplayID)
	assert.Equal(t, "a@x.io", f.cache.data["display_id:AA006"])
	assert.Equal(t, "b@x.io", f.cache.data["display_id:AA007"])
}

func TestRegister_NoFreeDisplayID(t *testing.T) {
	f := newFixture(true)
	f.noAccounts()
	f.users.On("GetByDisplayID", mock.Anything, mock.Anything).Return(&domain.User{UserID: "taken"}, nil)
	f.users.On("Count", mock.Anything).Return(0, nil)

	_, err := f.svc.Register(context.Background(), domain.RegistrationPayload{Email: "a@b.com", PasswordHash: "h"})

	assert.True(t, errors.Is(err, domain.ErrConflict))
	f.users.AssertNumberOfCalls(t, "GetByDisplayID", displayIDAttempts)
	f.users.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestRegister_CreateFailureReleasesDisplayID(t *testing.T) {
	f := newFixture(true)
	f.noAccounts()
	f.freeDisplayIDs()
	f.users.On("Count", mock.Anything).Return(0, nil)
	f.users.On("Create", mock.Anything, mock.Anything).Return(errors.New("dynamo down"))

	_, err := f.svc.Register(context.Background(), domain.RegistrationPayload{Email: "a@b.com", PasswordHash: "h"})

	require.Error(t, err)
	_, held := f.cache.data["display_id:AA001"]
	assert.False(t, held)
}

func TestRegister_ClaimHeld(t *testing.T) {
	f := newFixture(true)
	f.cache.data["register_lock:a@b.com"] = "1"

	_, err := f.svc.Register(context.Background(), domain.RegistrationPayload{Email: "a@b.com", PasswordHash: "h"})
	assert.True(t, errors.Is(err, domain.ErrConflict))
	f.users.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	f := newFixture(true)
	f.users.On("GetByEmail", mock.Anything, "a@b.com").Return(&domain.User{UserID: "u1"}, nil)

	_, err := f.svc.Register(context.Background(), domain.RegistrationPayload{Email: "a@b.com", PasswordHash: "h"})
	assert.True(t, errors.Is(err, domain.ErrConflict))
	_, held := f.cache.data["register_lock:a@b.com"]
	assert.False(t, held)
}

// --- Login ---

func hashed(t *testing.T, pw string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func TestLogin_UnhidesProfile(t *testing.T) {
	f := newFixture(true)
	user := &domain.User{UserID: "u1", Email: "a@b.com", Role: domain.RoleUser, IsHidden: true, PasswordHash: hashed(t, "password123")}
	f.users.On("GetByEmail", mock.Anything, "a@b.com").Return(user, nil)
	f.users.On("Update", mock.Anything, "u1", map[string]interface{}{fieldIsHidden: false}).Return(nil)
	f.signer.On("Sign", "u1", "a@b.com", domain.RoleUser).Return("bearer-token", nil)

	sess, err := f.svc.Login(context.Background(), "A@b.com", "password123")

	require.NoError(t, err)
	assert.Equal(t, "bearer-token", sess.Token)
	assert.False(t, sess.User.IsHidden)
	f.users.AssertExpectations(t)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	f := newFixture(true)
	user := &domain.User{UserID: "u1", Email: "a@b.com", PasswordHash: hashed(t, "password123")}
	f.users.On("GetByEmail", mock.Anything, "a@b.com").Return(user, nil)
	f.users.On("GetByEmail", mock.Anything, "nobody@b.com").Return(nil, domain.ErrNotFound)

	_, err := f.svc.Login(context.Background(), "a@b.com", "wrong-password")
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))

	_, err = f.svc.Login(context.Background(), "nobody@b.com", "password123")
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
}

// --- pending registration ---

func TestPendingRegistration_RoundTrip(t *testing.T) {
	f := newFixture(true)
	f.noAccounts()
	f.freeDisplayIDs()
	f.verified("new@example.com")
	f.users.On("Count", mock.Anything).Return(0, nil)
	f.users.On("Create", mock.Anything, mock.MatchedBy(func(u *domain.User) bool {
		return u.HasTransaction("order_9", "pay_9")
	})).Return(nil)
	f.signer.On("Sign", mock.Anything, mock.Anything, mock.Anything).Return("t", nil)

	raw, _ := json.Marshal(validRequest())
	prepared, err := f.svc.PreparePending(context.Background(), "new@example.com", raw)
	require.NoError(t, err)
	assert.NotContains(t, string(prepared), "password123")

	err = f.svc.CompletePending(context.Background(), domain.PendingOperation{
		Purpose:   domain.PurposeRegistration,
		Email:     "new@example.com",
		OrderID:   "order_9",
		PaymentID: "pay_9",
		Amount:    499,
		Payload:   prepared,
	})
	require.NoError(t, err)
	f.users.AssertExpectations(t)
}

func TestPreparePending_EmailMismatch(t *testing.T) {
	f := newFixture(true)
	raw, _ := json.Marshal(validRequest())
	_, err := f.svc.PreparePending(context.Background(), "other@example.com", raw)
	assert.True(t, errors.Is(err, domain.ErrBadRequest))
}
