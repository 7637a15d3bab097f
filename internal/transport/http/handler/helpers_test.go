package handler

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/matrimony-api/internal/application/auth"
	"github.com/matrimony-api/internal/application/ledger"
	"github.com/matrimony-api/internal/application/payment"
	"github.com/matrimony-api/internal/application/profile"
	"github.com/matrimony-api/internal/config"
	"github.com/matrimony-api/internal/domain"
	jwtinfra "github.com/matrimony-api/internal/infrastructure/jwt"
	"github.com/matrimony-api/internal/transport/http/middleware"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockAuthSvc struct{ mock.Mock }

func (m *mockAuthSvc) SendRegistrationOTP(ctx context.Context, email, mobile string) error {
	return m.Called(ctx, email, mobile).Error(0)
}

func (m *mockAuthSvc) VerifyRegistrationOTP(ctx context.Context, email, emailOTP, mobileOTP string) error {
	return m.Called(ctx, email, emailOTP, mobileOTP).Error(0)
}

func (m *mockAuthSvc) RequestPasswordReset(ctx context.Context, email string) error {
	return m.Called(ctx, email).Error(0)
}

func (m *mockAuthSvc) VerifyResetOTP(ctx context.Context, email, code string) error {
	return m.Called(ctx, email, code).Error(0)
}

func (m *mockAuthSvc) ResetPassword(ctx context.Context, email, newPassword string) error {
	return m.Called(ctx, email, newPassword).Error(0)
}

func (m *mockAuthSvc) PrepareRegistration(ctx context.Context, req domain.CreateUserRequest) (*domain.RegistrationPayload, error) {
	args := m.Called(ctx, req)
	if p, _ := args.Get(0).(*domain.RegistrationPayload); p != nil {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockAuthSvc) Register(ctx context.Context, p domain.RegistrationPayload) (*auth.Session, error) {
	args := m.Called(ctx, p)
	if s, _ := args.Get(0).(*auth.Session); s != nil {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockAuthSvc) Login(ctx context.Context, email, password string) (*auth.Session, error) {
	args := m.Called(ctx, email, password)
	if s, _ := args.Get(0).(*auth.Session); s != nil {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockAuthSvc) PreparePending(ctx context.Context, email string, payload json.RawMessage) (json.RawMessage, error) {
	args := m.Called(ctx, email, payload)
	raw, _ := args.Get(0).(json.RawMessage)
	return raw, args.Error(1)
}

func (m *mockAuthSvc) CompletePending(ctx context.Context, op domain.PendingOperation) error {
	return m.Called(ctx, op).Error(0)
}

type mockProfileSvc struct{ mock.Mock }

func (m *mockProfileSvc) Get(ctx context.Context, userID string) (*domain.User, error) {
	args := m.Called(ctx, userID)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockProfileSvc) Update(ctx context.Context, userID string, req domain.UpdateProfileRequest) (*domain.User, error) {
	args := m.Called(ctx, userID, req)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockProfileSvc) Discover(ctx context.Context, userID string, filter domain.DiscoverFilter, page, limit int) (*domain.DiscoverPage, error) {
	args := m.Called(ctx, userID, filter, page, limit)
	if p, _ := args.Get(0).(*domain.DiscoverPage); p != nil {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockProfileSvc) Hide(ctx context.Context, userID, targetID string) error {
	return m.Called(ctx, userID, targetID).Error(0)
}

func (m *mockProfileSvc) AccountStatus(ctx context.Context, userID string) (*profile.AccountStatus, error) {
	args := m.Called(ctx, userID)
	if s, _ := args.Get(0).(*profile.AccountStatus); s != nil {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockProfileSvc) Delete(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *mockProfileSvc) UploadImages(ctx context.Context, userID string, files []domain.FileUpload) ([]domain.Image, error) {
	args := m.Called(ctx, userID, files)
	imgs, _ := args.Get(0).([]domain.Image)
	return imgs, args.Error(1)
}

type mockLedgerSvc struct{ mock.Mock }

func (m *mockLedgerSvc) SendInterest(ctx context.Context, senderID, receiverID string) error {
	return m.Called(ctx, senderID, receiverID).Error(0)
}

func (m *mockLedgerSvc) ViewContact(ctx context.Context, viewerID, targetID string) (*domain.ContactCard, error) {
	args := m.Called(ctx, viewerID, targetID)
	if c, _ := args.Get(0).(*domain.ContactCard); c != nil {
		return c, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockLedgerSvc) RespondToInterest(ctx context.Context, currentID, otherID, action string) error {
	return m.Called(ctx, currentID, otherID, action).Error(0)
}

func (m *mockLedgerSvc) CreditPurchase(ctx context.Context, userID string, p ledger.Purchase) error {
	return m.Called(ctx, userID, p).Error(0)
}

func (m *mockLedgerSvc) Balance(ctx context.Context, userID string) (*ledger.Balance, error) {
	args := m.Called(ctx, userID)
	if b, _ := args.Get(0).(*ledger.Balance); b != nil {
		return b, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockLedgerSvc) Invitations(ctx context.Context, userID string) ([]ledger.Invitation, error) {
	args := m.Called(ctx, userID)
	inv, _ := args.Get(0).([]ledger.Invitation)
	return inv, args.Error(1)
}

func (m *mockLedgerSvc) ViewedContacts(ctx context.Context, userID string) ([]domain.ContactCard, error) {
	args := m.Called(ctx, userID)
	cards, _ := args.Get(0).([]domain.ContactCard)
	return cards, args.Error(1)
}

func (m *mockLedgerSvc) PreparePending(ctx context.Context, email string, payload json.RawMessage) (json.RawMessage, error) {
	args := m.Called(ctx, email, payload)
	raw, _ := args.Get(0).(json.RawMessage)
	return raw, args.Error(1)
}

func (m *mockLedgerSvc) CompletePending(ctx context.Context, op domain.PendingOperation) error {
	return m.Called(ctx, op).Error(0)
}

type mockPaymentSvc struct{ mock.Mock }

func (m *mockPaymentSvc) InitiateOrder(ctx context.Context, req payment.OrderRequest) (*payment.OrderHandle, error) {
	args := m.Called(ctx, req)
	if o, _ := args.Get(0).(*payment.OrderHandle); o != nil {
		return o, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockPaymentSvc) HandleWebhook(ctx context.Context, body []byte, signature string) (string, error) {
	args := m.Called(ctx, body, signature)
	return args.String(0), args.Error(1)
}

func (m *mockPaymentSvc) Reconcile(ctx context.Context, op domain.PendingOperation) error {
	return m.Called(ctx, op).Error(0)
}

func (m *mockPaymentSvc) ClearPending(ctx context.Context, purpose, email string) error {
	return m.Called(ctx, purpose, email).Error(0)
}

func (m *mockPaymentSvc) PaymentStatus(ctx context.Context, orderID string) (*payment.OrderStatus, error) {
	args := m.Called(ctx, orderID)
	if s, _ := args.Get(0).(*payment.OrderStatus); s != nil {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

// --- helpers ---

// newTestJWTProvider generates a fresh RSA key pair and returns a *jwtinfra.Provider.
func newTestJWTProvider(t *testing.T) *jwtinfra.Provider {
	t.Helper()
	privKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	dir := t.TempDir()
	privPath := filepath.Join(dir, "private.pem")
	pubPath := filepath.Join(dir, "public.pem")

	privPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(privKey)})
	require.NoError(t, os.WriteFile(privPath, privPEM, 0600))

	pubBytes, err := x509.MarshalPKIXPublicKey(&privKey.PublicKey)
	require.NoError(t, err)
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes})
	require.NoError(t, os.WriteFile(pubPath, pubPEM, 0600))

	p, err := jwtinfra.NewProvider(config.JWT{
		PrivateKeyPath: privPath,
		PublicKeyPath:  pubPath,
		Expiry:         time.Hour,
	})
	require.NoError(t, err)
	return p
}

// bearerReq builds a request with a signed Bearer token for the given user.
func bearerReq(t *testing.T, p *jwtinfra.Provider, method, target, userID, role string, body []byte) *http.Request {
	t.Helper()
	token, err := p.Sign(userID, userID+"@example.com", role)
	require.NoError(t, err)
	var r *http.Request
	if body != nil {
		r = httptest.NewRequest(method, target, bytes.NewReader(body))
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	r.Header.Set("Authorization", "Bearer "+token)
	return r
}

// serveAuthed wraps the handler with middleware.Auth before serving.
func serveAuthed(p *jwtinfra.Provider, h http.Handler, w http.ResponseWriter, r *http.Request) {
	middleware.Auth(p)(h).ServeHTTP(w, r)
}

// asUser attaches claims directly, skipping token signing.
func asUser(r *http.Request, userID, email string) *http.Request {
	return r.WithContext(middleware.WithClaims(r.Context(), &jwtinfra.Claims{
		UserID: userID, Email: email, Role: domain.RoleUser,
	}))
}

// withChiParam injects a chi URL param into the request context.
func withChiParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func jsonBody(t *testing.T, v interface{}) *bytes.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(b)
}
