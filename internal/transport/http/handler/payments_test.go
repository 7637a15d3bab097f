package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/matrimony-api/internal/application/payment"
	"github.com/matrimony-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestWebhook_PassesRawBodyAndSignature(t *testing.T) {
	svc := &mockPaymentSvc{}
	raw := []byte(`{"event":"payment.captured","payload":{}}`)
	svc.On("HandleWebhook", mock.Anything, raw, "sig").Return("completed", nil)
	h := NewPaymentHandler(svc)

	r := httptest.NewRequest(http.MethodPost, "/v1/payments/webhook", bytes.NewReader(raw))
	r.Header.Set(SignatureHeader, "sig")
	rr := httptest.NewRecorder()
	h.Webhook(rr, r)
	require.Equal(t, http.StatusOK, rr.Code)

	var env StatusEnvelope
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&env))
	assert.Equal(t, "completed", env.Status)
	svc.AssertExpectations(t)
}

func TestWebhook_BadSignature(t *testing.T) {
	svc := &mockPaymentSvc{}
	svc.On("HandleWebhook", mock.Anything, mock.Anything, "forged").Return("", domain.ErrUnauthorized)
	h := NewPaymentHandler(svc)

	r := httptest.NewRequest(http.MethodPost, "/v1/payments/webhook", bytes.NewBufferString(`{}`))
	r.Header.Set(SignatureHeader, "forged")
	rr := httptest.NewRecorder()
	h.Webhook(rr, r)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestCreateOrder_ValidationFailure(t *testing.T) {
	svc := &mockPaymentSvc{}
	h := NewPaymentHandler(svc)

	r := httptest.NewRequest(http.MethodPost, "/v1/payments/orders",
		jsonBody(t, payment.OrderRequest{Purpose: domain.PurposeInterests, Email: "not-an-email", Amount: 100}))
	rr := httptest.NewRecorder()
	h.CreateOrder(rr, r)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	svc.AssertNotCalled(t, "InitiateOrder", mock.Anything, mock.Anything)
}

func TestCreateOrder_HappyPath(t *testing.T) {
	svc := &mockPaymentSvc{}
	svc.On("InitiateOrder", mock.Anything, mock.AnythingOfType("payment.OrderRequest")).
		Return(&payment.OrderHandle{OrderID: "order_1", Amount: 49900, Currency: "INR", KeyID: "rzp_test"}, nil)
	h := NewPaymentHandler(svc)

	r := httptest.NewRequest(http.MethodPost, "/v1/payments/orders",
		jsonBody(t, payment.OrderRequest{Purpose: domain.PurposeInterests, Email: "asha@example.com", Amount: 499}))
	rr := httptest.NewRecorder()
	h.CreateOrder(rr, r)
	require.Equal(t, http.StatusCreated, rr.Code)

	var order payment.OrderHandle
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&order))
	assert.Equal(t, int64(49900), order.Amount)
}

func TestPaymentStatus(t *testing.T) {
	svc := &mockPaymentSvc{}
	svc.On("PaymentStatus", mock.Anything, "order_1").Return(&payment.OrderStatus{OrderID: "order_1", Status: "paid"}, nil)
	h := NewPaymentHandler(svc)

	r := withChiParam(httptest.NewRequest(http.MethodGet, "/v1/payments/orders/order_1/status", nil), "id", "order_1")
	rr := httptest.NewRecorder()
	h.Status(rr, r)
	require.Equal(t, http.StatusOK, rr.Code)
	var st payment.OrderStatus
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&st))
	assert.Equal(t, "paid", st.Status)
}
