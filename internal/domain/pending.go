package domain

import "encoding/json"

// Payment purposes. Each has its own pending-operation namespace.
const (
	PurposeRegistration = "registration"
	PurposeInterests    = "interests"
	PurposeAstrology    = "astrology"
)

var Purposes = []string{PurposeRegistration, PurposeInterests, PurposeAstrology}

func ValidPurpose(p string) bool {
	for _, v := range Purposes {
		if v == p {
			return true
		}
	}
	return false
}

// PendingOperation is a short-lived cache record bridging an initiated order
// and the webhook or client call that confirms it. It is never persisted to
// the document store.
type PendingOperation struct {
	Purpose   string          `json:"purpose"`
	Email     string          `json:"email"`
	OrderID   string          `json:"order_id"`
	PaymentID string          `json:"payment_id,omitempty"`
	Amount    float64         `json:"amount"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// PendingKey is the cache key of a pending operation.
func PendingKey(purpose, email string) string {
	return "pending_" + purpose + ":" + email
}

// RegistrationOTP is the cached OTP pair sent during registration.
type RegistrationOTP struct {
	EmailOTP  string `json:"email_otp"`
	MobileOTP string `json:"mobile_otp"`
	Mobile    string `json:"mobile"`
}

// Delayed job targets.
const (
	JobPaymentReconcile = "payment-reconcile"
	JobAstrology        = "astrology"
	JobBrokerCompletion = "broker-completion"
)

// AstrologyJob is the payload of the astrology processing job.
type AstrologyJob struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
}

// BrokerCompletionJob is the payload of the broker completion job.
type BrokerCompletionJob struct {
	Email string `json:"email"`
}
