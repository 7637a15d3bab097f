package domain

import "time"

// Broker is a matchmaking agent. ReferralID stays empty until the delayed
// completion job assigns it; login is refused until then.
type Broker struct {
	BrokerID     string    `json:"id" dynamodbav:"broker_id"`
	Name         string    `json:"name" dynamodbav:"name"`
	Email        string    `json:"email" dynamodbav:"email"`
	Phone        string    `json:"phone" dynamodbav:"phone"`
	PasswordHash string    `json:"-" dynamodbav:"password_hash"`
	CompanyName  string    `json:"company_name,omitempty" dynamodbav:"company_name"`
	Address      string    `json:"address,omitempty" dynamodbav:"address"`
	Note         string    `json:"note,omitempty" dynamodbav:"note"`
	Caste        []string  `json:"caste,omitempty" dynamodbav:"caste"`
	MotherTongue []string  `json:"mother_tongue,omitempty" dynamodbav:"mother_tongue"`
	ReferralID   string    `json:"referral_id,omitempty" dynamodbav:"referral_id,omitempty"`
	IDProofs     []Image   `json:"id_proofs" dynamodbav:"id_proofs"`
	CreatedAt    time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt    time.Time `json:"updated" dynamodbav:"updated_at"`
}

type CreateBrokerRequest struct {
	Name            string   `json:"name" validate:"required"`
	Email           string   `json:"email" validate:"required,email"`
	Phone           string   `json:"phone" validate:"required"`
	Password        string   `json:"password" validate:"required,min=8,max=72"`
	ConfirmPassword string   `json:"confirm_password" validate:"required,eqfield=Password"`
	CompanyName     string   `json:"company_name"`
	Address         string   `json:"address"`
	Note            string   `json:"note"`
	Caste           []string `json:"caste"`
	MotherTongue    []string `json:"mother_tongue"`
	IDProofs        []Image  `json:"id_proofs"`
	PaymentID       string   `json:"payment_id"`
	AmountPaid      float64  `json:"amount_paid"`
}
