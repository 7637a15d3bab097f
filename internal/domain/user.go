package domain

import "time"

// Credit costs of ledger actions.
const (
	SendInterestCost = 1
	ViewContactCost  = 5
)

type User struct {
	UserID       string     `json:"id" dynamodbav:"user_id"`
	DisplayID    string     `json:"display_id" dynamodbav:"display_id"`
	Email        string     `json:"email" dynamodbav:"email"`
	Mobile       string     `json:"mobile" dynamodbav:"mobile"`
	AlternateMob string     `json:"alternate_mob,omitempty" dynamodbav:"alternate_mob"`
	PasswordHash string     `json:"-" dynamodbav:"password_hash"`
	Role         string     `json:"role" dynamodbav:"role"`
	FullName     string     `json:"full_name" dynamodbav:"full_name"`
	Gender       string     `json:"gender" dynamodbav:"gender"`
	Dob          *time.Time `json:"dob,omitempty" dynamodbav:"dob"`
	Age          int        `json:"age" dynamodbav:"age"`
	Profile      Profile    `json:"profile" dynamodbav:"profile"`
	Images       []Image    `json:"images" dynamodbav:"images"`

	Interests    Interests        `json:"interests" dynamodbav:"interests"`
	Transactions []Transaction    `json:"transactions" dynamodbav:"transactions"`
	TxnRefs      []string         `json:"-" dynamodbav:"txn_refs"`
	Astrology    []AstrologyEntry `json:"astrology" dynamodbav:"astrology"`

	IsHidden           bool     `json:"is_hidden" dynamodbav:"is_hidden"`
	HideProfiles       []string `json:"hide_profiles" dynamodbav:"hide_profiles"`
	IsVerified         bool     `json:"is_verified" dynamodbav:"is_verified"`
	IsCorrupted        bool     `json:"is_corrupted" dynamodbav:"is_corrupted"`
	HasCompleteProfile bool     `json:"has_complete_profile" dynamodbav:"has_complete_profile"`

	Version   int64     `json:"-" dynamodbav:"version"`
	CreatedAt time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt time.Time `json:"updated" dynamodbav:"updated_at"`
}

// Profile holds the descriptive attributes used by discovery filters.
type Profile struct {
	MaritalStatus  string  `json:"marital_status" dynamodbav:"marital_status"`
	MotherTongue   string  `json:"mother_tongue" dynamodbav:"mother_tongue"`
	ProfileCreator string  `json:"profile_created_by" dynamodbav:"profile_created_by"`
	Gotra          string  `json:"gotra" dynamodbav:"gotra"`
	SubCaste       string  `json:"sub_caste" dynamodbav:"sub_caste"`
	Qualification  string  `json:"qualification" dynamodbav:"qualification"`
	EmployedIn     string  `json:"employed_in" dynamodbav:"employed_in"`
	Country        string  `json:"country" dynamodbav:"country"`
	Height         float64 `json:"height" dynamodbav:"height"`
	Rashi          string  `json:"rashi" dynamodbav:"rashi"`
	Nakshatra      string  `json:"nakshatra" dynamodbav:"nakshatra"`
	About          string  `json:"about" dynamodbav:"about"`
}

// Image is a stored object reference (profile photo or identity proof).
type Image struct {
	URL    string `json:"url" dynamodbav:"url"`
	FileID string `json:"file_id" dynamodbav:"file_id"`
}

// Interest list names, as stored inside the interests map.
const (
	ListSent     = "sent"
	ListReceived = "received"
	ListAccepted = "accepted"
	ListDeclined = "declined"
	ListViewed   = "viewed"
)

// Interests is the embedded interest/credit ledger of a user.
// Lists keep insertion order; duplicate checks go through IDSet.
type Interests struct {
	Sent              []string `json:"sent" dynamodbav:"sent"`
	Received          []string `json:"received" dynamodbav:"received"`
	Accepted          []string `json:"accepted" dynamodbav:"accepted"`
	Declined          []string `json:"declined" dynamodbav:"declined"`
	Viewed            []string `json:"viewed" dynamodbav:"viewed"`
	TotalNoOfInterest int      `json:"total_no_of_interest" dynamodbav:"total_no_of_interest"`
}

// NewInterests returns a ledger with empty, non-nil lists so that store-side
// list_append always finds a list attribute.
func NewInterests(credits int) Interests {
	return Interests{
		Sent:              []string{},
		Received:          []string{},
		Accepted:          []string{},
		Declined:          []string{},
		Viewed:            []string{},
		TotalNoOfInterest: credits,
	}
}

// Remaining is the spendable credit balance. Consumption is derived from the
// sent and viewed lists rather than stored.
func (i Interests) Remaining() int {
	return i.TotalNoOfInterest - (len(i.Sent)*SendInterestCost + len(i.Viewed)*ViewContactCost)
}

// IDSet indexes a list of ids for constant-time membership checks.
type IDSet map[string]struct{}

func NewIDSet(ids ...[]string) IDSet {
	s := IDSet{}
	for _, list := range ids {
		for _, id := range list {
			s[id] = struct{}{}
		}
	}
	return s
}

func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Transaction is an append-only payment record.
type Transaction struct {
	OrderID      string    `json:"order_id,omitempty" dynamodbav:"order_id"`
	PaymentID    string    `json:"payment_id,omitempty" dynamodbav:"payment_id"`
	AmountPaid   float64   `json:"amount_paid" dynamodbav:"amount_paid"`
	NoOfInterest int       `json:"no_of_interest" dynamodbav:"no_of_interest"`
	Note         string    `json:"note,omitempty" dynamodbav:"note"`
	DateOfTrans  time.Time `json:"date_of_trans" dynamodbav:"date_of_trans"`
}

// TxnRefs returns the index entries guarding this transaction against reuse
// of its order or payment id.
func (t Transaction) TxnRefs() []string {
	var refs []string
	if t.OrderID != "" {
		refs = append(refs, OrderRef(t.OrderID))
	}
	if t.PaymentID != "" {
		refs = append(refs, PaymentRef(t.PaymentID))
	}
	return refs
}

func OrderRef(orderID string) string     { return "order:" + orderID }
func PaymentRef(paymentID string) string { return "payment:" + paymentID }

// HasTransaction reports whether a transaction with the given non-empty order
// or payment id is already recorded.
func (u *User) HasTransaction(orderID, paymentID string) bool {
	refs := NewIDSet(u.TxnRefs)
	for _, t := range u.Transactions {
		for _, r := range t.TxnRefs() {
			refs[r] = struct{}{}
		}
	}
	if orderID != "" && refs.Has(OrderRef(orderID)) {
		return true
	}
	return paymentID != "" && refs.Has(PaymentRef(paymentID))
}

// ContactCard is the subset of a user disclosed once contact is unlocked.
type ContactCard struct {
	UserID       string `json:"id"`
	DisplayID    string `json:"display_id"`
	FullName     string `json:"full_name"`
	Email        string `json:"email,omitempty"`
	Mobile       string `json:"mobile,omitempty"`
	AlternateMob string `json:"alternate_mob,omitempty"`
}

func (u *User) Contact() ContactCard {
	return ContactCard{
		UserID:       u.UserID,
		DisplayID:    u.DisplayID,
		FullName:     u.FullName,
		Email:        u.Email,
		Mobile:       u.Mobile,
		AlternateMob: u.AlternateMob,
	}
}

// RegistrationPayload is the data needed to create a user. It is cached while a
// registration payment is pending, so it carries the password hash only.
type RegistrationPayload struct {
	Email          string  `json:"email"`
	PasswordHash   string  `json:"password_hash"`
	FullName       string  `json:"full_name"`
	Mobile         string  `json:"mobile"`
	AlternateMob   string  `json:"alternate_mob,omitempty"`
	Dob            string  `json:"dob,omitempty"`
	Gender         string  `json:"gender,omitempty"`
	MotherTongue   string  `json:"mother_tongue,omitempty"`
	MaritalStatus  string  `json:"marital_status,omitempty"`
	ProfileCreator string  `json:"profile_created_by,omitempty"`
	SubCaste       string  `json:"sub_caste,omitempty"`
	Qualification  string  `json:"qualification,omitempty"`
	Gotra          string  `json:"gotra,omitempty"`
	Images         []Image `json:"images,omitempty"`
	OrderID        string  `json:"order_id,omitempty"`
	PaymentID      string  `json:"payment_id,omitempty"`
	Amount         float64 `json:"amount,omitempty"`
	NoOfInterest   int     `json:"no_of_interest,omitempty"`
}

type CreateUserRequest struct {
	Email          string  `json:"email" validate:"required,email"`
	Password       string  `json:"password" validate:"required,min=8,max=72"`
	FullName       string  `json:"full_name" validate:"required"`
	Mobile         string  `json:"mobile" validate:"required"`
	AlternateMob   string  `json:"alternate_mob"`
	Dob            string  `json:"dob"` // YYYY-MM-DD
	Gender         string  `json:"gender" validate:"omitempty,oneof=male female Male Female"`
	MotherTongue   string  `json:"mother_tongue"`
	MaritalStatus  string  `json:"marital_status"`
	ProfileCreator string  `json:"profile_created_by"`
	SubCaste       string  `json:"sub_caste"`
	Qualification  string  `json:"qualification"`
	Gotra          string  `json:"gotra"`
	Images         []Image `json:"images"`
	OrderID        string  `json:"order_id"`
	PaymentID      string  `json:"payment_id"`
	Amount         float64 `json:"amount"`
	NoOfInterest   int     `json:"no_of_interest" validate:"gte=0"`
}

type UpdateProfileRequest struct {
	FullName     *string  `json:"full_name"`
	AlternateMob *string  `json:"alternate_mob"`
	Gender       *string  `json:"gender"`
	Dob          *string  `json:"dob"` // YYYY-MM-DD
	Profile      *Profile `json:"profile"`
	Images       []Image  `json:"images"`
}

// ProfileCard is the view of another user shown in discovery. Contact
// details stay hidden until unlocked through the ledger.
type ProfileCard struct {
	UserID     string     `json:"id"`
	DisplayID  string     `json:"display_id"`
	FullName   string     `json:"full_name"`
	Gender     string     `json:"gender"`
	Dob        *time.Time `json:"dob,omitempty"`
	Age        int        `json:"age"`
	Profile    Profile    `json:"profile"`
	Images     []Image    `json:"images"`
	IsVerified bool       `json:"is_verified"`
}

func (u *User) Card() ProfileCard {
	return ProfileCard{
		UserID:     u.UserID,
		DisplayID:  u.DisplayID,
		FullName:   u.FullName,
		Gender:     u.Gender,
		Dob:        u.Dob,
		Age:        u.Age,
		Profile:    u.Profile,
		Images:     u.Images,
		IsVerified: u.IsVerified,
	}
}

// DiscoverFilter narrows discovery. Zero values and empty lists match
// everything. A profile without a height passes any height range.
type DiscoverFilter struct {
	AgeFrom       int      `json:"age_from"`
	AgeTo         int      `json:"age_to"`
	HeightFrom    float64  `json:"height_from"`
	HeightTo      float64  `json:"height_to"`
	MaritalStatus []string `json:"marital_status"`
	SubCaste      []string `json:"sub_caste"`
	EmployedIn    []string `json:"employed_in"`
	Qualification []string `json:"qualification"`
	Country       []string `json:"country"`
}

type DiscoverPage struct {
	Profiles      []ProfileCard `json:"profiles"`
	TotalProfiles int           `json:"total_profiles"`
	TotalPages    int           `json:"total_pages"`
	Page          int           `json:"page"`
	Limit         int           `json:"limit"`
}

// AgeAt returns the completed years between dob and now.
func AgeAt(dob, now time.Time) int {
	age := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		age--
	}
	return age
}
