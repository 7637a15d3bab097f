package domain

import "time"

// Consultation modes accepted by the astrology pipeline.
const (
	ModeOverview       = "Overview"
	ModePersonalized   = "Personalized"
	ModeKundliMatching = "Kundli Matching"
)

// Astrology entry lifecycle states.
const (
	AstrologyPending   = "pending"
	AstrologyCompleted = "completed"
)

func ValidConsultationMode(mode string) bool {
	switch mode {
	case ModeOverview, ModePersonalized, ModeKundliMatching:
		return true
	}
	return false
}

// AstrologyEntry is one reading request. UID correlates the request with the
// delayed job that completes it. Birth dates are kept as submitted; a value
// without a UTC offset is a wall-clock time at the birth place.
type AstrologyEntry struct {
	UID              string     `json:"uid" dynamodbav:"uid"`
	Name             string     `json:"name" dynamodbav:"name"`
	Dob              string     `json:"dob" dynamodbav:"dob"`
	Place            string     `json:"place" dynamodbav:"place"`
	Gender           string     `json:"gender" dynamodbav:"gender"`
	PartnerName      string     `json:"partner_name,omitempty" dynamodbav:"partner_name"`
	PartnerDob       string     `json:"partner_dob,omitempty" dynamodbav:"partner_dob"`
	PartnerPlace     string     `json:"partner_place,omitempty" dynamodbav:"partner_place"`
	PartnerGender    string     `json:"partner_gender,omitempty" dynamodbav:"partner_gender"`
	ConsultationMode string     `json:"consultation_mode" dynamodbav:"consultation_mode"`
	Query            string     `json:"query,omitempty" dynamodbav:"query"`
	Status           string     `json:"status" dynamodbav:"status"`
	AIResponse       string     `json:"ai_response,omitempty" dynamodbav:"ai_response"`
	CreatedAt        time.Time  `json:"created_at" dynamodbav:"created_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty" dynamodbav:"completed_at"`
}

// HasPartner reports whether a second chart must be computed.
func (e *AstrologyEntry) HasPartner() bool {
	return e.PartnerPlace != "" && e.PartnerDob != ""
}

// FindAstrology returns the index of the entry with the given correlation id, or -1.
func (u *User) FindAstrology(uid string) int {
	for i := range u.Astrology {
		if u.Astrology[i].UID == uid {
			return i
		}
	}
	return -1
}

// BirthData is a birth moment normalized to the local wall clock of the birth
// place, in the shape the ephemeris API expects.
type BirthData struct {
	Year      int     `json:"year"`
	Month     int     `json:"month"`
	Date      int     `json:"date"`
	Hours     int     `json:"hours"`
	Minutes   int     `json:"minutes"`
	Seconds   int     `json:"seconds"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timezone  float64 `json:"timezone"`
}
