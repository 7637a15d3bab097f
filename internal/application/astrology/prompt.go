package astrology

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/matrimony-api/internal/domain"
)

const vedicNames = `Use Vedic names only. Planets: Surya, Chandra, Mangala, Budha, Guru, Shukra, Shani, Rahu, Ketu.
Rashis: Mesha, Vrishabha, Mithuna, Karka, Simha, Kanya, Tula, Vrischika, Dhanu, Makara, Kumbha, Meena.`

// BuildPrompt renders the insight request for one entry. The reply contract
// is strict JSON with keys that depend on the consultation mode.
func BuildPrompt(e domain.AstrologyEntry, chart, partnerChart json.RawMessage) string {
	var b strings.Builder
	b.WriteString("You are an expert Vedic astrologer.\n")
	switch e.ConsultationMode {
	case domain.ModeKundliMatching:
		fmt.Fprintf(&b, "Assess marriage compatibility of two birth charts.\nPartner 1 (%s): %s\nPartner 2 (%s): %s\n",
			e.Gender, chart, e.PartnerGender, partnerChart)
		b.WriteString(vedicNames + "\n")
		b.WriteString(`Reply with JSON only: {"compatibility_summary": string of 3-4 lines, "score": integer 0-100 from Guna Milan, ` +
			`"verdict": "Excellent Match" (80+) | "Good Match" (65-79) | "Average Match" (50-64) | "Does Not Match" (<50)}`)
	case domain.ModePersonalized:
		fmt.Fprintf(&b, "Birth chart: %s\nQuestion: %q\n", chart, e.Query)
		b.WriteString(vedicNames + "\n")
		b.WriteString(`Reply with JSON only: {"answer": array of 6-7 one-line strings, "easy_remedy": string, "costly_remedy": string}`)
	default:
		fmt.Fprintf(&b, "Birth chart: %s\n", chart)
		b.WriteString(vedicNames + "\n")
		b.WriteString(`Reply with JSON only: {"personality_summary": string of 3-4 lines, ` +
			`"positive_traits": 4 short strings naming planet and house, "negative_traits": 3 short strings naming planet and house}`)
	}
	return b.String()
}
