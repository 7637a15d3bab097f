package astrology

import (
	"math"
	"time"
)

// Business-hours window in which readings are processed soon after request.
const (
	dayStartHour = 8
	dayEndHour   = 22
)

// NextDelay returns how long to wait before processing a reading requested at
// now. Between 08:00 and 22:00 business-local time it is 25 to 41 minutes;
// otherwise the job waits for a random minute between 08:12 and 08:50 of the
// next morning, rounded up to whole minutes. intn is a rand.Intn-like source.
func NextDelay(now time.Time, zone *time.Location, intn func(n int) int) time.Duration {
	local := now.In(zone)
	if h := local.Hour(); h >= dayStartHour && h < dayEndHour {
		return time.Duration(25+intn(17)) * time.Minute
	}
	day := local
	if local.Hour() >= dayEndHour {
		day = local.AddDate(0, 0, 1)
	}
	target := time.Date(day.Year(), day.Month(), day.Day(), dayStartHour, 12+intn(39), 0, 0, zone)
	mins := math.Ceil(target.Sub(now).Minutes())
	return time.Duration(mins) * time.Minute
}
