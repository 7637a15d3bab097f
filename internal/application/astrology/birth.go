package astrology

import (
	"fmt"
	"time"

	"github.com/matrimony-api/internal/domain"
	"github.com/matrimony-api/internal/infrastructure/geo"
)

// Accepted birth date layouts. Layouts without an offset are read in the
// birth place's zone.
var birthLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

func parseBirth(value string, zone *time.Location) (time.Time, error) {
	for _, layout := range birthLayouts {
		if t, err := time.ParseInLocation(layout, value, zone); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised birth date %q: %w", value, domain.ErrBadRequest)
}

// ValidBirthDate reports whether value is in one of the accepted layouts.
func ValidBirthDate(value string) bool {
	_, err := parseBirth(value, time.UTC)
	return err == nil
}

// Normalize expresses a birth moment in the local wall clock of its place,
// with the UTC offset in effect at that moment.
func Normalize(dob string, zone *time.Location, loc geo.Location) (domain.BirthData, error) {
	t, err := parseBirth(dob, zone)
	if err != nil {
		return domain.BirthData{}, err
	}
	local := t.In(zone)
	_, offset := local.Zone()
	return domain.BirthData{
		Year:      local.Year(),
		Month:     int(local.Month()),
		Date:      local.Day(),
		Hours:     local.Hour(),
		Minutes:   local.Minute(),
		Seconds:   local.Second(),
		Latitude:  loc.Latitude,
		Longitude: loc.Longitude,
		Timezone:  float64(offset) / 3600,
	}, nil
}
