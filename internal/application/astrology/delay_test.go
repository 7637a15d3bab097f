package astrology

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kolkata(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	return loc
}

func lowest(int) int    { return 0 }
func highest(n int) int { return n - 1 }

func TestNextDelay_DaytimeWindow(t *testing.T) {
	zone := kolkata(t)
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, zone)

	assert.Equal(t, 25*time.Minute, NextDelay(now, zone, lowest))
	assert.Equal(t, 41*time.Minute, NextDelay(now, zone, highest))
}

func TestNextDelay_LateNightWaitsForTomorrowMorning(t *testing.T) {
	zone := kolkata(t)
	now := time.Date(2026, 3, 10, 23, 0, 0, 0, zone)

	assert.Equal(t, 9*time.Hour+12*time.Minute, NextDelay(now, zone, lowest))
	assert.Equal(t, 9*time.Hour+50*time.Minute, NextDelay(now, zone, highest))
}

func TestNextDelay_EarlyMorningWaitsForToday(t *testing.T) {
	zone := kolkata(t)
	now := time.Date(2026, 3, 10, 6, 0, 0, 0, zone)
	assert.Equal(t, 2*time.Hour+12*time.Minute, NextDelay(now, zone, lowest))
}

func TestNextDelay_RoundsUpToWholeMinutes(t *testing.T) {
	zone := kolkata(t)
	now := time.Date(2026, 3, 10, 6, 0, 30, 0, zone)
	assert.Equal(t, 132*time.Minute, NextDelay(now, zone, lowest))
}

func TestNextDelay_Boundaries(t *testing.T) {
	zone := kolkata(t)

	at22 := time.Date(2026, 3, 10, 22, 0, 0, 0, zone)
	assert.Equal(t, 10*time.Hour+12*time.Minute, NextDelay(at22, zone, lowest))

	at8 := time.Date(2026, 3, 10, 8, 0, 0, 0, zone)
	assert.Equal(t, 25*time.Minute, NextDelay(at8, zone, lowest))
}

func TestNextDelay_UsesBusinessZoneNotCallerZone(t *testing.T) {
	zone := kolkata(t)
	// 17:00 UTC is 22:30 in Kolkata.
	now := time.Date(2026, 3, 10, 17, 0, 0, 0, time.UTC)
	assert.Equal(t, 9*time.Hour+42*time.Minute, NextDelay(now, zone, lowest))
}
