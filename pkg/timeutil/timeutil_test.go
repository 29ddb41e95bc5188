package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadLocation(t *testing.T) {
	tests := []struct {
		name   string
		offset int
	}{
		{"", 0},
		{"UTC", 0},
		{"UTC+5", 5 * 3600},
		{"utc-03:30", -(3*3600 + 30*60)},
		{"UTC+05:45", 5*3600 + 45*60},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc, err := LoadLocation(tt.name)
			require.NoError(t, err)
			_, off := time.Date(2026, 3, 10, 0, 0, 0, 0, loc).Zone()
			assert.Equal(t, tt.offset, off)
		})
	}

	loc, err := LoadLocation("Asia/Almaty")
	require.NoError(t, err)
	assert.NotNil(t, loc)

	for _, bad := range []string{"Mars/Olympus", "UTC+", "UTC*5", "UTC+99", "UTC+5:75"} {
		_, err := LoadLocation(bad)
		assert.Error(t, err, bad)
	}
}

func TestDayBoundaries(t *testing.T) {
	// 20:30 UTC is 01:30 on the next day in Almaty.
	at := time.Date(2026, 3, 10, 20, 30, 0, 0, time.UTC)

	assert.True(t, StartOfDay(at, AlmatyTZ).Equal(time.Date(2026, 3, 11, 0, 0, 0, 0, AlmatyTZ)))
	assert.True(t, NextMidnight(at, AlmatyTZ).Equal(time.Date(2026, 3, 12, 0, 0, 0, 0, AlmatyTZ)))
	assert.Equal(t, 22*time.Hour+30*time.Minute, UntilNextMidnight(at, AlmatyTZ))
	assert.Equal(t, 3*time.Hour+30*time.Minute, UntilNextMidnight(at, time.UTC))
}
