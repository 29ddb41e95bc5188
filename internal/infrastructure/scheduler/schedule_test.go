package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSchedule_CronNext(t *testing.T) {
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) // Tuesday

	tests := []struct {
		spec string
		want time.Time
	}{
		{"*/15 * * * *", time.Date(2026, 3, 10, 12, 15, 0, 0, time.UTC)},
		{"0 * * * *", time.Date(2026, 3, 10, 13, 0, 0, 0, time.UTC)},
		{"5 0 * * *", time.Date(2026, 3, 11, 0, 5, 0, 0, time.UTC)},
		{"0 3 * * 0", time.Date(2026, 3, 15, 3, 0, 0, 0, time.UTC)},
		{"0 9 1 * *", time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)},
		{"30 8-10/2 * * 1-5", time.Date(2026, 3, 11, 8, 30, 0, 0, time.UTC)},
		{"0,30 12 * * *", time.Date(2026, 3, 10, 12, 30, 0, 0, time.UTC)},
		{"50/5 12 * * *", time.Date(2026, 3, 10, 12, 50, 0, 0, time.UTC)},
		{"0 0 29 2 *", time.Date(2028, 2, 29, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			s, err := ParseSchedule(tt.spec)
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.Next(base))
			assert.Equal(t, tt.spec, s.String())
		})
	}
}

func TestParseSchedule_CronUsesZoneOfInput(t *testing.T) {
	almaty := time.FixedZone("UTC+5", 5*60*60)
	s, err := ParseSchedule("5 0 * * *")
	require.NoError(t, err)

	// 20:00 UTC is already 01:00 the next day in UTC+5.
	at := time.Date(2026, 3, 10, 20, 0, 0, 0, time.UTC).In(almaty)
	assert.Equal(t, time.Date(2026, 3, 12, 0, 5, 0, 0, almaty), s.Next(at))
}

func TestParseSchedule_Every(t *testing.T) {
	s, err := ParseSchedule("@every 15m")
	require.NoError(t, err)
	assert.Equal(t, Every(15*time.Minute), s)
	assert.Equal(t, "@every 15m0s", s.String())

	at := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, at.Add(15*time.Minute), s.Next(at))
	assert.True(t, Every(0).Next(at).IsZero())
}

func TestParseSchedule_Invalid(t *testing.T) {
	for _, spec := range []string{
		"",
		"* * * *",
		"60 * * * *",
		"* 24 * * *",
		"*/0 * * * *",
		"5-1 * * * *",
		"a * * * *",
		"* * * * 1-x",
		"1,99 * * * *",
		"@every",
		"@every soon",
		"@every -5m",
		"@every 0s",
	} {
		_, err := ParseSchedule(spec)
		assert.Error(t, err, spec)
	}
}

func TestCron_NeverMatching(t *testing.T) {
	s, err := ParseSchedule("0 0 31 2 *")
	require.NoError(t, err)
	assert.True(t, s.Next(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)).IsZero())
}
