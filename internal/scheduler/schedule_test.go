package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvery(t *testing.T) {
	now := time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, now.Add(5*time.Minute), Every(5*time.Minute).Next(now))
}

func TestDailyAtNext(t *testing.T) {
	loc := time.FixedZone("test", 8*3600)
	d, err := ParseDailyAt("03:00", loc)
	require.NoError(t, err)

	tests := []struct {
		name  string
		after time.Time
		want  time.Time
	}{
		{"before today's run", time.Date(2026, 10, 18, 2, 59, 0, 0, loc), time.Date(2026, 10, 18, 3, 0, 0, 0, loc)},
		{"exactly at run time", time.Date(2026, 10, 18, 3, 0, 0, 0, loc), time.Date(2026, 10, 19, 3, 0, 0, 0, loc)},
		{"after today's run", time.Date(2026, 10, 18, 13, 0, 0, 0, loc), time.Date(2026, 10, 19, 3, 0, 0, 0, loc)},
		{"other zone input", time.Date(2026, 10, 18, 18, 30, 0, 0, time.UTC), time.Date(2026, 10, 19, 3, 0, 0, 0, loc)},
		{"month rollover", time.Date(2026, 10, 31, 23, 0, 0, 0, loc), time.Date(2026, 11, 1, 3, 0, 0, 0, loc)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.want.Equal(d.Next(tt.after)), "got %s want %s", d.Next(tt.after), tt.want)
		})
	}
}

func TestParseDailyAtInvalid(t *testing.T) {
	for _, s := range []string{"", "3am", "25:00", "03:61"} {
		_, err := ParseDailyAt(s, time.UTC)
		assert.Error(t, err, s)
	}
}

func TestScheduleStrings(t *testing.T) {
	assert.Equal(t, "every 5m0s", Every(5*time.Minute).String())
	assert.Equal(t, "daily at 03:00", DailyAt{Hour: 3}.String())
}
