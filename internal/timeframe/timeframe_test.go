package timeframe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRange(t *testing.T) {
	testCases := []struct {
		input    string
		expected RangeLabel
		days     int
	}{
		{"", RangeLast7Days, 7},
		{"24h", RangeLast24Hours, 1},
		{"7d", RangeLast7Days, 7},
		{" 30D ", RangeLast30Days, 30},
		{"90d", RangeLast90Days, 90},
		{"1y", RangeLast90Days, 90},
		{"garbage", RangeLast90Days, 90},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			label := ParseRange(tc.input)
			assert.Equal(t, tc.expected, label)
			assert.Equal(t, tc.days, label.Days())
		})
	}
}

func TestValidateRange(t *testing.T) {
	label, err := ValidateRange(" 24H")
	require.NoError(t, err)
	assert.Equal(t, RangeLast24Hours, label)

	label, err = ValidateRange("")
	require.NoError(t, err)
	assert.Equal(t, DefaultRange, label)

	_, err = ValidateRange("1y")
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestNewTimeFrame(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	now := time.Date(2026, 3, 10, 9, 30, 0, 0, loc)

	tf := NewTimeFrame(RangeLast24Hours, now)
	assert.Equal(t, time.UTC, tf.To.Location())
	assert.True(t, tf.To.Equal(now))
	assert.Equal(t, 24*time.Hour, tf.To.Sub(tf.From))
	assert.True(t, tf.Contains(now.Add(-2*time.Hour)))
	assert.False(t, tf.Contains(now.Add(-25*time.Hour)))
	assert.False(t, tf.Contains(now.Add(time.Minute)))

	month := NewTimeFrame(RangeLast30Days, now)
	assert.True(t, month.From.Equal(now.UTC().AddDate(0, 0, -30)))
}

func TestLast(t *testing.T) {
	now := FixedTimeProvider{At: time.Date(2026, 1, 1, 0, 3, 0, 0, time.UTC)}.Now()
	tf := Last(5*time.Minute, now)

	assert.Equal(t, time.Date(2025, 12, 31, 23, 58, 0, 0, time.UTC), tf.From)
	assert.Equal(t, RangeLabel(""), tf.Label)
}
