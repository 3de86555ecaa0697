package impact

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func naive(y int, m time.Month, d, h, min int) time.Time {
	return time.Date(y, m, d, h, min, 0, 0, time.UTC)
}

func TestLocalizer_Regular(t *testing.T) {
	l, err := NewLocalizer("Europe/Warsaw")
	require.NoError(t, err)

	winter, ok := l.ToUTC(naive(2024, time.January, 15, 15, 30))
	require.True(t, ok)
	assert.Equal(t, naive(2024, time.January, 15, 14, 30), winter)

	summer, ok := l.ToUTC(naive(2024, time.July, 1, 15, 30))
	require.True(t, ok)
	assert.Equal(t, naive(2024, time.July, 1, 13, 30), summer)
}

func TestLocalizer_NonexistentShiftsForward(t *testing.T) {
	l, err := NewLocalizer("Europe/Warsaw")
	require.NoError(t, err)

	// 02:30 does not exist on 2024-03-31; clocks jump 02:00 -> 03:00 CEST
	got, ok := l.ToUTC(naive(2024, time.March, 31, 2, 30))
	require.True(t, ok)
	assert.Equal(t, naive(2024, time.March, 31, 1, 0), got)
}

func TestLocalizer_AmbiguousIsDropped(t *testing.T) {
	l, err := NewLocalizer("Europe/Warsaw")
	require.NoError(t, err)

	// 02:30 occurs twice on 2024-10-27
	_, ok := l.ToUTC(naive(2024, time.October, 27, 2, 30))
	assert.False(t, ok)

	got, ok := l.ToUTC(naive(2024, time.October, 27, 3, 30))
	require.True(t, ok)
	assert.Equal(t, naive(2024, time.October, 27, 2, 30), got)
}

func TestLocalizer_IgnoresInputLocation(t *testing.T) {
	l, err := NewLocalizer("America/New_York")
	require.NoError(t, err)

	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	got, ok := l.ToUTC(time.Date(2024, time.January, 15, 9, 30, 0, 0, tokyo))
	require.True(t, ok)
	assert.Equal(t, naive(2024, time.January, 15, 14, 30), got)
}

func TestLocalizer_ZeroValueIsUTC(t *testing.T) {
	var l Localizer
	got, ok := l.ToUTC(naive(2024, time.January, 15, 9, 30))
	require.True(t, ok)
	assert.Equal(t, naive(2024, time.January, 15, 9, 30), got)
}

func TestNewLocalizer_Unknown(t *testing.T) {
	_, err := NewLocalizer("Mars/Olympus_Mons")
	assert.Error(t, err)
}
