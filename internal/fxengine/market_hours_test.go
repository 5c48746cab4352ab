package fxengine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsMarketOpen_WeekdayIsAlwaysOpen(t *testing.T) {
	// Wednesday 2024-01-03, 03:00 NY (overnight) is open.
	ts := time.Date(2024, 1, 3, 3, 0, 0, 0, newYork)
	assert.True(t, isMarketOpen(ts, nil))
}

func TestIsMarketOpen_SaturdayIsClosed(t *testing.T) {
	ts := time.Date(2024, 1, 6, 12, 0, 0, 0, newYork)
	assert.False(t, isMarketOpen(ts, nil))
}

func TestIsMarketOpen_FridayBeforeClose(t *testing.T) {
	ts := time.Date(2024, 1, 5, 16, 59, 59, 0, newYork)
	assert.True(t, isMarketOpen(ts, nil))
}

func TestIsMarketOpen_FridayAfterClose(t *testing.T) {
	ts := time.Date(2024, 1, 5, 17, 0, 0, 0, newYork)
	assert.False(t, isMarketOpen(ts, nil))
}

func TestIsMarketOpen_SundayBeforeOpen(t *testing.T) {
	ts := time.Date(2024, 1, 7, 16, 59, 59, 0, newYork)
	assert.False(t, isMarketOpen(ts, nil))
}

func TestIsMarketOpen_SundayAfterOpen(t *testing.T) {
	ts := time.Date(2024, 1, 7, 17, 0, 0, 0, newYork)
	assert.True(t, isMarketOpen(ts, nil))
}

func TestIsMarketOpen_HolidayClosesAWeekday(t *testing.T) {
	ts := time.Date(2024, 1, 3, 12, 0, 0, 0, newYork)
	holidays := map[string]struct{}{"2024-01-03": {}}
	assert.False(t, isMarketOpen(ts, holidays))
}

func TestIsMarketOpen_ConvertsFromOtherTimezones(t *testing.T) {
	utc := time.Date(2024, 1, 6, 21, 59, 59, 0, time.UTC) // Sat 21:59 UTC -> Sat 16:59 EST
	assert.False(t, isMarketOpen(utc, nil))

	utc2 := time.Date(2024, 1, 7, 22, 0, 0, 0, time.UTC) // Sun 22:00 UTC -> Sun 17:00 EST
	assert.True(t, isMarketOpen(utc2, nil))
}
