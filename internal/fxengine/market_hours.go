package fxengine

import "time"

var newYork *time.Location

func init() {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		// The tzdata bundled with the Go distribution always carries this
		// zone; a load failure means a broken build environment, not a
		// runtime condition the core should try to recover from.
		panic("fxengine: America/New_York timezone data unavailable: " + err.Error())
	}
	newYork = loc
}

// isMarketOpen reports whether the FX market is open at ts: a continuous
// window from Sunday 17:00 to Friday 17:00 America/New_York, observing DST,
// minus any full-day holidays.
func isMarketOpen(ts time.Time, holidays map[string]struct{}) bool {
	ny := ts.In(newYork)

	if len(holidays) > 0 {
		if _, closed := holidays[ny.Format("2006-01-02")]; closed {
			return false
		}
	}

	weekday := ny.Weekday()

	// Monday through Thursday are open all day in local time.
	if weekday >= time.Monday && weekday <= time.Thursday {
		return true
	}

	hms := ny.Hour()*3600 + ny.Minute()*60 + ny.Second()
	const seventeen = 17 * 3600

	switch weekday {
	case time.Friday:
		return hms < seventeen
	case time.Saturday:
		return false
	case time.Sunday:
		return hms >= seventeen
	default:
		return false
	}
}
