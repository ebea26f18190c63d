package runner

import "time"

// Window returns the listing window for a run started at now: the whole
// calendar day in loc (00:00:00.000 to 23:59:59.999), or the trailing
// lookback period when lookback is positive.
func Window(now time.Time, loc *time.Location, lookback time.Duration) (from, to time.Time) {
	if lookback > 0 {
		return now.Add(-lookback), now
	}
	if loc == nil {
		loc = time.Local
	}

	local := now.In(loc)
	from = time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	to = from.AddDate(0, 0, 1).Add(-time.Millisecond)
	return from, to
}
