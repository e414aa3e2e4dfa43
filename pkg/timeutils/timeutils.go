package timeutils

import "time"

// NextDailyOccurrence returns the next time-of-day occurrence of hour:minute
// in loc, strictly after from.
func NextDailyOccurrence(hour, minute int, loc *time.Location, from time.Time) time.Time {
	local := from.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !next.After(local) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
