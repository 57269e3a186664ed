// Package window anchors a user's configured times of day to absolute
// instants on the current date in the team's time zone.
package window

import "time"

// Grace is the band adjoining the configured start and end of the work day
// during which no classification happens.
const Grace = time.Hour

// Windows holds the four instants of one user's day.
type Windows struct {
	WorkStart  time.Time
	WorkEnd    time.Time
	LunchStart time.Time
	LunchEnd   time.Time
}

// Day computes the windows for the calendar date of now in loc.
func Day(workStart, workEnd, lunchStart, lunchEnd Clock, now time.Time, loc *time.Location) Windows {
	return Windows{
		WorkStart:  workStart.On(now, loc),
		WorkEnd:    workEnd.On(now, loc),
		LunchStart: lunchStart.On(now, loc),
		LunchEnd:   lunchEnd.On(now, loc),
	}
}

// InLunch reports whether now falls inside the lunch window, inclusive on
// both ends.
func (w Windows) InLunch(now time.Time) bool {
	return !now.Before(w.LunchStart) && !now.After(w.LunchEnd)
}

// InCore reports whether now falls inside the work day with the grace band
// excluded at both ends.
func (w Windows) InCore(now time.Time) bool {
	return !now.Before(w.WorkStart.Add(Grace)) && !now.After(w.WorkEnd.Add(-Grace))
}

// OutsideDay reports whether now is clearly outside the work day, more than
// one grace band before start or after end.
func (w Windows) OutsideDay(now time.Time) bool {
	return now.Before(w.WorkStart.Add(-Grace)) || now.After(w.WorkEnd.Add(Grace))
}
