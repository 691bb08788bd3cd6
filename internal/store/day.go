package store

import "time"

// Day is a half-open business day window [Start, End).
type Day struct {
	Start time.Time
	End   time.Time
}

// DayOf returns the business day containing t, evaluated in loc.
func DayOf(t time.Time, loc *time.Location) Day {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return Day{Start: start, End: start.AddDate(0, 0, 1)}
}

func (d Day) Contains(t time.Time) bool {
	return !t.Before(d.Start) && t.Before(d.End)
}

// Key formats the day as yyyy-mm-dd in its own time zone.
func (d Day) Key() string {
	return d.Start.Format("2006-01-02")
}
