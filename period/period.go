// Package period computes the measurement windows the Tune API is queried with.
//
// Windows are half open: From is inclusive, To is exclusive. Both are
// formatted in local time with the zone name appended (or Z for UTC) so the
// API can bucket across daylight saving changes.
package period

import (
	"fmt"
	"time"
)

const layout = "2006-01-02T15:04:05"

// Window is a half open time range [From, To)
type Window struct {
	From, To time.Time
}

// Zone returns the suffix the API expects for loc
func Zone(loc *time.Location) string {
	if loc == nil || loc == time.UTC || loc.String() == "UTC" {
		return "Z"
	}
	return loc.String()
}

// Format returns From and To as API timestamps
func (w Window) Format() (string, string) {
	return format(w.From), format(w.To)
}

func (w Window) String() string {
	from, to := w.Format()
	return fmt.Sprintf("[%s, %s)", from, to)
}

// Contains reports whether t lies in the window
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.From) && t.Before(w.To)
}

func format(t time.Time) string {
	return t.Format(layout) + " " + Zone(t.Location())
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func firstOfMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
}

// Days returns the window from 00:00 today to 00:00 n days ahead. Days are
// added on the calendar so a window spanning a DST change is 23 or 25 hours.
func Days(now time.Time, n int) Window {
	from := midnight(now)
	y, m, d := from.Date()
	return Window{
		From: from,
		To:   time.Date(y, m, d+n, 0, 0, 0, 0, now.Location()),
	}
}

// Today returns the window of the current day
func Today(now time.Time) Window {
	return Days(now, 1)
}

// ThisMonth returns the window from the first of this month to the first of next month
func ThisMonth(now time.Time) Window {
	from := firstOfMonth(now)
	return Window{
		From: from,
		To:   from.AddDate(0, 1, 0),
	}
}

// LastMonth returns the window from the first of last month to the first of this month
func LastMonth(now time.Time) Window {
	to := firstOfMonth(now)
	return Window{
		From: to.AddDate(0, -1, 0),
		To:   to,
	}
}

// Hour returns the window of the current clock hour
func Hour(now time.Time) Window {
	from := now.Truncate(time.Hour)
	if _, offset := now.Zone(); offset%3600 != 0 {
		// Truncate works on absolute time, realign for half hour zones
		y, m, d := now.Date()
		from = time.Date(y, m, d, now.Hour(), 0, 0, 0, now.Location())
	}
	return Window{
		From: from,
		To:   from.Add(time.Hour),
	}
}

// Year returns the window of the current calendar year
func Year(now time.Time) Window {
	from := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location())
	return Window{
		From: from,
		To:   from.AddDate(1, 0, 0),
	}
}
