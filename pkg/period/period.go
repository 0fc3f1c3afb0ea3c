// Package period computes the observation windows used to assemble the
// training, test and prediction tables from the latest available date.
package period

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the layout used for dates stored in tables.
const DateLayout = "2006-01-02"

// Month offsets of each window's end relative to the last day of the latest month.
const (
	ResiliationOffset = -1
	StopOffset        = -7
	ClientOffset      = -9
)

var lastDateLayouts = []string{"02/01/2006", "2006/01/02", DateLayout}

// LastDayOfMonth returns the last day of t's month at the same time of day.
func LastDayOfMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	h, mi, s := t.Clock()
	return time.Date(y, m+1, 0, h, mi, s, t.Nanosecond(), t.Location())
}

// FirstDayOfMonth returns the first day of t's month at the same time of day.
func FirstDayOfMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	h, mi, s := t.Clock()
	return time.Date(y, m, 1, h, mi, s, t.Nanosecond(), t.Location())
}

// AddMonths shifts t by n months, clamping the day to the length of the
// target month: January 31 plus one month is the last day of February.
func AddMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	h, mi, s := t.Clock()
	first := time.Date(y, m+time.Month(n), 1, h, mi, s, t.Nanosecond(), t.Location())
	if last := LastDayOfMonth(first).Day(); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, h, mi, s, t.Nanosecond(), t.Location())
}

// ParseLastDate parses a date written day-first (02/01/2006), year-first with
// slashes or ISO, and returns the last day of its month.
func ParseLastDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range lastDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return LastDayOfMonth(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("period: unrecognised date %q", s)
}

// ResiliationDate is the end of the resiliation training window.
func ResiliationDate(last time.Time) time.Time {
	return AddMonths(LastDayOfMonth(last), ResiliationOffset)
}

// StopDate is the end of the consumption-stop training window.
func StopDate(last time.Time) time.Time {
	return AddMonths(LastDayOfMonth(last), StopOffset)
}

// ClientDate is the end of the active-client training window.
func ClientDate(last time.Time) time.Time {
	return AddMonths(LastDayOfMonth(last), ClientOffset)
}

// PredictionStart is the first day of the month predictions are made for.
func PredictionStart(last time.Time) time.Time {
	return FirstDayOfMonth(last)
}

// Truncate drops the time of day.
func Truncate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
