/*
calendar.go - Business-calendar date resolution

PURPOSE:
  All "today" and "Monday of week" decisions happen in a configured
  business timezone, never the server's local zone. The Calendar wraps
  the timezone and the clock so tests can supply fixed dates.

GRANULARITY:
  Dates cross the package boundary as YYYY-MM-DD strings. Once a moment
  has been resolved to a business date, all further date arithmetic is
  pure string/UTC math and needs no timezone.

SEE ALSO:
  - engine.go:   Stamps shell records with Calendar.Today()
  - timeline.go: Business-day stepping for the baseline milestone
*/
package reconcile

import (
	"fmt"
	"time"
)

const ymdLayout = "2006-01-02"

// Calendar resolves the current business date in a configured timezone.
type Calendar struct {
	loc *time.Location
	now func() time.Time
}

// NewCalendar creates a calendar for an IANA timezone name.
func NewCalendar(tz string) (*Calendar, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid business timezone %q: %w", tz, err)
	}
	return &Calendar{loc: loc, now: time.Now}, nil
}

// NewFixedCalendar creates a calendar whose clock is pinned to a fixed
// instant. For tests.
func NewFixedCalendar(tz string, at time.Time) (*Calendar, error) {
	cal, err := NewCalendar(tz)
	if err != nil {
		return nil, err
	}
	cal.now = func() time.Time { return at }
	return cal, nil
}

// InZone returns a calendar sharing this calendar's clock but resolving
// dates in a different timezone. Used for per-request timezone overrides.
func (c *Calendar) InZone(tz string) (*Calendar, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid business timezone %q: %w", tz, err)
	}
	return &Calendar{loc: loc, now: c.now}, nil
}

// Now returns the current instant (UTC).
func (c *Calendar) Now() time.Time { return c.now().UTC() }

// Today returns the current business date as YYYY-MM-DD.
func (c *Calendar) Today() string { return c.YMD(c.now()) }

// YMD buckets an instant into its business-calendar date.
func (c *Calendar) YMD(t time.Time) string { return t.In(c.loc).Format(ymdLayout) }

// ActiveMonday returns the Monday anchoring the current business week.
func (c *Calendar) ActiveMonday() string {
	monday, _ := MondayOf(c.Today())
	return monday
}

// =============================================================================
// PURE DATE MATH - operates on YYYY-MM-DD strings
// =============================================================================

// ParseYMD parses a business date string.
func ParseYMD(ymd string) (time.Time, error) {
	return time.Parse(ymdLayout, ymd)
}

// MondayOf returns the Monday of the week containing the given date.
func MondayOf(ymd string) (string, error) {
	t, err := ParseYMD(ymd)
	if err != nil {
		return "", fmt.Errorf("invalid date %q: %w", ymd, err)
	}
	delta := int(time.Monday - t.Weekday())
	if t.Weekday() == time.Sunday {
		delta = -6
	}
	return t.AddDate(0, 0, delta).Format(ymdLayout), nil
}

// AddDays shifts a business date by n calendar days.
// Invalid input yields the input unchanged; callers validate upstream.
func AddDays(ymd string, n int) string {
	t, err := ParseYMD(ymd)
	if err != nil {
		return ymd
	}
	return t.AddDate(0, 0, n).Format(ymdLayout)
}

// WeekEnd returns the Sunday closing a Monday-anchored week.
func WeekEnd(weekStart string) string { return AddDays(weekStart, 6) }

// BusinessDaysBefore steps back n weekdays (Mon-Fri) from a date.
func BusinessDaysBefore(ymd string, n int) string {
	t, err := ParseYMD(ymd)
	if err != nil {
		return ymd
	}
	for n > 0 {
		t = t.AddDate(0, 0, -1)
		if wd := t.Weekday(); wd != time.Saturday && wd != time.Sunday {
			n--
		}
	}
	return t.Format(ymdLayout)
}

// DaysBetween returns the whole calendar days from one date to another.
func DaysBetween(from, to string) int {
	a, errA := ParseYMD(from)
	b, errB := ParseYMD(to)
	if errA != nil || errB != nil {
		return 0
	}
	return int(b.Sub(a).Hours() / 24)
}
