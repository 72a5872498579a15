package nltime

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// DateLayout is the storage and display layout of a Date.
const DateLayout = "2006-01-02"

// Date is a civil calendar date without a time zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate returns the date for the given components.
// It reports false for combinations that do not exist (e.g. April 31),
// instead of normalising them the way time.Date does.
func NewDate(year int, month time.Month, day int) (Date, bool) {
	if year < 1 || month < time.January || month > time.December {
		return Date{}, false
	}
	if day < 1 || day > DaysIn(year, month) {
		return Date{}, false
	}
	return Date{Year: year, Month: month, Day: day}, true
}

// DateOf returns the date of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses a date in DateLayout.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, errors.Wrapf(err, "invalid date %q", s)
	}
	return DateOf(t), nil
}

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	// Day 0 of the following month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// AddDays returns d shifted by n days.
func (d Date) AddDays(n int) Date {
	return DateOf(d.midnight().AddDate(0, 0, n))
}

// Weekday returns the day of the week.
func (d Date) Weekday() time.Weekday {
	return d.midnight().Weekday()
}

// Compare returns -1, 0 or +1 depending on whether d is before, equal to or after other.
func (d Date) Compare(other Date) int {
	switch {
	case d.Year != other.Year:
		return sign(d.Year - other.Year)
	case d.Month != other.Month:
		return sign(int(d.Month) - int(other.Month))
	default:
		return sign(d.Day - other.Day)
	}
}

// Before reports whether d is strictly before other.
func (d Date) Before(other Date) bool {
	return d.Compare(other) < 0
}

// IsZero reports whether d is the zero Date.
func (d Date) IsZero() bool {
	return d == Date{}
}

// In returns midnight of d in loc.
func (d Date) In(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Date) midnight() time.Time {
	return d.In(time.UTC)
}

// weekdayOffset is the number of days since the most recent Monday.
func weekdayOffset(d Date) int {
	return (int(d.Weekday()) + 6) % 7
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}

// Clock is a wall-clock time of day with minute precision.
//
// Hour 24 is only valid with minute 0 and denotes the end of the day,
// as in ISO 8601.
type Clock struct {
	Hour   int
	Minute int
}

// NewClock returns the clock for hour:minute, reporting false when it is out of range.
func NewClock(hour, minute int) (Clock, bool) {
	c := Clock{Hour: hour, Minute: minute}
	return c, c.Valid()
}

// Valid reports whether c is a valid 24-hour clock time.
func (c Clock) Valid() bool {
	if c.Minute < 0 || c.Minute > 59 || c.Hour < 0 || c.Hour > 24 {
		return false
	}
	return c.Hour < 24 || c.Minute == 0
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}
