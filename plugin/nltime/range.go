package nltime

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Period names a relative date range.
type Period string

const (
	PeriodToday             Period = "today"
	PeriodTomorrow          Period = "tomorrow"
	PeriodThisWeek          Period = "this_week"
	PeriodNextWeek          Period = "next_week"
	PeriodThisMonth         Period = "this_month"
	PeriodNextMonth         Period = "next_month"
	PeriodNextYear          Period = "next_year"
	PeriodTwoWeeksLaterWeek Period = "two_weeks_later_week"

	recentPrefix = "recent_"
	// MaxRecentDays bounds recent_N.
	MaxRecentDays = 366
)

// RecentPeriod returns the recent_N period covering n days starting today.
func RecentPeriod(n int) Period {
	return Period(recentPrefix + strconv.Itoa(n))
}

// Range is an inclusive date window computed for a period.
type Range struct {
	Period Period
	Start  Date
	End    Date
}

// Days returns the number of calendar days in the range.
func (r Range) Days() int {
	return int(r.End.midnight().Sub(r.Start.midnight())/(24*time.Hour)) + 1
}

// Contains reports whether d falls inside the range.
func (r Range) Contains(d Date) bool {
	return !d.Before(r.Start) && !r.End.Before(d)
}

func (r Range) String() string {
	return fmt.Sprintf("%s [%s, %s]", r.Period, r.Start, r.End)
}

type rangeFunc func(today Date) Range

var fixedPeriods = map[Period]rangeFunc{
	PeriodToday: func(today Date) Range {
		return Range{Start: today, End: today}
	},
	PeriodTomorrow: func(today Date) Range {
		d := today.AddDays(1)
		return Range{Start: d, End: d}
	},
	PeriodThisWeek: func(today Date) Range {
		return weekOf(today)
	},
	PeriodNextWeek: func(today Date) Range {
		return weekOf(weekOf(today).Start.AddDays(7))
	},
	PeriodThisMonth: func(today Date) Range {
		return monthOf(today.Year, today.Month)
	},
	PeriodNextMonth: func(today Date) Range {
		if today.Month == time.December {
			return monthOf(today.Year+1, time.January)
		}
		return monthOf(today.Year, today.Month+1)
	},
	PeriodNextYear: func(today Date) Range {
		y := today.Year + 1
		return Range{
			Start: Date{Year: y, Month: time.January, Day: 1},
			End:   Date{Year: y, Month: time.December, Day: 31},
		}
	},
	PeriodTwoWeeksLaterWeek: func(today Date) Range {
		return weekOf(today.AddDays(14))
	},
}

// Resolve computes the inclusive window of period relative to today.
// It returns ErrUnknownPeriod for keywords outside the known set.
func Resolve(period Period, today Date) (Range, error) {
	if fn, ok := fixedPeriods[period]; ok {
		r := fn(today)
		r.Period = period
		return r, nil
	}

	n, err := recentDays(period)
	if err != nil {
		return Range{}, err
	}
	return Range{Period: period, Start: today, End: today.AddDays(n - 1)}, nil
}

// ParsePeriod validates a keyword against the known set.
func ParsePeriod(s string) (Period, error) {
	p := Period(strings.TrimSpace(s))
	if _, ok := fixedPeriods[p]; ok {
		return p, nil
	}
	if _, err := recentDays(p); err != nil {
		return "", err
	}
	return p, nil
}

// KnownPeriods lists the fixed period keywords; recent_N is accepted in addition.
func KnownPeriods() []Period {
	return []Period{
		PeriodToday, PeriodTomorrow,
		PeriodThisWeek, PeriodNextWeek,
		PeriodThisMonth, PeriodNextMonth,
		PeriodNextYear, PeriodTwoWeeksLaterWeek,
	}
}

func recentDays(p Period) (int, error) {
	raw, ok := strings.CutPrefix(string(p), recentPrefix)
	if !ok {
		return 0, errors.Wrapf(ErrUnknownPeriod, "period %q", p)
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > MaxRecentDays {
		return 0, errors.Wrapf(ErrUnknownPeriod, "period %q", p)
	}
	return n, nil
}

// weekOf returns the Monday-to-Sunday week containing d.
func weekOf(d Date) Range {
	start := d.AddDays(-weekdayOffset(d))
	return Range{Start: start, End: start.AddDays(6)}
}

func monthOf(year int, month time.Month) Range {
	return Range{
		Start: Date{Year: year, Month: month, Day: 1},
		End:   Date{Year: year, Month: month, Day: DaysIn(year, month)},
	}
}
