package nltime

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Building blocks shared by the rule patterns. Traditional and simplified
// forms are both accepted.
const (
	relDayPat    = `(今天|明天|後天|后天)`
	qualifierPat = `(上午|下午|晚上)`
	hourUnitPat  = `[點点時时]`
	halfPat      = `(半)?`
	dayUnitPat   = `[號号日]`
	numberPat    = `([0-9]{1,2}|[零〇一二兩两三四五六七八九十]{1,3})`
)

// relDayOffsets maps relative day keywords to day offsets.
var relDayOffsets = map[string]int{
	"今天": 0,
	"明天": 1,
	"後天": 2,
	"后天": 2,
}

// clockLeadPattern recognises content that itself starts with a time of day.
// After a timed rule rejected the same text, the all-day rules must not
// swallow that time as content.
var clockLeadPattern = regexp.MustCompile(`^(?:` + qualifierPat + `\s*)?(?:` + numberPat + `\s*` + hourUnitPat + `|[0-9]{1,2}:[0-9]{2})`)

type parseContext struct {
	today  Date
	policy YearPolicy

	// timeRejected is set once a timed rule matched the text but failed validation.
	timeRejected bool
}

// rule is one grammar alternative: a shape and a builder that validates
// the captured values. build reports false to let the next rule try.
type rule struct {
	name    string
	pattern *regexp.Regexp
	build   func(m []string, pc parseContext) (*Expression, bool)

	// timed rules always produce a time of day.
	timed bool
}

// grammar is ordered from most to least specific; the order is the tie-break.
var grammar = []rule{
	{
		name:    "relative_day_hour",
		pattern: regexp.MustCompile(`(?s)^` + relDayPat + `\s*(?:` + qualifierPat + `\s*)?` + numberPat + `\s*` + hourUnitPat + halfPat + `(.*)$`),
		build: func(m []string, pc parseContext) (*Expression, bool) {
			clock, ok := qualifiedHour(m[2], m[3], m[4])
			if !ok {
				return nil, false
			}
			return finish(pc.today.AddDays(relDayOffsets[m[1]]), &clock, m[5], false)
		},
		timed: true,
	},
	{
		name:    "relative_day_clock",
		pattern: regexp.MustCompile(`(?s)^` + relDayPat + `\s*([0-9]{1,2}):([0-9]{2})(.*)$`),
		build: func(m []string, pc parseContext) (*Expression, bool) {
			clock, ok := literalClock(m[2], m[3])
			if !ok {
				return nil, false
			}
			return finish(pc.today.AddDays(relDayOffsets[m[1]]), &clock, m[4], false)
		},
		timed: true,
	},
	{
		name:    "relative_day",
		pattern: regexp.MustCompile(`(?s)^` + relDayPat + `(.*)$`),
		build: func(m []string, pc parseContext) (*Expression, bool) {
			return finish(pc.today.AddDays(relDayOffsets[m[1]]), nil, m[2], pc.timeRejected)
		},
	},
	{
		name:    "slash_date_time",
		pattern: regexp.MustCompile(`(?s)^([0-9]{1,2})\s*/\s*([0-9]{1,2})\s+([0-9]{1,2}):([0-9]{2})(.*)$`),
		build: func(m []string, pc parseContext) (*Expression, bool) {
			date, ok := monthDay(m[1], m[2], pc)
			if !ok {
				return nil, false
			}
			clock, ok := literalClock(m[3], m[4])
			if !ok {
				return nil, false
			}
			return finish(date, &clock, m[5], false)
		},
		timed: true,
	},
	{
		// A bare hour needs whitespace after the day so that "7/12點" is not read as 7/1 02:00.
		name:    "slash_date_hour",
		pattern: regexp.MustCompile(`(?s)^([0-9]{1,2})\s*/\s*([0-9]{1,2})(?:\s*` + qualifierPat + `\s*|\s+)` + numberPat + `\s*` + hourUnitPat + halfPat + `(.*)$`),
		build: func(m []string, pc parseContext) (*Expression, bool) {
			date, ok := monthDay(m[1], m[2], pc)
			if !ok {
				return nil, false
			}
			clock, ok := qualifiedHour(m[3], m[4], m[5])
			if !ok {
				return nil, false
			}
			return finish(date, &clock, m[6], false)
		},
		timed: true,
	},
	{
		name:    "slash_date",
		pattern: regexp.MustCompile(`(?s)^([0-9]{1,2})\s*/\s*([0-9]{1,2})(.*)$`),
		build: func(m []string, pc parseContext) (*Expression, bool) {
			if startsWithDigit(m[3]) {
				return nil, false
			}
			date, ok := monthDay(m[1], m[2], pc)
			if !ok {
				return nil, false
			}
			return finish(date, nil, m[3], pc.timeRejected)
		},
	},
	{
		name:    "month_day_qualified_hour",
		pattern: regexp.MustCompile(`(?s)^` + numberPat + `\s*月\s*` + numberPat + `\s*` + dayUnitPat + `?\s*` + qualifierPat + `\s*` + numberPat + `\s*` + hourUnitPat + halfPat + `(.*)$`),
		build: func(m []string, pc parseContext) (*Expression, bool) {
			date, ok := monthDay(m[1], m[2], pc)
			if !ok {
				return nil, false
			}
			clock, ok := qualifiedHour(m[3], m[4], m[5])
			if !ok {
				return nil, false
			}
			return finish(date, &clock, m[6], false)
		},
		timed: true,
	},
	{
		name:    "month_day_hour",
		pattern: regexp.MustCompile(`(?s)^` + numberPat + `\s*月\s*` + numberPat + `\s*` + dayUnitPat + `?\s*` + numberPat + `\s*` + hourUnitPat + halfPat + `(.*)$`),
		build: func(m []string, pc parseContext) (*Expression, bool) {
			date, ok := monthDay(m[1], m[2], pc)
			if !ok {
				return nil, false
			}
			clock, ok := qualifiedHour("", m[3], m[4])
			if !ok {
				return nil, false
			}
			return finish(date, &clock, m[5], false)
		},
		timed: true,
	},
	{
		name:    "month_day",
		pattern: regexp.MustCompile(`(?s)^` + numberPat + `\s*月\s*` + numberPat + `\s*(` + dayUnitPat + `?)(.*)$`),
		build: func(m []string, pc parseContext) (*Expression, bool) {
			// Without a day unit the day number must not run into more digits.
			if m[3] == "" && startsWithDigit(m[4]) {
				return nil, false
			}
			date, ok := monthDay(m[1], m[2], pc)
			if !ok {
				return nil, false
			}
			return finish(date, nil, m[4], pc.timeRejected)
		},
	},
	{
		name:    "numeric_date",
		pattern: regexp.MustCompile(`(?s)^([0-9]{4})[-/]([0-9]{1,2})[-/]([0-9]{1,2})(?:\s+([0-9]{1,2}):([0-9]{2}))?(.*)$`),
		build: func(m []string, pc parseContext) (*Expression, bool) {
			if startsWithDigit(m[6]) {
				return nil, false
			}
			year, _ := strconv.Atoi(m[1])
			month, _ := strconv.Atoi(m[2])
			day, _ := strconv.Atoi(m[3])
			date, ok := NewDate(year, time.Month(month), day)
			if !ok {
				return nil, false
			}
			if m[4] == "" {
				return finish(date, nil, m[6], pc.timeRejected)
			}
			clock, ok := literalClock(m[4], m[5])
			if !ok {
				return nil, false
			}
			return finish(date, &clock, m[6], false)
		},
	},
}

// finish validates the content and assembles the expression.
// guardClock rejects content that starts with a time phrase.
func finish(date Date, clock *Clock, raw string, guardClock bool) (*Expression, bool) {
	content := trimContent(raw)
	if content == "" {
		return nil, false
	}
	if guardClock && clockLeadPattern.MatchString(content) {
		return nil, false
	}
	return &Expression{Date: date, Time: clock, Content: content}, true
}

// qualifiedHour applies the am/pm rules to an hour phrase:
// 上午 maps 12 to 0 and rejects hours above 12, 下午 and 晚上 add 12 to
// hours below 12, and every result must stay within 0..24.
// A trailing 半 sets the minute to 30.
func qualifiedHour(qualifier, raw, half string) (Clock, bool) {
	hour, ok := parseNumber(raw)
	if !ok {
		return Clock{}, false
	}
	switch qualifier {
	case "上午":
		if hour > 12 {
			return Clock{}, false
		}
		if hour == 12 {
			hour = 0
		}
	case "下午", "晚上":
		if hour < 12 {
			hour += 12
		}
	}
	minute := 0
	if half != "" {
		minute = 30
	}
	return NewClock(hour, minute)
}

func literalClock(rawHour, rawMinute string) (Clock, bool) {
	hour, err := strconv.Atoi(rawHour)
	if err != nil {
		return Clock{}, false
	}
	minute, err := strconv.Atoi(rawMinute)
	if err != nil {
		return Clock{}, false
	}
	return NewClock(hour, minute)
}

// monthDay places a month/day pair without a year according to the year policy.
func monthDay(rawMonth, rawDay string, pc parseContext) (Date, bool) {
	month, ok := parseNumber(rawMonth)
	if !ok {
		return Date{}, false
	}
	day, ok := parseNumber(rawDay)
	if !ok {
		return Date{}, false
	}
	date, ok := NewDate(pc.today.Year, time.Month(month), day)
	if !ok {
		return Date{}, false
	}
	if !date.Before(pc.today) {
		return date, true
	}
	switch pc.policy {
	case YearRollForward:
		return NewDate(pc.today.Year+1, time.Month(month), day)
	case YearRejectPast:
		return Date{}, false
	}
	return date, true
}

var chineseDigits = map[rune]int{
	'零': 0, '〇': 0,
	'一': 1, '二': 2, '兩': 2, '两': 2, '三': 3, '四': 4,
	'五': 5, '六': 6, '七': 7, '八': 8, '九': 9,
}

// parseNumber reads an Arabic number or a Chinese numeral below 100
// ("九", "十", "十二", "二十", "二十四").
func parseNumber(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}

	if !strings.ContainsRune(s, '十') {
		return singleDigit(s)
	}

	before, after, _ := strings.Cut(s, "十")
	n := 10
	if before != "" {
		d, ok := singleDigit(before)
		if !ok || d == 0 {
			return 0, false
		}
		n = d * 10
	}
	if after != "" {
		d, ok := singleDigit(after)
		if !ok || d == 0 {
			return 0, false
		}
		n += d
	}
	return n, true
}

func singleDigit(s string) (int, bool) {
	runes := []rune(s)
	if len(runes) != 1 {
		return 0, false
	}
	d, ok := chineseDigits[runes[0]]
	return d, ok
}

func startsWithDigit(s string) bool {
	return s != "" && s[0] >= '0' && s[0] <= '9'
}
