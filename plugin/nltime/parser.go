// Package nltime turns informal Chinese date/time phrases into calendar values.
//
// It has two pure entry points: Parser.Parse, which reads a schedule
// expression such as "明天下午2點聚餐", and Resolve, which maps a period keyword
// such as this_week to an inclusive date window. Neither performs I/O or
// keeps mutable state, so both are safe for concurrent use.
package nltime

import (
	"strings"
	"unicode"

	"github.com/pkg/errors"
	"golang.org/x/text/width"
)

// YearPolicy decides the year of a month/day phrase that carries no year.
type YearPolicy string

const (
	// YearCurrent always uses the reference year.
	YearCurrent YearPolicy = "current"
	// YearRollForward moves a date that already passed this year to next year.
	YearRollForward YearPolicy = "roll_forward"
	// YearRejectPast treats a date that already passed this year as no match.
	YearRejectPast YearPolicy = "reject_past"
)

// ParseYearPolicy validates a policy name. The empty string selects YearCurrent.
func ParseYearPolicy(s string) (YearPolicy, error) {
	switch p := YearPolicy(strings.TrimSpace(s)); p {
	case "":
		return YearCurrent, nil
	case YearCurrent, YearRollForward, YearRejectPast:
		return p, nil
	default:
		return "", errors.Errorf("unknown year policy %q", s)
	}
}

// Expression is a successfully parsed schedule phrase.
type Expression struct {
	Date Date
	// Time is nil for all-day entries.
	Time    *Clock
	Content string
	// Rule names the grammar rule that produced the expression.
	Rule string
}

// AllDay reports whether the expression has no time of day.
func (e *Expression) AllDay() bool {
	return e.Time == nil
}

// TimeString returns "HH:MM", or "" for all-day entries.
func (e *Expression) TimeString() string {
	if e.Time == nil {
		return ""
	}
	return e.Time.String()
}

// Parser reads schedule expressions using a fixed, ordered rule table.
type Parser struct {
	yearPolicy YearPolicy
	rules      []rule
}

// Option configures a Parser.
type Option func(*Parser)

// WithYearPolicy sets how month/day phrases without a year are placed.
func WithYearPolicy(policy YearPolicy) Option {
	return func(p *Parser) {
		p.yearPolicy = policy
	}
}

// NewParser creates a parser. The default year policy is YearCurrent.
func NewParser(opts ...Option) *Parser {
	p := &Parser{
		yearPolicy: YearCurrent,
		rules:      grammar,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// YearPolicy returns the configured year policy.
func (p *Parser) YearPolicy() YearPolicy {
	return p.yearPolicy
}

// Parse reads text relative to today. It returns ErrNoMatch when no rule
// produces a valid date, time and non-empty content.
//
// Rules are tried in order and the first one that both matches and validates
// wins. A rule whose pattern matches but whose values are out of range is
// skipped and the next rule is tried. Once a timed rule has been skipped,
// the all-day rules refuse content that starts with a time of day, so
// "今天25點開會" is no match rather than an all-day "25點開會".
func (p *Parser) Parse(text string, today Date) (*Expression, error) {
	text = normalize(text)
	if text == "" {
		return nil, ErrNoMatch
	}

	pc := parseContext{today: today, policy: p.yearPolicy}
	for _, r := range p.rules {
		m := r.pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		expr, ok := r.build(m, pc)
		if !ok {
			if r.timed {
				pc.timeRejected = true
			}
			continue
		}
		expr.Rule = r.name
		return expr, nil
	}
	return nil, ErrNoMatch
}

// normalize folds full-width digits and separators to ASCII and trims the text.
// Other full-width characters, such as CJK punctuation in the content, are kept.
func normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if foldable(r) {
			if n := width.LookupRune(r).Narrow(); n != 0 {
				r = n
			}
		}
		if r == '　' {
			r = ' '
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

func foldable(r rune) bool {
	switch {
	case r >= '０' && r <= '９':
		return true
	case r == '／', r == '：', r == '－':
		return true
	}
	return false
}

// trimContent strips whitespace and leading separators from the remainder.
func trimContent(raw string) string {
	return strings.TrimSpace(strings.TrimLeftFunc(raw, func(r rune) bool {
		return unicode.IsSpace(r) || strings.ContainsRune(",，、:：-", r)
	}))
}
