package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/hrygo/remindbot/internal/profile"
	"github.com/hrygo/remindbot/plugin/nltime"
	"github.com/hrygo/remindbot/server/timezone"
)

// runParse prints the expression parsed from text relative to today, or
// relative to the current date in the profile timezone when today is empty.
func runParse(out io.Writer, text, today string, p *profile.Profile) error {
	var ref nltime.Date
	if today == "" {
		loc, err := timezone.ParseTimezone(p.Timezone)
		if err != nil {
			return err
		}
		ref = timezone.Today(timezone.SystemClock{}, loc)
	} else {
		d, err := nltime.ParseDate(today)
		if err != nil {
			return errors.Wrap(err, "invalid --today")
		}
		ref = d
	}

	policy, err := nltime.ParseYearPolicy(p.YearPolicy)
	if err != nil {
		return err
	}
	expr, err := nltime.NewParser(nltime.WithYearPolicy(policy)).Parse(text, ref)
	if err != nil {
		return errors.Wrapf(err, "cannot parse %q", text)
	}

	fmt.Fprintf(out, "date:    %s\n", expr.Date)
	if expr.AllDay() {
		fmt.Fprintln(out, "time:    全天")
	} else {
		fmt.Fprintf(out, "time:    %s\n", expr.TimeString())
	}
	fmt.Fprintf(out, "content: %s\n", expr.Content)
	fmt.Fprintf(out, "rule:    %s\n", expr.Rule)
	return nil
}

// newLogger returns a text logger in dev mode and a JSON logger in prod.
func newLogger(p *profile.Profile, w io.Writer) *slog.Logger {
	if p.IsDev() {
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))
}
