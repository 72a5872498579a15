// Package digest pushes a periodic summary of upcoming schedules to every chat.
package digest

import (
	"context"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/hrygo/remindbot/plugin/line"
	"github.com/hrygo/remindbot/plugin/nltime"
	"github.com/hrygo/remindbot/server/command"
	"github.com/hrygo/remindbot/store"
)

// DefaultConcurrency bounds the number of pushes in flight.
const DefaultConcurrency = 4

// Schedules is the part of the schedule service the runner needs.
type Schedules interface {
	Today() nltime.Date
	FindAllInRange(ctx context.Context, r nltime.Range) ([]*store.Schedule, error)
}

// Config holds the runner configuration.
type Config struct {
	Schedules Schedules
	Messenger line.Messenger
	// Spec is a standard five-field cron expression evaluated in Location.
	Spec     string
	Location *time.Location
	Period   nltime.Period
	// Targets restricts the digest to these owners. Empty means every owner with entries.
	Targets     []string
	Concurrency int
}

type Runner struct {
	schedules   Schedules
	messenger   line.Messenger
	spec        string
	location    *time.Location
	period      nltime.Period
	targets     map[string]bool
	concurrency int
}

// NewRunner creates a digest runner.
func NewRunner(config Config) (*Runner, error) {
	if config.Spec == "" {
		config.Spec = "0 10 * * 5"
	}
	if _, err := cron.ParseStandard(config.Spec); err != nil {
		return nil, errors.Wrapf(err, "invalid digest cron %q", config.Spec)
	}
	if config.Period == "" {
		config.Period = nltime.PeriodTwoWeeksLaterWeek
	}
	if _, err := nltime.ParsePeriod(string(config.Period)); err != nil {
		return nil, errors.Wrap(err, "invalid digest period")
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultConcurrency
	}

	var targets map[string]bool
	if len(config.Targets) > 0 {
		targets = make(map[string]bool, len(config.Targets))
		for _, t := range config.Targets {
			targets[t] = true
		}
	}

	return &Runner{
		schedules:   config.Schedules,
		messenger:   config.Messenger,
		spec:        config.Spec,
		location:    config.Location,
		period:      config.Period,
		targets:     targets,
		concurrency: config.Concurrency,
	}, nil
}

// Title is the first line of the digest message.
func (r *Runner) Title() string {
	return "🔔 " + command.PeriodLabel(r.period) + "行程提醒"
}

// Run fires the digest on the cron schedule until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	c := cron.New(cron.WithLocation(r.location))
	if _, err := c.AddFunc(r.spec, func() {
		if _, err := r.RunOnce(ctx); err != nil {
			slog.Error("digest run failed", "error", err)
		}
	}); err != nil {
		return errors.Wrap(err, "failed to schedule digest")
	}

	c.Start()
	slog.Info("digest runner started", "spec", r.spec, "timezone", r.location.String(), "period", string(r.period))

	<-ctx.Done()
	<-c.Stop().Done()
	slog.Info("digest runner stopped")
	return nil
}

// RunOnce pushes the digest now and returns the number of owners notified.
func (r *Runner) RunOnce(ctx context.Context) (int, error) {
	rng, err := nltime.Resolve(r.period, r.schedules.Today())
	if err != nil {
		return 0, err
	}
	list, err := r.schedules.FindAllInRange(ctx, rng)
	if err != nil {
		return 0, errors.Wrap(err, "failed to load digest schedules")
	}

	byOwner := map[string][]*store.Schedule{}
	var owners []string
	for _, s := range list {
		if r.targets != nil && !r.targets[s.Owner] {
			continue
		}
		if _, ok := byOwner[s.Owner]; !ok {
			owners = append(owners, s.Owner)
		}
		byOwner[s.Owner] = append(byOwner[s.Owner], s)
	}
	slices.Sort(owners)

	var sent atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, owner := range owners {
		text := command.FormatDigest(r.Title(), byOwner[owner])
		g.Go(func() error {
			if err := r.messenger.Push(gctx, owner, text); err != nil {
				slog.Error("failed to push digest", "owner", owner, "error", err)
				return nil
			}
			sent.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	slog.Info("digest completed", "range", rng.String(), "owners", len(owners), "sent", sent.Load())
	return int(sent.Load()), nil
}
