// Package stats provides per-chat schedule statistics.
package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/remindbot/plugin/nltime"
	"github.com/hrygo/remindbot/server/timezone"
	"github.com/hrygo/remindbot/store"
)

// Stats represents the schedule statistics of one owner.
type Stats struct {
	Today nltime.Date

	TotalSchedules    int64
	UpcomingSchedules int64
	SchedulesThisWeek int64
	SchedulesNextWeek int64
	SchedulesMonth    int64
	AllDaySchedules   int64

	LastAddedTime time.Time
	CollectedAt   time.Time
}

// Store is the store access the collector needs.
type Store interface {
	ListSchedules(ctx context.Context, find *store.FindSchedule) ([]*store.Schedule, error)
}

// Collector computes statistics from the store on demand.
type Collector struct {
	store    Store
	clock    timezone.Clock
	location *time.Location
}

// NewCollector creates a new statistics collector.
func NewCollector(st Store, clock timezone.Clock, location *time.Location) *Collector {
	if clock == nil {
		clock = timezone.SystemClock{}
	}
	if location == nil {
		location = timezone.MustParseTimezone(timezone.DefaultTimezone)
	}
	return &Collector{store: st, clock: clock, location: location}
}

// Collect gathers the statistics of owner's ACTIVE schedules.
func (c *Collector) Collect(ctx context.Context, owner string) (*Stats, error) {
	status := store.Active
	schedules, err := c.store.ListSchedules(ctx, &store.FindSchedule{Owner: &owner, RowStatus: &status})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list schedules for stats")
	}

	now := c.clock.Now()
	today := timezone.Today(c.clock, c.location)
	thisWeek, _ := nltime.Resolve(nltime.PeriodThisWeek, today)
	nextWeek, _ := nltime.Resolve(nltime.PeriodNextWeek, today)
	thisMonth, _ := nltime.Resolve(nltime.PeriodThisMonth, today)

	stats := &Stats{
		Today:          today,
		TotalSchedules: int64(len(schedules)),
		CollectedAt:    now,
	}
	for _, s := range schedules {
		date, err := nltime.ParseDate(s.Date)
		if err != nil {
			continue
		}
		if !date.Before(today) {
			stats.UpcomingSchedules++
		}
		if thisWeek.Contains(date) {
			stats.SchedulesThisWeek++
		}
		if nextWeek.Contains(date) {
			stats.SchedulesNextWeek++
		}
		if thisMonth.Contains(date) {
			stats.SchedulesMonth++
		}
		if s.AllDay() {
			stats.AllDaySchedules++
		}
		if created := time.Unix(s.CreatedTs, 0); created.After(stats.LastAddedTime) {
			stats.LastAddedTime = created
		}
	}
	return stats, nil
}

// Summary returns the chat summary of owner's statistics.
func (c *Collector) Summary(ctx context.Context, owner string) (string, error) {
	stats, err := c.Collect(ctx, owner)
	if err != nil {
		return "", err
	}
	return stats.GetSummary(), nil
}

// GetSummary returns a human-readable summary.
func (s *Stats) GetSummary() string {
	return fmt.Sprintf(
		`📊 行程統計（%s）

📅 行程
  總計: %d 筆
  即將到來: %d 筆
  本週: %d 筆
  下週: %d 筆
  本月: %d 筆
  全天: %d 筆

🕒 最近新增: %s`,
		s.Today,
		s.TotalSchedules,
		s.UpcomingSchedules,
		s.SchedulesThisWeek,
		s.SchedulesNextWeek,
		s.SchedulesMonth,
		s.AllDaySchedules,
		formatLastAdded(s.LastAddedTime, s.CollectedAt),
	)
}

func formatLastAdded(t, now time.Time) string {
	if t.IsZero() {
		return "無"
	}
	duration := now.Sub(t)
	if duration < time.Hour {
		return "剛剛"
	}
	if duration < 24*time.Hour {
		return fmt.Sprintf("%d小時前", int(duration.Hours()))
	}
	if duration < 7*24*time.Hour {
		return fmt.Sprintf("%d天前", int(duration.Hours()/24))
	}
	return t.Format("2006-01-02")
}
