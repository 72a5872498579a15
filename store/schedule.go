package store

import (
	"context"
	"strings"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"

	"github.com/hrygo/remindbot/plugin/nltime"
)

// ErrNotFound is returned when no ACTIVE schedule matches a lookup or delete.
var ErrNotFound = errors.New("schedule not found")

// RowStatus is the lifecycle status of a row.
type RowStatus string

const (
	// Active is the status of a live schedule.
	Active RowStatus = "ACTIVE"
	// Deleted is the status of a soft-deleted schedule.
	Deleted RowStatus = "DELETED"
)

func (r RowStatus) String() string {
	return string(r)
}

// Schedule is the object representing a schedule entry.
type Schedule struct {
	ID        string
	Owner     string
	RowStatus RowStatus
	CreatedTs int64

	// Date is the calendar date in YYYY-MM-DD.
	Date string
	// Time is HH:MM, or empty for all-day entries.
	Time    string
	Content string
}

// AllDay reports whether the schedule has no time of day.
func (s *Schedule) AllDay() bool {
	return s.Time == ""
}

// FindSchedule is the find condition for schedule.
type FindSchedule struct {
	ID    *string
	Owner *string

	// Inclusive date range filters in YYYY-MM-DD.
	DateFrom *string
	DateTo   *string

	// Status filter
	RowStatus *RowStatus

	// ContentContains matches schedules whose content contains the substring.
	ContentContains *string

	Limit *int
}

// DeleteSchedule is the delete request for schedule.
type DeleteSchedule struct {
	ID    string
	Owner string
}

// CreateSchedule validates and stores a new schedule.
// The store assigns ID and RowStatus, and CreatedTs when the caller left it zero.
func (s *Store) CreateSchedule(ctx context.Context, create *Schedule) (*Schedule, error) {
	if err := validateSchedule(create); err != nil {
		return nil, err
	}
	create.ID = shortuuid.New()
	if create.CreatedTs == 0 {
		create.CreatedTs = time.Now().Unix()
	}
	create.RowStatus = Active
	return s.driver.CreateSchedule(ctx, create)
}

// ListSchedules lists schedules with filter, ordered by date, time, creation
// time and ID. All-day entries sort before timed entries of the same date.
func (s *Store) ListSchedules(ctx context.Context, find *FindSchedule) ([]*Schedule, error) {
	return s.driver.ListSchedules(ctx, find)
}

// GetSchedule gets the ACTIVE schedule with the given owner and ID.
func (s *Store) GetSchedule(ctx context.Context, owner, id string) (*Schedule, error) {
	status := Active
	list, err := s.driver.ListSchedules(ctx, &FindSchedule{ID: &id, Owner: &owner, RowStatus: &status})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	return list[0], nil
}

// DeleteSchedule soft-deletes a schedule owned by delete.Owner.
func (s *Store) DeleteSchedule(ctx context.Context, delete *DeleteSchedule) (*Schedule, error) {
	if delete.ID == "" || delete.Owner == "" {
		return nil, ErrNotFound
	}
	return s.driver.DeleteSchedule(ctx, delete)
}

func validateSchedule(schedule *Schedule) error {
	if strings.TrimSpace(schedule.Owner) == "" {
		return errors.New("schedule owner is required")
	}
	if strings.TrimSpace(schedule.Content) == "" {
		return errors.New("schedule content is required")
	}
	if _, err := nltime.ParseDate(schedule.Date); err != nil {
		return errors.Wrap(err, "invalid schedule date")
	}
	if schedule.Time != "" && !validTime(schedule.Time) {
		return errors.Errorf("invalid schedule time %q", schedule.Time)
	}
	return nil
}

func validTime(s string) bool {
	if len(s) != 5 || s[2] != ':' {
		return false
	}
	for _, i := range []int{0, 1, 3, 4} {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	c := nltime.Clock{
		Hour:   int(s[0]-'0')*10 + int(s[1]-'0'),
		Minute: int(s[3]-'0')*10 + int(s[4]-'0'),
	}
	return c.Valid()
}
