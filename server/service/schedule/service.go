// Package schedule provides schedule management on top of the natural
// language parser: creating entries from chat text, range queries and
// deletion.
package schedule

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/remindbot/plugin/nltime"
	"github.com/hrygo/remindbot/server/timezone"
	"github.com/hrygo/remindbot/store"
)

// Schedule-specific errors that can be checked with errors.Is.
var (
	// ErrAmbiguous is returned when a keyword delete matches more than one entry.
	ErrAmbiguous = errors.New("keyword matches more than one schedule")
	// ErrEmptyKeyword is returned when a keyword delete has no keyword.
	ErrEmptyKeyword = errors.New("keyword is required")
)

// Store is the interface for store operations needed by the schedule service.
type Store interface {
	CreateSchedule(ctx context.Context, create *store.Schedule) (*store.Schedule, error)
	ListSchedules(ctx context.Context, find *store.FindSchedule) ([]*store.Schedule, error)
	DeleteSchedule(ctx context.Context, delete *store.DeleteSchedule) (*store.Schedule, error)
}

// Config holds the collaborators of the service.
type Config struct {
	Store    Store
	Parser   *nltime.Parser
	Clock    timezone.Clock
	Location *time.Location
}

type service struct {
	store    Store
	parser   *nltime.Parser
	clock    timezone.Clock
	location *time.Location
}

// NewService creates a new schedule service.
func NewService(cfg Config) Service {
	s := &service{
		store:    cfg.Store,
		parser:   cfg.Parser,
		clock:    cfg.Clock,
		location: cfg.Location,
	}
	if s.parser == nil {
		s.parser = nltime.NewParser()
	}
	if s.clock == nil {
		s.clock = timezone.SystemClock{}
	}
	if s.location == nil {
		s.location = timezone.MustParseTimezone(timezone.DefaultTimezone)
	}
	return s
}

func (s *service) Today() nltime.Date {
	return timezone.Today(s.clock, s.location)
}

func (s *service) CreateFromText(ctx context.Context, owner, text string) (*store.Schedule, error) {
	expr, err := s.parser.Parse(text, s.Today())
	if err != nil {
		return nil, err
	}

	created, err := s.store.CreateSchedule(ctx, &store.Schedule{
		Owner:     owner,
		Date:      expr.Date.String(),
		Time:      expr.TimeString(),
		Content:   expr.Content,
		CreatedTs: s.clock.Now().Unix(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create schedule")
	}

	slog.Debug("schedule created",
		slog.String("owner", owner),
		slog.String("id", created.ID),
		slog.String("rule", expr.Rule),
	)
	return created, nil
}

func (s *service) FindInPeriod(ctx context.Context, owner string, period nltime.Period) (nltime.Range, []*store.Schedule, error) {
	r, err := nltime.Resolve(period, s.Today())
	if err != nil {
		return nltime.Range{}, nil, err
	}
	list, err := s.listActive(ctx, &owner, r)
	if err != nil {
		return r, nil, err
	}
	return r, list, nil
}

func (s *service) FindAllInRange(ctx context.Context, r nltime.Range) ([]*store.Schedule, error) {
	return s.listActive(ctx, nil, r)
}

func (s *service) listActive(ctx context.Context, owner *string, r nltime.Range) ([]*store.Schedule, error) {
	from, to := r.Start.String(), r.End.String()
	status := store.Active
	list, err := s.store.ListSchedules(ctx, &store.FindSchedule{
		Owner:     owner,
		DateFrom:  &from,
		DateTo:    &to,
		RowStatus: &status,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list schedules")
	}
	return list, nil
}

func (s *service) DeleteByID(ctx context.Context, owner, id string) (*store.Schedule, error) {
	deleted, err := s.store.DeleteSchedule(ctx, &store.DeleteSchedule{ID: id, Owner: owner})
	if err != nil {
		return nil, err
	}
	slog.Debug("schedule deleted", slog.String("owner", owner), slog.String("id", id))
	return deleted, nil
}

func (s *service) DeleteByKeyword(ctx context.Context, owner, keyword string) (*store.Schedule, []*store.Schedule, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, nil, ErrEmptyKeyword
	}

	from := s.Today().String()
	status := store.Active
	limit := MaxKeywordCandidates + 1
	candidates, err := s.store.ListSchedules(ctx, &store.FindSchedule{
		Owner:           &owner,
		DateFrom:        &from,
		RowStatus:       &status,
		ContentContains: &keyword,
		Limit:           &limit,
	})
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to list schedules")
	}

	switch len(candidates) {
	case 0:
		return nil, nil, store.ErrNotFound
	case 1:
		deleted, err := s.DeleteByID(ctx, owner, candidates[0].ID)
		return deleted, nil, err
	default:
		if len(candidates) > MaxKeywordCandidates {
			candidates = candidates[:MaxKeywordCandidates]
		}
		return nil, candidates, ErrAmbiguous
	}
}
