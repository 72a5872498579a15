// Package memory is a store driver that keeps schedules in process memory.
// It is used when neither a data directory nor a PostgreSQL DSN is configured,
// and by tests of the layers above the store.
package memory

import (
	"cmp"
	"context"
	"database/sql"
	"slices"
	"strings"
	"sync"

	"github.com/hrygo/remindbot/store"
)

type DB struct {
	mu        sync.RWMutex
	schedules []*store.Schedule
}

func NewDB() store.Driver {
	return &DB{}
}

// GetDB returns nil; there is no SQL database behind this driver.
func (*DB) GetDB() *sql.DB {
	return nil
}

func (*DB) Close() error {
	return nil
}

func (*DB) IsInitialized(context.Context) (bool, error) {
	return true, nil
}

func (d *DB) CreateSchedule(_ context.Context, create *store.Schedule) (*store.Schedule, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	stored := *create
	d.schedules = append(d.schedules, &stored)
	return create, nil
}

func (d *DB) ListSchedules(_ context.Context, find *store.FindSchedule) ([]*store.Schedule, error) {
	d.mu.RLock()
	list := make([]*store.Schedule, 0)
	for _, s := range d.schedules {
		if matches(s, find) {
			copied := *s
			list = append(list, &copied)
		}
	}
	d.mu.RUnlock()

	slices.SortFunc(list, func(a, b *store.Schedule) int {
		return cmp.Or(
			cmp.Compare(a.Date, b.Date),
			cmp.Compare(a.Time, b.Time),
			cmp.Compare(a.CreatedTs, b.CreatedTs),
			cmp.Compare(a.ID, b.ID),
		)
	})
	if find.Limit != nil && *find.Limit >= 0 && len(list) > *find.Limit {
		list = list[:*find.Limit]
	}
	return list, nil
}

func (d *DB) DeleteSchedule(_ context.Context, delete *store.DeleteSchedule) (*store.Schedule, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, s := range d.schedules {
		if s.ID == delete.ID && s.Owner == delete.Owner && s.RowStatus == store.Active {
			s.RowStatus = store.Deleted
			copied := *s
			return &copied, nil
		}
	}
	return nil, store.ErrNotFound
}

func matches(s *store.Schedule, find *store.FindSchedule) bool {
	if v := find.ID; v != nil && s.ID != *v {
		return false
	}
	if v := find.Owner; v != nil && s.Owner != *v {
		return false
	}
	if v := find.RowStatus; v != nil && s.RowStatus != *v {
		return false
	}
	if v := find.DateFrom; v != nil && s.Date < *v {
		return false
	}
	if v := find.DateTo; v != nil && s.Date > *v {
		return false
	}
	if v := find.ContentContains; v != nil && !strings.Contains(s.Content, *v) {
		return false
	}
	return true
}
