package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
type Driver interface {
	// GetDB returns the underlying database, or nil for drivers without one.
	GetDB() *sql.DB
	Close() error

	IsInitialized(ctx context.Context) (bool, error)

	// Schedule model related methods.
	CreateSchedule(ctx context.Context, create *Schedule) (*Schedule, error)
	ListSchedules(ctx context.Context, find *FindSchedule) ([]*Schedule, error)
	// DeleteSchedule marks an ACTIVE schedule as DELETED and returns it.
	// It returns ErrNotFound when no ACTIVE schedule matches.
	DeleteSchedule(ctx context.Context, delete *DeleteSchedule) (*Schedule, error)
}
