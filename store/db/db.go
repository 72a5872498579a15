package db

import (
	"github.com/pkg/errors"

	"github.com/hrygo/remindbot/internal/profile"
	"github.com/hrygo/remindbot/store"
	"github.com/hrygo/remindbot/store/db/memory"
	"github.com/hrygo/remindbot/store/db/postgres"
	"github.com/hrygo/remindbot/store/db/sqlite"
)

// NewDBDriver creates new db driver based on profile.
//
// PostgreSQL is meant for production deployments, SQLite for a single
// instance with a local data directory, and memory for development runs
// where losing schedules on restart is acceptable.
func NewDBDriver(profile *profile.Profile) (store.Driver, error) {
	var driver store.Driver
	var err error

	switch profile.Driver {
	case "sqlite":
		driver, err = sqlite.NewDB(profile)
	case "postgres":
		driver, err = postgres.NewDB(profile)
	case "memory":
		driver = memory.NewDB()
	default:
		return nil, errors.Errorf("unknown db driver %q: only 'sqlite', 'postgres' and 'memory' are supported", profile.Driver)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to create db driver")
	}
	return driver, nil
}
