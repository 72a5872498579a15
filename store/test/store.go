package test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hrygo/remindbot/internal/profile"
	"github.com/hrygo/remindbot/store"
	"github.com/hrygo/remindbot/store/db"
)

// Drivers lists the drivers exercised by the store tests.
var Drivers = []string{profile.DriverMemory, profile.DriverSQLite, profile.DriverPostgres}

// NewTestingStore opens a migrated store for driver. The store is closed
// when the test finishes.
func NewTestingStore(ctx context.Context, t *testing.T, driver string) *store.Store {
	t.Helper()

	p := &profile.Profile{
		Mode:   "dev",
		Driver: driver,
	}
	switch driver {
	case profile.DriverSQLite:
		p.Data = t.TempDir()
		p.DSN = filepath.Join(p.Data, "remindbot_test.db")
	case profile.DriverPostgres:
		p.DSN = GetPostgresDSN(t)
	}

	dbDriver, err := db.NewDBDriver(p)
	if err != nil {
		t.Fatalf("failed to create db driver: %v", err)
	}
	s := store.New(dbDriver, p)
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate db: %v", err)
	}
	if driver == profile.DriverPostgres {
		// A shared server keeps rows from earlier runs.
		if _, err := dbDriver.GetDB().ExecContext(ctx, "DELETE FROM schedule"); err != nil {
			t.Fatalf("failed to reset schedule table: %v", err)
		}
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}
