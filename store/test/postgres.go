package test

import (
	"os"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	testUser     = "testuser"
	testPassword = "testpassword"
	testDatabase = "remindbot_test"
	testImage    = "postgres:16-alpine"
)

// GetPostgresDSN returns a DSN for PostgreSQL testing.
//
// POSTGRES_TEST_DSN points at an existing server. Otherwise a fresh container
// is started with testcontainers when REMINDBOT_TEST_CONTAINERS=1, and the
// test is skipped when neither is set.
func GetPostgresDSN(t *testing.T) string {
	t.Helper()

	if dsn := os.Getenv("POSTGRES_TEST_DSN"); dsn != "" {
		return dsn
	}
	if os.Getenv("REMINDBOT_TEST_CONTAINERS") != "1" {
		t.Skip("set POSTGRES_TEST_DSN or REMINDBOT_TEST_CONTAINERS=1 to run PostgreSQL tests")
	}

	pgContainer, err := postgres.Run(t.Context(),
		testImage,
		postgres.WithDatabase(testDatabase),
		postgres.WithUsername(testUser),
		postgres.WithPassword(testPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(t.Context(), "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	return connStr
}
