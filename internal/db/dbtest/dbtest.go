// Package dbtest starts a throwaway Postgres for integration tests. Tests
// using it are skipped unless GANGER_INTEGRATION=1, since they need Docker.
package dbtest

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"ganger/internal/db"
)

type TestDatabase struct {
	Container *postgres.PostgresContainer
	Pool      *pgxpool.Pool
	URL       string
}

func Enabled() bool {
	return os.Getenv("GANGER_INTEGRATION") == "1"
}

// Setup runs a migrated Postgres container and returns a pool on it. Cleanup
// is registered on t.
func Setup(t *testing.T) *TestDatabase {
	t.Helper()
	if !Enabled() {
		t.Skip("set GANGER_INTEGRATION=1 to run database tests")
	}
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("ganger_test"),
		postgres.WithUsername("ganger"),
		postgres.WithPassword("ganger"),
		postgres.BasicWaitStrategies(),
		testcontainers.WithLabels(map[string]string{
			"test":      "ganger",
			"test-name": t.Name(),
		}),
	)
	require.NoError(t, err)

	td := &TestDatabase{Container: container}
	t.Cleanup(func() { td.cleanup(t) })

	td.URL, err = container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	_, err = db.MigrateUp(td.URL)
	require.NoError(t, err)

	td.Pool, err = db.Connect(ctx, td.URL, db.PoolOptions{MaxConns: 8})
	require.NoError(t, err)
	return td
}

func (td *TestDatabase) cleanup(t *testing.T) {
	if td.Pool != nil {
		td.Pool.Close()
	}
	if td.Container == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := td.Container.Terminate(ctx); err != nil {
		t.Logf("terminate test container: %v", err)
	}
}
