package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/cg-order-portal/internal/database"
	"github.com/cg-order-portal/internal/domain"
)

func setupPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()
	if os.Getenv("CGADMIN_INTEGRATION") != "1" {
		t.Skip("CGADMIN_INTEGRATION not set, skipping PostgreSQL tests")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("portal"),
		postgres.WithUsername("portal"),
		postgres.WithPassword("portal"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgContainer.Terminate(ctx) })

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	cfg := domain.DatabaseConfig{
		Host:           host,
		Port:           port.Int(),
		Database:       "portal",
		Username:       "portal",
		Password:       "portal",
		MigrationsPath: "../../migrations",
	}

	runner, err := database.NewMigrationRunner(cfg, quietLogger())
	require.NoError(t, err)
	require.NoError(t, runner.Run(database.Up))
	require.NoError(t, runner.Close())

	db, err := database.NewConnection(ctx, cfg, quietLogger())
	require.NoError(t, err)
	t.Cleanup(db.Close)

	return NewPostgresStore(db.Pool, quietLogger())
}

func TestPostgresStore_ProjectLifecycle(t *testing.T) {
	store := setupPostgresStore(t)
	ctx := context.Background()

	_, err := store.SaveProject(ctx, testProject())
	requireCode(t, err, domain.ErrReference)

	seedCustomer(t, store)
	require.NoError(t, store.SaveApplicationTag(ctx, &domain.ApplicationTag{
		Name:     "WGSPCFC030",
		Category: "wgs",
		Versions: []domain.ApplicationTagVersion{{Version: 1, Reads: 25}, {Version: 2, Reads: 30}},
	}))
	tag, err := store.GetApplicationTag(ctx, "WGSPCFC030")
	require.NoError(t, err)
	require.Len(t, tag.Versions, 2)
	assert.Equal(t, 2, tag.Versions[0].Version)

	project := testProject()
	id, err := store.SaveProject(ctx, project)
	require.NoError(t, err)

	_, err = store.SaveProject(ctx, testProject())
	requireCode(t, err, domain.ErrDuplicate)

	stored, err := store.GetProject(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, project, stored.Record)
	assert.False(t, stored.IsLocked)

	submitted, err := store.ListProjects(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, submitted)

	require.NoError(t, store.LockProject(ctx, id))
	require.NoError(t, store.SetLimsID(ctx, id, "ACC42"))

	submitted, err = store.ListProjects(ctx, true)
	require.NoError(t, err)
	require.Len(t, submitted, 1)
	assert.Equal(t, "ACC42", submitted[0].LimsID)

	assert.True(t, errors.Is(store.LockProject(ctx, id+100), domain.ErrNotFound))
	_, err = store.GetCustomer(ctx, "cust999")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}
