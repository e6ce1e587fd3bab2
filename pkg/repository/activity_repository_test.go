package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jgirmay/presencehub/pkg/config"
)

func setupActivityRepository(t *testing.T) ActivityRepository {
	cfg := config.Default()
	cfg.Store = "gorm"
	cfg.Database = config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"}

	repo, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, repo)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestActivityRepository_SaveAndGet(t *testing.T) {
	repo := setupActivityRepository(t)
	ctx := context.Background()
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.SaveLastActive(ctx, map[string]time.Time{"user-1": ts}))

	got, err := repo.GetLastActive(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, ts.Equal(*got), "got %v", got)
}

func TestActivityRepository_Ping(t *testing.T) {
	repo := setupActivityRepository(t)
	assert.NoError(t, repo.Ping(context.Background()))
}

func TestActivityRepository_UpsertOverwrites(t *testing.T) {
	repo := setupActivityRepository(t)
	ctx := context.Background()
	first := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	second := first.Add(10 * time.Minute)

	require.NoError(t, repo.SaveLastActive(ctx, map[string]time.Time{"user-1": first}))
	require.NoError(t, repo.SaveLastActive(ctx, map[string]time.Time{"user-1": second, "user-2": first}))

	got, err := repo.GetLastActive(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, second.Equal(*got))

	all, err := repo.ListActiveSince(ctx, first.Add(-time.Hour))
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestActivityRepository_GetUnknownUser(t *testing.T) {
	repo := setupActivityRepository(t)

	got, err := repo.GetLastActive(context.Background(), "nobody")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestActivityRepository_ListActiveSinceFiltersWindow(t *testing.T) {
	repo := setupActivityRepository(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.SaveLastActive(ctx, map[string]time.Time{
		"recent": now.Add(-10 * time.Minute),
		"edge":   now.Add(-30 * time.Minute),
		"stale":  now.Add(-2 * time.Hour),
	}))

	got, err := repo.ListActiveSince(ctx, now.Add(-30*time.Minute))
	require.NoError(t, err)

	assert.Len(t, got, 2)
	assert.Contains(t, got, "recent")
	assert.Contains(t, got, "edge")
	assert.NotContains(t, got, "stale")
	assert.True(t, now.Add(-10*time.Minute).Equal(got["recent"]))
}

func TestActivityRepository_SaveEmptyIsNoOp(t *testing.T) {
	repo := setupActivityRepository(t)
	assert.NoError(t, repo.SaveLastActive(context.Background(), nil))
}

func TestOpen_NoneStore(t *testing.T) {
	cfg := config.Default()
	cfg.Store = "none"

	repo, err := Open(context.Background(), cfg)
	assert.NoError(t, err)
	assert.Nil(t, repo)
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Driver = "oracle"

	_, err := Open(context.Background(), cfg)
	assert.Error(t, err)
}
