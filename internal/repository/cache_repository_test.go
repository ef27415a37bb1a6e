package repository

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/jengzang/routes-backend-go/internal/database"
	"github.com/jengzang/routes-backend-go/internal/grouping"
	"github.com/jengzang/routes-backend-go/internal/models"
	"github.com/jengzang/routes-backend-go/internal/routes"
	"github.com/jengzang/routes-backend-go/internal/spatialindex"
	"github.com/jengzang/routes-backend-go/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var origin = models.RoutePoint{Lat: 52.52, Lng: 13.405}

func newTestRepo(t *testing.T) (*CacheRepository, *sql.DB) {
	t.Helper()
	db, err := database.Open(database.Config{Path: filepath.Join(t.TempDir(), "cache.db")}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.MigrateUp(db))
	return NewCacheRepository(db, nil), db
}

func populatedCache(t *testing.T, version int) *grouping.Cache {
	t.Helper()
	cfg := routes.DefaultConfig()
	cache := grouping.NewCache(version)
	g := grouping.NewGrouper(cache, spatialindex.New(), cfg, nil)
	gen := routes.NewGenerator(cfg, nil)

	base := testutil.Line(origin, 0, 6000, 200)
	acts := []models.Activity{
		{ID: "a1", Name: "River loop", Type: "Run", Date: time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC), Points: base},
		{ID: "a2", Type: "Run", Date: time.Date(2024, 3, 4, 6, 0, 0, 0, time.UTC), Points: testutil.Reverse(testutil.Jitter(base, 8))},
		{ID: "a3", Type: "Ride", Date: time.Date(2024, 3, 2, 6, 0, 0, 0, time.UTC), Points: testutil.Line(origin, 90, 8000, 200)},
		{ID: "a4", Type: "Run", Date: time.Date(2024, 3, 3, 6, 0, 0, 0, time.UTC)},
	}
	for _, a := range acts {
		_, err := g.Assign(a, gen.Generate(a.ID, a.Points))
		require.NoError(t, err)
	}

	groups := cache.Groups()
	require.Len(t, groups, 2)
	_, err := g.Consensus(groups[0].ID)
	require.NoError(t, err)
	return cache
}

func TestCacheRepository_RoundTrip(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	cache := populatedCache(t, 2)

	require.NoError(t, repo.Save(ctx, cache))
	loaded, err := repo.Load(ctx, 2)
	require.NoError(t, err)
	require.NoError(t, loaded.Validate())

	want, got := cache.State(), loaded.State()
	opts := []cmp.Option{
		cmpopts.SortSlices(func(a, b string) bool { return a < b }),
		cmpopts.EquateEmpty(),
	}
	assert.Empty(t, cmp.Diff(want.Groups, got.Groups, cmpopts.EquateEmpty()))
	assert.Empty(t, cmp.Diff(want.Signatures, got.Signatures, cmpopts.EquateEmpty()))
	assert.Empty(t, cmp.Diff(want.Matches, got.Matches))
	assert.Empty(t, cmp.Diff(want.ProcessedActivityIDs, got.ProcessedActivityIDs, opts...))

	// matches with a reverse direction and a degenerate activity survive
	m, ok := loaded.Match("a2")
	require.True(t, ok)
	assert.Equal(t, models.DirectionReverse, m.Direction)
	assert.True(t, loaded.IsProcessed("a4"))
	_, grouped := loaded.RouteIDFor("a4")
	assert.False(t, grouped)
}

func TestCacheRepository_SaveReplaces(t *testing.T) {
	repo, db := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, populatedCache(t, 1)))
	require.NoError(t, repo.Save(ctx, grouping.NewCache(1)))

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM signatures`).Scan(&n))
	assert.Equal(t, 0, n)

	loaded, err := repo.Load(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, loaded.Groups())
}

func TestCacheRepository_VersionMismatchInvalidates(t *testing.T) {
	repo, db := newTestRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Save(ctx, populatedCache(t, 1)))

	loaded, err := repo.Load(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Version())
	assert.Empty(t, loaded.Groups())
	assert.Equal(t, 0, loaded.ProcessedCount())

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM route_groups`).Scan(&n))
	assert.Equal(t, 0, n)
}

func TestCacheRepository_LoadEmpty(t *testing.T) {
	repo, _ := newTestRepo(t)
	loaded, err := repo.Load(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, 5, loaded.Version())
	assert.Empty(t, loaded.Signatures())
}
