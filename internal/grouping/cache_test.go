package grouping

import (
	"encoding/json"
	"testing"

	"github.com/jengzang/routes-backend-go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedCache(t *testing.T) *Cache {
	t.Helper()
	c := NewCache(3)
	for _, id := range []string{"a", "b", "c"} {
		c.PutSignature(models.RouteSignature{ActivityID: id, Points: []models.RoutePoint{{Lat: 1, Lng: 1}, {Lat: 1.01, Lng: 1}}})
	}
	require.NoError(t, c.CreateGroup(models.RouteGroup{ID: "r1", Name: "Canal", Type: "Run", Signature: models.RouteSignature{ActivityID: "a"}}, day(5)))
	c.MarkProcessed("a")
	require.NoError(t, c.Validate())
	require.NoError(t, c.AddToGroup("r1", "b", day(2), models.RouteMatch{MatchPercentage: 80, Direction: models.DirectionReverse}))
	c.MarkProcessed("b")
	require.NoError(t, c.Validate())
	require.NoError(t, c.AddToGroup("r1", "c", day(9), models.RouteMatch{MatchPercentage: 90, Direction: models.DirectionSame}))
	c.MarkProcessed("c")
	require.NoError(t, c.Validate())
	return c
}

func TestCache_GroupBookkeeping(t *testing.T) {
	c := seedCache(t)

	g, ok := c.Group("r1")
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b", "c"}, g.ActivityIDs)
	assert.Equal(t, 3, g.ActivityCount)
	assert.Equal(t, day(2), g.FirstDate)
	assert.Equal(t, day(9), g.LastDate)
	assert.InDelta(t, 90.0, g.AverageMatchQuality, 1e-9)

	m, ok := c.Match("b")
	require.True(t, ok)
	assert.Equal(t, "r1", m.RouteID)
	assert.Equal(t, "b", m.ActivityID)
	assert.Equal(t, models.DirectionReverse, m.Direction)

	self, _ := c.Match("a")
	assert.Equal(t, 100.0, self.MatchPercentage)

	// returned groups are copies
	g.ActivityIDs[0] = "mutated"
	again, _ := c.Group("r1")
	assert.Equal(t, "a", again.ActivityIDs[0])
}

func TestCache_MembershipErrors(t *testing.T) {
	c := seedCache(t)

	err := c.AddToGroup("missing", "d", day(1), models.RouteMatch{})
	assert.ErrorIs(t, err, ErrRouteNotFound)

	err = c.AddToGroup("r1", "b", day(1), models.RouteMatch{})
	assert.ErrorIs(t, err, ErrAlreadyGrouped)

	err = c.CreateGroup(models.RouteGroup{ID: "r2", Signature: models.RouteSignature{ActivityID: "c"}}, day(1))
	assert.ErrorIs(t, err, ErrAlreadyGrouped)

	err = c.CreateGroup(models.RouteGroup{ID: "r1", Signature: models.RouteSignature{ActivityID: "d"}}, day(1))
	assert.Error(t, err)

	assert.ErrorIs(t, c.Rename("missing", "x"), ErrRouteNotFound)
	assert.ErrorIs(t, c.SetConsensus("missing", nil), ErrRouteNotFound)
	require.NoError(t, c.Validate())
}

func TestCache_ConsensusAndRename(t *testing.T) {
	c := seedCache(t)
	pts := []models.RoutePoint{{Lat: 1, Lng: 1}, {Lat: 1.005, Lng: 1}}
	require.NoError(t, c.SetConsensus("r1", pts))
	require.NoError(t, c.Rename("r1", "Towpath"))

	g, _ := c.Group("r1")
	assert.False(t, g.ConsensusStale)
	assert.Equal(t, pts, g.ConsensusPoints)
	assert.Equal(t, "Towpath", g.Name)
}

func TestCache_StateRoundTrip(t *testing.T) {
	c := seedCache(t)
	require.NoError(t, c.CreateGroup(models.RouteGroup{ID: "r2", Type: "Ride", Signature: models.RouteSignature{ActivityID: "d"}}, day(1)))
	c.MarkProcessed("d")
	c.MarkProcessed("degenerate")

	raw, err := json.Marshal(c.State())
	require.NoError(t, err)
	var st CacheState
	require.NoError(t, json.Unmarshal(raw, &st))

	restored, err := RestoreCache(st)
	require.NoError(t, err)
	assert.Equal(t, 3, restored.Version())
	assert.Equal(t, c.Groups(), restored.Groups())
	assert.Equal(t, 5, restored.ProcessedCount())
	assert.True(t, restored.IsProcessed("degenerate"))

	id, ok := restored.RouteIDFor("d")
	require.True(t, ok)
	assert.Equal(t, "r2", id)
}

func TestRestoreCache_DetectsInconsistency(t *testing.T) {
	t.Run("reverse index disagrees", func(t *testing.T) {
		st := seedCache(t).State()
		st.ActivityToRouteID["b"] = "r9"
		_, err := RestoreCache(st)
		assert.Error(t, err)
	})

	t.Run("reverse index has extra entry", func(t *testing.T) {
		st := seedCache(t).State()
		st.ActivityToRouteID["ghost"] = "r1"
		_, err := RestoreCache(st)
		assert.Error(t, err)
	})

	t.Run("activity in two groups", func(t *testing.T) {
		st := seedCache(t).State()
		st.ActivityToRouteID = nil
		st.Groups = append(st.Groups, models.RouteGroup{ID: "r2", ActivityIDs: []string{"a"}, ActivityCount: 1})
		_, err := RestoreCache(st)
		assert.Error(t, err)
	})

	t.Run("count mismatch", func(t *testing.T) {
		st := seedCache(t).State()
		st.Groups[0].ActivityCount = 7
		_, err := RestoreCache(st)
		assert.Error(t, err)
	})
}
