package grouping

import (
	"testing"

	"github.com/jengzang/routes-backend-go/internal/models"
	"github.com/jengzang/routes-backend-go/internal/routes"
	"github.com/jengzang/routes-backend-go/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelated_ReportsPartialOverlaps(t *testing.T) {
	f := newFixture(t)
	long := f.assign(t, "long", "Run", day(1), testutil.Line(origin, 0, 10000, 400))
	short := f.assign(t, "short", "Ride", day(2), testutil.Line(origin, 0, 4000, 160))
	f.assign(t, "far", "Run", day(3), testutil.Line(models.RoutePoint{Lat: 52.5, Lng: 13.4}, 0, 4000, 160))
	require.Equal(t, OutcomeNewGroup, short.Outcome)

	sig, ok := f.cache.Signature("short")
	require.True(t, ok)
	related := f.grouper.Related(sig)
	require.Len(t, related, 1)
	assert.Equal(t, long.RouteID, related[0].RouteID)
	assert.Equal(t, "Run", related[0].Type)
	assert.Equal(t, models.DirectionPartial, related[0].Match.Direction)
	assert.InDelta(t, 40, related[0].Match.MatchPercentage, 3)
	require.NotNil(t, related[0].Match.OverlapDistance)

	sig, _ = f.cache.Signature("long")
	related = f.grouper.Related(sig)
	require.Len(t, related, 1)
	assert.Equal(t, short.RouteID, related[0].RouteID)

	assert.Nil(t, f.grouper.Related(models.RouteSignature{ActivityID: "empty"}))
}

func TestRelated_DropsMatchesBelowDisplayThreshold(t *testing.T) {
	f := newFixture(t)
	f.assign(t, "a", "Run", day(1), testutil.Line(origin, 0, 5000, 200))
	f.assign(t, "b", "Ride", day(2), testutil.Line(origin, 0, 5000, 200))

	sig, _ := f.cache.Signature("b")
	for _, tc := range []struct {
		percentage float64
		want       int
	}{
		{routes.DefaultMinMatchPercentage, 1},
		{routes.DefaultMinMatchPercentage - 0.5, 0},
	} {
		percentage := tc.percentage
		f.grouper.Match = func(sig, rep models.RouteSignature, cfg routes.Config) models.RouteMatch {
			return models.RouteMatch{ActivityID: sig.ActivityID, MatchPercentage: percentage, Direction: models.DirectionPartial}
		}
		assert.Len(t, f.grouper.Related(sig), tc.want, "percentage %v", tc.percentage)
	}
}
