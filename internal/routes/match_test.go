package routes

import (
	"testing"

	"github.com/jengzang/routes-backend-go/internal/models"
	"github.com/jengzang/routes-backend-go/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareRoutes_Identical(t *testing.T) {
	sig := sign(t, "a", testutil.Jitter(testutil.Line(origin, 60, 7000, 500), 6))
	m := CompareRoutes(sig, sig, DefaultConfig())

	assert.InDelta(t, 100, m.MatchPercentage, 1e-9)
	assert.Equal(t, models.DirectionSame, m.Direction)
	assert.Equal(t, "a", m.ActivityID)
	assert.Greater(t, m.Confidence, 0.9)
	assert.Nil(t, m.OverlapStart)
}

func TestCompareRoutes_ReverseTraversal(t *testing.T) {
	pts := testutil.Line(origin, 60, 7000, 500)
	a := sign(t, "a", pts)
	b := sign(t, "b", testutil.Reverse(testutil.Jitter(pts, 10)))

	m := CompareRoutes(a, b, DefaultConfig())
	assert.GreaterOrEqual(t, m.MatchPercentage, DefaultMinGroupingPercentage)
	assert.Equal(t, models.DirectionReverse, m.Direction)

	// reversing either side does not change the percentage
	assert.InDelta(t, m.MatchPercentage, CompareRoutes(a, ReverseSignature(b), DefaultConfig()).MatchPercentage, 1)
	assert.InDelta(t, m.MatchPercentage, CompareRoutes(ReverseSignature(a), b, DefaultConfig()).MatchPercentage, 1)
}

func TestCompareRoutes_OppositeLoops(t *testing.T) {
	cw := sign(t, "cw", testutil.Loop(origin, 10000, 600, true))
	ccw := sign(t, "ccw", testutil.Jitter(testutil.Loop(origin, 10000, 500, false), 10))

	m := CompareRoutes(ccw, cw, DefaultConfig())
	assert.GreaterOrEqual(t, m.MatchPercentage, DefaultMinGroupingPercentage)
	assert.Equal(t, models.DirectionReverse, m.Direction)
}

func TestCompareRoutes_PartialOverlap(t *testing.T) {
	long := sign(t, "long", testutil.Line(origin, 0, 10000, 400))
	short := sign(t, "short", testutil.Line(origin, 0, 4000, 160))

	m := CompareRoutes(short, long, DefaultConfig())
	assert.Equal(t, models.DirectionPartial, m.Direction)
	assert.Less(t, m.MatchPercentage, DefaultMinGroupingPercentage)
	require.NotNil(t, m.OverlapStart)
	require.NotNil(t, m.OverlapDistance)
	assert.InDelta(t, 0, *m.OverlapStart, 1)
	assert.InDelta(t, 4000, *m.OverlapDistance, 50)
}

func TestCompareRoutes_MonotonicInOverlap(t *testing.T) {
	base := sign(t, "base", testutil.Line(origin, 0, 10000, 400))
	prev := -1.0
	for _, shared := range []float64{2000, 4000, 6000, 8000, 10000} {
		// a route of the same length that follows base for `shared` meters then turns east
		pts := testutil.Line(origin, 0, shared, 200)
		if shared < 10000 {
			pts = append(pts, testutil.Line(pts[len(pts)-1], 90, 10000-shared, 200)[1:]...)
		}
		m := CompareRoutes(sign(t, "x", pts), base, DefaultConfig())
		assert.GreaterOrEqual(t, m.MatchPercentage, prev)
		prev = m.MatchPercentage
	}
	assert.InDelta(t, 100, prev, 1e-9)
}

func TestCompareRoutes_Degenerate(t *testing.T) {
	sig := sign(t, "a", testutil.Line(origin, 0, 1000, 20))
	m := CompareRoutes(sig, models.RouteSignature{}, DefaultConfig())
	assert.Zero(t, m.MatchPercentage)
	assert.Zero(t, m.Confidence)
}

func TestCompareRoutes_DisplayThresholdBoundary(t *testing.T) {
	long := sign(t, "long", testutil.Line(origin, 0, 10000, 400))
	// shares about a fifth of the long route
	short := sign(t, "short", testutil.Line(origin, 0, 1950, 80))

	m := CompareRoutes(short, long, DefaultConfig())
	require.InDelta(t, DefaultMinMatchPercentage, m.MatchPercentage, 2)

	cfg := DefaultConfig()
	cfg.MinMatchPercentage = m.MatchPercentage
	at := CompareRoutes(short, long, cfg)
	assert.Equal(t, models.DirectionPartial, at.Direction)
	require.NotNil(t, at.OverlapDistance)
	assert.InDelta(t, 1950, *at.OverlapDistance, 50)
	assert.True(t, IsDisplayable(at.MatchPercentage, cfg))

	cfg.MinMatchPercentage = m.MatchPercentage + 0.01
	below := CompareRoutes(short, long, cfg)
	assert.Equal(t, models.DirectionSame, below.Direction)
	assert.Nil(t, below.OverlapStart)
	assert.Nil(t, below.OverlapDistance)
	assert.False(t, IsDisplayable(below.MatchPercentage, cfg))
}

func TestIsPartial(t *testing.T) {
	cfg := DefaultConfig()
	assert.False(t, IsPartial(19.99, cfg))
	assert.True(t, IsPartial(20, cfg))
	assert.True(t, IsPartial(69.99, cfg))
	assert.False(t, IsPartial(70, cfg))
}
