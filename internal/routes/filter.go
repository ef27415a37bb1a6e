package routes

import (
	"math"

	"github.com/jengzang/routes-backend-go/internal/models"
	"github.com/jengzang/routes-backend-go/internal/spatial"
)

// CalculateBoundsOverlap returns the intersection area divided by the area of the
// smaller box. A short route fully inside a long route's box scores 1.
func CalculateBoundsOverlap(a, b models.Bounds) float64 {
	a, b = a.Normalize(), b.Normalize()

	ix := math.Min(a.MaxLng, b.MaxLng) - math.Max(a.MinLng, b.MinLng)
	iy := math.Min(a.MaxLat, b.MaxLat) - math.Max(a.MinLat, b.MinLat)
	if ix < 0 || iy < 0 {
		return 0
	}

	smaller := math.Min(spatial.BoundsArea(a), spatial.BoundsArea(b))
	if smaller <= 0 {
		// a line or a point touching the other box
		return 1
	}
	return math.Min(ix*iy/smaller, 1)
}

// DistanceDifference returns |a-b| / max(a,b), or 0 when both are zero
func DistanceDifference(a, b float64) float64 {
	longest := math.Max(a, b)
	if longest <= 0 {
		return 0
	}
	return math.Abs(a-b) / longest
}

// QuickFilterMatch is the cheap pairwise compatibility test run before any full comparison.
// Checks short-circuit in order: bounds overlap, distance ratio, loop exception, endpoints.
func QuickFilterMatch(a, b models.RouteSignature, cfg Config) bool {
	if a.IsDegenerate() || b.IsDegenerate() {
		return false
	}

	if CalculateBoundsOverlap(a.Bounds, b.Bounds) < cfg.MinBoundsOverlap {
		return false
	}

	if DistanceDifference(a.Distance, b.Distance) > cfg.MaxDistanceDifference {
		return false
	}

	// loops have no meaningful direction at their endpoints
	if a.IsLoop && b.IsLoop {
		return true
	}

	return EndpointsMatch(a, b, cfg.EndpointThreshold) != ""
}

// EndpointsMatch compares the endpoints of two signatures with true geodesic distance and
// returns the direction in which they line up, or "" when neither does.
func EndpointsMatch(a, b models.RouteSignature, threshold float64) models.MatchDirection {
	startStart := spatial.Distance(a.Start(), b.Start())
	endEnd := spatial.Distance(a.End(), b.End())
	if startStart < threshold && endEnd < threshold {
		return models.DirectionSame
	}

	startEnd := spatial.Distance(a.Start(), b.End())
	endStart := spatial.Distance(a.End(), b.Start())
	if startEnd < threshold && endStart < threshold {
		return models.DirectionReverse
	}
	return ""
}

// ReverseSignature returns the signature traversed backwards. Distance, bounds and the
// loop flag are direction-free and are carried over; only point order and the
// start/end region hashes change.
func ReverseSignature(sig models.RouteSignature) models.RouteSignature {
	rev := sig
	rev.Points = make([]models.RoutePoint, len(sig.Points))
	for i, p := range sig.Points {
		rev.Points[len(sig.Points)-1-i] = p
	}
	rev.StartRegionHash, rev.EndRegionHash = sig.EndRegionHash, sig.StartRegionHash
	return rev
}
