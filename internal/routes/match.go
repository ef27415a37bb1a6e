package routes

import (
	"math"

	"github.com/jengzang/routes-backend-go/internal/models"
	"github.com/jengzang/routes-backend-go/internal/spatial"
)

// CompareRoutes computes the full match of a against b.
//
// Both polylines are resampled to TargetPoints stations by arc length. Coverage of a
// is the fraction of a's stations within DistanceThreshold of b's polyline, and the
// other way around. The match percentage is the smaller of the two coverages, so it
// grows with geometric overlap and does not depend on traversal direction.
//
// A match between MinMatchPercentage and MinGroupingPercentage is partial: the routes
// share a stretch but are not the same route, and the shared extent is reported.
func CompareRoutes(a, b models.RouteSignature, cfg Config) models.RouteMatch {
	match := models.RouteMatch{
		ActivityID: a.ActivityID,
		Direction:  models.DirectionPartial,
	}
	if a.IsDegenerate() || b.IsDegenerate() {
		return match
	}

	n := cfg.TargetPoints
	stationsA := spatial.Resample(a.Points, n)
	stationsB := spatial.Resample(b.Points, n)

	nearA := stationDistances(stationsA, b.Points)
	nearB := stationDistances(stationsB, a.Points)
	covA, devA := coverage(nearA, cfg.DistanceThreshold)
	covB, devB := coverage(nearB, cfg.DistanceThreshold)

	match.MatchPercentage = 100 * math.Min(covA, covB)
	match.Direction = alignment(stationsA, stationsB)

	if IsPartial(match.MatchPercentage, cfg) {
		match.Direction = models.DirectionPartial

		// extents are reported on the shorter route
		near, length := nearA, a.Distance
		if b.Distance < a.Distance {
			near, length = nearB, b.Distance
		}
		if first, last, ok := longestRun(near, cfg.DistanceThreshold); ok {
			start := length * float64(first) / float64(n-1)
			end := length * float64(last) / float64(n-1)
			dist := end - start
			match.OverlapStart = &start
			match.OverlapEnd = &end
			match.OverlapDistance = &dist
		}
	}

	meanDev := 0.0
	if covA+covB > 0 {
		meanDev = (devA*covA + devB*covB) / (covA + covB)
	}
	confidence := (covA + covB) / 2 * (1 - meanDev/cfg.DistanceThreshold)
	match.Confidence = math.Max(0, math.Min(1, confidence))

	return match
}

// IsDisplayable reports whether a match percentage is high enough to show to users
func IsDisplayable(percentage float64, cfg Config) bool {
	return percentage >= cfg.MinMatchPercentage
}

// IsPartial reports whether a match percentage is displayable but below grouping
func IsPartial(percentage float64, cfg Config) bool {
	return IsDisplayable(percentage, cfg) && percentage < cfg.MinGroupingPercentage
}

// stationDistances returns, for each station, its distance to the polyline
func stationDistances(stations, line []models.RoutePoint) []float64 {
	out := make([]float64, len(stations))
	for i, s := range stations {
		out[i] = spatial.PointToPolylineDistance(s, line)
	}
	return out
}

// coverage returns the fraction of distances within threshold and their mean
func coverage(distances []float64, threshold float64) (float64, float64) {
	if len(distances) == 0 {
		return 0, 0
	}
	matched := 0
	sum := 0.0
	for _, d := range distances {
		if d <= threshold {
			matched++
			sum += d
		}
	}
	if matched == 0 {
		return 0, 0
	}
	return float64(matched) / float64(len(distances)), sum / float64(matched)
}

// alignment decides whether b runs the same way as a by pairing stations in order and
// in reverse and keeping the cheaper pairing
func alignment(a, b []models.RoutePoint) models.MatchDirection {
	var same, reverse float64
	n := len(a)
	for i := 0; i < n; i++ {
		same += spatial.Distance(a[i], b[i])
		reverse += spatial.Distance(a[i], b[n-1-i])
	}
	if reverse < same {
		return models.DirectionReverse
	}
	return models.DirectionSame
}

// longestRun finds the longest run of consecutive stations within threshold
func longestRun(distances []float64, threshold float64) (int, int, bool) {
	bestStart, bestEnd := -1, -1
	runStart := -1
	for i, d := range distances {
		if d <= threshold {
			if runStart < 0 {
				runStart = i
			}
			if bestStart < 0 || i-runStart > bestEnd-bestStart {
				bestStart, bestEnd = runStart, i
			}
		} else {
			runStart = -1
		}
	}
	return bestStart, bestEnd, bestStart >= 0
}
