package grouping

import (
	"math"

	"github.com/jengzang/routes-backend-go/internal/models"
	"github.com/jengzang/routes-backend-go/internal/routes"
	"github.com/jengzang/routes-backend-go/internal/spatial"
	"gonum.org/v1/gonum/stat"
)

// outlierSigmas is how far from the mean a station point may lie before it is rejected
const outlierSigmas = 2.0

// BuildConsensus derives the common core of a group's members.
//
// The reference signature is resampled to ConsensusStations stations by arc length,
// and so is every member. At each reference station every member contributes its
// nearest station if it lies within twice DistanceThreshold, which lets partial
// members drop out where they do not reach. Contributions are averaged after
// rejecting points beyond two standard deviations. A station survives when at least
// CoverageThreshold of the members contributed, and the longest contiguous run of
// surviving stations is returned. For loops this can be a single dominant arc
// rather than the full circuit.
func BuildConsensus(reference models.RouteSignature, members []models.RouteSignature, cfg routes.Config) []models.RoutePoint {
	if reference.IsDegenerate() || len(members) == 0 {
		return nil
	}

	n := cfg.ConsensusStations
	corridor := 2 * cfg.DistanceThreshold
	ref := spatial.Resample(reference.Points, n)

	stations := make([][]models.RoutePoint, 0, len(members))
	for _, m := range members {
		if m.IsDegenerate() {
			continue
		}
		stations = append(stations, spatial.Resample(m.Points, n))
	}

	kept := make([]bool, n)
	points := make([]models.RoutePoint, n)
	contrib := make([]models.RoutePoint, 0, len(stations))
	for i, s := range ref {
		contrib = contrib[:0]
		for _, ms := range stations {
			if p, d := nearest(s, ms); d <= corridor {
				contrib = append(contrib, p)
			}
		}
		if float64(len(contrib))/float64(len(members)) < cfg.CoverageThreshold {
			continue
		}
		points[i] = robustMean(contrib)
		kept[i] = true
	}

	start, end := longestKeptRun(kept)
	if end-start+1 < 2 {
		return nil
	}
	out := make([]models.RoutePoint, end-start+1)
	copy(out, points[start:end+1])
	return out
}

// nearest returns the station closest to p and its distance
func nearest(p models.RoutePoint, stations []models.RoutePoint) (models.RoutePoint, float64) {
	best := models.RoutePoint{}
	bestDist := math.Inf(1)
	for _, s := range stations {
		if d := spatial.Distance(p, s); d < bestDist {
			best, bestDist = s, d
		}
	}
	return best, bestDist
}

// robustMean averages points after discarding those further than two standard
// deviations (of distance to the plain mean) from the plain mean
func robustMean(points []models.RoutePoint) models.RoutePoint {
	lats := make([]float64, len(points))
	lngs := make([]float64, len(points))
	for i, p := range points {
		lats[i], lngs[i] = p.Lat, p.Lng
	}
	mean := models.RoutePoint{Lat: stat.Mean(lats, nil), Lng: stat.Mean(lngs, nil)}
	if len(points) < 3 {
		return mean
	}

	dists := make([]float64, len(points))
	for i, p := range points {
		dists[i] = spatial.Distance(p, mean)
	}
	mu, sigma := stat.MeanStdDev(dists, nil)
	if sigma == 0 || math.IsNaN(sigma) {
		return mean
	}

	lats, lngs = lats[:0], lngs[:0]
	for i, p := range points {
		if dists[i] <= mu+outlierSigmas*sigma {
			lats = append(lats, p.Lat)
			lngs = append(lngs, p.Lng)
		}
	}
	return models.RoutePoint{Lat: stat.Mean(lats, nil), Lng: stat.Mean(lngs, nil)}
}

func longestKeptRun(kept []bool) (int, int) {
	bestStart, bestEnd := 0, -1
	runStart := -1
	for i, k := range kept {
		if !k {
			runStart = -1
			continue
		}
		if runStart < 0 {
			runStart = i
		}
		if i-runStart > bestEnd-bestStart {
			bestStart, bestEnd = runStart, i
		}
	}
	return bestStart, bestEnd
}
