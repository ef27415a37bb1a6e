package spatial

import (
	"math"

	"github.com/jengzang/routes-backend-go/internal/models"
)

// IsValidPoint reports whether p is a finite coordinate inside the WGS84 range
func IsValidPoint(p models.RoutePoint) bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// PathLength calculates the total length of a path (sequence of points) in meters
func PathLength(points []models.RoutePoint) float64 {
	if len(points) < 2 {
		return 0
	}

	var totalDist float64
	for i := 1; i < len(points); i++ {
		totalDist += Distance(points[i-1], points[i])
	}

	return totalDist
}

// RouteDistance is PathLength without the steps longer than maxStep meters.
// Such steps are GPS dropouts rather than real movement.
func RouteDistance(points []models.RoutePoint, maxStep float64) float64 {
	if len(points) < 2 {
		return 0
	}

	var totalDist float64
	for i := 1; i < len(points); i++ {
		d := Distance(points[i-1], points[i])
		if d > maxStep {
			continue
		}
		totalDist += d
	}

	return totalDist
}

// CumulativeDistances returns the distance in meters from the first point to each point
func CumulativeDistances(points []models.RoutePoint) []float64 {
	cum := make([]float64, len(points))
	for i := 1; i < len(points); i++ {
		cum[i] = cum[i-1] + Distance(points[i-1], points[i])
	}
	return cum
}

// ComputeBounds calculates the bounding box of a set of points
func ComputeBounds(points []models.RoutePoint) models.Bounds {
	if len(points) == 0 {
		return models.Bounds{}
	}

	b := models.Bounds{
		MinLat: points[0].Lat, MaxLat: points[0].Lat,
		MinLng: points[0].Lng, MaxLng: points[0].Lng,
	}
	for _, p := range points[1:] {
		b.MinLat = math.Min(b.MinLat, p.Lat)
		b.MaxLat = math.Max(b.MaxLat, p.Lat)
		b.MinLng = math.Min(b.MinLng, p.Lng)
		b.MaxLng = math.Max(b.MaxLng, p.Lng)
	}

	return b
}

// PadBounds grows the box by meters on every side
func PadBounds(b models.Bounds, meters float64) models.Bounds {
	latDelta := meters / MetersPerDegree
	lngDelta := latDelta
	if cosLat := math.Cos(b.Center().Lat * math.Pi / 180); cosLat > 1e-6 {
		lngDelta = latDelta / cosLat
	}
	return models.Bounds{
		MinLat: b.MinLat - latDelta,
		MaxLat: b.MaxLat + latDelta,
		MinLng: b.MinLng - lngDelta,
		MaxLng: b.MaxLng + lngDelta,
	}
}

// BoundsArea is the planar area of the box in square degrees
func BoundsArea(b models.Bounds) float64 {
	return (b.MaxLat - b.MinLat) * (b.MaxLng - b.MinLng)
}

// DouglasPeucker simplifies a path using the Ramer-Douglas-Peucker algorithm.
// epsilon is the maximum perpendicular distance (meters) from the chord.
// The first and last points are always kept.
func DouglasPeucker(points []models.RoutePoint, epsilon float64) []models.RoutePoint {
	if len(points) < 3 {
		out := make([]models.RoutePoint, len(points))
		copy(out, points)
		return out
	}

	keep := make([]bool, len(points))
	keep[0] = true
	keep[len(points)-1] = true
	simplifyRange(points, 0, len(points)-1, epsilon, keep)

	result := make([]models.RoutePoint, 0, len(points))
	for i, k := range keep {
		if k {
			result = append(result, points[i])
		}
	}
	return result
}

func simplifyRange(points []models.RoutePoint, first, last int, epsilon float64, keep []bool) {
	if last-first < 2 {
		return
	}

	maxDist := 0.0
	maxIndex := first
	for i := first + 1; i < last; i++ {
		dist := perpendicularDistance(points[i], points[first], points[last])
		if dist > maxDist {
			maxDist = dist
			maxIndex = i
		}
	}

	if maxDist > epsilon {
		keep[maxIndex] = true
		simplifyRange(points, first, maxIndex, epsilon, keep)
		simplifyRange(points, maxIndex, last, epsilon, keep)
	}
}

// Resample returns n points evenly spaced by arc length along the path.
// The first and last points of the result are the first and last points of the input.
func Resample(points []models.RoutePoint, n int) []models.RoutePoint {
	if n <= 0 || len(points) == 0 {
		return nil
	}
	result := make([]models.RoutePoint, n)
	if len(points) == 1 || n == 1 {
		for i := range result {
			result[i] = points[0]
		}
		return result
	}

	cum := CumulativeDistances(points)
	total := cum[len(cum)-1]
	if total == 0 {
		for i := range result {
			result[i] = points[0]
		}
		return result
	}

	result[0] = points[0]
	result[n-1] = points[len(points)-1]

	seg := 0
	for i := 1; i < n-1; i++ {
		target := total * float64(i) / float64(n-1)
		for seg < len(cum)-2 && cum[seg+1] < target {
			seg++
		}
		segLen := cum[seg+1] - cum[seg]
		if segLen == 0 {
			result[i] = points[seg]
			continue
		}
		result[i] = Interpolate(points[seg], points[seg+1], (target-cum[seg])/segLen)
	}

	return result
}
