package spatial

import (
	"math"

	"github.com/golang/geo/s2"
	"github.com/jengzang/routes-backend-go/internal/models"
)

// HaversineDistance calculates the great-circle distance between two points in meters
func HaversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	p1 := s2.LatLngFromDegrees(lat1, lon1)
	p2 := s2.LatLngFromDegrees(lat2, lon2)
	return p1.Distance(p2).Radians() * EarthRadiusMeters
}

// Distance is HaversineDistance for route points
func Distance(a, b models.RoutePoint) float64 {
	return HaversineDistance(a.Lat, a.Lng, b.Lat, b.Lng)
}

// DestinationPoint calculates the destination point given a start point, bearing, and distance
// bearing: degrees (0-360), distance: meters
func DestinationPoint(lat, lon, bearing, distance float64) (float64, float64) {
	p := s2.LatLngFromDegrees(lat, lon)
	bearingRad := bearing * math.Pi / 180
	angularDistance := distance / EarthRadiusMeters

	latRad := p.Lat.Radians()
	lonRad := p.Lng.Radians()

	lat2 := math.Asin(math.Sin(latRad)*math.Cos(angularDistance) +
		math.Cos(latRad)*math.Sin(angularDistance)*math.Cos(bearingRad))

	lon2 := lonRad + math.Atan2(
		math.Sin(bearingRad)*math.Sin(angularDistance)*math.Cos(latRad),
		math.Cos(angularDistance)-math.Sin(latRad)*math.Sin(lat2))

	return lat2 * 180 / math.Pi, lon2 * 180 / math.Pi
}

// Interpolate returns the point at fraction t (0..1) along the great circle from a to b
func Interpolate(a, b models.RoutePoint, t float64) models.RoutePoint {
	if t <= 0 {
		return a
	}
	if t >= 1 {
		return b
	}
	pa := s2.PointFromLatLng(s2.LatLngFromDegrees(a.Lat, a.Lng))
	pb := s2.PointFromLatLng(s2.LatLngFromDegrees(b.Lat, b.Lng))
	ll := s2.LatLngFromPoint(s2.Interpolate(t, pa, pb))
	return models.RoutePoint{Lat: ll.Lat.Degrees(), Lng: ll.Lng.Degrees()}
}

// PointToSegmentDistance returns the distance in meters from p to the segment a-b.
// The segment is projected onto a local equirectangular plane centred on a, which is
// accurate at the scale of GPS sample spacing.
func PointToSegmentDistance(p, a, b models.RoutePoint) float64 {
	px, py := project(p, a)
	bx, by := project(b, a)

	segLenSq := bx*bx + by*by
	if segLenSq == 0 {
		return Distance(p, a)
	}

	t := (px*bx + py*by) / segLenSq
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}

	return math.Hypot(px-t*bx, py-t*by)
}

// perpendicularDistance is the distance from p to the infinite line through a and b
func perpendicularDistance(p, a, b models.RoutePoint) float64 {
	px, py := project(p, a)
	bx, by := project(b, a)

	den := math.Hypot(bx, by)
	if den == 0 {
		return Distance(p, a)
	}
	return math.Abs(bx*py-by*px) / den
}

// PointToPolylineDistance returns the minimum distance in meters from p to any segment of line
func PointToPolylineDistance(p models.RoutePoint, line []models.RoutePoint) float64 {
	switch len(line) {
	case 0:
		return math.Inf(1)
	case 1:
		return Distance(p, line[0])
	}

	minDist := math.Inf(1)
	for i := 1; i < len(line); i++ {
		if d := PointToSegmentDistance(p, line[i-1], line[i]); d < minDist {
			minDist = d
		}
	}
	return minDist
}

// project converts p to planar meters relative to origin
func project(p, origin models.RoutePoint) (float64, float64) {
	cosLat := math.Cos(origin.Lat * math.Pi / 180)
	x := (p.Lng - origin.Lng) * MetersPerDegree * cosLat
	y := (p.Lat - origin.Lat) * MetersPerDegree
	return x, y
}

// Constants
const (
	EarthRadiusMeters = 6371000.0 // Earth's mean radius in meters
	EarthRadiusKm     = 6371.0    // Earth's mean radius in kilometers

	// MetersPerDegree is the length of one degree of latitude on the mean sphere
	MetersPerDegree = EarthRadiusMeters * math.Pi / 180
)
