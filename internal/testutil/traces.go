// Package testutil builds synthetic GPS traces for tests.
package testutil

import (
	"math"

	"github.com/jengzang/routes-backend-go/internal/models"
	"github.com/jengzang/routes-backend-go/internal/spatial"
)

// Line returns n points on a straight path of length meters heading along bearing
func Line(start models.RoutePoint, bearing, length float64, n int) []models.RoutePoint {
	if n < 2 {
		n = 2
	}
	pts := make([]models.RoutePoint, n)
	for i := range pts {
		d := length * float64(i) / float64(n-1)
		lat, lng := spatial.DestinationPoint(start.Lat, start.Lng, bearing, d)
		pts[i] = models.RoutePoint{Lat: lat, Lng: lng}
	}
	return pts
}

// Loop returns a closed circular trace of the given circumference that starts and
// ends at start. The circle lies east of start; clockwise flips the traversal.
func Loop(start models.RoutePoint, circumference float64, n int, clockwise bool) []models.RoutePoint {
	if n < 3 {
		n = 3
	}
	radius := circumference / (2 * math.Pi)
	cLat, cLng := spatial.DestinationPoint(start.Lat, start.Lng, 90, radius)

	pts := make([]models.RoutePoint, n)
	for i := range pts {
		frac := float64(i) / float64(n-1)
		// start sits due west of the centre (bearing 270)
		bearing := 270 - 360*frac
		if clockwise {
			bearing = 270 + 360*frac
		}
		lat, lng := spatial.DestinationPoint(cLat, cLng, math.Mod(bearing+360, 360), radius)
		pts[i] = models.RoutePoint{Lat: lat, Lng: lng}
	}
	return pts
}

// Reverse returns a reversed copy of pts
func Reverse(pts []models.RoutePoint) []models.RoutePoint {
	out := make([]models.RoutePoint, len(pts))
	for i, p := range pts {
		out[len(pts)-1-i] = p
	}
	return out
}

// Jitter shifts every point by up to meters in a deterministic zig-zag pattern
func Jitter(pts []models.RoutePoint, meters float64) []models.RoutePoint {
	out := make([]models.RoutePoint, len(pts))
	for i, p := range pts {
		bearing := float64((i * 137) % 360)
		d := meters * float64(i%3) / 2
		lat, lng := spatial.DestinationPoint(p.Lat, p.Lng, bearing, d)
		out[i] = models.RoutePoint{Lat: lat, Lng: lng}
	}
	return out
}
